// Flux - Event Ingestion, State Projection, and Real-Time Fan-Out
// Copyright 2026 EckmanTech LLC
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/EckmanTechLLC/flux

// Package eventlog is the client for the durable event log (NATS
// JetStream). It provides idempotent stream initialization, acknowledged
// appends, and ordered replay consumers addressed by sequence number or
// start time. Delivery is at-least-once; downstream projection relies on
// event ids for idempotency.
package eventlog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/EckmanTechLLC/flux/internal/logging"
)

// SubjectPrefix is prepended to the event stream name to build the log
// subject, e.g. stream "sensors.temp" -> "flux.events.sensors.temp".
const SubjectPrefix = "flux.events."

// Config holds event log connection and stream settings.
type Config struct {
	URL            string
	StreamName     string
	StreamSubjects []string
	MaxAge         time.Duration
	MaxBytes       int64
}

// DefaultConfig returns the standard Flux stream settings.
func DefaultConfig() Config {
	return Config{
		URL:            nats.DefaultURL,
		StreamName:     "FLUX_EVENTS",
		StreamSubjects: []string{"flux.events.>"},
		MaxAge:         7 * 24 * time.Hour,
		MaxBytes:       10 * 1024 * 1024 * 1024,
	}
}

// Client wraps the NATS connection and JetStream context.
type Client struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	config Config
}

// Connect dials the event log, initializes JetStream, and ensures the
// Flux stream exists.
func Connect(ctx context.Context, cfg Config) (*Client, error) {
	logging.Info().Str("url", cfg.URL).Msg("connecting to event log")

	nc, err := nats.Connect(cfg.URL,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logging.Warn().Err(err).Msg("event log disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logging.Info().Str("url", nc.ConnectedUrl()).Msg("event log reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	c := &Client{nc: nc, js: js, config: cfg}
	if err := c.EnsureStream(ctx); err != nil {
		nc.Close()
		return nil, err
	}
	return c, nil
}

// EnsureStream creates the stream if it does not already exist. Safe to
// call repeatedly.
func (c *Client) EnsureStream(ctx context.Context) error {
	if _, err := c.js.Stream(ctx, c.config.StreamName); err == nil {
		logging.Debug().Str("stream", c.config.StreamName).Msg("stream already exists")
		return nil
	}

	_, err := c.js.CreateStream(ctx, jetstream.StreamConfig{
		Name:      c.config.StreamName,
		Subjects:  c.config.StreamSubjects,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    c.config.MaxAge,
		MaxBytes:  c.config.MaxBytes,
		Storage:   jetstream.FileStorage,
		Discard:   jetstream.DiscardOld,
		// Producer-supplied event ids deduplicate redeliveries within
		// this window.
		Duplicates: 2 * time.Minute,
	})
	if err != nil {
		return fmt.Errorf("create stream %s: %w", c.config.StreamName, err)
	}

	logging.Info().
		Str("stream", c.config.StreamName).
		Strs("subjects", c.config.StreamSubjects).
		Msg("event log stream created")
	return nil
}

// StreamName returns the configured stream name.
func (c *Client) StreamName() string {
	return c.config.StreamName
}

// JetStream returns the underlying JetStream context.
func (c *Client) JetStream() jetstream.JetStream {
	return c.js
}

// Close drains and closes the connection.
func (c *Client) Close() {
	c.nc.Close()
}

// Message is one delivered event log entry with its stream sequence.
type Message struct {
	Data     []byte
	Sequence uint64
}

// ErrNoMessage is returned by Consumer.Next when no message arrived
// within the wait window.
var ErrNoMessage = errors.New("no message available")

// Consumer is an ordered replay consumer over the Flux stream.
type Consumer struct {
	consumer jetstream.Consumer
}

// NewConsumerFromSequence creates an ordered consumer starting at the
// given stream sequence. A startSeq of 0 degenerates to replay-all
// (cold start).
func (c *Client) NewConsumerFromSequence(ctx context.Context, startSeq uint64) (*Consumer, error) {
	cfg := jetstream.OrderedConsumerConfig{
		DeliverPolicy: jetstream.DeliverByStartSequencePolicy,
		OptStartSeq:   startSeq,
	}
	if startSeq == 0 {
		cfg = jetstream.OrderedConsumerConfig{DeliverPolicy: jetstream.DeliverAllPolicy}
	}

	consumer, err := c.js.OrderedConsumer(ctx, c.config.StreamName, cfg)
	if err != nil {
		return nil, fmt.Errorf("create consumer from sequence %d: %w", startSeq, err)
	}
	return &Consumer{consumer: consumer}, nil
}

// NewConsumerFromTime creates an ordered consumer delivering messages
// stored at or after the given time.
func (c *Client) NewConsumerFromTime(ctx context.Context, start time.Time) (*Consumer, error) {
	consumer, err := c.js.OrderedConsumer(ctx, c.config.StreamName, jetstream.OrderedConsumerConfig{
		DeliverPolicy: jetstream.DeliverByStartTimePolicy,
		OptStartTime:  &start,
	})
	if err != nil {
		return nil, fmt.Errorf("create consumer from time %s: %w", start, err)
	}
	return &Consumer{consumer: consumer}, nil
}

// Next returns the next message, waiting up to maxWait. Returns
// ErrNoMessage when the window elapses without a delivery.
func (c *Consumer) Next(maxWait time.Duration) (*Message, error) {
	msg, err := c.consumer.Next(jetstream.FetchMaxWait(maxWait))
	if err != nil {
		if errors.Is(err, jetstream.ErrNoMessages) ||
			errors.Is(err, nats.ErrTimeout) ||
			errors.Is(err, context.DeadlineExceeded) {
			return nil, ErrNoMessage
		}
		return nil, err
	}

	meta, err := msg.Metadata()
	if err != nil {
		return nil, fmt.Errorf("read message metadata: %w", err)
	}

	return &Message{
		Data:     msg.Data(),
		Sequence: meta.Sequence.Stream,
	}, nil
}
