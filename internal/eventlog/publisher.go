// Flux - Event Ingestion, State Projection, and Real-Time Fan-Out
// Copyright 2026 EckmanTech LLC
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/EckmanTechLLC/flux

package eventlog

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/EckmanTechLLC/flux/internal/event"
	"github.com/EckmanTechLLC/flux/internal/logging"
	"github.com/EckmanTechLLC/flux/internal/metrics"
)

// Publisher appends events to the durable log. Appends wait for the
// write acknowledgment. A circuit breaker sheds load while the log is
// unreachable instead of stacking up blocked requests.
type Publisher struct {
	client  *Client
	breaker *gobreaker.CircuitBreaker[uint64]
}

// NewPublisher creates a publisher over the given client.
func NewPublisher(client *Client) *Publisher {
	breaker := gobreaker.NewCircuitBreaker[uint64](gobreaker.Settings{
		Name:    "eventlog-publish",
		Timeout: 10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("publish circuit breaker state change")
		},
	})
	return &Publisher{client: client, breaker: breaker}
}

// Publish validates nothing — the caller has already run envelope
// validation — and appends the event to subject flux.events.<stream>.
// Returns the assigned stream sequence.
func (p *Publisher) Publish(ctx context.Context, e *event.Event) (uint64, error) {
	data, err := e.Marshal()
	if err != nil {
		return 0, fmt.Errorf("serialize event %s: %w", e.EventID, err)
	}
	return p.Append(ctx, SubjectPrefix+e.Stream, e.EventID, data)
}

// Append performs a durable append of raw bytes to the given subject.
// The message id enables JetStream-side deduplication on redelivery.
func (p *Publisher) Append(ctx context.Context, subject, msgID string, data []byte) (uint64, error) {
	seq, err := p.breaker.Execute(func() (uint64, error) {
		opts := []jetstream.PublishOpt{}
		if msgID != "" {
			opts = append(opts, jetstream.WithMsgID(msgID))
		}
		ack, err := p.client.js.Publish(ctx, subject, data, opts...)
		if err != nil {
			return 0, err
		}
		return ack.Sequence, nil
	})
	if err != nil {
		metrics.LogPublishErrors.Inc()
		return 0, fmt.Errorf("append to %s: %w", subject, err)
	}

	metrics.LogPublishes.Inc()
	return seq, nil
}

// Healthy reports whether the underlying connection is up and the
// breaker is closed.
func (p *Publisher) Healthy() bool {
	return p.client.nc.Status() == nats.CONNECTED && p.breaker.State() == gobreaker.StateClosed
}
