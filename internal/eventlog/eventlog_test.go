// Flux - Event Ingestion, State Projection, and Real-Time Fan-Out
// Copyright 2026 EckmanTech LLC
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/EckmanTechLLC/flux

package eventlog

import (
	"context"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/EckmanTechLLC/flux/internal/event"
)

// startTestLog starts an embedded server and a connected client.
func startTestLog(t *testing.T) (*Client, *Publisher) {
	t.Helper()

	srv, err := NewEmbeddedServer(EmbeddedConfig{Port: -1, StoreDir: t.TempDir()})
	if err != nil {
		t.Fatalf("start embedded server: %v", err)
	}
	t.Cleanup(srv.Shutdown)

	cfg := DefaultConfig()
	cfg.URL = srv.ClientURL()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := Connect(ctx, cfg)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(client.Close)

	return client, NewPublisher(client)
}

func testEvent(stream, entityID string) *event.Event {
	payload, _ := json.Marshal(map[string]interface{}{
		"entity_id":  entityID,
		"properties": map[string]interface{}{"value": 1},
	})
	e := &event.Event{
		Stream:    stream,
		Source:    "test",
		Timestamp: time.Now().UnixMilli(),
		Payload:   payload,
	}
	if err := event.ValidateAndPrepare(e); err != nil {
		panic(err)
	}
	return e
}

func TestPublishAssignsMonotonicSequences(t *testing.T) {
	_, pub := startTestLog(t)
	ctx := context.Background()

	var last uint64
	for i := 0; i < 5; i++ {
		seq, err := pub.Publish(ctx, testEvent("sensors.temp", "ns/e1"))
		if err != nil {
			t.Fatal(err)
		}
		if seq <= last {
			t.Errorf("sequence %d not greater than previous %d", seq, last)
		}
		last = seq
	}
}

func TestConsumeFromSequence(t *testing.T) {
	client, pub := startTestLog(t)
	ctx := context.Background()

	var seqs []uint64
	for i := 0; i < 5; i++ {
		seq, err := pub.Publish(ctx, testEvent("sensors.temp", "ns/e1"))
		if err != nil {
			t.Fatal(err)
		}
		seqs = append(seqs, seq)
	}

	// Start replay in the middle.
	consumer, err := client.NewConsumerFromSequence(ctx, seqs[2])
	if err != nil {
		t.Fatal(err)
	}

	for want := seqs[2]; want <= seqs[4]; want++ {
		msg, err := consumer.Next(5 * time.Second)
		if err != nil {
			t.Fatalf("next: %v", err)
		}
		if msg.Sequence != want {
			t.Errorf("sequence = %d, want %d", msg.Sequence, want)
		}
		if _, err := event.Unmarshal(msg.Data); err != nil {
			t.Errorf("delivered payload does not decode: %v", err)
		}
	}

	if _, err := consumer.Next(300 * time.Millisecond); err != ErrNoMessage {
		t.Errorf("expected ErrNoMessage at log end, got %v", err)
	}
}

func TestConsumeFromSequenceZeroReplaysAll(t *testing.T) {
	client, pub := startTestLog(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := pub.Publish(ctx, testEvent("sensors.temp", "ns/e1")); err != nil {
			t.Fatal(err)
		}
	}

	consumer, err := client.NewConsumerFromSequence(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}

	count := 0
	for {
		_, err := consumer.Next(500 * time.Millisecond)
		if err == ErrNoMessage {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
		count++
	}
	if count != 3 {
		t.Errorf("replayed %d messages, want 3", count)
	}
}

func TestConsumeFromTime(t *testing.T) {
	client, pub := startTestLog(t)
	ctx := context.Background()

	if _, err := pub.Publish(ctx, testEvent("sensors.temp", "ns/old")); err != nil {
		t.Fatal(err)
	}

	time.Sleep(50 * time.Millisecond)
	cut := time.Now()
	time.Sleep(50 * time.Millisecond)

	if _, err := pub.Publish(ctx, testEvent("sensors.temp", "ns/new")); err != nil {
		t.Fatal(err)
	}

	consumer, err := client.NewConsumerFromTime(ctx, cut)
	if err != nil {
		t.Fatal(err)
	}

	msg, err := consumer.Next(5 * time.Second)
	if err != nil {
		t.Fatal(err)
	}
	e, err := event.Unmarshal(msg.Data)
	if err != nil {
		t.Fatal(err)
	}
	if e.EntityID() != "ns/new" {
		t.Errorf("time-addressed replay returned %q, want ns/new", e.EntityID())
	}
}

func TestEnsureStreamIdempotent(t *testing.T) {
	client, _ := startTestLog(t)
	// Connect already ensured the stream once.
	if err := client.EnsureStream(context.Background()); err != nil {
		t.Errorf("second EnsureStream failed: %v", err)
	}
}
