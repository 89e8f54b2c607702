// Flux - Event Ingestion, State Projection, and Real-Time Fan-Out
// Copyright 2026 EckmanTech LLC
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/EckmanTechLLC/flux

package state_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/EckmanTechLLC/flux/internal/event"
	"github.com/EckmanTechLLC/flux/internal/eventlog"
	"github.com/EckmanTechLLC/flux/internal/snapshot"
	"github.com/EckmanTechLLC/flux/internal/state"
)

func startLog(t *testing.T) (*eventlog.Client, *eventlog.Publisher) {
	t.Helper()

	srv, err := eventlog.NewEmbeddedServer(eventlog.EmbeddedConfig{Port: -1, StoreDir: t.TempDir()})
	if err != nil {
		t.Fatalf("embedded server: %v", err)
	}
	t.Cleanup(srv.Shutdown)

	cfg := eventlog.DefaultConfig()
	cfg.URL = srv.ClientURL()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := eventlog.Connect(ctx, cfg)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(client.Close)
	return client, eventlog.NewPublisher(client)
}

func publishUpdate(t *testing.T, pub *eventlog.Publisher, entityID string, props map[string]interface{}) uint64 {
	t.Helper()
	payload, _ := json.Marshal(map[string]interface{}{
		"entity_id":  entityID,
		"properties": props,
	})
	ev := &event.Event{
		Stream:    "sensors.data",
		Source:    "projector-test",
		Timestamp: time.Now().UnixMilli(),
		Payload:   payload,
	}
	if err := event.ValidateAndPrepare(ev); err != nil {
		t.Fatal(err)
	}
	seq, err := pub.Publish(context.Background(), ev)
	if err != nil {
		t.Fatal(err)
	}
	return seq
}

// runProjectorUntil runs a projector until the engine reaches the
// target sequence.
func runProjectorUntil(t *testing.T, client *eventlog.Client, engine *state.Engine, targetSeq uint64) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() { _ = state.NewProjector(client, engine).Serve(ctx) }()

	deadline := time.Now().Add(10 * time.Second)
	for engine.LastProcessedSequence() < targetSeq && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	if engine.LastProcessedSequence() < targetSeq {
		t.Fatalf("projector stalled at %d, want %d", engine.LastProcessedSequence(), targetSeq)
	}
}

func entitiesEqual(t *testing.T, a, b *state.Engine) {
	t.Helper()
	aAll, bAll := a.AllEntities(), b.AllEntities()
	if len(aAll) != len(bAll) {
		t.Fatalf("entity counts differ: %d vs %d", len(aAll), len(bAll))
	}
	for _, ent := range aAll {
		other, ok := b.GetEntity(ent.ID)
		if !ok {
			t.Errorf("entity %s missing from second engine", ent.ID)
			continue
		}
		if len(ent.Properties) != len(other.Properties) {
			t.Errorf("entity %s property counts differ", ent.ID)
			continue
		}
		for k, v := range ent.Properties {
			if string(other.Properties[k]) != string(v) {
				t.Errorf("entity %s property %s differs: %s vs %s", ent.ID, k, v, other.Properties[k])
			}
		}
	}
}

// TestSnapshotRestorePlusTailReplay is the projection determinism
// contract: restoring a snapshot and replaying the tail yields the same
// final state as replaying the full log.
func TestSnapshotRestorePlusTailReplay(t *testing.T) {
	client, pub := startLog(t)

	// Phase 1: 100 events across 10 entities.
	var lastSeq uint64
	for i := 0; i < 100; i++ {
		entityID := fmt.Sprintf("proj-ns/entity-%d", i%10)
		lastSeq = publishUpdate(t, pub, entityID, map[string]interface{}{
			"counter": i,
			"label":   fmt.Sprintf("v%d", i),
		})
	}

	// Project phase 1 and snapshot at that point.
	live := state.NewEngine()
	runProjectorUntil(t, client, live, lastSeq)

	snapDir := t.TempDir()
	snap := snapshot.FromEngine(live)
	if err := snap.SaveToFile(snapDir + "/" + snap.Filename()); err != nil {
		t.Fatal(err)
	}
	snapshotSeq := snap.SequenceNumber

	// Phase 2: 10 more events, including a tombstone.
	for i := 0; i < 9; i++ {
		entityID := fmt.Sprintf("proj-ns/entity-%d", i%10)
		lastSeq = publishUpdate(t, pub, entityID, map[string]interface{}{"counter": 1000 + i})
	}
	lastSeq = publishUpdate(t, pub, "proj-ns/entity-9", map[string]interface{}{"__deleted__": true})

	// Continue the live projector over phase 2.
	runProjectorUntil(t, client, live, lastSeq)

	// Restart path: restore the snapshot, replay the tail.
	restored := state.NewEngine()
	gotSeq, err := snapshot.Recover(snapDir, restored)
	if err != nil {
		t.Fatal(err)
	}
	if gotSeq != snapshotSeq {
		t.Fatalf("recovered sequence %d, want %d", gotSeq, snapshotSeq)
	}
	runProjectorUntil(t, client, restored, lastSeq)

	// Full-replay path: cold start from sequence zero.
	replayed := state.NewEngine()
	runProjectorUntil(t, client, replayed, lastSeq)

	if restored.LastProcessedSequence() < snapshotSeq {
		t.Errorf("restored sequence went backwards: %d < %d", restored.LastProcessedSequence(), snapshotSeq)
	}

	entitiesEqual(t, live, restored)
	entitiesEqual(t, live, replayed)

	// The tombstoned entity is gone everywhere.
	for name, engine := range map[string]*state.Engine{"live": live, "restored": restored, "replayed": replayed} {
		if _, ok := engine.GetEntity("proj-ns/entity-9"); ok {
			t.Errorf("%s engine still has tombstoned entity", name)
		}
	}
}
