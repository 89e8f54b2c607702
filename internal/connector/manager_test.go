// Flux - Event Ingestion, State Projection, and Real-Time Fan-Out
// Copyright 2026 EckmanTech LLC
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/EckmanTechLLC/flux

package connector

import (
	"context"
	"testing"
	"time"

	"github.com/EckmanTechLLC/flux/internal/credentials"
)

func TestStartKeyRequiresCredentials(t *testing.T) {
	store := testCredStore(t)
	m := NewManager(store, "http://localhost:3000", time.Minute)

	err := m.StartKey(context.Background(), "user1", "github")
	if err == nil {
		t.Error("StartKey succeeded without credentials")
	}
}

func TestStartKeyUnknownConnector(t *testing.T) {
	store := testCredStore(t)
	m := NewManager(store, "http://localhost:3000", time.Minute)

	if err := m.StartKey(context.Background(), "user1", "doesnotexist"); err == nil {
		t.Error("StartKey succeeded for unknown connector")
	}
}

func TestDiscoveryStartsSchedulersForCredentials(t *testing.T) {
	store := testCredStore(t)
	// The github connector polls on a 5-minute interval, so no outbound
	// HTTP happens within this test.
	_ = store.Store("user1", "github", credentials.Credentials{AccessToken: "t"})
	_ = store.Store("user2", "github", credentials.Credentials{AccessToken: "t"})
	_ = store.Store("user3", "bogus-connector", credentials.Credentials{AccessToken: "t"})

	m := NewManager(store, "http://localhost:3000", time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	defer m.stopAll()

	started := m.runDiscoveryCycle(ctx)
	if started != 2 {
		t.Errorf("started = %d, want 2 (unknown connector skipped)", started)
	}

	statuses := m.Statuses()
	if len(statuses) != 2 {
		t.Errorf("statuses = %v", statuses)
	}
	if _, ok := statuses["user1:github"]; !ok {
		t.Error("user1:github not tracked")
	}
	if _, ok := statuses["user3:bogus-connector"]; ok {
		t.Error("unknown connector was started")
	}
}

func TestDiscoveryRemovesDeletedCredentials(t *testing.T) {
	store := testCredStore(t)
	_ = store.Store("user1", "github", credentials.Credentials{AccessToken: "t"})

	m := NewManager(store, "http://localhost:3000", time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	defer m.stopAll()

	m.runDiscoveryCycle(ctx)
	if _, ok := m.StatusFor("user1", "github"); !ok {
		t.Fatal("scheduler not started")
	}

	// Credentials deleted: the next cycle removes the scheduler.
	if _, err := store.Delete("user1", "github"); err != nil {
		t.Fatal(err)
	}
	m.runDiscoveryCycle(ctx)

	if _, ok := m.StatusFor("user1", "github"); ok {
		t.Error("scheduler survived credential deletion")
	}
	m.handlesMu.Lock()
	_, ok := m.handles["user1:github"]
	m.handlesMu.Unlock()
	if ok {
		t.Error("handle survived credential deletion")
	}
}

func TestDiscoveryRestartsErroredScheduler(t *testing.T) {
	store := testCredStore(t)
	_ = store.Store("user1", "github", credentials.Credentials{AccessToken: "t"})

	m := NewManager(store, "http://localhost:3000", time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	defer m.stopAll()

	m.runDiscoveryCycle(ctx)

	// Mark the running scheduler as errored.
	m.statusMu.Lock()
	oldHandle := m.statuses["user1:github"]
	m.statusMu.Unlock()
	oldHandle.recordError("auth failed")

	m.runDiscoveryCycle(ctx)

	m.statusMu.Lock()
	newHandle := m.statuses["user1:github"]
	m.statusMu.Unlock()

	if newHandle == oldHandle {
		t.Error("status handle not swapped on restart")
	}
	if status := newHandle.Get(); status.LastError != nil {
		t.Errorf("restarted scheduler carries old error: %+v", status)
	}
}

func TestDiscoveryConvergence(t *testing.T) {
	store := testCredStore(t)
	_ = store.Store("alice", "github", credentials.Credentials{AccessToken: "t"})
	_ = store.Store("bob", "github", credentials.Credentials{AccessToken: "t"})

	m := NewManager(store, "http://localhost:3000", time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	defer m.stopAll()

	// Two idle cycles: scheduler key set equals credential key set.
	m.runDiscoveryCycle(ctx)
	m.runDiscoveryCycle(ctx)

	statuses := m.Statuses()
	if len(statuses) != 2 {
		t.Fatalf("statuses = %d, want 2", len(statuses))
	}
	for _, k := range []string{"alice:github", "bob:github"} {
		if _, ok := statuses[k]; !ok {
			t.Errorf("missing scheduler for %s", k)
		}
	}
}
