// Flux - Event Ingestion, State Projection, and Real-Time Fan-Out
// Copyright 2026 EckmanTech LLC
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/EckmanTechLLC/flux

package connector

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/EckmanTechLLC/flux/internal/credentials"
	"github.com/EckmanTechLLC/flux/internal/logging"
)

// DefaultDiscoveryInterval is how often the manager reconciles running
// schedulers against the credential store.
const DefaultDiscoveryInterval = 60 * time.Second

// handle controls one running scheduler task.
type handle struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Manager orchestrates scheduler instances, one per (user, connector)
// key present in the credential store. A discovery cycle removes
// schedulers whose credentials were deleted, restarts schedulers stuck
// in an error state with fresh credentials, and starts schedulers for
// newly added credentials.
type Manager struct {
	credStore  *credentials.Store
	fluxAPIURL string
	interval   time.Duration

	// handles and statuses have separate locks; both are only ever held
	// briefly and never together for more than an O(1) operation.
	handlesMu sync.Mutex
	handles   map[string]*handle

	statusMu sync.Mutex
	statuses map[string]*StatusHandle
}

// NewManager creates a connector manager.
func NewManager(credStore *credentials.Store, fluxAPIURL string, interval time.Duration) *Manager {
	if interval <= 0 {
		interval = DefaultDiscoveryInterval
	}
	return &Manager{
		credStore:  credStore,
		fluxAPIURL: fluxAPIURL,
		interval:   interval,
		handles:    make(map[string]*handle),
		statuses:   make(map[string]*StatusHandle),
	}
}

// key formats the scheduler map key.
func key(userID, connectorName string) string {
	return userID + ":" + connectorName
}

// Statuses returns a copy of the status map keyed by "user:connector".
func (m *Manager) Statuses() map[string]Status {
	m.statusMu.Lock()
	defer m.statusMu.Unlock()
	out := make(map[string]Status, len(m.statuses))
	for k, h := range m.statuses {
		out[k] = h.Get()
	}
	return out
}

// StatusFor returns the status for one key, if a scheduler exists.
func (m *Manager) StatusFor(userID, connectorName string) (Status, bool) {
	m.statusMu.Lock()
	defer m.statusMu.Unlock()
	h, ok := m.statuses[key(userID, connectorName)]
	if !ok {
		return Status{}, false
	}
	return h.Get(), true
}

// Serve implements suture.Service: an initial scan starts schedulers
// for every stored credential, then the discovery loop reconciles every
// interval. The initial scan replaces the loop's first tick, so it is
// not repeated at the first interval boundary.
func (m *Manager) Serve(ctx context.Context) error {
	started := m.runDiscoveryCycle(ctx)
	if started == 0 {
		logging.Info().Msg("no credentials found - waiting for oauth authorization")
	}

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.stopAll()
			return ctx.Err()
		case <-ticker.C:
			m.runDiscoveryCycle(ctx)
		}
	}
}

func (m *Manager) String() string { return "connector-manager" }

// StartKey starts (or restarts) the scheduler for one key. Any existing
// scheduler for the key is canceled and drained before the new one is
// installed.
func (m *Manager) StartKey(ctx context.Context, userID, connectorName string) error {
	conn := ByName(connectorName)
	if conn == nil {
		return fmt.Errorf("connector %q not found", connectorName)
	}

	creds, err := m.credStore.Get(userID, connectorName)
	if err != nil {
		return fmt.Errorf("get credentials for %s/%s: %w", userID, connectorName, err)
	}
	if creds == nil {
		return fmt.Errorf("no credentials for %s/%s", userID, connectorName)
	}

	scheduler := NewScheduler(userID, conn, *creds, m.fluxAPIURL, m.credStore)
	m.install(ctx, key(userID, connectorName), scheduler)

	logging.Info().
		Str("user_id", userID).
		Str("connector", connectorName).
		Msg("connector scheduler installed")
	return nil
}

// install atomically replaces the handle for a key: cancel old, await
// drain, insert new; then insert the new status handle.
func (m *Manager) install(ctx context.Context, k string, scheduler *Scheduler) {
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	m.handlesMu.Lock()
	if old, ok := m.handles[k]; ok {
		old.cancel()
		<-old.done
		logging.Info().Str("key", k).Msg("aborted existing scheduler before restart")
	}
	m.handles[k] = &handle{cancel: cancel, done: done}
	m.handlesMu.Unlock()

	m.statusMu.Lock()
	m.statuses[k] = scheduler.Status()
	m.statusMu.Unlock()

	go func() {
		defer close(done)
		scheduler.Run(runCtx)
	}()
}

// remove cancels a key's scheduler and forgets it.
func (m *Manager) remove(k string) {
	m.handlesMu.Lock()
	if h, ok := m.handles[k]; ok {
		h.cancel()
		<-h.done
		delete(m.handles, k)
	}
	m.handlesMu.Unlock()

	m.statusMu.Lock()
	delete(m.statuses, k)
	m.statusMu.Unlock()
}

// stopAll aborts every scheduler (shutdown path).
func (m *Manager) stopAll() {
	m.handlesMu.Lock()
	defer m.handlesMu.Unlock()
	for k, h := range m.handles {
		h.cancel()
		<-h.done
		delete(m.handles, k)
	}
	logging.Info().Msg("all scheduler tasks stopped")
}

// runDiscoveryCycle reconciles schedulers against the credential store:
// remove deleted, restart errored, start new. Returns the number of
// schedulers started this cycle.
func (m *Manager) runDiscoveryCycle(ctx context.Context) int {
	keys, err := m.credStore.ListAll()
	if err != nil {
		logging.Warn().Err(err).Msg("discovery: failed to list credentials")
		return 0
	}

	credKeys := make(map[string]credentials.Key, len(keys))
	for _, ck := range keys {
		credKeys[key(ck.UserID, ck.Connector)] = ck
	}

	// Snapshot the status map so neither lock is held across restarts.
	m.statusMu.Lock()
	existing := make(map[string]*StatusHandle, len(m.statuses))
	for k, h := range m.statuses {
		existing[k] = h
	}
	m.statusMu.Unlock()

	// 1. Remove schedulers whose credentials were deleted.
	for k := range existing {
		if _, ok := credKeys[k]; !ok {
			m.remove(k)
			logging.Info().Str("key", k).Msg("discovery: removed scheduler (credentials deleted)")
		}
	}

	// 2. Restart schedulers in an error state with fresh credentials
	// and a fresh status handle.
	for k, status := range existing {
		ck, ok := credKeys[k]
		if !ok {
			continue
		}
		if status.Get().LastError == nil {
			continue
		}
		if err := m.StartKey(ctx, ck.UserID, ck.Connector); err != nil {
			logging.Warn().Err(err).Str("key", k).Msg("discovery: failed to restart errored scheduler")
			continue
		}
		logging.Info().Str("key", k).Msg("discovery: restarted errored scheduler")
	}

	// 3. Start schedulers for newly added credentials. Unknown
	// connector names are skipped.
	started := 0
	for k, ck := range credKeys {
		if _, ok := existing[k]; ok {
			continue
		}
		if ByName(ck.Connector) == nil {
			logging.Warn().Str("connector", ck.Connector).Msg("discovery: skipping unknown connector")
			continue
		}
		if err := m.StartKey(ctx, ck.UserID, ck.Connector); err != nil {
			logging.Warn().Err(err).Str("key", k).Msg("discovery: failed to start scheduler")
			continue
		}
		started++
	}
	return started
}
