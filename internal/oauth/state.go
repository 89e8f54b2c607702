// Flux - Event Ingestion, State Projection, and Real-Time Fan-Out
// Copyright 2026 EckmanTech LLC
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/EckmanTechLLC/flux

package oauth

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/EckmanTechLLC/flux/internal/logging"
)

// DefaultStateTTL is how long an authorization-start state token stays
// valid for the callback.
const DefaultStateTTL = 10 * time.Minute

// StateEntry correlates an authorization start with its callback.
type StateEntry struct {
	Connector string
	Namespace string
	CreatedAt time.Time
}

// StateManager holds the pending CSRF state tokens. Consumption is
// atomic remove-and-return, so a state token can never authorize two
// callbacks.
type StateManager struct {
	mu     sync.Mutex
	states map[string]StateEntry
	ttl    time.Duration
}

// NewStateManager creates a manager with the given token lifetime.
func NewStateManager(ttl time.Duration) *StateManager {
	if ttl <= 0 {
		ttl = DefaultStateTTL
	}
	return &StateManager{
		states: make(map[string]StateEntry),
		ttl:    ttl,
	}
}

// CreateState mints a random state token bound to (connector, namespace).
func (m *StateManager) CreateState(connector, namespace string) string {
	state := uuid.New().String()
	m.mu.Lock()
	m.states[state] = StateEntry{
		Connector: connector,
		Namespace: namespace,
		CreatedAt: time.Now(),
	}
	m.mu.Unlock()
	return state
}

// ValidateAndConsume removes and returns the entry for a state token.
// Returns false for unknown, already-consumed, or expired tokens.
func (m *StateManager) ValidateAndConsume(state string) (StateEntry, bool) {
	m.mu.Lock()
	entry, ok := m.states[state]
	if ok {
		delete(m.states, state)
	}
	m.mu.Unlock()

	if !ok {
		return StateEntry{}, false
	}
	if time.Since(entry.CreatedAt) > m.ttl {
		return StateEntry{}, false
	}
	return entry, true
}

// CleanupExpired evicts entries older than the TTL.
func (m *StateManager) CleanupExpired() {
	cutoff := time.Now().Add(-m.ttl)
	m.mu.Lock()
	for state, entry := range m.states {
		if entry.CreatedAt.Before(cutoff) {
			delete(m.states, state)
		}
	}
	m.mu.Unlock()
}

// Count returns the number of pending state tokens.
func (m *StateManager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.states)
}

// Sweeper periodically evicts expired state tokens. Runs as a
// supervised service.
type Sweeper struct {
	manager  *StateManager
	interval time.Duration
}

// NewSweeper creates the cleanup service.
func NewSweeper(manager *StateManager, interval time.Duration) *Sweeper {
	return &Sweeper{manager: manager, interval: interval}
}

// Serve implements suture.Service.
func (s *Sweeper) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.manager.CleanupExpired()
			logging.Debug().Int("remaining", s.manager.Count()).Msg("oauth state cleanup complete")
		}
	}
}

func (s *Sweeper) String() string { return "oauth-state-sweeper" }
