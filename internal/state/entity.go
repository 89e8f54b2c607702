// Flux - Event Ingestion, State Projection, and Real-Time Fan-Out
// Copyright 2026 EckmanTech LLC
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/EckmanTechLLC/flux

// Package state maintains the in-memory world state: the materialized
// projection of the event log into entities with properties, plus the
// broadcast channels feeding WebSocket subscribers.
package state

import (
	"time"

	"github.com/goccy/go-json"
)

// Entity is a domain-agnostic object in the world state.
type Entity struct {
	// ID is the unique entity identifier (e.g. "matt/sensor-01").
	ID string `json:"id"`

	// Properties is the domain-specific key-value state.
	Properties map[string]json.RawMessage `json:"properties"`

	// LastUpdated is when the projector last touched this entity.
	LastUpdated time.Time `json:"last_updated"`
}

// clone returns a deep-enough copy: property values are immutable
// RawMessage slices, so copying the map suffices.
func (e Entity) clone() Entity {
	props := make(map[string]json.RawMessage, len(e.Properties))
	for k, v := range e.Properties {
		props[k] = v
	}
	return Entity{ID: e.ID, Properties: props, LastUpdated: e.LastUpdated}
}

// StateUpdate is broadcast for every property mutation.
type StateUpdate struct {
	EntityID string          `json:"entity_id"`
	Property string          `json:"property"`
	OldValue json.RawMessage `json:"old_value,omitempty"`
	NewValue json.RawMessage `json:"new_value"`
	// Timestamp is when the projector applied the mutation.
	Timestamp time.Time `json:"timestamp"`
}

// EntityDeleted is broadcast when a tombstone removes an entity.
type EntityDeleted struct {
	EntityID  string    `json:"entity_id"`
	Timestamp time.Time `json:"timestamp"`
}

// MetricsUpdate is the periodic metrics broadcast to subscribers.
type MetricsUpdate struct {
	EntityCount          int     `json:"entity_count"`
	TotalEvents          uint64  `json:"total_events"`
	EventRate            float64 `json:"event_rate"`
	ActivePublishers     int     `json:"active_publishers"`
	WebSocketConnections uint64  `json:"websocket_connections"`
}
