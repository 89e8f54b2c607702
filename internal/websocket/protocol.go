// Flux - Event Ingestion, State Projection, and Real-Time Fan-Out
// Copyright 2026 EckmanTech LLC
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/EckmanTechLLC/flux

// Package websocket implements the per-connection subscription protocol:
// clients subscribe to entity ids (with "*" wildcard) and receive state
// updates, metrics, and deletion notifications as tagged JSON frames.
package websocket

import (
	"time"

	"github.com/goccy/go-json"

	"github.com/EckmanTechLLC/flux/internal/state"
)

// Client -> server message.
type ClientMessage struct {
	// Type is "subscribe" or "unsubscribe".
	Type     string `json:"type"`
	EntityID string `json:"entity_id"`
}

const (
	clientTypeSubscribe   = "subscribe"
	clientTypeUnsubscribe = "unsubscribe"
)

// Server -> client frames, tagged by "type".

// StateUpdateMessage carries one property mutation.
type StateUpdateMessage struct {
	Type      string          `json:"type"`
	EntityID  string          `json:"entity_id"`
	Property  string          `json:"property"`
	Value     json.RawMessage `json:"value"`
	Timestamp time.Time       `json:"timestamp"`
}

func newStateUpdateMessage(u state.StateUpdate) StateUpdateMessage {
	return StateUpdateMessage{
		Type:      "state_update",
		EntityID:  u.EntityID,
		Property:  u.Property,
		Value:     u.NewValue,
		Timestamp: u.Timestamp,
	}
}

// MetricsUpdateMessage carries the periodic metrics broadcast.
type MetricsUpdateMessage struct {
	Type      string           `json:"type"`
	Timestamp time.Time        `json:"timestamp"`
	Entities  MetricsEntities  `json:"entities"`
	Events    MetricsEvents    `json:"events"`
	WebSocket MetricsWebSocket `json:"websocket"`
	Publisher MetricsPublisher `json:"publishers"`
}

type MetricsEntities struct {
	Total int `json:"total"`
}

type MetricsEvents struct {
	Total         uint64  `json:"total"`
	RatePerSecond float64 `json:"rate_per_second"`
}

type MetricsWebSocket struct {
	Connections uint64 `json:"connections"`
}

type MetricsPublisher struct {
	Active int `json:"active"`
}

func newMetricsUpdateMessage(u state.MetricsUpdate) MetricsUpdateMessage {
	return MetricsUpdateMessage{
		Type:      "metrics_update",
		Timestamp: time.Now().UTC(),
		Entities:  MetricsEntities{Total: u.EntityCount},
		Events:    MetricsEvents{Total: u.TotalEvents, RatePerSecond: u.EventRate},
		WebSocket: MetricsWebSocket{Connections: u.WebSocketConnections},
		Publisher: MetricsPublisher{Active: u.ActivePublishers},
	}
}

// EntityDeletedMessage notifies subscribers an entity was removed.
type EntityDeletedMessage struct {
	Type      string    `json:"type"`
	EntityID  string    `json:"entity_id"`
	Timestamp time.Time `json:"timestamp"`
}

func newEntityDeletedMessage(d state.EntityDeleted) EntityDeletedMessage {
	return EntityDeletedMessage{
		Type:      "entity_deleted",
		EntityID:  d.EntityID,
		Timestamp: d.Timestamp,
	}
}

// ErrorMessage reports a protocol error to the client.
type ErrorMessage struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

func newErrorMessage(msg string) ErrorMessage {
	return ErrorMessage{Type: "error", Error: msg}
}
