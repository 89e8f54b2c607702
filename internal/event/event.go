// Flux - Event Ingestion, State Projection, and Real-Time Fan-Out
// Copyright 2026 EckmanTech LLC
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/EckmanTechLLC/flux

// Package event defines the immutable Flux event envelope and its
// ingress validation rules.
package event

import (
	"bytes"

	"github.com/goccy/go-json"
)

// Event is the immutable envelope around a domain-agnostic payload.
// Events are time-ordered via UUIDv7 identifiers and classified by a
// dotted lowercase stream name.
type Event struct {
	// EventID is a UUIDv7 (time-ordered, globally unique). Assigned
	// server-side when the producer omits it.
	EventID string `json:"eventId,omitempty"`

	// Stream classifies the event (e.g. "sensors.temperature").
	Stream string `json:"stream"`

	// Source identifies the producer. Free-form, required.
	Source string `json:"source"`

	// Timestamp is producer wall-clock milliseconds since epoch.
	Timestamp int64 `json:"timestamp"`

	// Key is an optional ordering/grouping key.
	Key string `json:"key,omitempty"`

	// Schema is an optional descriptor string, opaque to Flux.
	Schema string `json:"schema,omitempty"`

	// Payload is the domain-specific data. Must be a JSON object;
	// kept raw so producer bytes pass through unchanged.
	Payload json.RawMessage `json:"payload"`
}

// IsObjectPayload reports whether the payload is a JSON object.
func (e *Event) IsObjectPayload() bool {
	trimmed := bytes.TrimSpace(e.Payload)
	return len(trimmed) > 0 && trimmed[0] == '{' && json.Valid(trimmed)
}

// PayloadFields decodes the payload's top-level fields. Returns nil when
// the payload is not a JSON object.
func (e *Event) PayloadFields() map[string]json.RawMessage {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(e.Payload, &fields); err != nil {
		return nil
	}
	return fields
}

// EntityID extracts payload.entity_id, or "" if absent or not a string.
func (e *Event) EntityID() string {
	raw, ok := e.PayloadFields()["entity_id"]
	if !ok {
		return ""
	}
	var id string
	if err := json.Unmarshal(raw, &id); err != nil {
		return ""
	}
	return id
}

// Properties decodes payload.properties into a property map. Returns nil
// when the payload carries no properties object.
func (e *Event) Properties() map[string]json.RawMessage {
	raw, ok := e.PayloadFields()["properties"]
	if !ok {
		return nil
	}
	var props map[string]json.RawMessage
	if err := json.Unmarshal(raw, &props); err != nil {
		return nil
	}
	return props
}

// Marshal serializes the event for the wire and the event log.
func (e *Event) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// Unmarshal decodes an event from its wire form.
func Unmarshal(data []byte) (*Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return &e, nil
}
