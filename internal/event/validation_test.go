// Flux - Event Ingestion, State Projection, and Real-Time Fan-Out
// Copyright 2026 EckmanTech LLC
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/EckmanTechLLC/flux

package event

import (
	"errors"
	"testing"

	"github.com/goccy/go-json"
)

func validEvent() *Event {
	return &Event{
		Stream:    "sensors.temp",
		Source:    "test",
		Timestamp: 1707668400000,
		Payload:   json.RawMessage(`{"entity_id":"alice/sensor1","properties":{"temp":22.5}}`),
	}
}

func TestValidateAndPrepareValid(t *testing.T) {
	e := validEvent()
	if err := ValidateAndPrepare(e); err != nil {
		t.Fatalf("valid event rejected: %v", err)
	}
	if e.EventID == "" {
		t.Error("event id was not assigned")
	}
}

func TestValidateAndPrepareAssignsOrderedIDs(t *testing.T) {
	a, b := validEvent(), validEvent()
	if err := ValidateAndPrepare(a); err != nil {
		t.Fatal(err)
	}
	if err := ValidateAndPrepare(b); err != nil {
		t.Fatal(err)
	}
	// UUIDv7 ids generated later sort lexicographically after earlier ones.
	if !(a.EventID < b.EventID) {
		t.Errorf("expected time-ordered ids, got %s then %s", a.EventID, b.EventID)
	}
}

func TestValidateAndPreparePreservesProducerID(t *testing.T) {
	e := validEvent()
	e.EventID = "producer-chosen-id"
	if err := ValidateAndPrepare(e); err != nil {
		t.Fatal(err)
	}
	if e.EventID != "producer-chosen-id" {
		t.Errorf("producer id overwritten: %s", e.EventID)
	}
}

func TestValidateAndPrepareRejections(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Event)
		wantErr error
	}{
		{"empty stream", func(e *Event) { e.Stream = "" }, ErrMissingStream},
		{"empty source", func(e *Event) { e.Source = "" }, ErrMissingSource},
		{"nil payload", func(e *Event) { e.Payload = nil }, ErrMissingPayload},
		{"uppercase stream", func(e *Event) { e.Stream = "Sensors" }, ErrInvalidStream},
		{"leading dot", func(e *Event) { e.Stream = ".sensors" }, ErrInvalidStream},
		{"trailing dot", func(e *Event) { e.Stream = "sensors." }, ErrInvalidStream},
		{"double dot", func(e *Event) { e.Stream = "a..b" }, ErrInvalidStream},
		{"dash in stream", func(e *Event) { e.Stream = "a-b" }, ErrInvalidStream},
		{"underscore in stream", func(e *Event) { e.Stream = "a_b" }, ErrInvalidStream},
		{"zero timestamp", func(e *Event) { e.Timestamp = 0 }, ErrInvalidTimestamp},
		{"negative timestamp", func(e *Event) { e.Timestamp = -1 }, ErrInvalidTimestamp},
		{"array payload", func(e *Event) { e.Payload = json.RawMessage(`[1,2]`) }, ErrPayloadNotObject},
		{"string payload", func(e *Event) { e.Payload = json.RawMessage(`"hi"`) }, ErrPayloadNotObject},
		{"number payload", func(e *Event) { e.Payload = json.RawMessage(`42`) }, ErrPayloadNotObject},
		{"null payload", func(e *Event) { e.Payload = json.RawMessage(`null`) }, ErrPayloadNotObject},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := validEvent()
			tt.mutate(e)
			err := ValidateAndPrepare(e)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("got %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestIsValidStreamName(t *testing.T) {
	valid := []string{"sensors", "sensors.temperature", "sensors.zone1.temp", "data123", "a.b.c.d"}
	for _, s := range valid {
		if !isValidStreamName(s) {
			t.Errorf("stream %q should be valid", s)
		}
	}
	invalid := []string{"", ".sensors", "sensors.", "sensors..temp", "Sensors", "SENSORS", "sensors-temp", "sensors_temp", "sensors/temp"}
	for _, s := range invalid {
		if isValidStreamName(s) {
			t.Errorf("stream %q should be invalid", s)
		}
	}
}

func TestEntityIDAndProperties(t *testing.T) {
	e := validEvent()
	if got := e.EntityID(); got != "alice/sensor1" {
		t.Errorf("EntityID() = %q", got)
	}

	props := e.Properties()
	if len(props) != 1 {
		t.Fatalf("expected 1 property, got %d", len(props))
	}
	var temp float64
	if err := json.Unmarshal(props["temp"], &temp); err != nil || temp != 22.5 {
		t.Errorf("temp = %v (err %v), want 22.5", temp, err)
	}
}

func TestEntityIDAbsent(t *testing.T) {
	e := validEvent()
	e.Payload = json.RawMessage(`{"other":1}`)
	if got := e.EntityID(); got != "" {
		t.Errorf("EntityID() = %q, want empty", got)
	}
	if props := e.Properties(); props != nil {
		t.Errorf("Properties() = %v, want nil", props)
	}
}

func TestMarshalRoundTrip(t *testing.T) {
	e := validEvent()
	e.EventID = "id-1"
	e.Key = "k"

	data, err := e.Marshal()
	if err != nil {
		t.Fatal(err)
	}

	back, err := Unmarshal(data)
	if err != nil {
		t.Fatal(err)
	}
	if back.EventID != "id-1" || back.Stream != e.Stream || back.Key != "k" {
		t.Errorf("round trip mismatch: %+v", back)
	}
	if back.EntityID() != "alice/sensor1" {
		t.Errorf("payload lost in round trip: %s", string(back.Payload))
	}
}
