// Flux - Event Ingestion, State Projection, and Real-Time Fan-Out
// Copyright 2026 EckmanTech LLC
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/EckmanTechLLC/flux

package entity

import (
	"errors"
	"testing"
)

func TestParseIDWithNamespace(t *testing.T) {
	parsed, err := ParseID("matt/sensor-01")
	if err != nil {
		t.Fatal(err)
	}
	if parsed.Namespace != "matt" || parsed.Entity != "sensor-01" {
		t.Errorf("unexpected parse: %+v", parsed)
	}
}

func TestParseIDWithoutNamespace(t *testing.T) {
	parsed, err := ParseID("sensor-01")
	if err != nil {
		t.Fatal(err)
	}
	if parsed.Namespace != "" || parsed.Entity != "sensor-01" {
		t.Errorf("unexpected parse: %+v", parsed)
	}
}

func TestParseIDErrors(t *testing.T) {
	tests := []struct {
		id      string
		wantErr error
	}{
		{"", ErrEmpty},
		{"/entity", ErrInvalidFormat},
		{"ns/", ErrInvalidFormat},
		{"a/b/c", ErrInvalidFormat},
		{"NS/entity", ErrInvalidNamespace},
		{"ab/entity", ErrInvalidNamespace}, // namespace too short
	}
	for _, tt := range tests {
		if _, err := ParseID(tt.id); !errors.Is(err, tt.wantErr) {
			t.Errorf("ParseID(%q) = %v, want %v", tt.id, err, tt.wantErr)
		}
	}
}

func TestExtractNamespace(t *testing.T) {
	if got := ExtractNamespace("matt/sensor-01"); got != "matt" {
		t.Errorf("ExtractNamespace = %q, want matt", got)
	}
	if got := ExtractNamespace("sensor-01"); got != "" {
		t.Errorf("ExtractNamespace = %q, want empty", got)
	}
	if got := ExtractNamespace("a/b/c"); got != "" {
		t.Errorf("ExtractNamespace on invalid id = %q, want empty", got)
	}
}
