// Flux - Event Ingestion, State Projection, and Real-Time Fan-Out
// Copyright 2026 EckmanTech LLC
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/EckmanTechLLC/flux

package validation

import (
	"strings"
	"testing"
)

type namespaceRequest struct {
	Name string `validate:"required,namespace_name"`
}

type sourceRequest struct {
	Name             string `validate:"required"`
	URL              string `validate:"required,url"`
	PollIntervalSecs int    `validate:"gt=0"`
	Namespace        string `validate:"required,namespace_name"`
}

func TestNamespaceNameRule(t *testing.T) {
	valid := []string{"abc", "my-space", "user_01", "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"}
	for _, name := range valid {
		if err := ValidateStruct(&namespaceRequest{Name: name}); err != nil {
			t.Errorf("name %q should be valid: %v", name, err)
		}
	}

	invalid := []string{"", "ab", "UPPER", "with space", "bad/char", strings.Repeat("a", 33)}
	for _, name := range invalid {
		if err := ValidateStruct(&namespaceRequest{Name: name}); err == nil {
			t.Errorf("name %q should be invalid", name)
		}
	}
}

func TestSourceRequestValidation(t *testing.T) {
	ok := sourceRequest{
		Name:             "My Source",
		URL:              "https://example.com/api",
		PollIntervalSecs: 60,
		Namespace:        "personal",
	}
	if err := ValidateStruct(&ok); err != nil {
		t.Fatalf("valid request rejected: %v", err)
	}

	bad := sourceRequest{
		Name:             "",
		URL:              "not a url",
		PollIntervalSecs: 0,
		Namespace:        "x",
	}
	err := ValidateStruct(&bad)
	if err == nil {
		t.Fatal("invalid request accepted")
	}
	if len(err.Fields()) != 4 {
		t.Errorf("expected 4 field errors, got %d: %v", len(err.Fields()), err)
	}
	if !strings.Contains(err.Error(), "name is required") {
		t.Errorf("expected required-name message, got %q", err.Error())
	}
}

func TestStreamNameRule(t *testing.T) {
	type streamReq struct {
		Stream string `validate:"required,stream_name"`
	}

	for _, s := range []string{"sensors", "sensors.temp", "a.b.c", "data123"} {
		if err := ValidateStruct(&streamReq{Stream: s}); err != nil {
			t.Errorf("stream %q should be valid: %v", s, err)
		}
	}
	for _, s := range []string{".sensors", "sensors.", "a..b", "Sensors", "a-b", "a_b"} {
		if err := ValidateStruct(&streamReq{Stream: s}); err == nil {
			t.Errorf("stream %q should be invalid", s)
		}
	}
}
