// Flux - Event Ingestion, State Projection, and Real-Time Fan-Out
// Copyright 2026 EckmanTech LLC
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/EckmanTechLLC/flux

package event

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Validation reason codes. Each maps to exactly one envelope rule.
var (
	ErrMissingStream    = errors.New("stream is required")
	ErrMissingSource    = errors.New("source is required")
	ErrMissingPayload   = errors.New("payload is required")
	ErrInvalidStream    = errors.New("invalid stream format: must be lowercase tokens separated by dots")
	ErrInvalidTimestamp = errors.New("timestamp must be positive")
	ErrPayloadNotObject = errors.New("payload must be a JSON object")
)

// ValidateAndPrepare validates the envelope and assigns a fresh UUIDv7
// event id when the producer supplied none.
//
// Rules:
//   - stream, source, payload are required
//   - stream must match the dotted-lowercase grammar
//   - timestamp must be positive (Unix epoch milliseconds)
//   - payload must be a JSON object (not array, scalar, or null)
//
// A producer-supplied event id is preserved verbatim.
func ValidateAndPrepare(e *Event) error {
	if e.Stream == "" {
		return ErrMissingStream
	}
	if e.Source == "" {
		return ErrMissingSource
	}
	if len(e.Payload) == 0 {
		return ErrMissingPayload
	}

	if !isValidStreamName(e.Stream) {
		return fmt.Errorf("%w: %q", ErrInvalidStream, e.Stream)
	}

	if e.Timestamp <= 0 {
		return fmt.Errorf("%w, got %d", ErrInvalidTimestamp, e.Timestamp)
	}

	if !e.IsObjectPayload() {
		return ErrPayloadNotObject
	}

	if e.EventID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("generate event id: %w", err)
		}
		e.EventID = id.String()
	}

	return nil
}

// isValidStreamName checks the stream grammar: lowercase letters, digits,
// and dots, with no leading, trailing, or consecutive dots.
func isValidStreamName(stream string) bool {
	if stream == "" {
		return false
	}
	if stream[0] == '.' || stream[len(stream)-1] == '.' {
		return false
	}

	prevDot := false
	for i := 0; i < len(stream); i++ {
		c := stream[i]
		switch {
		case c == '.':
			if prevDot {
				return false
			}
			prevDot = true
		case (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9'):
			prevDot = false
		default:
			return false
		}
	}
	return true
}
