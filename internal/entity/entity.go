// Flux - Event Ingestion, State Projection, and Real-Time Fan-Out
// Copyright 2026 EckmanTech LLC
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/EckmanTechLLC/flux

// Package entity provides entity-id parsing. Entity ids are either bare
// ("sensor-01") or namespace-qualified ("matt/sensor-01"); the namespace
// part carries write-authorization scope when auth is enabled.
package entity

import (
	"errors"
	"fmt"
	"strings"

	"github.com/EckmanTechLLC/flux/internal/namespace"
)

// Parsing errors.
var (
	ErrEmpty            = errors.New("entity id is empty")
	ErrInvalidFormat    = errors.New("invalid entity id format")
	ErrInvalidNamespace = errors.New("invalid namespace in entity id")
)

// ParsedID is an entity id split into its optional namespace prefix and
// the entity part.
type ParsedID struct {
	// Namespace is empty when the id has no prefix.
	Namespace string
	Entity    string
}

// ParseID splits an entity id on "/". At most one separator is allowed;
// a present namespace part must satisfy the namespace name grammar.
func ParseID(entityID string) (ParsedID, error) {
	if entityID == "" {
		return ParsedID{}, ErrEmpty
	}

	parts := strings.Split(entityID, "/")
	switch len(parts) {
	case 1:
		return ParsedID{Entity: parts[0]}, nil
	case 2:
		ns, ent := parts[0], parts[1]
		if ns == "" {
			return ParsedID{}, fmt.Errorf("%w: empty namespace part", ErrInvalidFormat)
		}
		if ent == "" {
			return ParsedID{}, fmt.Errorf("%w: empty entity part", ErrInvalidFormat)
		}
		if err := namespace.ValidateName(ns); err != nil {
			return ParsedID{}, fmt.Errorf("%w %q: %v", ErrInvalidNamespace, ns, err)
		}
		return ParsedID{Namespace: ns, Entity: ent}, nil
	default:
		return ParsedID{}, fmt.Errorf("%w: %q contains multiple '/' separators", ErrInvalidFormat, entityID)
	}
}

// ExtractNamespace returns the namespace prefix of an entity id, or ""
// when the id has none or does not parse.
func ExtractNamespace(entityID string) string {
	parsed, err := ParseID(entityID)
	if err != nil {
		return ""
	}
	return parsed.Namespace
}
