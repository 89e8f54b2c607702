// Flux - Event Ingestion, State Projection, and Real-Time Fan-Out
// Copyright 2026 EckmanTech LLC
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/EckmanTechLLC/flux

package connector

// AllConnectors returns the built-in connector implementations.
func AllConnectors() []Connector {
	return []Connector{NewGitHubConnector()}
}

// ByName resolves a built-in connector by name, or nil.
func ByName(name string) Connector {
	for _, c := range AllConnectors() {
		if c.Name() == name {
			return c
		}
	}
	return nil
}
