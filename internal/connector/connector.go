// Flux - Event Ingestion, State Projection, and Real-Time Fan-Out
// Copyright 2026 EckmanTech LLC
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/EckmanTechLLC/flux

// Package connector manages polling of external APIs: the Connector
// interface and its built-in implementations, the per-(user, connector)
// scheduler, and the discovery loop reconciling schedulers against the
// credential store.
package connector

import (
	"context"
	"time"

	"github.com/EckmanTechLLC/flux/internal/credentials"
	"github.com/EckmanTechLLC/flux/internal/event"
)

// OAuthConfig describes a connector's OAuth 2.0 endpoints and scopes.
type OAuthConfig struct {
	AuthURL  string
	TokenURL string
	Scopes   []string
}

// Connector is one external API integration. Connectors are stateless:
// credentials and schedules are managed by the scheduler.
type Connector interface {
	// Name is the unique lowercase identifier (e.g. "github").
	Name() string

	// OAuthConfig returns the endpoints used for authorization and
	// token refresh.
	OAuthConfig() OAuthConfig

	// Fetch retrieves current data from the external API and transforms
	// it into Flux events ready for ingestion.
	Fetch(ctx context.Context, creds *credentials.Credentials) ([]*event.Event, error)

	// PollInterval is how often the scheduler calls Fetch.
	PollInterval() time.Duration
}
