// Flux - Event Ingestion, State Projection, and Real-Time Fan-Out
// Copyright 2026 EckmanTech LLC
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/EckmanTechLLC/flux

// Package oauth implements the CSRF-protected authorization-code flow
// Flux uses to connect external services: provider configurations,
// single-use state tokens, and the code/token exchange.
package oauth

import (
	"net/url"
	"os"
	"strings"
)

// ProviderConfig is the static OAuth 2.0 configuration for one connector.
type ProviderConfig struct {
	AuthURL      string
	TokenURL     string
	Scopes       []string
	ClientID     string
	ClientSecret string
}

// providerEndpoints lists the built-in connectors' OAuth endpoints.
// Client id/secret come from FLUX_OAUTH_<NAME>_CLIENT_ID/_CLIENT_SECRET.
var providerEndpoints = map[string]struct {
	authURL  string
	tokenURL string
	scopes   []string
}{
	"github": {
		authURL:  "https://github.com/login/oauth/authorize",
		tokenURL: "https://github.com/login/oauth/access_token",
		scopes:   []string{"repo", "read:user", "notifications"},
	},
	"gmail": {
		authURL:  "https://accounts.google.com/o/oauth2/v2/auth",
		tokenURL: "https://oauth2.googleapis.com/token",
		scopes:   []string{"https://www.googleapis.com/auth/gmail.readonly"},
	},
	"linkedin": {
		authURL:  "https://www.linkedin.com/oauth/v2/authorization",
		tokenURL: "https://www.linkedin.com/oauth/v2/accessToken",
		scopes:   []string{"r_liteprofile", "r_emailaddress"},
	},
	"calendar": {
		authURL:  "https://accounts.google.com/o/oauth2/v2/auth",
		tokenURL: "https://oauth2.googleapis.com/token",
		scopes:   []string{"https://www.googleapis.com/auth/calendar.readonly"},
	},
}

// IsValidConnector reports whether a connector name is a built-in.
func IsValidConnector(name string) bool {
	_, ok := providerEndpoints[name]
	return ok
}

// ConnectorNames returns the built-in connector names.
func ConnectorNames() []string {
	return []string{"github", "gmail", "linkedin", "calendar"}
}

// GetProviderConfig resolves a connector's provider config, reading
// client credentials from the environment. Returns false when the
// connector is unknown or its credentials are not configured.
func GetProviderConfig(connector string) (ProviderConfig, bool) {
	endpoints, ok := providerEndpoints[connector]
	if !ok {
		return ProviderConfig{}, false
	}

	envPrefix := strings.ToUpper(connector)
	clientID := os.Getenv("FLUX_OAUTH_" + envPrefix + "_CLIENT_ID")
	clientSecret := os.Getenv("FLUX_OAUTH_" + envPrefix + "_CLIENT_SECRET")
	if clientID == "" || clientSecret == "" {
		return ProviderConfig{}, false
	}

	return ProviderConfig{
		AuthURL:      endpoints.authURL,
		TokenURL:     endpoints.tokenURL,
		Scopes:       endpoints.scopes,
		ClientID:     clientID,
		ClientSecret: clientSecret,
	}, true
}

// BuildAuthURL builds the provider authorization URL for a state token
// and callback address.
func (c ProviderConfig) BuildAuthURL(state, redirectURI string) string {
	q := url.Values{}
	q.Set("client_id", c.ClientID)
	q.Set("redirect_uri", redirectURI)
	q.Set("scope", strings.Join(c.Scopes, " "))
	q.Set("state", state)
	q.Set("response_type", "code")
	return c.AuthURL + "?" + q.Encode()
}
