// Flux - Event Ingestion, State Projection, and Real-Time Fan-Out
// Copyright 2026 EckmanTech LLC
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/EckmanTechLLC/flux

package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/EckmanTechLLC/flux/internal/logging"
	"github.com/EckmanTechLLC/flux/internal/oauth"
)

// oauthSuccessResponse completes the flow in the user's browser.
type oauthSuccessResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	Connector string `json:"connector"`
}

// callbackURL builds the redirect_uri used in both flow legs; the two
// must match exactly.
func (s *Server) callbackURL(connectorName string) string {
	return fmt.Sprintf("%s/api/connectors/%s/oauth/callback", s.opts.BaseURL, connectorName)
}

// handleOAuthStart is GET /api/connectors/{name}/oauth/start: creates a
// single-use CSRF state and redirects to the provider's authorization
// page.
func (s *Server) handleOAuthStart(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	logging.Debug().Str("connector", name).Msg("oauth start requested")

	if !oauth.IsValidConnector(name) {
		respondError(w, http.StatusNotFound, fmt.Sprintf("connector %q not found", name))
		return
	}

	// The bearer token identifies the namespace the credentials will
	// belong to; "default" when auth is off.
	ns := defaultUserID
	if s.opts.AuthEnabled {
		token, err := extractBearerToken(r)
		if err != nil {
			respondError(w, http.StatusUnauthorized, err.Error())
			return
		}
		ns = token
	}

	providerCfg, ok := oauth.GetProviderConfig(name)
	if !ok {
		logging.Error().Str("connector", name).Msg("oauth provider config missing")
		respondError(w, http.StatusInternalServerError, fmt.Sprintf(
			"OAuth not configured for connector %q. Set FLUX_OAUTH_%s_CLIENT_ID and FLUX_OAUTH_%s_CLIENT_SECRET.",
			name, strings.ToUpper(name), strings.ToUpper(name)))
		return
	}

	csrfState := s.opts.StateManager.CreateState(name, ns)
	authURL := providerCfg.BuildAuthURL(csrfState, s.callbackURL(name))

	logging.Info().Str("connector", name).Str("namespace", ns).Msg("redirecting to oauth provider")
	http.Redirect(w, r, authURL, http.StatusTemporaryRedirect)
}

// handleOAuthCallback is GET /api/connectors/{name}/oauth/callback:
// validates the single-use state, exchanges the code, and stores the
// encrypted credentials.
func (s *Server) handleOAuthCallback(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	q := r.URL.Query()

	if errCode := q.Get("error"); errCode != "" {
		description := q.Get("error_description")
		if description == "" {
			description = "unknown error"
		}
		logging.Warn().
			Str("connector", name).
			Str("error", errCode).
			Str("description", description).
			Msg("oauth authorization failed")
		respondError(w, http.StatusBadRequest,
			fmt.Sprintf("OAuth authorization failed: %s - %s", errCode, description))
		return
	}

	code := q.Get("code")
	if code == "" {
		respondError(w, http.StatusBadRequest, "missing 'code' parameter")
		return
	}
	csrfState := q.Get("state")
	if csrfState == "" {
		respondError(w, http.StatusBadRequest, "missing 'state' parameter")
		return
	}

	entry, ok := s.opts.StateManager.ValidateAndConsume(csrfState)
	if !ok {
		logging.Warn().Str("connector", name).Msg("invalid or expired oauth state")
		respondError(w, http.StatusUnauthorized, "invalid or expired OAuth state (possible CSRF attack)")
		return
	}
	if entry.Connector != name {
		respondError(w, http.StatusBadRequest, "connector name mismatch")
		return
	}

	providerCfg, ok := oauth.GetProviderConfig(name)
	if !ok {
		respondError(w, http.StatusInternalServerError, fmt.Sprintf("OAuth not configured for connector %q", name))
		return
	}

	creds, err := oauth.ExchangeCode(r.Context(), providerCfg, code, s.callbackURL(name))
	if err != nil {
		logging.Error().Err(err).Str("connector", name).Msg("token exchange failed")
		respondError(w, http.StatusBadGateway, "failed to exchange authorization code")
		return
	}

	if s.opts.CredStore == nil {
		respondError(w, http.StatusInternalServerError, "credential store not configured (set FLUX_ENCRYPTION_KEY)")
		return
	}
	if err := s.opts.CredStore.Store(entry.Namespace, name, creds); err != nil {
		logging.Error().Err(err).Str("connector", name).Msg("failed to store credentials")
		respondError(w, http.StatusInternalServerError, "failed to store credentials")
		return
	}

	logging.Info().
		Str("connector", name).
		Str("namespace", entry.Namespace).
		Bool("has_refresh_token", creds.RefreshToken != "").
		Msg("oauth flow completed")

	respondJSON(w, http.StatusOK, oauthSuccessResponse{
		Success:   true,
		Message:   fmt.Sprintf("Successfully connected %s", name),
		Connector: name,
	})
}
