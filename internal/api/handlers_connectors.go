// Flux - Event Ingestion, State Projection, and Real-Time Fan-Out
// Copyright 2026 EckmanTech LLC
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/EckmanTechLLC/flux

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/EckmanTechLLC/flux/internal/connector"
	"github.com/EckmanTechLLC/flux/internal/credentials"
	"github.com/EckmanTechLLC/flux/internal/logging"
	"github.com/EckmanTechLLC/flux/internal/oauth"
	"github.com/EckmanTechLLC/flux/internal/source"
	"github.com/EckmanTechLLC/flux/internal/validation"
)

// defaultUserID is the credential owner when auth is disabled.
const defaultUserID = "default"

// connectorSummary is one entry in the connector list.
type connectorSummary struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	Enabled bool   `json:"enabled"`
	Status  string `json:"status"`

	SourceID    string  `json:"source_id,omitempty"`
	LastStarted *string `json:"last_started,omitempty"`
	LastError   *string `json:"last_error,omitempty"`
}

// connectorDetail is the single-connector response.
type connectorDetail struct {
	Name                string  `json:"name"`
	Enabled             bool    `json:"enabled"`
	Status              string  `json:"status"`
	LastPoll            *string `json:"last_poll,omitempty"`
	LastError           *string `json:"last_error,omitempty"`
	PollIntervalSeconds int     `json:"poll_interval_seconds"`
}

type listConnectorsResponse struct {
	Connectors []connectorSummary `json:"connectors"`
}

type successResponse struct {
	Success bool `json:"success"`
}

// callerUserID resolves the credential owner: the bearer token when
// auth is enabled, "default" otherwise.
func (s *Server) callerUserID(r *http.Request) (string, error) {
	if !s.opts.AuthEnabled {
		return defaultUserID, nil
	}
	return extractBearerToken(r)
}

// handleListConnectors is GET /api/connectors: built-in connectors with
// configuration status, plus generic sources.
func (s *Server) handleListConnectors(w http.ResponseWriter, r *http.Request) {
	var configured map[string]bool
	if s.opts.CredStore != nil {
		userID, err := s.callerUserID(r)
		if err != nil {
			respondError(w, http.StatusUnauthorized, err.Error())
			return
		}
		names, err := s.opts.CredStore.ListByUser(userID)
		if err != nil {
			logging.Warn().Err(err).Msg("failed to list user connectors")
		}
		configured = make(map[string]bool, len(names))
		for _, n := range names {
			configured[n] = true
		}
	}

	var connectors []connectorSummary
	for _, name := range oauth.ConnectorNames() {
		status := "not_configured"
		if configured[name] {
			status = "configured"
		}
		connectors = append(connectors, connectorSummary{
			Name:    name,
			Type:    "builtin",
			Enabled: configured[name],
			Status:  status,
		})
	}

	if s.opts.SourceStore != nil && s.opts.GenericRunner != nil {
		statuses := make(map[string]source.GenericStatus)
		for _, st := range s.opts.GenericRunner.Statuses() {
			statuses[st.SourceID] = st
		}
		generics, err := s.opts.SourceStore.ListGeneric()
		if err != nil {
			logging.Warn().Err(err).Msg("failed to list generic sources")
		}
		for _, cfg := range generics {
			entry := connectorSummary{
				Name:     cfg.Name,
				Type:     "generic",
				Enabled:  true,
				Status:   "running",
				SourceID: cfg.ID,
			}
			if st, ok := statuses[cfg.ID]; ok {
				if st.LastStarted != nil {
					v := st.LastStarted.Format(time.RFC3339)
					entry.LastStarted = &v
				}
				entry.LastError = st.LastError
				if st.LastError != nil {
					entry.Status = "error"
				}
			}
			connectors = append(connectors, entry)
		}
	}

	respondJSON(w, http.StatusOK, listConnectorsResponse{Connectors: connectors})
}

// handleGetConnector is GET /api/connectors/{name}.
func (s *Server) handleGetConnector(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	impl := connector.ByName(name)
	if impl == nil && !oauth.IsValidConnector(name) {
		respondError(w, http.StatusNotFound, "connector not found")
		return
	}

	detail := connectorDetail{Name: name, Status: "not_configured"}
	if impl != nil {
		detail.PollIntervalSeconds = int(impl.PollInterval().Seconds())
	}

	if s.opts.CredStore != nil {
		userID, err := s.callerUserID(r)
		if err != nil {
			respondError(w, http.StatusUnauthorized, err.Error())
			return
		}
		creds, err := s.opts.CredStore.Get(userID, name)
		if err != nil {
			logging.Warn().Err(err).Str("connector", name).Msg("failed to read credentials")
		}
		if creds != nil {
			detail.Enabled = true
			detail.Status = "configured"
		}

		if s.opts.ConnectorManager != nil {
			if status, ok := s.opts.ConnectorManager.StatusFor(userID, name); ok {
				if status.LastPoll != nil {
					v := status.LastPoll.Format(time.RFC3339)
					detail.LastPoll = &v
				}
				detail.LastError = status.LastError
				if status.LastError != nil {
					detail.Status = "error"
				}
			}
		}
	}

	respondJSON(w, http.StatusOK, detail)
}

// tokenRequest is the POST /api/connectors/{name}/token body: a
// personal access token stored as non-expiring credentials.
type tokenRequest struct {
	Token string `json:"token"`
}

// handleStoreConnectorToken is POST /api/connectors/{name}/token.
func (s *Server) handleStoreConnectorToken(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if !oauth.IsValidConnector(name) {
		respondError(w, http.StatusNotFound, "connector not found")
		return
	}
	if s.opts.CredStore == nil {
		respondError(w, http.StatusInternalServerError, "credential store not configured (set FLUX_ENCRYPTION_KEY)")
		return
	}

	userID, err := s.callerUserID(r)
	if err != nil {
		respondError(w, http.StatusUnauthorized, err.Error())
		return
	}

	var req tokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Token == "" {
		respondError(w, http.StatusBadRequest, "token is required")
		return
	}

	err = s.opts.CredStore.Store(userID, name, credentials.Credentials{AccessToken: req.Token})
	if err != nil {
		logging.Error().Err(err).Str("connector", name).Msg("failed to store token")
		respondError(w, http.StatusInternalServerError, "failed to store token")
		return
	}

	respondJSON(w, http.StatusOK, successResponse{Success: true})
}

// handleDeleteConnectorToken is DELETE /api/connectors/{name}/token.
func (s *Server) handleDeleteConnectorToken(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if !oauth.IsValidConnector(name) {
		respondError(w, http.StatusNotFound, "connector not found")
		return
	}
	if s.opts.CredStore == nil {
		respondError(w, http.StatusInternalServerError, "credential store not configured (set FLUX_ENCRYPTION_KEY)")
		return
	}

	userID, err := s.callerUserID(r)
	if err != nil {
		respondError(w, http.StatusUnauthorized, err.Error())
		return
	}

	if _, err := s.opts.CredStore.Delete(userID, name); err != nil {
		logging.Error().Err(err).Str("connector", name).Msg("failed to delete token")
		respondError(w, http.StatusInternalServerError, "failed to delete token")
		return
	}
	respondJSON(w, http.StatusOK, successResponse{Success: true})
}

// genericUserID is the reserved credential owner for generic source
// secrets.
const genericUserID = "generic"

// createGenericSourceRequest is the POST /api/connectors/generic body.
type createGenericSourceRequest struct {
	Name             string `json:"name" validate:"required"`
	URL              string `json:"url" validate:"required,url"`
	PollIntervalSecs int    `json:"poll_interval_secs" validate:"gt=0"`
	EntityKey        string `json:"entity_key" validate:"required"`
	Namespace        string `json:"namespace" validate:"required,namespace_name"`
	// AuthType is "none", "bearer", or {"api_key_header": "<name>"}.
	AuthType json.RawMessage `json:"auth_type"`
	// Token is the optional source secret; it is stored encrypted and
	// never written to the config table.
	Token string `json:"token,omitempty"`
	// FluxNamespaceToken authorizes publishing when auth is enabled.
	FluxNamespaceToken string `json:"flux_namespace_token,omitempty"`
}

// parseAuthType accepts the documented wire forms.
func parseAuthType(raw json.RawMessage) source.AuthType {
	if len(raw) == 0 {
		return source.AuthType{Kind: source.AuthNone}
	}

	var plain string
	if err := json.Unmarshal(raw, &plain); err == nil {
		if plain == "bearer" {
			return source.AuthType{Kind: source.AuthBearer}
		}
		return source.AuthType{Kind: source.AuthNone}
	}

	var obj struct {
		APIKeyHeader string `json:"api_key_header"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil && obj.APIKeyHeader != "" {
		return source.AuthType{Kind: source.AuthAPIKeyHeader, HeaderName: obj.APIKeyHeader}
	}
	return source.AuthType{Kind: source.AuthNone}
}

// handleCreateGenericSource is POST /api/connectors/generic.
func (s *Server) handleCreateGenericSource(w http.ResponseWriter, r *http.Request) {
	if s.opts.SourceStore == nil || s.opts.GenericRunner == nil {
		respondError(w, http.StatusInternalServerError, "generic sources not configured")
		return
	}

	var req createGenericSourceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if verr := validation.ValidateStruct(&req); verr != nil {
		respondError(w, http.StatusBadRequest, verr.Error())
		return
	}

	cfg := source.GenericSourceConfig{
		ID:                 uuid.New().String(),
		Name:               req.Name,
		URL:                req.URL,
		PollIntervalSecs:   req.PollIntervalSecs,
		EntityKey:          req.EntityKey,
		Namespace:          req.Namespace,
		Auth:               parseAuthType(req.AuthType),
		CreatedAt:          time.Now().UTC(),
		FluxNamespaceToken: req.FluxNamespaceToken,
	}

	if err := s.opts.SourceStore.InsertGeneric(cfg); err != nil {
		logging.Error().Err(err).Msg("failed to persist generic source")
		respondError(w, http.StatusInternalServerError, "failed to persist source")
		return
	}

	// Secret goes into the credential store under the reserved user.
	if req.Token != "" && s.opts.CredStore != nil {
		err := s.opts.CredStore.Store(genericUserID, cfg.ID, credentials.Credentials{AccessToken: req.Token})
		if err != nil {
			logging.Error().Err(err).Str("source_id", cfg.ID).Msg("failed to store source token")
			respondError(w, http.StatusInternalServerError, "failed to store source token")
			return
		}
	}

	s.opts.GenericRunner.StartSource(s.rootCtx, cfg, req.Token)
	respondJSON(w, http.StatusOK, map[string]string{"source_id": cfg.ID})
}

// handleDeleteGenericSource is DELETE /api/connectors/generic/{sourceID}.
func (s *Server) handleDeleteGenericSource(w http.ResponseWriter, r *http.Request) {
	if s.opts.SourceStore == nil || s.opts.GenericRunner == nil {
		respondError(w, http.StatusInternalServerError, "generic sources not configured")
		return
	}
	sourceID := chi.URLParam(r, "sourceID")

	cfg, err := s.opts.SourceStore.GetGeneric(sourceID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to read source")
		return
	}
	if cfg == nil {
		respondError(w, http.StatusNotFound, "source not found")
		return
	}

	if err := s.opts.GenericRunner.StopSource(sourceID); err != nil {
		logging.Warn().Err(err).Str("source_id", sourceID).Msg("failed to stop generic source")
	}
	if err := s.opts.SourceStore.DeleteGeneric(sourceID); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to delete source")
		return
	}
	if s.opts.CredStore != nil {
		_, _ = s.opts.CredStore.Delete(genericUserID, sourceID)
	}

	respondJSON(w, http.StatusOK, successResponse{Success: true})
}

// createNamedSourceRequest is the POST /api/connectors/named body.
type createNamedSourceRequest struct {
	TapName          string `json:"tap_name" validate:"required"`
	Namespace        string `json:"namespace" validate:"required,namespace_name"`
	EntityKeyField   string `json:"entity_key_field" validate:"required"`
	ConfigJSON       string `json:"config_json" validate:"required"`
	PollIntervalSecs int    `json:"poll_interval_secs" validate:"gt=0"`

	FluxNamespaceToken string `json:"flux_namespace_token,omitempty"`
}

// handleCreateNamedSource is POST /api/connectors/named.
func (s *Server) handleCreateNamedSource(w http.ResponseWriter, r *http.Request) {
	if s.opts.SourceStore == nil || s.opts.NamedRunner == nil {
		respondError(w, http.StatusInternalServerError, "named sources not configured")
		return
	}

	var req createNamedSourceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if verr := validation.ValidateStruct(&req); verr != nil {
		respondError(w, http.StatusBadRequest, verr.Error())
		return
	}
	if !json.Valid([]byte(req.ConfigJSON)) {
		respondError(w, http.StatusBadRequest, "config_json must be valid JSON")
		return
	}

	cfg := source.NamedSourceConfig{
		ID:                 uuid.New().String(),
		TapName:            req.TapName,
		Namespace:          req.Namespace,
		EntityKeyField:     req.EntityKeyField,
		ConfigJSON:         req.ConfigJSON,
		PollIntervalSecs:   req.PollIntervalSecs,
		CreatedAt:          time.Now().UTC(),
		FluxNamespaceToken: req.FluxNamespaceToken,
	}

	if err := s.opts.SourceStore.InsertNamed(cfg); err != nil {
		logging.Error().Err(err).Msg("failed to persist named source")
		respondError(w, http.StatusInternalServerError, "failed to persist source")
		return
	}

	s.opts.NamedRunner.StartSource(s.rootCtx, cfg)
	respondJSON(w, http.StatusOK, map[string]string{"source_id": cfg.ID})
}

// handleDeleteNamedSource is DELETE /api/connectors/named/{sourceID}.
func (s *Server) handleDeleteNamedSource(w http.ResponseWriter, r *http.Request) {
	if s.opts.SourceStore == nil || s.opts.NamedRunner == nil {
		respondError(w, http.StatusInternalServerError, "named sources not configured")
		return
	}
	sourceID := chi.URLParam(r, "sourceID")

	cfg, err := s.opts.SourceStore.GetNamed(sourceID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to read source")
		return
	}
	if cfg == nil {
		respondError(w, http.StatusNotFound, "source not found")
		return
	}

	if err := s.opts.NamedRunner.StopSource(sourceID); err != nil {
		logging.Warn().Err(err).Str("source_id", sourceID).Msg("failed to stop named source")
	}
	if err := s.opts.SourceStore.DeleteNamed(sourceID); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to delete source")
		return
	}

	respondJSON(w, http.StatusOK, successResponse{Success: true})
}

// handleTriggerNamedSync is POST /api/connectors/named/{sourceID}/sync:
// one out-of-band run.
func (s *Server) handleTriggerNamedSync(w http.ResponseWriter, r *http.Request) {
	if s.opts.NamedRunner == nil {
		respondError(w, http.StatusInternalServerError, "named sources not configured")
		return
	}
	sourceID := chi.URLParam(r, "sourceID")

	if err := s.opts.NamedRunner.TriggerSync(s.rootCtx, sourceID); err != nil {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, successResponse{Success: true})
}
