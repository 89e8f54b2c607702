// Flux - Event Ingestion, State Projection, and Real-Time Fan-Out
// Copyright 2026 EckmanTech LLC
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/EckmanTechLLC/flux

package api

import (
	"net/http"

	"github.com/goccy/go-json"

	"github.com/EckmanTechLLC/flux/internal/config"
	"github.com/EckmanTechLLC/flux/internal/logging"
)

// handleGetAdminConfig is GET /api/admin/config.
func (s *Server) handleGetAdminConfig(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.opts.Runtime.Snapshot())
}

// handlePutAdminConfig is PUT /api/admin/config: a partial update —
// only fields present in the body change. Effective immediately for
// subsequent requests.
func (s *Server) handlePutAdminConfig(w http.ResponseWriter, r *http.Request) {
	if !s.adminAuthorized(r) {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var update config.RuntimeConfigUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	applied := s.opts.Runtime.Apply(update)
	logging.Info().
		Bool("rate_limit_enabled", applied.RateLimitEnabled).
		Uint64("rate_limit_per_namespace_per_minute", applied.RateLimitPerNamespacePerMinute).
		Msg("runtime config updated")

	respondJSON(w, http.StatusOK, applied)
}
