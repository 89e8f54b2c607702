// Flux - Event Ingestion, State Projection, and Real-Time Fan-Out
// Copyright 2026 EckmanTech LLC
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/EckmanTechLLC/flux

package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/EckmanTechLLC/flux/internal/logging"
	"github.com/EckmanTechLLC/flux/internal/namespace"
)

// registerNamespaceRequest is the POST /api/namespaces body.
type registerNamespaceRequest struct {
	Name string `json:"name"`
}

// registerNamespaceResponse includes the secret token; this is the only
// place it is ever returned.
type registerNamespaceResponse struct {
	NamespaceID string `json:"namespaceId"`
	Name        string `json:"name"`
	Token       string `json:"token"`
}

// namespaceInfo is the lookup response. It never carries the token.
type namespaceInfo struct {
	NamespaceID string `json:"namespaceId"`
	Name        string `json:"name"`
	CreatedAt   string `json:"createdAt"`
	EntityCount uint64 `json:"entityCount"`
}

// handleRegisterNamespace is POST /api/namespaces. Registration is only
// meaningful in auth mode; when an admin token is configured it is
// required here too.
func (s *Server) handleRegisterNamespace(w http.ResponseWriter, r *http.Request) {
	if !s.opts.AuthEnabled {
		respondError(w, http.StatusNotFound, "namespace registration requires auth mode")
		return
	}
	if !s.adminAuthorized(r) {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req registerNamespaceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	logging.Info().Str("name", req.Name).Msg("registering namespace")

	ns, err := s.opts.Registry.Register(req.Name)
	if err != nil {
		switch {
		case errors.Is(err, namespace.ErrNameExists):
			respondError(w, http.StatusConflict, "namespace name already exists")
		case errors.Is(err, namespace.ErrStoreFailed):
			respondError(w, http.StatusConflict, "namespace registration could not be persisted")
		default:
			respondError(w, http.StatusBadRequest, err.Error())
		}
		return
	}

	logging.Info().Str("namespace_id", ns.ID).Str("name", ns.Name).Msg("namespace registered")

	respondJSON(w, http.StatusOK, registerNamespaceResponse{
		NamespaceID: ns.ID,
		Name:        ns.Name,
		Token:       ns.Token,
	})
}

// handleLookupNamespace is GET /api/namespaces/{name}.
func (s *Server) handleLookupNamespace(w http.ResponseWriter, r *http.Request) {
	if !s.opts.AuthEnabled {
		respondError(w, http.StatusNotFound, "namespace lookup requires auth mode")
		return
	}

	name := chi.URLParam(r, "name")
	ns, ok := s.opts.Registry.LookupByName(name)
	if !ok {
		respondError(w, http.StatusNotFound, "namespace not found")
		return
	}

	respondJSON(w, http.StatusOK, namespaceInfo{
		NamespaceID: ns.ID,
		Name:        ns.Name,
		CreatedAt:   ns.CreatedAt.UTC().Format(time.RFC3339),
		EntityCount: s.opts.Engine.CountByNamespacePrefix(ns.Name),
	})
}
