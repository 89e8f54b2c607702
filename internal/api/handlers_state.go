// Flux - Event Ingestion, State Projection, and Real-Time Fan-Out
// Copyright 2026 EckmanTech LLC
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/EckmanTechLLC/flux

package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/EckmanTechLLC/flux/internal/entity"
	"github.com/EckmanTechLLC/flux/internal/event"
	"github.com/EckmanTechLLC/flux/internal/logging"
	"github.com/EckmanTechLLC/flux/internal/state"
)

// tombstoneStream is the stream tombstone events are published on. The
// projector keys off the payload shape, not the stream name.
const tombstoneStream = "flux.events.deletions"

// entityResponse is the wire form of one entity.
type entityResponse struct {
	ID          string                     `json:"id"`
	Properties  map[string]json.RawMessage `json:"properties"`
	LastUpdated string                     `json:"lastUpdated"`
}

func toEntityResponse(ent state.Entity) entityResponse {
	return entityResponse{
		ID:          ent.ID,
		Properties:  ent.Properties,
		LastUpdated: ent.LastUpdated.UTC().Format(time.RFC3339Nano),
	}
}

// handleListEntities is GET /api/state/entities.
func (s *Server) handleListEntities(w http.ResponseWriter, r *http.Request) {
	entities := s.opts.Engine.AllEntities()
	out := make([]entityResponse, 0, len(entities))
	for _, ent := range entities {
		out = append(out, toEntityResponse(ent))
	}
	respondJSON(w, http.StatusOK, out)
}

// handleGetEntity is GET /api/state/entities/{id} with id possibly
// containing slashes.
func (s *Server) handleGetEntity(w http.ResponseWriter, r *http.Request) {
	entityID := chi.URLParam(r, "*")
	ent, ok := s.opts.Engine.GetEntity(entityID)
	if !ok {
		respondError(w, http.StatusNotFound, "entity not found")
		return
	}
	respondJSON(w, http.StatusOK, toEntityResponse(ent))
}

// deleteResponse answers a single entity deletion.
type deleteResponse struct {
	EntityID string `json:"entity_id"`
	EventID  string `json:"eventId"`
}

// batchDeleteRequest selects entities by exactly one filter.
type batchDeleteRequest struct {
	Namespace string   `json:"namespace,omitempty"`
	Prefix    string   `json:"prefix,omitempty"`
	EntityIDs []string `json:"entity_ids,omitempty"`
}

// batchDeleteResponse reports batch deletion outcomes.
type batchDeleteResponse struct {
	Deleted int      `json:"deleted"`
	Failed  int      `json:"failed"`
	Errors  []string `json:"errors"`
}

// authorizeDeletion verifies the bearer token owns the namespace in the
// entity id. No-op when auth is disabled.
func (s *Server) authorizeDeletion(r *http.Request, entityID string) (int, error) {
	if !s.opts.AuthEnabled {
		return 0, nil
	}

	token, err := extractBearerToken(r)
	if err != nil {
		return http.StatusUnauthorized, err
	}

	parsed, err := entity.ParseID(entityID)
	if err != nil {
		return http.StatusBadRequest, err
	}
	if parsed.Namespace == "" {
		return http.StatusUnauthorized, errors.New("entity has no namespace")
	}

	if err := s.opts.Registry.ValidateToken(token, parsed.Namespace); err != nil {
		return http.StatusForbidden, errors.New("token does not own namespace")
	}
	return 0, nil
}

// publishTombstone emits the deletion event for one entity and returns
// the generated event id.
func (s *Server) publishTombstone(r *http.Request, entityID string) (string, error) {
	now := time.Now().UnixMilli()
	payload, err := json.Marshal(map[string]interface{}{
		"entity_id": entityID,
		"properties": map[string]interface{}{
			"__deleted__":    true,
			"__deleted_at__": now,
		},
	})
	if err != nil {
		return "", err
	}

	ev := &event.Event{
		Stream:    tombstoneStream,
		Source:    "api",
		Timestamp: now,
		Key:       entityID,
		Payload:   payload,
	}
	if err := event.ValidateAndPrepare(ev); err != nil {
		return "", err
	}
	if _, err := s.opts.Publisher.Publish(r.Context(), ev); err != nil {
		return "", err
	}
	return ev.EventID, nil
}

// handleDeleteEntity is DELETE /api/state/entities/{id}: publishes a
// tombstone; the projector removes the entity when it arrives.
func (s *Server) handleDeleteEntity(w http.ResponseWriter, r *http.Request) {
	entityID := chi.URLParam(r, "*")

	if status, err := s.authorizeDeletion(r, entityID); err != nil {
		respondError(w, status, err.Error())
		return
	}

	eventID, err := s.publishTombstone(r, entityID)
	if err != nil {
		logging.Error().Err(err).Str("entity_id", entityID).Msg("failed to publish tombstone")
		respondError(w, http.StatusInternalServerError, "failed to publish deletion event")
		return
	}

	respondJSON(w, http.StatusOK, deleteResponse{EntityID: entityID, EventID: eventID})
}

// handleBatchDelete is POST /api/state/entities/delete. Order of
// operations: enumerate, size-check, authorize all, then publish
// tombstones with per-entity outcomes.
func (s *Server) handleBatchDelete(w http.ResponseWriter, r *http.Request) {
	var req batchDeleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	var targets []string
	switch {
	case req.Namespace != "":
		prefix := req.Namespace + "/"
		for _, ent := range s.opts.Engine.AllEntities() {
			if strings.HasPrefix(ent.ID, prefix) {
				targets = append(targets, ent.ID)
			}
		}
	case req.Prefix != "":
		for _, ent := range s.opts.Engine.AllEntities() {
			if strings.HasPrefix(ent.ID, req.Prefix) {
				targets = append(targets, ent.ID)
			}
		}
	case len(req.EntityIDs) > 0:
		targets = req.EntityIDs
	default:
		respondError(w, http.StatusBadRequest, "filter must specify namespace, prefix, or entity_ids")
		return
	}

	if len(targets) > s.opts.MaxBatchDelete {
		respondError(w, http.StatusBadRequest,
			fmt.Sprintf("batch too large: %d entities requested, max is %d", len(targets), s.opts.MaxBatchDelete))
		return
	}

	for _, entityID := range targets {
		if status, err := s.authorizeDeletion(r, entityID); err != nil {
			respondError(w, status, err.Error())
			return
		}
	}

	resp := batchDeleteResponse{Errors: []string{}}
	for _, entityID := range targets {
		if _, err := s.publishTombstone(r, entityID); err != nil {
			resp.Failed++
			resp.Errors = append(resp.Errors, fmt.Sprintf("%s: %v", entityID, err))
			continue
		}
		resp.Deleted++
	}

	respondJSON(w, http.StatusOK, resp)
}
