// Flux - Event Ingestion, State Projection, and Real-Time Fan-Out
// Copyright 2026 EckmanTech LLC
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/EckmanTechLLC/flux

package api

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/goccy/go-json"

	"github.com/EckmanTechLLC/flux/internal/logging"
)

// errorResponse is the uniform error body: {"error": "<message>"}.
type errorResponse struct {
	Error string `json:"error"`
}

// respondJSON writes a JSON response with the given status.
func respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")

	data, err := json.Marshal(v)
	if err != nil {
		logging.Error().Err(err).Msg("failed to marshal response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		logging.Debug().Err(err).Msg("failed to write response")
	}
}

// respondError writes the uniform error body. Internal details are
// logged, never returned to the caller.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, errorResponse{Error: message})
}

// Bearer token extraction errors.
var (
	errTokenMissing = errors.New("authorization token not provided")
	errTokenFormat  = errors.New("invalid authorization token format")
	errTokenEmpty   = errors.New("authorization token is empty")
)

// extractBearerToken reads "Authorization: Bearer <token>".
func extractBearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", errTokenMissing
	}

	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return "", errTokenFormat
	}

	token = strings.TrimSpace(token)
	if token == "" {
		return "", errTokenEmpty
	}
	return token, nil
}

// adminAuthorized checks the admin token. When none is configured the
// endpoint is unrestricted. Comparison is constant-time.
func (s *Server) adminAuthorized(r *http.Request) bool {
	if s.opts.AdminToken == "" {
		return true
	}
	token, err := extractBearerToken(r)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(s.opts.AdminToken)) == 1
}

// isBodyTooLarge reports whether a decode failure was caused by the
// MaxBytesReader limit.
func isBodyTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr)
}
