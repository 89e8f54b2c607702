// Flux - Event Ingestion, State Projection, and Real-Time Fan-Out
// Copyright 2026 EckmanTech LLC
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/EckmanTechLLC/flux

package api

import (
	"net/http"
	"time"
)

// healthResponse is the full health report.
type healthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	EventLog  string `json:"event_log"`
	Entities  int    `json:"entities"`
	Sequence  uint64 `json:"last_processed_sequence"`
}

// handleHealthLive is GET /api/health/live: process is up.
func (s *Server) handleHealthLive(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleHealthReady is GET /api/health/ready: the event log accepts
// appends. 503 while the connection is down or the publish breaker is
// open.
func (s *Server) handleHealthReady(w http.ResponseWriter, r *http.Request) {
	if !s.opts.Publisher.Healthy() {
		respondError(w, http.StatusServiceUnavailable, "event log unavailable")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleHealth is GET /api/health: liveness plus pipeline detail.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	logStatus := "connected"
	status := "ok"
	code := http.StatusOK
	if !s.opts.Publisher.Healthy() {
		logStatus = "unavailable"
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	respondJSON(w, code, healthResponse{
		Status:    status,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		EventLog:  logStatus,
		Entities:  s.opts.Engine.EntityCount(),
		Sequence:  s.opts.Engine.LastProcessedSequence(),
	})
}
