// Flux - Event Ingestion, State Projection, and Real-Time Fan-Out
// Copyright 2026 EckmanTech LLC
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/EckmanTechLLC/flux

package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/goccy/go-json"

	"github.com/EckmanTechLLC/flux/internal/config"
	"github.com/EckmanTechLLC/flux/internal/entity"
	"github.com/EckmanTechLLC/flux/internal/event"
	"github.com/EckmanTechLLC/flux/internal/eventlog"
	"github.com/EckmanTechLLC/flux/internal/logging"
	"github.com/EckmanTechLLC/flux/internal/metrics"
)

// eventResponse answers a successful single-event publish.
type eventResponse struct {
	EventID string `json:"eventId"`
	Stream  string `json:"stream"`
}

// batchRequest is the batch publish body.
type batchRequest struct {
	Events []event.Event `json:"events"`
}

// batchResult is one event's outcome within a batch.
type batchResult struct {
	EventID string `json:"eventId,omitempty"`
	Stream  string `json:"stream,omitempty"`
	Error   string `json:"error,omitempty"`
}

// batchResponse reports per-event outcomes; there is no batch atomicity.
type batchResponse struct {
	Successful int           `json:"successful"`
	Failed     int           `json:"failed"`
	Results    []batchResult `json:"results"`
}

// authorizeEvent checks that the caller's bearer token owns the
// namespace embedded in the event's entity_id. Returns the namespace
// name for rate limiting. No-op when auth is disabled.
func (s *Server) authorizeEvent(r *http.Request, ev *event.Event) (string, int, error) {
	if !s.opts.AuthEnabled {
		return "", 0, nil
	}

	token, err := extractBearerToken(r)
	if err != nil {
		return "", http.StatusUnauthorized, err
	}

	entityID := ev.EntityID()
	if entityID == "" {
		return "", http.StatusBadRequest, errors.New("missing 'entity_id' field in payload")
	}

	parsed, err := entity.ParseID(entityID)
	if err != nil {
		return "", http.StatusBadRequest, err
	}
	if parsed.Namespace == "" {
		return "", http.StatusBadRequest, errors.New("entity id missing namespace prefix (expected 'namespace/entity')")
	}

	if err := s.opts.Registry.ValidateToken(token, parsed.Namespace); err != nil {
		// Uniform 401 for unknown namespace and token mismatch keeps
		// namespace existence unprobeable.
		return "", http.StatusUnauthorized, errors.New("token does not have permission to write to this namespace")
	}

	return parsed.Namespace, 0, nil
}

// consumeRateLimit enforces the per-namespace token bucket. Returns
// false when the request must be rejected with 429.
func (s *Server) consumeRateLimit(ns string, runtime config.RuntimeConfig) bool {
	if !s.opts.AuthEnabled || !runtime.RateLimitEnabled || ns == "" {
		return true
	}
	return s.opts.Limiter.CheckAndConsume(ns, runtime.RateLimitPerNamespacePerMinute)
}

// handlePublishEvent is POST /api/events.
func (s *Server) handlePublishEvent(w http.ResponseWriter, r *http.Request) {
	runtime := s.opts.Runtime.Snapshot()

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, runtime.BodySizeLimitSingleBytes))
	if err != nil {
		if isBodyTooLarge(err) {
			metrics.EventsRejected.WithLabelValues("too_large").Inc()
			respondError(w, http.StatusRequestEntityTooLarge, "payload too large")
			return
		}
		respondError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	var ev event.Event
	if err := json.Unmarshal(body, &ev); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	ns, status, err := s.authorizeEvent(r, &ev)
	if err != nil {
		metrics.EventsRejected.WithLabelValues("unauthorized").Inc()
		respondError(w, status, err.Error())
		return
	}

	if !s.consumeRateLimit(ns, runtime) {
		metrics.EventsRejected.WithLabelValues("rate_limited").Inc()
		w.Header().Set("Retry-After", "60")
		respondError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	if err := event.ValidateAndPrepare(&ev); err != nil {
		metrics.EventsRejected.WithLabelValues("validation").Inc()
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	logging.Info().
		Str("event_id", ev.EventID).
		Str("stream", ev.Stream).
		Str("source", ev.Source).
		Msg("ingesting event")

	if _, err := s.opts.Publisher.Publish(r.Context(), &ev); err != nil {
		logging.Error().Err(err).Msg("failed to publish event")
		respondError(w, http.StatusInternalServerError, "failed to publish event")
		return
	}

	metrics.EventsIngested.WithLabelValues(ev.Stream).Inc()
	respondJSON(w, http.StatusOK, eventResponse{EventID: ev.EventID, Stream: ev.Stream})
}

// handlePublishBatch is POST /api/events/batch. Events fail or succeed
// individually.
func (s *Server) handlePublishBatch(w http.ResponseWriter, r *http.Request) {
	runtime := s.opts.Runtime.Snapshot()

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, runtime.BodySizeLimitBatchBytes))
	if err != nil {
		if isBodyTooLarge(err) {
			metrics.EventsRejected.WithLabelValues("too_large").Inc()
			respondError(w, http.StatusRequestEntityTooLarge, "payload too large")
			return
		}
		respondError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	var req batchRequest
	if err := json.Unmarshal(body, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if len(req.Events) == 0 {
		respondError(w, http.StatusBadRequest, "batch request must contain at least one event")
		return
	}

	logging.Info().Int("count", len(req.Events)).Msg("ingesting event batch")

	resp := batchResponse{Results: make([]batchResult, 0, len(req.Events))}
	for i := range req.Events {
		ev := &req.Events[i]

		ns, _, err := s.authorizeEvent(r, ev)
		if err != nil {
			resp.Failed++
			resp.Results = append(resp.Results, batchResult{Stream: ev.Stream, Error: "authorization failed: " + err.Error()})
			continue
		}
		if !s.consumeRateLimit(ns, runtime) {
			resp.Failed++
			resp.Results = append(resp.Results, batchResult{Stream: ev.Stream, Error: "rate limit exceeded"})
			continue
		}

		if err := event.ValidateAndPrepare(ev); err != nil {
			resp.Failed++
			resp.Results = append(resp.Results, batchResult{Stream: ev.Stream, Error: "validation failed: " + err.Error()})
			continue
		}

		if _, err := s.opts.Publisher.Publish(r.Context(), ev); err != nil {
			logging.Error().Err(err).Str("event_id", ev.EventID).Msg("failed to publish batch event")
			resp.Failed++
			resp.Results = append(resp.Results, batchResult{EventID: ev.EventID, Stream: ev.Stream, Error: "publish failed"})
			continue
		}

		metrics.EventsIngested.WithLabelValues(ev.Stream).Inc()
		resp.Successful++
		resp.Results = append(resp.Results, batchResult{EventID: ev.EventID, Stream: ev.Stream})
	}

	respondJSON(w, http.StatusOK, resp)
}

// historyIdleWindow ends a history read after this much quiet time.
const historyIdleWindow = 200 * time.Millisecond

// handleEventHistory is GET /api/events?entity=E&since=T&limit=N: raw
// stored events for one entity, newest first.
func (s *Server) handleEventHistory(w http.ResponseWriter, r *http.Request) {
	entityID := r.URL.Query().Get("entity")
	if entityID == "" {
		respondError(w, http.StatusBadRequest, "entity parameter is required")
		return
	}

	since := time.Now().Add(-24 * time.Hour)
	if raw := r.URL.Query().Get("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid 'since' timestamp (expected ISO 8601)")
			return
		}
		since = parsed
	}

	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid 'limit' value")
			return
		}
		limit = n
	}
	if limit < 1 {
		limit = 1
	}
	if limit > 500 {
		limit = 500
	}

	consumer, err := s.opts.LogClient.NewConsumerFromTime(r.Context(), since)
	if err != nil {
		logging.Warn().Err(err).Msg("failed to create history consumer")
		respondError(w, http.StatusInternalServerError, "failed to read events")
		return
	}

	collected := make([]*event.Event, 0, limit)
	for len(collected) < limit {
		msg, err := consumer.Next(historyIdleWindow)
		if err != nil {
			if errors.Is(err, eventlog.ErrNoMessage) {
				break
			}
			logging.Warn().Err(err).Msg("history read error")
			break
		}
		ev, err := event.Unmarshal(msg.Data)
		if err != nil {
			continue
		}
		if ev.EntityID() == entityID {
			collected = append(collected, ev)
		}
	}

	// Newest first.
	for i, j := 0, len(collected)-1; i < j; i, j = i+1, j-1 {
		collected[i], collected[j] = collected[j], collected[i]
	}

	respondJSON(w, http.StatusOK, collected)
}

