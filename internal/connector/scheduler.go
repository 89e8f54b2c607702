// Flux - Event Ingestion, State Projection, and Real-Time Fan-Out
// Copyright 2026 EckmanTech LLC
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/EckmanTechLLC/flux

package connector

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/EckmanTechLLC/flux/internal/credentials"
	"github.com/EckmanTechLLC/flux/internal/event"
	"github.com/EckmanTechLLC/flux/internal/logging"
	"github.com/EckmanTechLLC/flux/internal/metrics"
	"github.com/EckmanTechLLC/flux/internal/oauth"
)

// refreshThreshold is how close to expiry a token may get before the
// scheduler refreshes it ahead of a poll.
const refreshThreshold = 90 * time.Second

// retryBackoffs are the fixed delays between fetch attempts. No delay
// follows the final attempt.
var retryBackoffs = []time.Duration{60 * time.Second, 120 * time.Second, 240 * time.Second}

// Status is the externally visible state of one scheduler instance.
type Status struct {
	LastPoll   *time.Time `json:"last_poll,omitempty"`
	LastError  *string    `json:"last_error,omitempty"`
	PollCount  uint64     `json:"poll_count"`
	ErrorCount uint64     `json:"error_count"`
}

// StatusHandle is a shared, lock-guarded Status. The discovery loop
// swaps the whole handle on restart so external monitors observe a
// reset.
type StatusHandle struct {
	mu     sync.Mutex
	status Status
}

// Get returns a copy of the current status.
func (h *StatusHandle) Get() Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.status
}

func (h *StatusHandle) recordSuccess() {
	now := time.Now().UTC()
	h.mu.Lock()
	h.status.LastPoll = &now
	h.status.LastError = nil
	h.status.PollCount++
	h.mu.Unlock()
}

func (h *StatusHandle) recordError(msg string) {
	h.mu.Lock()
	h.status.LastError = &msg
	h.status.ErrorCount++
	h.mu.Unlock()
}

// Scheduler polls one (user, connector) pair: refreshes tokens ahead of
// expiry, fetches events, and republishes them through the Flux
// ingestion API. Poll failures never propagate — they are recorded in
// the status and the loop continues.
type Scheduler struct {
	userID     string
	connector  Connector
	creds      credentials.Credentials
	fluxAPIURL string
	httpClient *http.Client
	credStore  *credentials.Store
	status     *StatusHandle
}

// NewScheduler creates a scheduler instance.
func NewScheduler(userID string, conn Connector, creds credentials.Credentials, fluxAPIURL string, credStore *credentials.Store) *Scheduler {
	return &Scheduler{
		userID:     userID,
		connector:  conn,
		creds:      creds,
		fluxAPIURL: strings.TrimSuffix(fluxAPIURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		credStore:  credStore,
		status:     &StatusHandle{},
	}
}

// Status returns the shared status handle.
func (s *Scheduler) Status() *StatusHandle {
	return s.status
}

// Run is the polling loop. The first poll happens after one interval;
// ticks missed while a poll was in flight are skipped, not queued.
func (s *Scheduler) Run(ctx context.Context) {
	interval := s.connector.PollInterval()
	logging.Info().
		Str("user_id", s.userID).
		Str("connector", s.connector.Name()).
		Dur("interval", interval).
		Msg("connector scheduler started")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		s.poll(ctx)
	}
}

// poll performs one scheduled iteration: refresh-if-needed, then fetch
// and publish with retries.
func (s *Scheduler) poll(ctx context.Context) {
	name := s.connector.Name()
	logging.Debug().Str("user_id", s.userID).Str("connector", name).Msg("polling connector")

	if s.needsRefresh() {
		if err := s.tryRefreshToken(ctx); err != nil {
			logging.Error().
				Err(err).
				Str("user_id", s.userID).
				Str("connector", name).
				Msg("token refresh failed, skipping poll")
			s.status.recordError(fmt.Sprintf("token refresh failed: %v", err))
			metrics.ConnectorTokenRefreshes.WithLabelValues(name, "error").Inc()
			return
		}
		metrics.ConnectorTokenRefreshes.WithLabelValues(name, "success").Inc()
	}

	if err := s.fetchAndPublishWithRetry(ctx); err != nil {
		logging.Error().
			Err(err).
			Str("user_id", s.userID).
			Str("connector", name).
			Msg("fetch and publish failed after retries")
		s.status.recordError(err.Error())
		metrics.ConnectorPolls.WithLabelValues(name, "error").Inc()
		return
	}

	s.status.recordSuccess()
	metrics.ConnectorPolls.WithLabelValues(name, "success").Inc()
}

// needsRefresh reports whether the access token expires within the
// threshold and a refresh token exists. PAT credentials (no expiry or
// no refresh token) never refresh.
func (s *Scheduler) needsRefresh() bool {
	if s.creds.ExpiresAt == nil || s.creds.RefreshToken == "" {
		return false
	}
	return !s.creds.ExpiresAt.After(time.Now().Add(refreshThreshold))
}

// tryRefreshToken refreshes the OAuth access token, persists the new
// credentials, and swaps them in memory. On any failure the previous
// credentials stay untouched. A provider that omits the rotated refresh
// token keeps the previous one.
func (s *Scheduler) tryRefreshToken(ctx context.Context) error {
	name := s.connector.Name()
	cfg := s.connector.OAuthConfig()
	envPrefix := strings.ToUpper(name)

	clientID := os.Getenv("FLUX_OAUTH_" + envPrefix + "_CLIENT_ID")
	clientSecret := os.Getenv("FLUX_OAUTH_" + envPrefix + "_CLIENT_SECRET")

	logging.Info().Str("user_id", s.userID).Str("connector", name).Msg("refreshing oauth token")

	newCreds, err := oauth.RefreshToken(ctx, cfg.TokenURL, s.creds.RefreshToken, clientID, clientSecret)
	if err != nil {
		return err
	}

	if newCreds.RefreshToken == "" {
		newCreds.RefreshToken = s.creds.RefreshToken
	}

	if err := s.credStore.Store(s.userID, name, newCreds); err != nil {
		return fmt.Errorf("persist refreshed credentials: %w", err)
	}
	s.creds = newCreds

	logging.Info().Str("user_id", s.userID).Str("connector", name).Msg("oauth token refreshed")
	return nil
}

// fetchAndPublishWithRetry runs up to three attempts with fixed
// backoffs between them (none after the last).
func (s *Scheduler) fetchAndPublishWithRetry(ctx context.Context) error {
	var lastErr error
	for attempt := 0; attempt < len(retryBackoffs); attempt++ {
		if err := s.fetchAndPublish(ctx); err == nil {
			return nil
		} else {
			lastErr = err
			logging.Warn().
				Err(err).
				Str("user_id", s.userID).
				Str("connector", s.connector.Name()).
				Int("attempt", attempt+1).
				Msg("fetch and publish failed, will retry")
		}

		if attempt < len(retryBackoffs)-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(retryBackoffs[attempt]):
			}
		}
	}
	return lastErr
}

// fetchAndPublish fetches from the connector and POSTs every event to
// the ingestion API. Any non-2xx response fails the attempt.
func (s *Scheduler) fetchAndPublish(ctx context.Context) error {
	events, err := s.connector.Fetch(ctx, &s.creds)
	if err != nil {
		return fmt.Errorf("fetch from connector: %w", err)
	}
	if len(events) == 0 {
		logging.Debug().
			Str("user_id", s.userID).
			Str("connector", s.connector.Name()).
			Msg("no events to publish")
		return nil
	}

	for _, ev := range events {
		if err := s.publishEvent(ctx, ev); err != nil {
			return err
		}
	}

	logging.Info().
		Str("user_id", s.userID).
		Str("connector", s.connector.Name()).
		Int("event_count", len(events)).
		Msg("published connector events")
	return nil
}

func (s *Scheduler) publishEvent(ctx context.Context, ev *event.Event) error {
	data, err := ev.Marshal()
	if err != nil {
		return fmt.Errorf("serialize event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.fluxAPIURL+"/api/events", bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("build publish request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.userID)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post event to flux: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("flux api returned %d: %s", resp.StatusCode, string(body))
	}
	return nil
}
