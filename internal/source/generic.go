// Flux - Event Ingestion, State Projection, and Real-Time Fan-Out
// Copyright 2026 EckmanTech LLC
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/EckmanTechLLC/flux

package source

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/EckmanTechLLC/flux/internal/logging"
)

// engineBinary is the external HTTP polling engine spawned per source.
const engineBinary = "bento"

// genericRestartDelay is the pause between engine restarts.
const genericRestartDelay = 5 * time.Second

// GenericStatus is the runtime status of one generic source process.
type GenericStatus struct {
	SourceID     string     `json:"source_id"`
	LastStarted  *time.Time `json:"last_started,omitempty"`
	LastError    *string    `json:"last_error,omitempty"`
	RestartCount uint32     `json:"restart_count"`
}

// GenericRunner supervises the polling-engine subprocesses. Each source
// runs in its own goroutine that renders the engine config, spawns the
// binary, waits for exit, sleeps, and respawns. Secrets reach the
// engine only through environment variables, never the rendered file.
type GenericRunner struct {
	store      *Store
	fluxAPIURL string
	tmpDir     string

	mu       sync.Mutex
	cancels  map[string]context.CancelFunc
	statuses map[string]*GenericStatus
}

// NewGenericRunner creates a runner writing temp configs under tmpDir.
func NewGenericRunner(store *Store, fluxAPIURL, tmpDir string) *GenericRunner {
	if tmpDir == "" {
		tmpDir = os.TempDir()
	}
	return &GenericRunner{
		store:      store,
		fluxAPIURL: fluxAPIURL,
		tmpDir:     tmpDir,
		cancels:    make(map[string]context.CancelFunc),
		statuses:   make(map[string]*GenericStatus),
	}
}

func (r *GenericRunner) configPath(sourceID string) string {
	return filepath.Join(r.tmpDir, fmt.Sprintf("flux-%s.yaml", sourceID))
}

// StartSource begins supervising one generic source. token is the
// source API secret (empty for unauthenticated sources).
func (r *GenericRunner) StartSource(ctx context.Context, cfg GenericSourceConfig, token string) {
	runCtx, cancel := context.WithCancel(ctx)

	r.mu.Lock()
	if old, ok := r.cancels[cfg.ID]; ok {
		old()
	}
	r.cancels[cfg.ID] = cancel
	if _, ok := r.statuses[cfg.ID]; !ok {
		r.statuses[cfg.ID] = &GenericStatus{SourceID: cfg.ID}
	}
	r.mu.Unlock()

	go r.runLoop(runCtx, cfg, token)
	logging.Info().Str("source_id", cfg.ID).Msg("generic source started")
}

// StopSource aborts the supervision loop and removes the temp config.
func (r *GenericRunner) StopSource(sourceID string) error {
	r.mu.Lock()
	if cancel, ok := r.cancels[sourceID]; ok {
		cancel()
		delete(r.cancels, sourceID)
	}
	delete(r.statuses, sourceID)
	r.mu.Unlock()

	if err := os.Remove(r.configPath(sourceID)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove engine config: %w", err)
	}
	logging.Info().Str("source_id", sourceID).Msg("generic source stopped")
	return nil
}

// Statuses returns the current status of every generic source.
func (r *GenericRunner) Statuses() []GenericStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]GenericStatus, 0, len(r.statuses))
	for _, s := range r.statuses {
		out = append(out, *s)
	}
	return out
}

func (r *GenericRunner) setStatus(sourceID string, f func(*GenericStatus)) {
	r.mu.Lock()
	if s, ok := r.statuses[sourceID]; ok {
		f(s)
	}
	r.mu.Unlock()
}

// runLoop is the supervision loop: render config, spawn, wait, back
// off, repeat. A missing engine binary stops the loop with a warning and
// a config render failure stops it with an error; write, spawn and exit
// failures are retried.
func (r *GenericRunner) runLoop(ctx context.Context, cfg GenericSourceConfig, token string) {
	path := r.configPath(cfg.ID)

	for {
		if ctx.Err() != nil {
			return
		}

		rendered, err := RenderEngineConfig(cfg, r.fluxAPIURL)
		if err != nil {
			logging.Error().Err(err).Str("source_id", cfg.ID).Msg("failed to render engine config")
			r.setStatus(cfg.ID, func(s *GenericStatus) { errMsg := err.Error(); s.LastError = &errMsg })
			return
		}

		if err := os.WriteFile(path, rendered, 0o644); err != nil {
			logging.Error().Err(err).Str("source_id", cfg.ID).Msg("failed to write engine config, retrying")
			if !sleepCtx(ctx, genericRestartDelay) {
				return
			}
			continue
		}

		cmd := exec.CommandContext(ctx, engineBinary, "-c", path)
		cmd.Env = os.Environ()
		if token != "" {
			cmd.Env = append(cmd.Env, "FLUX_GENERIC_TOKEN="+token)
		}
		if cfg.FluxNamespaceToken != "" {
			cmd.Env = append(cmd.Env, "FLUX_OUTPUT_TOKEN="+cfg.FluxNamespaceToken)
		}

		now := time.Now().UTC()
		r.setStatus(cfg.ID, func(s *GenericStatus) { s.LastStarted = &now })

		err = cmd.Start()
		if errors.Is(err, exec.ErrNotFound) {
			logging.Warn().Str("source_id", cfg.ID).Msgf("%s not found on PATH, stopping generic source", engineBinary)
			return
		}
		if err != nil {
			logging.Error().Err(err).Str("source_id", cfg.ID).Msg("failed to spawn polling engine, retrying")
			r.setStatus(cfg.ID, func(s *GenericStatus) { msg := err.Error(); s.LastError = &msg })
			if !sleepCtx(ctx, genericRestartDelay) {
				return
			}
			continue
		}

		logging.Info().Str("source_id", cfg.ID).Msg("polling engine subprocess started")

		err = cmd.Wait()
		switch {
		case ctx.Err() != nil:
			return
		case err == nil:
			logging.Info().Str("source_id", cfg.ID).Msg("polling engine exited cleanly, restarting")
			r.setStatus(cfg.ID, func(s *GenericStatus) { s.RestartCount++ })
		default:
			msg := fmt.Sprintf("polling engine exited: %v", err)
			logging.Warn().Str("source_id", cfg.ID).Str("error", msg).Msg("polling engine crashed, restarting")
			r.setStatus(cfg.ID, func(s *GenericStatus) {
				s.LastError = &msg
				s.RestartCount++
			})
		}

		if !sleepCtx(ctx, genericRestartDelay) {
			return
		}
	}
}

// sleepCtx sleeps unless the context ends first; reports whether the
// loop should continue.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

// RenderEngineConfig renders the polling-engine YAML for a source.
// Secrets are referenced via environment variable interpolation —
// the rendered file never contains token material.
func RenderEngineConfig(cfg GenericSourceConfig, fluxAPIURL string) ([]byte, error) {
	inputClient := map[string]interface{}{
		"url":        cfg.URL,
		"verb":       "GET",
		"timeout":    "30s",
		"rate_limit": "poll_rate",
	}
	switch cfg.Auth.Kind {
	case AuthBearer:
		inputClient["headers"] = map[string]string{"Authorization": "Bearer ${FLUX_GENERIC_TOKEN}"}
	case AuthAPIKeyHeader:
		inputClient["headers"] = map[string]string{cfg.Auth.HeaderName: "${FLUX_GENERIC_TOKEN}"}
	}

	mapping := fmt.Sprintf(`root.stream = "generic"
root.source = "engine.%s"
root.timestamp = timestamp_unix_milli()
root.key = %q
root.payload.entity_id = %q
root.payload.properties = this
`, cfg.ID, cfg.EntityKey, cfg.Namespace+"/"+cfg.EntityKey)

	outputHeaders := map[string]string{"Content-Type": "application/json"}
	if cfg.FluxNamespaceToken != "" {
		outputHeaders["Authorization"] = "Bearer ${FLUX_OUTPUT_TOKEN}"
	}

	doc := map[string]interface{}{
		"http": map[string]interface{}{"enabled": false},
		"input": map[string]interface{}{
			"http_client": inputClient,
		},
		"pipeline": map[string]interface{}{
			"processors": []interface{}{
				map[string]interface{}{"bloblang": mapping},
			},
		},
		"output": map[string]interface{}{
			"http_client": map[string]interface{}{
				"url":     fluxAPIURL + "/api/events",
				"verb":    "POST",
				"headers": outputHeaders,
			},
		},
		"rate_limit_resources": []interface{}{
			map[string]interface{}{
				"label": "poll_rate",
				"local": map[string]interface{}{
					"count":    1,
					"interval": fmt.Sprintf("%ds", cfg.PollIntervalSecs),
				},
			},
		},
	}

	return yaml.Marshal(doc)
}
