// Flux - Event Ingestion, State Projection, and Real-Time Fan-Out
// Copyright 2026 EckmanTech LLC
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/EckmanTechLLC/flux

package source

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/EckmanTechLLC/flux/internal/logging"
)

// tapInstaller installs a missing extractor binary, once per run.
const tapInstaller = "pip"

// NamedStatus is the runtime status of one named source.
type NamedStatus struct {
	SourceID     string     `json:"source_id"`
	TapName      string     `json:"tap_name"`
	LastRun      *time.Time `json:"last_run,omitempty"`
	LastError    *string    `json:"last_error,omitempty"`
	RestartCount uint32     `json:"restart_count"`
}

// NamedRunner supervises Singer-style extractor subprocesses. Each
// source runs discover-then-sync iterations: the selected catalog is
// regenerated per run, RECORD lines become Flux events, STATE lines
// persist the incremental bookmark between runs.
type NamedRunner struct {
	store      *Store
	fluxAPIURL string
	tmpDir     string
	httpClient *http.Client

	mu       sync.Mutex
	cancels  map[string]context.CancelFunc
	statuses map[string]*NamedStatus
}

// NewNamedRunner creates a runner writing temp files under tmpDir.
func NewNamedRunner(store *Store, fluxAPIURL, tmpDir string) *NamedRunner {
	if tmpDir == "" {
		tmpDir = os.TempDir()
	}
	return &NamedRunner{
		store:      store,
		fluxAPIURL: strings.TrimSuffix(fluxAPIURL, "/"),
		tmpDir:     tmpDir,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		cancels:    make(map[string]context.CancelFunc),
		statuses:   make(map[string]*NamedStatus),
	}
}

func (r *NamedRunner) tapConfigPath(id string) string {
	return filepath.Join(r.tmpDir, fmt.Sprintf("flux-%s-config.json", id))
}

func (r *NamedRunner) tapCatalogPath(id string) string {
	return filepath.Join(r.tmpDir, fmt.Sprintf("flux-%s-catalog.json", id))
}

func (r *NamedRunner) tapStatePath(id string) string {
	return filepath.Join(r.tmpDir, fmt.Sprintf("flux-%s-state.json", id))
}

// StartSource begins the run loop for one named source.
func (r *NamedRunner) StartSource(ctx context.Context, cfg NamedSourceConfig) {
	runCtx, cancel := context.WithCancel(ctx)

	r.mu.Lock()
	if old, ok := r.cancels[cfg.ID]; ok {
		old()
	}
	r.cancels[cfg.ID] = cancel
	if _, ok := r.statuses[cfg.ID]; !ok {
		r.statuses[cfg.ID] = &NamedStatus{SourceID: cfg.ID, TapName: cfg.TapName}
	}
	r.mu.Unlock()

	go r.runLoop(runCtx, cfg)
	logging.Info().Str("source_id", cfg.ID).Str("tap", cfg.TapName).Msg("named source started")
}

// StopSource aborts the run loop and removes the config and catalog
// temp files. The state file is kept for the next start.
func (r *NamedRunner) StopSource(sourceID string) error {
	r.mu.Lock()
	if cancel, ok := r.cancels[sourceID]; ok {
		cancel()
		delete(r.cancels, sourceID)
	}
	delete(r.statuses, sourceID)
	r.mu.Unlock()

	for _, path := range []string{r.tapConfigPath(sourceID), r.tapCatalogPath(sourceID)} {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			logging.Warn().Err(err).Str("path", path).Msg("failed to remove tap temp file")
		}
	}
	logging.Info().Str("source_id", sourceID).Msg("named source stopped")
	return nil
}

// Statuses returns the current status of every named source.
func (r *NamedRunner) Statuses() []NamedStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]NamedStatus, 0, len(r.statuses))
	for _, s := range r.statuses {
		out = append(out, *s)
	}
	return out
}

// TriggerSync runs one out-of-band iteration for a source, updating its
// status when the run completes.
func (r *NamedRunner) TriggerSync(ctx context.Context, sourceID string) error {
	cfg, err := r.store.GetNamed(sourceID)
	if err != nil {
		return err
	}
	if cfg == nil {
		return fmt.Errorf("named source %s not found", sourceID)
	}

	go func() {
		logging.Info().Str("source_id", cfg.ID).Str("tap", cfg.TapName).Msg("manual sync triggered")
		r.recordRunStart(cfg.ID)
		r.recordRunResult(cfg.ID, r.runOnce(ctx, *cfg))
	}()
	return nil
}

func (r *NamedRunner) recordRunStart(id string) {
	now := time.Now().UTC()
	r.mu.Lock()
	if s, ok := r.statuses[id]; ok {
		s.LastRun = &now
	}
	r.mu.Unlock()
}

func (r *NamedRunner) recordRunResult(id string, err error) {
	r.mu.Lock()
	if s, ok := r.statuses[id]; ok {
		if err != nil {
			msg := err.Error()
			s.LastError = &msg
		} else {
			s.LastError = nil
		}
		s.RestartCount++
	}
	r.mu.Unlock()
}

// runLoop runs the tap, waits the poll interval, repeats.
func (r *NamedRunner) runLoop(ctx context.Context, cfg NamedSourceConfig) {
	for {
		if ctx.Err() != nil {
			return
		}

		r.recordRunStart(cfg.ID)
		logging.Info().Str("source_id", cfg.ID).Str("tap", cfg.TapName).Msg("tap run starting")

		err := r.runOnce(ctx, cfg)
		if err != nil && ctx.Err() == nil {
			logging.Warn().Err(err).Str("source_id", cfg.ID).Str("tap", cfg.TapName).Msg("tap run failed")
		}
		r.recordRunResult(cfg.ID, err)

		if !sleepCtx(ctx, time.Duration(cfg.PollIntervalSecs)*time.Second) {
			return
		}
	}
}

// runOnce performs one complete tap invocation:
// write config (0600) -> discover -> write selected catalog -> run tap,
// consuming its stdout line protocol -> cleanup (state file kept).
func (r *NamedRunner) runOnce(ctx context.Context, cfg NamedSourceConfig) error {
	configPath := r.tapConfigPath(cfg.ID)
	catalogPath := r.tapCatalogPath(cfg.ID)
	statePath := r.tapStatePath(cfg.ID)

	if err := os.WriteFile(configPath, []byte(cfg.ConfigJSON), 0o600); err != nil {
		return fmt.Errorf("write tap config: %w", err)
	}
	defer func() {
		for _, path := range []string{configPath, catalogPath} {
			if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
				logging.Warn().Err(err).Str("path", path).Msg("failed to remove tap temp file")
			}
		}
	}()

	catalog, err := r.discover(ctx, cfg, configPath)
	if err != nil {
		return err
	}
	if err := os.WriteFile(catalogPath, catalog, 0o644); err != nil {
		return fmt.Errorf("write catalog: %w", err)
	}

	args := []string{"--config", configPath, "--properties", catalogPath}
	if _, err := os.Stat(statePath); err == nil {
		args = append(args, "--state", statePath)
	}

	cmd := exec.CommandContext(ctx, cfg.TapName, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("pipe tap stdout: %w", err)
	}
	cmd.Stderr = nil

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("spawn tap %s: %w", cfg.TapName, err)
	}

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 8<<20)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		r.handleTapLine(ctx, cfg, statePath, line)
	}
	if err := scanner.Err(); err != nil {
		_ = cmd.Wait()
		return fmt.Errorf("read tap output: %w", err)
	}

	if err := cmd.Wait(); err != nil {
		logging.Warn().Err(err).Str("tap", cfg.TapName).Msg("tap exited with non-zero status")
	}
	return nil
}

// discover runs `tap --config <path> --discover` and returns the
// catalog with every stream selected. When the tap binary is missing,
// one install attempt is made and discover retried once.
func (r *NamedRunner) discover(ctx context.Context, cfg NamedSourceConfig, configPath string) ([]byte, error) {
	out, err := exec.CommandContext(ctx, cfg.TapName, "--config", configPath, "--discover").Output()
	if errors.Is(err, exec.ErrNotFound) {
		logging.Info().Str("tap", cfg.TapName).Msg("tap not found, attempting install")
		if installErr := exec.CommandContext(ctx, tapInstaller, "install", cfg.TapName).Run(); installErr != nil {
			return nil, fmt.Errorf("install tap %s: %w", cfg.TapName, installErr)
		}
		out, err = exec.CommandContext(ctx, cfg.TapName, "--config", configPath, "--discover").Output()
	}
	if err != nil {
		return nil, fmt.Errorf("tap discover: %w", err)
	}

	selected, err := SelectAllStreams(out)
	if err != nil {
		return nil, fmt.Errorf("select catalog streams: %w", err)
	}
	return selected, nil
}

// SelectAllStreams marks every stream in a discover catalog as selected,
// setting both the legacy top-level flag and the modern metadata
// breadcrumb form.
func SelectAllStreams(catalogJSON []byte) ([]byte, error) {
	var catalog map[string]json.RawMessage
	if err := json.Unmarshal(catalogJSON, &catalog); err != nil {
		return nil, err
	}

	var streams []map[string]interface{}
	if raw, ok := catalog["streams"]; ok {
		if err := json.Unmarshal(raw, &streams); err != nil {
			return nil, err
		}
	}

	for _, stream := range streams {
		stream["selected"] = true

		metadata, _ := stream["metadata"].([]interface{})
		foundRoot := false
		for _, m := range metadata {
			entry, ok := m.(map[string]interface{})
			if !ok {
				continue
			}
			breadcrumb, _ := entry["breadcrumb"].([]interface{})
			if len(breadcrumb) == 0 {
				foundRoot = true
				md, _ := entry["metadata"].(map[string]interface{})
				if md == nil {
					md = map[string]interface{}{}
				}
				md["selected"] = true
				entry["metadata"] = md
			}
		}
		if !foundRoot {
			metadata = append(metadata, map[string]interface{}{
				"breadcrumb": []interface{}{},
				"metadata":   map[string]interface{}{"selected": true},
			})
		}
		stream["metadata"] = metadata
	}

	streamsRaw, err := json.Marshal(streams)
	if err != nil {
		return nil, err
	}
	catalog["streams"] = streamsRaw
	return json.Marshal(catalog)
}

// handleTapLine dispatches one Singer protocol line.
func (r *NamedRunner) handleTapLine(ctx context.Context, cfg NamedSourceConfig, statePath, line string) {
	var msg map[string]json.RawMessage
	if err := json.Unmarshal([]byte(line), &msg); err != nil {
		logging.Warn().Err(err).Str("tap", cfg.TapName).Msg("failed to parse tap line")
		return
	}

	var msgType string
	_ = json.Unmarshal(msg["type"], &msgType)

	switch msgType {
	case "RECORD":
		r.handleRecord(ctx, cfg, msg)
	case "STATE":
		value := msg["value"]
		if value == nil {
			value = json.RawMessage("null")
		}
		if err := os.WriteFile(statePath, value, 0o600); err != nil {
			logging.Warn().Err(err).Str("tap", cfg.TapName).Msg("failed to write tap state file")
		}
	case "SCHEMA":
		// Informational only.
	default:
		logging.Warn().Str("tap", cfg.TapName).Str("msg_type", msgType).Msg("unknown tap message type, ignoring")
	}
}

// handleRecord transforms one RECORD line into a Flux event and posts
// it to the ingestion endpoint.
func (r *NamedRunner) handleRecord(ctx context.Context, cfg NamedSourceConfig, msg map[string]json.RawMessage) {
	var tapStream string
	_ = json.Unmarshal(msg["stream"], &tapStream)
	if tapStream == "" {
		tapStream = "unknown"
	}

	var record map[string]json.RawMessage
	if err := json.Unmarshal(msg["record"], &record); err != nil || record == nil {
		logging.Warn().Str("tap", cfg.TapName).Msg("RECORD missing record field")
		return
	}

	key := entityKeyFromRecord(record, cfg.EntityKeyField)
	entityID := cfg.Namespace + "/" + key

	safeTap := strings.ReplaceAll(cfg.TapName, "-", ".")
	safeStream := strings.ReplaceAll(tapStream, "-", ".")

	payload, err := json.Marshal(map[string]interface{}{
		"entity_id":  entityID,
		"properties": record,
	})
	if err != nil {
		logging.Warn().Err(err).Str("tap", cfg.TapName).Msg("failed to build record payload")
		return
	}

	body, err := json.Marshal(map[string]interface{}{
		"stream":    fmt.Sprintf("taps.%s.%s", safeTap, safeStream),
		"source":    "tap." + cfg.TapName,
		"timestamp": time.Now().UnixMilli(),
		"key":       key,
		"payload":   json.RawMessage(payload),
	})
	if err != nil {
		logging.Warn().Err(err).Str("tap", cfg.TapName).Msg("failed to serialize tap event")
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.fluxAPIURL+"/api/events", bytes.NewReader(body))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")
	if cfg.FluxNamespaceToken != "" {
		req.Header.Set("Authorization", "Bearer "+cfg.FluxNamespaceToken)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		logging.Warn().Err(err).Str("tap", cfg.TapName).Msg("failed to post tap event to flux")
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	resp.Body.Close()
}

// entityKeyFromRecord picks the configured field, falling back to the
// first field value in stable key order.
func entityKeyFromRecord(record map[string]json.RawMessage, keyField string) string {
	if raw, ok := record[keyField]; ok {
		return rawToString(raw)
	}

	// Deterministic fallback: smallest field name.
	var firstKey string
	for k := range record {
		if firstKey == "" || k < firstKey {
			firstKey = k
		}
	}
	if firstKey == "" {
		return "unknown"
	}
	return rawToString(record[firstKey])
}

// rawToString stringifies a JSON value for use as an entity key.
func rawToString(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(bytes.TrimSpace(raw))
}
