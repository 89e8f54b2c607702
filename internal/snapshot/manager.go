// Flux - Event Ingestion, State Projection, and Real-Time Fan-Out
// Copyright 2026 EckmanTech LLC
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/EckmanTechLLC/flux

package snapshot

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/EckmanTechLLC/flux/internal/logging"
	"github.com/EckmanTechLLC/flux/internal/metrics"
	"github.com/EckmanTechLLC/flux/internal/state"
)

// Config holds snapshot manager settings.
type Config struct {
	Enabled         bool
	IntervalMinutes int
	Directory       string
	KeepCount       int
}

// DefaultConfig returns the standard snapshot settings.
func DefaultConfig() Config {
	return Config{
		Enabled:         true,
		IntervalMinutes: 5,
		Directory:       "/var/lib/flux/snapshots",
		KeepCount:       10,
	}
}

// Manager periodically snapshots the engine and prunes old files.
// Any per-tick error is logged and the next tick proceeds normally.
type Manager struct {
	engine *state.Engine
	config Config
}

// NewManager creates the snapshot service.
func NewManager(engine *state.Engine, config Config) *Manager {
	return &Manager{engine: engine, config: config}
}

// Serve implements suture.Service.
func (m *Manager) Serve(ctx context.Context) error {
	if !m.config.Enabled {
		logging.Info().Msg("snapshot manager disabled")
		<-ctx.Done()
		return ctx.Err()
	}

	if err := os.MkdirAll(m.config.Directory, 0o755); err != nil {
		return fmt.Errorf("create snapshot directory: %w", err)
	}

	logging.Info().
		Int("interval_minutes", m.config.IntervalMinutes).
		Str("directory", m.config.Directory).
		Int("keep_count", m.config.KeepCount).
		Msg("snapshot manager started")

	ticker := time.NewTicker(time.Duration(m.config.IntervalMinutes) * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := m.CreateAndSave(); err != nil {
				metrics.SnapshotErrors.Inc()
				logging.Error().Err(err).Msg("snapshot failed")
			}
		}
	}
}

// CreateAndSave takes one snapshot, writes it, and prunes old files.
func (m *Manager) CreateAndSave() error {
	snap := FromEngine(m.engine)
	path := filepath.Join(m.config.Directory, snap.Filename())

	if err := snap.SaveToFile(path); err != nil {
		return err
	}
	metrics.SnapshotsWritten.Inc()

	logging.Info().
		Uint64("sequence", snap.SequenceNumber).
		Int("entities", snap.EntityCount()).
		Str("path", path).
		Msg("snapshot saved")

	return m.cleanup()
}

// cleanup deletes the oldest snapshots beyond KeepCount.
func (m *Manager) cleanup() error {
	paths, err := listSnapshots(m.config.Directory)
	if err != nil {
		return err
	}
	if len(paths) <= m.config.KeepCount {
		return nil
	}

	for _, path := range paths[:len(paths)-m.config.KeepCount] {
		if err := os.Remove(path); err != nil {
			logging.Error().Err(err).Str("path", path).Msg("failed to delete old snapshot")
		} else {
			logging.Debug().Str("path", path).Msg("deleted old snapshot")
		}
	}
	return nil
}

func (m *Manager) String() string { return "snapshot-manager" }
