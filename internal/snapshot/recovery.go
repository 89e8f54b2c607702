// Flux - Event Ingestion, State Projection, and Real-Time Fan-Out
// Copyright 2026 EckmanTech LLC
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/EckmanTechLLC/flux

package snapshot

import (
	"os"
	"sort"

	"github.com/EckmanTechLLC/flux/internal/logging"
	"github.com/EckmanTechLLC/flux/internal/state"
)

// LoadLatest returns the newest loadable snapshot in the directory, or
// nil when none exists or all are corrupt. Corrupt files fall through to
// the next oldest.
func LoadLatest(dir string) (*Snapshot, error) {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		logging.Info().Str("directory", dir).Msg("snapshot directory does not exist, starting without snapshot")
		return nil, nil
	}

	paths, err := listSnapshots(dir)
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		logging.Info().Msg("no snapshots found, starting from beginning")
		return nil, nil
	}

	// Newest first: the filename timestamp sorts lexicographically.
	sort.Sort(sort.Reverse(sort.StringSlice(paths)))

	for _, path := range paths {
		snap, err := LoadFromFile(path)
		if err != nil {
			logging.Warn().Err(err).Str("path", path).Msg("corrupt snapshot, trying next oldest")
			continue
		}
		logging.Info().
			Str("path", path).
			Uint64("sequence", snap.SequenceNumber).
			Int("entities", snap.EntityCount()).
			Msg("snapshot loaded")
		return snap, nil
	}

	logging.Error().Msg("all snapshots are corrupt, starting from beginning")
	return nil, nil
}

// Recover restores the engine from the newest snapshot in dir. Returns
// the restored sequence number (0 on cold start). The caller then starts
// the projector, whose consumer resumes at sequence+1.
func Recover(dir string, engine *state.Engine) (uint64, error) {
	snap, err := LoadLatest(dir)
	if err != nil {
		return 0, err
	}
	if snap == nil {
		return 0, nil
	}

	engine.LoadEntities(snap.Entities)
	engine.SetLastProcessedSequence(snap.SequenceNumber)
	return snap.SequenceNumber, nil
}
