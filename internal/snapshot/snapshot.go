// Flux - Event Ingestion, State Projection, and Real-Time Fan-Out
// Copyright 2026 EckmanTech LLC
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/EckmanTechLLC/flux

// Package snapshot persists point-in-time copies of the world state.
// Snapshots are gzip-compressed JSON written atomically (temp file,
// fsync, rename); file names sort lexicographically by timestamp then
// sequence so a directory listing is chronological.
package snapshot

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/EckmanTechLLC/flux/internal/state"
)

// Version is the current snapshot format version.
const Version = "1"

// filenameTimeLayout sorts lexicographically in chronological order.
const filenameTimeLayout = "20060102T150405.000Z"

// Snapshot is the serialized world state at a specific log position.
type Snapshot struct {
	// SnapshotVersion allows future schema evolution.
	SnapshotVersion string `json:"snapshot_version"`

	// CreatedAt is when the snapshot was taken.
	CreatedAt time.Time `json:"created_at"`

	// SequenceNumber is the last processed log sequence at snapshot time.
	// Projection of all events after this sequence reproduces the live
	// state exactly.
	SequenceNumber uint64 `json:"sequence_number"`

	// Entities is the entity map at snapshot time.
	Entities map[string]state.Entity `json:"entities"`
}

// FromEngine captures the current engine state.
func FromEngine(engine *state.Engine) *Snapshot {
	entities := make(map[string]state.Entity)
	for _, ent := range engine.AllEntities() {
		entities[ent.ID] = ent
	}
	return &Snapshot{
		SnapshotVersion: Version,
		CreatedAt:       time.Now().UTC(),
		SequenceNumber:  engine.LastProcessedSequence(),
		Entities:        entities,
	}
}

// EntityCount returns the number of entities captured.
func (s *Snapshot) EntityCount() int {
	return len(s.Entities)
}

// Filename builds the snapshot file name for this snapshot's metadata.
func (s *Snapshot) Filename() string {
	return fmt.Sprintf("snapshot-%s-seq%d.json.gz",
		s.CreatedAt.UTC().Format(filenameTimeLayout), s.SequenceNumber)
}

// SaveToFile writes the snapshot as compressed JSON using an atomic
// write: temp file, fsync, rename. A crash mid-write never leaves a
// partially written snapshot under the final name.
func (s *Snapshot) SaveToFile(path string) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("serialize snapshot: %w", err)
	}

	tmpPath := path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create temp snapshot file: %w", err)
	}

	gz := gzip.NewWriter(f)
	if _, err := gz.Write(data); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write compressed snapshot: %w", err)
	}
	if err := gz.Close(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("finish compression: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("sync snapshot file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close snapshot file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename snapshot into place: %w", err)
	}
	return nil
}

// LoadFromFile reads a snapshot. Files ending in .gz are decompressed;
// plain .json files load uncompressed for backward compatibility.
func LoadFromFile(path string) (*Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open snapshot file: %w", err)
	}
	defer f.Close()

	var reader io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("decompress snapshot: %w", err)
		}
		defer gz.Close()
		reader = gz
	}

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}

	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("deserialize snapshot: %w", err)
	}
	return &s, nil
}

// listSnapshots returns the snapshot file paths in a directory, both
// current .json.gz and legacy .json.
func listSnapshots(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read snapshot directory: %w", err)
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, "snapshot-") &&
			(strings.HasSuffix(name, ".json.gz") || strings.HasSuffix(name, ".json")) {
			paths = append(paths, filepath.Join(dir, name))
		}
	}
	sort.Strings(paths)
	return paths, nil
}
