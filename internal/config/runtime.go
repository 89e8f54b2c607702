// Flux - Event Ingestion, State Projection, and Real-Time Fan-Out
// Copyright 2026 EckmanTech LLC
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/EckmanTechLLC/flux

package config

import (
	"os"
	"strconv"
	"sync"
)

// RuntimeConfig holds the limits that can be changed at runtime via
// PUT /api/admin/config. Changes take effect on the next request; no value
// is latched across a request's suspension points.
type RuntimeConfig struct {
	RateLimitEnabled               bool   `json:"rate_limit_enabled"`
	RateLimitPerNamespacePerMinute uint64 `json:"rate_limit_per_namespace_per_minute"`
	BodySizeLimitSingleBytes       int64  `json:"body_size_limit_single_bytes"`
	BodySizeLimitBatchBytes        int64  `json:"body_size_limit_batch_bytes"`
}

// DefaultRuntimeConfig returns the built-in runtime limits.
func DefaultRuntimeConfig() RuntimeConfig {
	return RuntimeConfig{
		RateLimitEnabled:               true,
		RateLimitPerNamespacePerMinute: 10000,
		BodySizeLimitSingleBytes:       1 << 20,  // 1 MiB
		BodySizeLimitBatchBytes:        10 << 20, // 10 MiB
	}
}

// RuntimeConfigFromEnv builds runtime limits from FLUX_RATE_LIMIT_* and
// FLUX_BODY_SIZE_LIMIT_* variables, falling back to defaults.
func RuntimeConfigFromEnv() RuntimeConfig {
	cfg := DefaultRuntimeConfig()

	if v, ok := os.LookupEnv("FLUX_RATE_LIMIT_ENABLED"); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.RateLimitEnabled = b
		}
	}
	if v, ok := os.LookupEnv("FLUX_RATE_LIMIT_PER_NAMESPACE_PER_MINUTE"); ok {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.RateLimitPerNamespacePerMinute = n
		}
	}
	if v, ok := os.LookupEnv("FLUX_BODY_SIZE_LIMIT_SINGLE_BYTES"); ok {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.BodySizeLimitSingleBytes = n
		}
	}
	if v, ok := os.LookupEnv("FLUX_BODY_SIZE_LIMIT_BATCH_BYTES"); ok {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.BodySizeLimitBatchBytes = n
		}
	}

	return cfg
}

// SharedRuntimeConfig is a RuntimeConfig behind a read-write lock. Handlers
// take a snapshot at the start of each request; the admin API mutates it.
type SharedRuntimeConfig struct {
	mu  sync.RWMutex
	cfg RuntimeConfig
}

// NewSharedRuntimeConfig wraps the given runtime limits.
func NewSharedRuntimeConfig(cfg RuntimeConfig) *SharedRuntimeConfig {
	return &SharedRuntimeConfig{cfg: cfg}
}

// Snapshot returns a copy of the current limits.
func (s *SharedRuntimeConfig) Snapshot() RuntimeConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// RuntimeConfigUpdate is a partial update: only non-nil fields are applied.
type RuntimeConfigUpdate struct {
	RateLimitEnabled               *bool   `json:"rate_limit_enabled"`
	RateLimitPerNamespacePerMinute *uint64 `json:"rate_limit_per_namespace_per_minute"`
	BodySizeLimitSingleBytes       *int64  `json:"body_size_limit_single_bytes"`
	BodySizeLimitBatchBytes        *int64  `json:"body_size_limit_batch_bytes"`
}

// Apply merges the update and returns the resulting limits.
func (s *SharedRuntimeConfig) Apply(update RuntimeConfigUpdate) RuntimeConfig {
	s.mu.Lock()
	defer s.mu.Unlock()

	if update.RateLimitEnabled != nil {
		s.cfg.RateLimitEnabled = *update.RateLimitEnabled
	}
	if update.RateLimitPerNamespacePerMinute != nil {
		s.cfg.RateLimitPerNamespacePerMinute = *update.RateLimitPerNamespacePerMinute
	}
	if update.BodySizeLimitSingleBytes != nil {
		s.cfg.BodySizeLimitSingleBytes = *update.BodySizeLimitSingleBytes
	}
	if update.BodySizeLimitBatchBytes != nil {
		s.cfg.BodySizeLimitBatchBytes = *update.BodySizeLimitBatchBytes
	}

	return s.cfg
}
