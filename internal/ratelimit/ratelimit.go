// Flux - Event Ingestion, State Projection, and Real-Time Fan-Out
// Copyright 2026 EckmanTech LLC
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/EckmanTechLLC/flux

// Package ratelimit provides the per-namespace token bucket used by the
// ingestion path. Buckets refill at capacity/60 tokens per second and
// never hold more than capacity tokens. State is in-memory only and
// resets on restart.
package ratelimit

import (
	"sync"

	"golang.org/x/time/rate"
)

// Limiter is a registry of per-namespace token buckets. Buckets are
// created lazily on first use. The capacity is passed on every check so
// admin config changes take effect immediately.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
}

type bucket struct {
	limiter  *rate.Limiter
	capacity uint64
}

// New creates an empty limiter registry.
func New() *Limiter {
	return &Limiter{buckets: make(map[string]*bucket)}
}

// CheckAndConsume refills the namespace's bucket from elapsed wall-clock
// time, then tries to consume one token. Returns whether the request is
// admitted. The whole check runs inside a short per-registry critical
// section; the underlying limiter does its own time accounting.
func (l *Limiter) CheckAndConsume(namespace string, capacity uint64) bool {
	if capacity == 0 {
		return false
	}

	l.mu.Lock()
	b, ok := l.buckets[namespace]
	if !ok {
		b = &bucket{
			limiter:  rate.NewLimiter(perMinute(capacity), int(capacity)),
			capacity: capacity,
		}
		l.buckets[namespace] = b
	} else if b.capacity != capacity {
		// Admin changed the limit: retune in place, keeping accumulated
		// tokens (capped by the new burst).
		b.limiter.SetLimit(perMinute(capacity))
		b.limiter.SetBurst(int(capacity))
		b.capacity = capacity
	}
	l.mu.Unlock()

	return b.limiter.Allow()
}

// perMinute converts a per-minute capacity into a per-second refill rate.
func perMinute(capacity uint64) rate.Limit {
	return rate.Limit(float64(capacity) / 60.0)
}
