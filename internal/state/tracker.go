// Flux - Event Ingestion, State Projection, and Real-Time Fan-Out
// Copyright 2026 EckmanTech LLC
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/EckmanTechLLC/flux

package state

import (
	"container/list"
	"sync"
	"sync/atomic"
	"time"
)

// rateWindow is the sliding window over which the event rate is computed.
const rateWindow = 5 * time.Second

// Tracker keeps the rolling counters behind the metrics broadcast:
// lifetime event total, a sliding window of recent event times, last-seen
// per source, and the WebSocket connection count.
type Tracker struct {
	totalEvents   atomic.Uint64
	wsConnections atomic.Uint64

	mu         sync.Mutex
	timestamps *list.List           // recent event times, oldest first
	publishers map[string]time.Time // source -> last seen
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{
		timestamps: list.New(),
		publishers: make(map[string]time.Time),
	}
}

// RecordEvent notes one processed event from the given source.
func (t *Tracker) RecordEvent(source string) {
	t.totalEvents.Add(1)
	now := time.Now()

	t.mu.Lock()
	t.timestamps.PushBack(now)
	// Trim entries older than the window on each record so the queue
	// stays bounded by throughput, not uptime.
	for front := t.timestamps.Front(); front != nil; front = t.timestamps.Front() {
		if now.Sub(front.Value.(time.Time)) <= rateWindow {
			break
		}
		t.timestamps.Remove(front)
	}
	t.publishers[source] = now
	t.mu.Unlock()
}

// EventRate returns events per second over the sliding window.
func (t *Tracker) EventRate() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	count := 0
	for el := t.timestamps.Front(); el != nil; el = el.Next() {
		if now.Sub(el.Value.(time.Time)) <= rateWindow {
			count++
		}
	}
	return float64(count) / rateWindow.Seconds()
}

// ActivePublishers counts sources seen within the given window.
func (t *Tracker) ActivePublishers(window time.Duration) int {
	threshold := time.Now().Add(-window)

	t.mu.Lock()
	defer t.mu.Unlock()

	count := 0
	for _, lastSeen := range t.publishers {
		if lastSeen.After(threshold) {
			count++
		}
	}
	return count
}

// TotalEvents returns the lifetime event count.
func (t *Tracker) TotalEvents() uint64 {
	return t.totalEvents.Load()
}

// IncrementWSConnections notes a new WebSocket connection.
func (t *Tracker) IncrementWSConnections() {
	t.wsConnections.Add(1)
}

// DecrementWSConnections notes a closed WebSocket connection.
func (t *Tracker) DecrementWSConnections() {
	// Wraps on underflow; callers decrement exactly once per increment.
	t.wsConnections.Add(^uint64(0))
}

// WSConnections returns the current WebSocket connection count.
func (t *Tracker) WSConnections() uint64 {
	return t.wsConnections.Load()
}
