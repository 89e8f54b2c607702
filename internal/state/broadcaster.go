// Flux - Event Ingestion, State Projection, and Real-Time Fan-Out
// Copyright 2026 EckmanTech LLC
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/EckmanTechLLC/flux

package state

import (
	"context"
	"time"

	"github.com/EckmanTechLLC/flux/internal/logging"
)

// MetricsBroadcaster periodically publishes a metrics snapshot on the
// engine's metrics channel. Runs as a supervised service; missed ticks
// are skipped, not queued.
type MetricsBroadcaster struct {
	engine          *Engine
	interval        time.Duration
	publisherWindow time.Duration
}

// NewMetricsBroadcaster creates the broadcaster service.
func NewMetricsBroadcaster(engine *Engine, interval, publisherWindow time.Duration) *MetricsBroadcaster {
	return &MetricsBroadcaster{
		engine:          engine,
		interval:        interval,
		publisherWindow: publisherWindow,
	}
}

// Serve implements suture.Service.
func (b *MetricsBroadcaster) Serve(ctx context.Context) error {
	logging.Info().
		Dur("interval", b.interval).
		Msg("metrics broadcaster started")

	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			b.engine.PublishMetrics(b.snapshot())
		}
	}
}

func (b *MetricsBroadcaster) snapshot() MetricsUpdate {
	tracker := b.engine.Tracker()
	return MetricsUpdate{
		EntityCount:          b.engine.EntityCount(),
		TotalEvents:          tracker.TotalEvents(),
		EventRate:            tracker.EventRate(),
		ActivePublishers:     tracker.ActivePublishers(b.publisherWindow),
		WebSocketConnections: tracker.WSConnections(),
	}
}

func (b *MetricsBroadcaster) String() string { return "metrics-broadcaster" }
