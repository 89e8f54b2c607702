// Flux - Event Ingestion, State Projection, and Real-Time Fan-Out
// Copyright 2026 EckmanTech LLC
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/EckmanTechLLC/flux

// Package metrics exposes Prometheus instrumentation for Flux:
// ingestion throughput, event log health, projection progress, WebSocket
// connections, and connector polling.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Ingestion metrics
	EventsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flux_events_ingested_total",
			Help: "Total number of events accepted for publishing",
		},
		[]string{"stream"},
	)

	EventsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flux_events_rejected_total",
			Help: "Total number of events rejected at ingress",
		},
		[]string{"reason"}, // validation, unauthorized, rate_limited, too_large
	)

	// Event log metrics
	LogPublishes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "flux_log_publishes_total",
			Help: "Total number of acknowledged event log appends",
		},
	)

	LogPublishErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "flux_log_publish_errors_total",
			Help: "Total number of failed event log appends",
		},
	)

	// Projection metrics
	ProjectedEvents = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "flux_projected_events_total",
			Help: "Total number of events applied to the entity store",
		},
	)

	LastProcessedSequence = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "flux_last_processed_sequence",
			Help: "Event log sequence number of the last projected event",
		},
	)

	EntityCount = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "flux_entities",
			Help: "Current number of entities in the world state",
		},
	)

	// Snapshot metrics
	SnapshotsWritten = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "flux_snapshots_written_total",
			Help: "Total number of snapshots written successfully",
		},
	)

	SnapshotErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "flux_snapshot_errors_total",
			Help: "Total number of snapshot failures",
		},
	)

	// WebSocket metrics
	WSConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "flux_websocket_connections",
			Help: "Current number of active WebSocket connections",
		},
	)

	WSMessagesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "flux_websocket_messages_sent_total",
			Help: "Total number of messages sent to WebSocket clients",
		},
	)

	WSLaggedDrops = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "flux_websocket_lagged_drops_total",
			Help: "Total number of broadcast values dropped for lagging WebSocket subscribers",
		},
	)

	// Connector metrics
	ConnectorPolls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flux_connector_polls_total",
			Help: "Total number of connector poll attempts",
		},
		[]string{"connector", "outcome"}, // success, error
	)

	ConnectorTokenRefreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flux_connector_token_refreshes_total",
			Help: "Total number of OAuth token refresh attempts",
		},
		[]string{"connector", "outcome"},
	)

	// HTTP metrics (recorded by middleware)
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flux_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "flux_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// RecordHTTPRequest records one completed HTTP request.
func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}
