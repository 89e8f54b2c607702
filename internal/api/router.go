// Flux - Event Ingestion, State Projection, and Real-Time Fan-Out
// Copyright 2026 EckmanTech LLC
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/EckmanTechLLC/flux

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/EckmanTechLLC/flux/internal/middleware"
)

// Router assembles the full HTTP surface.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	// Global middleware, applied to every route in order.
	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
	}))
	r.Use(middleware.Prometheus)

	// Health probes.
	r.Get("/api/health", s.handleHealth)
	r.Get("/api/health/live", s.handleHealthLive)
	r.Get("/api/health/ready", s.handleHealthReady)

	// Event ingestion and history.
	r.Post("/api/events", s.handlePublishEvent)
	r.Post("/api/events/batch", s.handlePublishBatch)
	r.Get("/api/events", s.handleEventHistory)

	// World state queries and deletion. Entity ids contain slashes, so
	// the id segment is a catch-all.
	r.Get("/api/state/entities", s.handleListEntities)
	r.Post("/api/state/entities/delete", s.handleBatchDelete)
	r.Get("/api/state/entities/*", s.handleGetEntity)
	r.Delete("/api/state/entities/*", s.handleDeleteEntity)

	// Namespaces.
	r.Post("/api/namespaces", s.handleRegisterNamespace)
	r.Get("/api/namespaces/{name}", s.handleLookupNamespace)

	// Admin runtime config.
	r.Get("/api/admin/config", s.handleGetAdminConfig)
	r.Put("/api/admin/config", s.handlePutAdminConfig)

	// Connectors and sources.
	r.Route("/api/connectors", func(r chi.Router) {
		r.Get("/", s.handleListConnectors)

		r.Post("/generic", s.handleCreateGenericSource)
		r.Delete("/generic/{sourceID}", s.handleDeleteGenericSource)

		r.Post("/named", s.handleCreateNamedSource)
		r.Delete("/named/{sourceID}", s.handleDeleteNamedSource)
		r.Post("/named/{sourceID}/sync", s.handleTriggerNamedSync)

		r.Get("/{name}", s.handleGetConnector)
		r.Post("/{name}/token", s.handleStoreConnectorToken)
		r.Delete("/{name}/token", s.handleDeleteConnectorToken)

		// The OAuth endpoints face the public internet during the
		// authorization round-trip; rate limit them tightly.
		r.Group(func(r chi.Router) {
			r.Use(httprate.LimitByIP(30, time.Minute))
			r.Get("/{name}/oauth/start", s.handleOAuthStart)
			r.Get("/{name}/oauth/callback", s.handleOAuthCallback)
		})
	})

	// Live updates.
	r.Get("/api/ws", s.handleWebSocket)

	// Operational metrics.
	r.Handle("/metrics", promhttp.Handler())

	return r
}
