// Flux - Event Ingestion, State Projection, and Real-Time Fan-Out
// Copyright 2026 EckmanTech LLC
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/EckmanTechLLC/flux

// Package api provides the Flux HTTP surface: event ingestion, state
// queries and deletion, namespace management, admin controls, connector
// management, the OAuth flow, and the WebSocket upgrade.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/EckmanTechLLC/flux/internal/config"
	"github.com/EckmanTechLLC/flux/internal/connector"
	"github.com/EckmanTechLLC/flux/internal/credentials"
	"github.com/EckmanTechLLC/flux/internal/eventlog"
	"github.com/EckmanTechLLC/flux/internal/logging"
	"github.com/EckmanTechLLC/flux/internal/namespace"
	"github.com/EckmanTechLLC/flux/internal/oauth"
	"github.com/EckmanTechLLC/flux/internal/ratelimit"
	"github.com/EckmanTechLLC/flux/internal/source"
	"github.com/EckmanTechLLC/flux/internal/state"
)

// Options wires the server's collaborators. Optional fields may be nil;
// the corresponding endpoints respond with a configuration error.
type Options struct {
	Engine    *state.Engine
	Publisher *eventlog.Publisher
	LogClient *eventlog.Client
	Registry  *namespace.Registry
	Runtime   *config.SharedRuntimeConfig
	Limiter   *ratelimit.Limiter

	// CredStore is nil when no encryption key is configured.
	CredStore    *credentials.Store
	StateManager *oauth.StateManager

	// ConnectorManager provides per-connector poll status. Optional.
	ConnectorManager *connector.Manager
	// SourceStore / runners back the generic and named source
	// endpoints. Optional.
	SourceStore   *source.Store
	GenericRunner *source.GenericRunner
	NamedRunner   *source.NamedRunner

	AuthEnabled    bool
	AdminToken     string
	MaxBatchDelete int
	// BaseURL builds OAuth callback addresses.
	BaseURL string

	Host string
	Port int
}

// Server is the HTTP API.
type Server struct {
	opts Options
	// rootCtx parents per-connection WebSocket contexts.
	rootCtx context.Context
}

// NewServer creates the API server.
func NewServer(opts Options) *Server {
	if opts.MaxBatchDelete <= 0 {
		opts.MaxBatchDelete = 10000
	}
	return &Server{opts: opts, rootCtx: context.Background()}
}

// Serve implements suture.Service: it runs the HTTP listener until the
// context is canceled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	s.rootCtx = ctx

	addr := net.JoinHostPort(s.opts.Host, fmt.Sprintf("%d", s.opts.Port))
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Info().Str("addr", addr).Msg("http server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logging.Warn().Err(err).Msg("http server shutdown")
		}
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) String() string { return "http-server" }
