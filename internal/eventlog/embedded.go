// Flux - Event Ingestion, State Projection, and Real-Time Fan-Out
// Copyright 2026 EckmanTech LLC
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/EckmanTechLLC/flux

package eventlog

import (
	"fmt"
	"time"

	"github.com/nats-io/nats-server/v2/server"

	"github.com/EckmanTechLLC/flux/internal/logging"
)

// EmbeddedConfig holds settings for the in-process JetStream server.
type EmbeddedConfig struct {
	Host     string
	Port     int // -1 selects a random free port
	StoreDir string
}

// EmbeddedServer runs a NATS JetStream server inside the Flux process
// for single-binary deployments and tests.
type EmbeddedServer struct {
	server *server.Server
}

// NewEmbeddedServer starts an embedded JetStream server and waits until
// it is ready for connections.
func NewEmbeddedServer(cfg EmbeddedConfig) (*EmbeddedServer, error) {
	host := cfg.Host
	if host == "" {
		host = "127.0.0.1"
	}

	opts := &server.Options{
		ServerName: "flux-events",
		Host:       host,
		Port:       cfg.Port,
		JetStream:  true,
		StoreDir:   cfg.StoreDir,
		NoLog:      true,
		NoSigs:     true,
	}

	ns, err := server.NewServer(opts)
	if err != nil {
		return nil, fmt.Errorf("create embedded NATS server: %w", err)
	}

	go ns.Start()

	if !ns.ReadyForConnections(30 * time.Second) {
		ns.Shutdown()
		return nil, fmt.Errorf("embedded NATS server not ready within 30s")
	}

	logging.Info().Str("url", ns.ClientURL()).Msg("embedded event log server started")
	return &EmbeddedServer{server: ns}, nil
}

// ClientURL returns the URL clients should dial.
func (s *EmbeddedServer) ClientURL() string {
	return s.server.ClientURL()
}

// Shutdown stops the server and waits for it to terminate.
func (s *EmbeddedServer) Shutdown() {
	s.server.Shutdown()
	s.server.WaitForShutdown()
}
