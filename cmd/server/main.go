// Flux - Event Ingestion, State Projection, and Real-Time Fan-Out
// Copyright 2026 EckmanTech LLC
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/EckmanTechLLC/flux

// Command server runs the Flux service: event ingestion over HTTP,
// projection into the in-memory world state, WebSocket fan-out,
// periodic snapshots, and the connector manager.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/EckmanTechLLC/flux/internal/api"
	"github.com/EckmanTechLLC/flux/internal/config"
	"github.com/EckmanTechLLC/flux/internal/connector"
	"github.com/EckmanTechLLC/flux/internal/credentials"
	"github.com/EckmanTechLLC/flux/internal/eventlog"
	"github.com/EckmanTechLLC/flux/internal/logging"
	"github.com/EckmanTechLLC/flux/internal/namespace"
	"github.com/EckmanTechLLC/flux/internal/oauth"
	"github.com/EckmanTechLLC/flux/internal/ratelimit"
	"github.com/EckmanTechLLC/flux/internal/snapshot"
	"github.com/EckmanTechLLC/flux/internal/source"
	"github.com/EckmanTechLLC/flux/internal/state"
	"github.com/EckmanTechLLC/flux/internal/supervisor"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	logging.Info().Msg("flux starting")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Event log: embedded server for single-binary deployments, or an
	// external NATS cluster.
	natsURL := cfg.NATS.URL
	if cfg.NATS.Embedded {
		embedded, err := eventlog.NewEmbeddedServer(eventlog.EmbeddedConfig{
			Port:     4222,
			StoreDir: cfg.NATS.StoreDir,
		})
		if err != nil {
			logging.Fatal().Err(err).Msg("failed to start embedded event log")
		}
		defer embedded.Shutdown()
		natsURL = embedded.ClientURL()
	}

	logClient, err := eventlog.Connect(ctx, eventlog.Config{
		URL:            natsURL,
		StreamName:     cfg.NATS.StreamName,
		StreamSubjects: cfg.NATS.StreamSubjects,
		MaxAge:         cfg.NATS.MaxAge,
		MaxBytes:       cfg.NATS.MaxBytes,
	})
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to connect to event log")
	}
	defer logClient.Close()

	// Namespace registry, persisted when a database path is configured.
	registry := namespace.NewRegistry()
	if cfg.Auth.NamespaceDB != "" {
		store, err := namespace.NewStore(cfg.Auth.NamespaceDB)
		if err != nil {
			logging.Fatal().Err(err).Msg("failed to open namespace store")
		}
		defer store.Close()
		registry = namespace.NewPersistentRegistry(store)
	}

	// Credential store, enabled by the encryption key.
	var credStore *credentials.Store
	if cfg.Connector.EncryptionKey != "" {
		credStore, err = credentials.NewStore(cfg.Connector.CredentialsDB, cfg.Connector.EncryptionKey)
		if err != nil {
			logging.Fatal().Err(err).Msg("failed to open credential store")
		}
		defer credStore.Close()
	} else {
		logging.Warn().Msg("FLUX_ENCRYPTION_KEY not set, connector credentials disabled")
	}

	// World state, restored from the newest snapshot; the projector
	// resumes from the restored sequence.
	engine := state.NewEngine()
	if cfg.Recovery.AutoRecover {
		seq, err := snapshot.Recover(cfg.Snapshot.Directory, engine)
		if err != nil {
			logging.Warn().Err(err).Msg("snapshot recovery failed, starting empty")
		} else if seq > 0 {
			logging.Info().
				Uint64("sequence", seq).
				Int("entities", engine.EntityCount()).
				Msg("state recovered from snapshot")
		}
	}

	runtime := config.NewSharedRuntimeConfig(config.RuntimeConfigFromEnv())
	stateManager := oauth.NewStateManager(oauth.DefaultStateTTL)

	// Generic/named source infrastructure.
	var sourceStore *source.Store
	var genericRunner *source.GenericRunner
	var namedRunner *source.NamedRunner
	if cfg.Connector.SourcesDB != "" {
		sourceStore, err = source.NewStore(cfg.Connector.SourcesDB)
		if err != nil {
			logging.Fatal().Err(err).Msg("failed to open sources store")
		}
		defer sourceStore.Close()

		genericRunner = source.NewGenericRunner(sourceStore, cfg.Connector.FluxAPIURL, cfg.Connector.TmpDir)
		namedRunner = source.NewNamedRunner(sourceStore, cfg.Connector.FluxAPIURL, cfg.Connector.TmpDir)
		restartPersistedSources(ctx, sourceStore, genericRunner, namedRunner, credStore)
	}

	// Supervision tree.
	tree := supervisor.NewTree(slog.New(slog.NewJSONHandler(os.Stderr, nil)), supervisor.DefaultTreeConfig())

	tree.AddMessagingService(state.NewProjector(logClient, engine))
	tree.AddMessagingService(snapshot.NewManager(engine, snapshot.Config{
		Enabled:         cfg.Snapshot.Enabled,
		IntervalMinutes: cfg.Snapshot.IntervalMinutes,
		Directory:       cfg.Snapshot.Directory,
		KeepCount:       cfg.Snapshot.KeepCount,
	}))
	tree.AddMessagingService(state.NewMetricsBroadcaster(engine,
		time.Duration(cfg.Metrics.BroadcastIntervalSeconds)*time.Second,
		time.Duration(cfg.Metrics.ActivePublisherWindowSeconds)*time.Second,
	))
	tree.AddMessagingService(oauth.NewSweeper(stateManager, time.Minute))

	var connectorManager *connector.Manager
	if credStore != nil {
		connectorManager = connector.NewManager(credStore, cfg.Connector.FluxAPIURL,
			time.Duration(cfg.Connector.DiscoveryIntervalSeconds)*time.Second)
		tree.AddMessagingService(connectorManager)
	}

	tree.AddAPIService(api.NewServer(api.Options{
		Engine:           engine,
		Publisher:        eventlog.NewPublisher(logClient),
		LogClient:        logClient,
		Registry:         registry,
		Runtime:          runtime,
		Limiter:          ratelimit.New(),
		CredStore:        credStore,
		StateManager:     stateManager,
		ConnectorManager: connectorManager,
		SourceStore:      sourceStore,
		GenericRunner:    genericRunner,
		NamedRunner:      namedRunner,
		AuthEnabled:      cfg.Auth.Enabled,
		AdminToken:       cfg.Auth.AdminToken,
		MaxBatchDelete:   cfg.API.MaxBatchDelete,
		BaseURL:          cfg.Server.BaseURL,
		Host:             cfg.Server.Host,
		Port:             cfg.Server.Port,
	}))

	if err := tree.Serve(ctx); err != nil && err != context.Canceled {
		logging.Error().Err(err).Msg("supervisor tree stopped")
	}
	logging.Info().Msg("flux stopped")
}

// restartPersistedSources resumes sources that were configured before
// the last shutdown.
func restartPersistedSources(ctx context.Context, store *source.Store, generic *source.GenericRunner, named *source.NamedRunner, credStore *credentials.Store) {
	generics, err := store.ListGeneric()
	if err != nil {
		logging.Warn().Err(err).Msg("failed to list persisted generic sources")
	}
	for _, cfg := range generics {
		token := ""
		if credStore != nil {
			if creds, err := credStore.Get("generic", cfg.ID); err == nil && creds != nil {
				token = creds.AccessToken
			}
		}
		generic.StartSource(ctx, cfg, token)
	}

	namedSources, err := store.ListNamed()
	if err != nil {
		logging.Warn().Err(err).Msg("failed to list persisted named sources")
	}
	for _, cfg := range namedSources {
		named.StartSource(ctx, cfg)
	}

	if len(generics)+len(namedSources) > 0 {
		logging.Info().
			Int("generic", len(generics)).
			Int("named", len(namedSources)).
			Msg("persisted sources restarted")
	}
}
