// Flux - Event Ingestion, State Projection, and Real-Time Fan-Out
// Copyright 2026 EckmanTech LLC
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/EckmanTechLLC/flux

// Package config provides startup configuration loading and the
// hot-reloadable runtime limits.
//
// Configuration is merged in priority order: struct defaults, then an
// optional YAML file, then FLUX_-prefixed environment variables. A key
// like snapshot.interval_minutes maps to FLUX_SNAPSHOT_INTERVAL_MINUTES.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists where config files are searched, in order.
// The first file found wins.
var DefaultConfigPaths = []string{
	"flux.yaml",
	"flux.yml",
	"/etc/flux/flux.yaml",
}

// ConfigPathEnvVar overrides the config file path when set.
const ConfigPathEnvVar = "FLUX_CONFIG_PATH"

// envPrefix is stripped from environment variables before key mapping.
const envPrefix = "FLUX_"

// Config is the complete startup configuration.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	NATS      NATSConfig      `koanf:"nats"`
	Snapshot  SnapshotConfig  `koanf:"snapshot"`
	Recovery  RecoveryConfig  `koanf:"recovery"`
	Metrics   MetricsConfig   `koanf:"metrics"`
	API       APIConfig       `koanf:"api"`
	Auth      AuthConfig      `koanf:"auth"`
	Logging   LoggingConfig   `koanf:"logging"`
	Connector ConnectorConfig `koanf:"connector"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Host string `koanf:"host"`
	Port int    `koanf:"port"`
	// BaseURL is the externally reachable base URL used to build OAuth
	// callback addresses (e.g. "http://localhost:3000").
	BaseURL string `koanf:"base_url"`
}

// NATSConfig holds event log settings.
type NATSConfig struct {
	URL            string        `koanf:"url"`
	StreamName     string        `koanf:"stream_name"`
	StreamSubjects []string      `koanf:"stream_subjects"`
	MaxAge         time.Duration `koanf:"max_age"`
	MaxBytes       int64         `koanf:"max_bytes"`
	// Embedded starts an in-process JetStream server instead of dialing URL.
	Embedded bool   `koanf:"embedded"`
	StoreDir string `koanf:"store_dir"`
}

// SnapshotConfig holds periodic snapshot settings.
type SnapshotConfig struct {
	Enabled         bool   `koanf:"enabled"`
	IntervalMinutes int    `koanf:"interval_minutes"`
	Directory       string `koanf:"directory"`
	KeepCount       int    `koanf:"keep_count"`
}

// RecoveryConfig controls startup state restoration.
type RecoveryConfig struct {
	AutoRecover bool `koanf:"auto_recover"`
}

// MetricsConfig holds WebSocket metrics broadcast settings.
type MetricsConfig struct {
	BroadcastIntervalSeconds     int `koanf:"broadcast_interval_seconds"`
	ActivePublisherWindowSeconds int `koanf:"active_publisher_window_seconds"`
}

// APIConfig holds API behavior limits.
type APIConfig struct {
	MaxBatchDelete int `koanf:"max_batch_delete"`
}

// AuthConfig holds namespace authorization settings.
type AuthConfig struct {
	Enabled bool `koanf:"enabled"`
	// AdminToken guards PUT /api/admin/config and namespace registration
	// when set. Empty means unrestricted.
	AdminToken string `koanf:"admin_token"`
	// NamespaceDB is the SQLite file backing the namespace registry.
	NamespaceDB string `koanf:"namespace_db"`
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// ConnectorConfig holds connector manager settings.
type ConnectorConfig struct {
	// FluxAPIURL is the ingestion endpoint connectors publish back to.
	FluxAPIURL string `koanf:"flux_api_url"`
	// CredentialsDB is the SQLite file backing the credential store.
	CredentialsDB string `koanf:"credentials_db"`
	// EncryptionKey is the base64-encoded 32-byte master key. Credentials
	// features are disabled when empty.
	EncryptionKey string `koanf:"encryption_key"`
	// SourcesDB is the SQLite file backing generic/named source configs.
	SourcesDB string `koanf:"sources_db"`
	// TmpDir is where rendered subprocess configs and state files live.
	TmpDir string `koanf:"tmp_dir"`
	// DiscoveryIntervalSeconds is the credential reconciliation period.
	DiscoveryIntervalSeconds int `koanf:"discovery_interval_seconds"`
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:    "0.0.0.0",
			Port:    3000,
			BaseURL: "http://localhost:3000",
		},
		NATS: NATSConfig{
			URL:            "nats://localhost:4222",
			StreamName:     "FLUX_EVENTS",
			StreamSubjects: []string{"flux.events.>"},
			MaxAge:         7 * 24 * time.Hour,
			MaxBytes:       10 * 1024 * 1024 * 1024,
			Embedded:       false,
			StoreDir:       "/var/lib/flux/jetstream",
		},
		Snapshot: SnapshotConfig{
			Enabled:         true,
			IntervalMinutes: 5,
			Directory:       "/var/lib/flux/snapshots",
			KeepCount:       10,
		},
		Recovery: RecoveryConfig{
			AutoRecover: true,
		},
		Metrics: MetricsConfig{
			BroadcastIntervalSeconds:     2,
			ActivePublisherWindowSeconds: 10,
		},
		API: APIConfig{
			MaxBatchDelete: 10000,
		},
		Auth: AuthConfig{
			Enabled:     false,
			AdminToken:  "",
			NamespaceDB: "/var/lib/flux/namespaces.db",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Connector: ConnectorConfig{
			FluxAPIURL:               "http://localhost:3000",
			CredentialsDB:            "/var/lib/flux/credentials.db",
			EncryptionKey:            "",
			SourcesDB:                "/var/lib/flux/sources.db",
			TmpDir:                   os.TempDir(),
			DiscoveryIntervalSeconds: 60,
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file, and
// FLUX_ environment variables.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// Spec-named environment variables that do not follow the section
	// mapping are honored explicitly.
	applyLegacyEnv(cfg)

	return cfg, nil
}

func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		return p
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// envTransform maps FLUX_SNAPSHOT_INTERVAL_MINUTES to
// snapshot.interval_minutes. The first underscore separates the section;
// the remainder is the key.
func envTransform(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, envPrefix))
	parts := strings.SplitN(s, "_", 2)
	if len(parts) == 2 {
		return parts[0] + "." + parts[1]
	}
	return s
}

// applyLegacyEnv honors the flat variable names the external tooling uses.
func applyLegacyEnv(cfg *Config) {
	if v := os.Getenv("NATS_URL"); v != "" {
		cfg.NATS.URL = v
	}
	if v := os.Getenv("FLUX_API_URL"); v != "" {
		cfg.Connector.FluxAPIURL = v
	}
	if v := os.Getenv("FLUX_CREDENTIALS_DB"); v != "" {
		cfg.Connector.CredentialsDB = v
	}
	if v := os.Getenv("FLUX_ENCRYPTION_KEY"); v != "" {
		cfg.Connector.EncryptionKey = v
	}
	if v := os.Getenv("FLUX_ADMIN_TOKEN"); v != "" {
		cfg.Auth.AdminToken = v
	}
}
