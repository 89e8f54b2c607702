// Flux - Event Ingestion, State Projection, and Real-Time Fan-Out
// Copyright 2026 EckmanTech LLC
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/EckmanTechLLC/flux

// Package source manages user-defined polling sources: generic HTTP
// sources run by an external polling engine, and named sources run by
// Singer-style extractor binaries. Configs persist in SQLite; the
// runners supervise the subprocesses.
package source

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3" // sqlite driver
)

// AuthType describes how a generic source authenticates. The secret
// itself lives in the credential store, never in this table.
type AuthType struct {
	// Kind is "none", "bearer", or "api_key_header".
	Kind string `json:"type"`
	// HeaderName is set for api_key_header auth.
	HeaderName string `json:"header_name,omitempty"`
}

const (
	AuthNone         = "none"
	AuthBearer       = "bearer"
	AuthAPIKeyHeader = "api_key_header"
)

// GenericSourceConfig describes one generic HTTP polling source.
type GenericSourceConfig struct {
	// ID is a UUIDv4.
	ID string `json:"id"`
	// Name is the human-readable label.
	Name string `json:"name"`
	// URL to poll.
	URL string `json:"url"`
	// PollIntervalSecs is the polling period.
	PollIntervalSecs int `json:"poll_interval_secs"`
	// EntityKey is the fixed key used as the Flux entity id suffix.
	EntityKey string `json:"entity_key"`
	// Namespace prefixes published entity ids.
	Namespace string `json:"namespace"`
	// Auth is the authentication scheme.
	Auth AuthType `json:"auth_type"`
	// CreatedAt is when the source was created.
	CreatedAt time.Time `json:"created_at"`
	// FluxNamespaceToken authorizes publishing on auth-enabled
	// instances. Optional.
	FluxNamespaceToken string `json:"flux_namespace_token,omitempty"`
}

// NamedSourceConfig describes one Singer-style extractor source.
type NamedSourceConfig struct {
	// ID is a UUIDv4.
	ID string `json:"id"`
	// TapName is the extractor command (e.g. "tap-github").
	TapName string `json:"tap_name"`
	// Namespace prefixes published entity ids.
	Namespace string `json:"namespace"`
	// EntityKeyField is the record field used as the entity key.
	EntityKeyField string `json:"entity_key_field"`
	// ConfigJSON is the extractor config (credentials included);
	// written to a mode-0600 temp file at run time.
	ConfigJSON string `json:"config_json"`
	// PollIntervalSecs is the delay between runs.
	PollIntervalSecs int `json:"poll_interval_secs"`
	// CreatedAt is when the source was created.
	CreatedAt time.Time `json:"created_at"`
	// FluxNamespaceToken authorizes publishing on auth-enabled
	// instances. Optional.
	FluxNamespaceToken string `json:"flux_namespace_token,omitempty"`
}

const sourcesSchema = `
CREATE TABLE IF NOT EXISTS generic_sources (
	id                 TEXT PRIMARY KEY,
	name               TEXT NOT NULL,
	url                TEXT NOT NULL,
	poll_interval_secs INTEGER NOT NULL,
	entity_key         TEXT NOT NULL,
	namespace          TEXT NOT NULL,
	auth_type_json     TEXT NOT NULL,
	created_at         TEXT NOT NULL,
	flux_namespace_token TEXT
);
CREATE TABLE IF NOT EXISTS named_sources (
	id                 TEXT PRIMARY KEY,
	tap_name           TEXT NOT NULL,
	namespace          TEXT NOT NULL,
	entity_key_field   TEXT NOT NULL,
	config_json        TEXT NOT NULL,
	poll_interval_secs INTEGER NOT NULL,
	created_at         TEXT NOT NULL,
	flux_namespace_token TEXT
);`

// Store persists both source kinds in one SQLite database.
type Store struct {
	db *sqlx.DB
}

// NewStore opens (or creates) the sources database.
func NewStore(dbPath string) (*Store, error) {
	db, err := sqlx.Connect("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sources db %s: %w", dbPath, err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sourcesSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create source tables: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// InsertGeneric adds a generic source config. Fails on duplicate id.
func (s *Store) InsertGeneric(cfg GenericSourceConfig) error {
	authJSON, err := json.Marshal(cfg.Auth)
	if err != nil {
		return fmt.Errorf("serialize auth type: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO generic_sources
			(id, name, url, poll_interval_secs, entity_key, namespace, auth_type_json, created_at, flux_namespace_token)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		cfg.ID, cfg.Name, cfg.URL, cfg.PollIntervalSecs, cfg.EntityKey, cfg.Namespace,
		string(authJSON), cfg.CreatedAt.UTC().Format(time.RFC3339Nano), nullable(cfg.FluxNamespaceToken),
	)
	if err != nil {
		return fmt.Errorf("insert generic source %s: %w", cfg.ID, err)
	}
	return nil
}

// GetGeneric returns one generic source, or (nil, nil) when absent.
func (s *Store) GetGeneric(id string) (*GenericSourceConfig, error) {
	row := s.db.QueryRowx(`
		SELECT id, name, url, poll_interval_secs, entity_key, namespace, auth_type_json, created_at, flux_namespace_token
		FROM generic_sources WHERE id = ?`, id)
	cfg, err := scanGeneric(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return cfg, err
}

// ListGeneric returns all generic sources ordered by creation time.
func (s *Store) ListGeneric() ([]GenericSourceConfig, error) {
	rows, err := s.db.Queryx(`
		SELECT id, name, url, poll_interval_secs, entity_key, namespace, auth_type_json, created_at, flux_namespace_token
		FROM generic_sources ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("list generic sources: %w", err)
	}
	defer rows.Close()

	var out []GenericSourceConfig
	for rows.Next() {
		cfg, err := scanGeneric(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *cfg)
	}
	return out, rows.Err()
}

// DeleteGeneric removes a generic source. No-op when absent.
func (s *Store) DeleteGeneric(id string) error {
	if _, err := s.db.Exec("DELETE FROM generic_sources WHERE id = ?", id); err != nil {
		return fmt.Errorf("delete generic source %s: %w", id, err)
	}
	return nil
}

// InsertNamed adds a named source config. Fails on duplicate id.
func (s *Store) InsertNamed(cfg NamedSourceConfig) error {
	_, err := s.db.Exec(`
		INSERT INTO named_sources
			(id, tap_name, namespace, entity_key_field, config_json, poll_interval_secs, created_at, flux_namespace_token)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		cfg.ID, cfg.TapName, cfg.Namespace, cfg.EntityKeyField, cfg.ConfigJSON,
		cfg.PollIntervalSecs, cfg.CreatedAt.UTC().Format(time.RFC3339Nano), nullable(cfg.FluxNamespaceToken),
	)
	if err != nil {
		return fmt.Errorf("insert named source %s: %w", cfg.ID, err)
	}
	return nil
}

// GetNamed returns one named source, or (nil, nil) when absent.
func (s *Store) GetNamed(id string) (*NamedSourceConfig, error) {
	row := s.db.QueryRowx(`
		SELECT id, tap_name, namespace, entity_key_field, config_json, poll_interval_secs, created_at, flux_namespace_token
		FROM named_sources WHERE id = ?`, id)
	cfg, err := scanNamed(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return cfg, err
}

// ListNamed returns all named sources ordered by creation time.
func (s *Store) ListNamed() ([]NamedSourceConfig, error) {
	rows, err := s.db.Queryx(`
		SELECT id, tap_name, namespace, entity_key_field, config_json, poll_interval_secs, created_at, flux_namespace_token
		FROM named_sources ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("list named sources: %w", err)
	}
	defer rows.Close()

	var out []NamedSourceConfig
	for rows.Next() {
		cfg, err := scanNamed(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *cfg)
	}
	return out, rows.Err()
}

// DeleteNamed removes a named source. No-op when absent.
func (s *Store) DeleteNamed(id string) error {
	if _, err := s.db.Exec("DELETE FROM named_sources WHERE id = ?", id); err != nil {
		return fmt.Errorf("delete named source %s: %w", id, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanGeneric(row rowScanner) (*GenericSourceConfig, error) {
	var cfg GenericSourceConfig
	var authJSON, createdAt string
	var fluxToken sql.NullString
	if err := row.Scan(&cfg.ID, &cfg.Name, &cfg.URL, &cfg.PollIntervalSecs, &cfg.EntityKey,
		&cfg.Namespace, &authJSON, &createdAt, &fluxToken); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(authJSON), &cfg.Auth); err != nil {
		return nil, fmt.Errorf("parse auth type for %s: %w", cfg.ID, err)
	}
	ts, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at for %s: %w", cfg.ID, err)
	}
	cfg.CreatedAt = ts
	cfg.FluxNamespaceToken = fluxToken.String
	return &cfg, nil
}

func scanNamed(row rowScanner) (*NamedSourceConfig, error) {
	var cfg NamedSourceConfig
	var createdAt string
	var fluxToken sql.NullString
	if err := row.Scan(&cfg.ID, &cfg.TapName, &cfg.Namespace, &cfg.EntityKeyField,
		&cfg.ConfigJSON, &cfg.PollIntervalSecs, &createdAt, &fluxToken); err != nil {
		return nil, err
	}
	ts, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at for %s: %w", cfg.ID, err)
	}
	cfg.CreatedAt = ts
	cfg.FluxNamespaceToken = fluxToken.String
	return &cfg, nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
