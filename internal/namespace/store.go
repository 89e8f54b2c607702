// Flux - Event Ingestion, State Projection, and Real-Time Fan-Out
// Copyright 2026 EckmanTech LLC
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/EckmanTechLLC/flux

package namespace

import (
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3" // sqlite driver
)

const namespaceSchema = `
CREATE TABLE IF NOT EXISTS namespaces (
	id         TEXT PRIMARY KEY,
	name       TEXT UNIQUE NOT NULL,
	token      TEXT NOT NULL,
	created_at TEXT NOT NULL
);`

// Store persists namespace records in SQLite so registrations survive
// restarts.
type Store struct {
	db *sqlx.DB
}

// NewStore opens (or creates) the SQLite database and ensures the table
// exists.
func NewStore(dbPath string) (*Store, error) {
	db, err := sqlx.Connect("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open namespace db %s: %w", dbPath, err)
	}
	// SQLite handles one writer at a time; serializing at the pool level
	// avoids SQLITE_BUSY under concurrent registration.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(namespaceSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create namespaces table: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Insert adds a new namespace row. Fails if id or name already exists.
func (s *Store) Insert(ns Namespace) error {
	_, err := s.db.Exec(
		"INSERT INTO namespaces (id, name, token, created_at) VALUES (?, ?, ?, ?)",
		ns.ID, ns.Name, ns.Token, ns.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert namespace %s: %w", ns.Name, err)
	}
	return nil
}

// Delete removes a namespace row by name. Succeeds whether or not the row
// exists.
func (s *Store) Delete(name string) error {
	if _, err := s.db.Exec("DELETE FROM namespaces WHERE name = ?", name); err != nil {
		return fmt.Errorf("delete namespace %s: %w", name, err)
	}
	return nil
}

// LoadAll returns all persisted namespaces ordered by creation time.
func (s *Store) LoadAll() ([]Namespace, error) {
	rows, err := s.db.Queryx("SELECT id, name, token, created_at FROM namespaces ORDER BY created_at ASC")
	if err != nil {
		return nil, fmt.Errorf("query namespaces: %w", err)
	}
	defer rows.Close()

	var namespaces []Namespace
	for rows.Next() {
		var id, name, token, createdAt string
		if err := rows.Scan(&id, &name, &token, &createdAt); err != nil {
			return nil, fmt.Errorf("scan namespace row: %w", err)
		}
		ts, err := time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parse created_at for namespace %s: %w", id, err)
		}
		namespaces = append(namespaces, Namespace{
			ID:        id,
			Name:      name,
			Token:     token,
			CreatedAt: ts,
		})
	}
	return namespaces, rows.Err()
}
