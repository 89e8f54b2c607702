// Flux - Event Ingestion, State Projection, and Real-Time Fan-Out
// Copyright 2026 EckmanTech LLC
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/EckmanTechLLC/flux

package credentials

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3" // sqlite driver
)

// Credentials holds the decrypted OAuth tokens for one external API.
type Credentials struct {
	AccessToken string `json:"access_token"`
	// RefreshToken is empty for PAT-style credentials.
	RefreshToken string `json:"refresh_token,omitempty"`
	// ExpiresAt is nil when the token does not expire.
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// Key identifies one credential row.
type Key struct {
	UserID    string
	Connector string
}

const credentialsSchema = `
CREATE TABLE IF NOT EXISTS credentials (
	id INTEGER PRIMARY KEY,
	user_id TEXT NOT NULL,
	connector TEXT NOT NULL,
	access_token TEXT NOT NULL,
	access_token_nonce TEXT NOT NULL,
	refresh_token TEXT,
	refresh_token_nonce TEXT,
	expires_at TEXT,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	UNIQUE(user_id, connector)
);
CREATE INDEX IF NOT EXISTS idx_user_connector ON credentials(user_id, connector);`

// Store is the encrypted credential store. Writes are serialized behind a
// mutex; reads may proceed concurrently (the persistence transaction
// commits before a subsequent Get can observe the new value).
type Store struct {
	db        *sqlx.DB
	encryptor *Encryptor
	writeMu   sync.Mutex
}

// NewStore opens (or creates) the credential database. The encryption key
// is the base64-encoded 32-byte master key.
func NewStore(dbPath, encryptionKey string) (*Store, error) {
	encryptor, err := NewEncryptor(encryptionKey)
	if err != nil {
		return nil, fmt.Errorf("invalid encryption key: %w", err)
	}

	db, err := sqlx.Connect("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open credentials db %s: %w", dbPath, err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(credentialsSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create credentials table: %w", err)
	}

	return &Store{db: db, encryptor: encryptor}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Store upserts credentials for (userID, connector). Both tokens are
// encrypted separately, each with a fresh nonce.
func (s *Store) Store(userID, connector string, creds Credentials) error {
	accessCT, accessNonce, err := s.encryptor.Encrypt(creds.AccessToken)
	if err != nil {
		return fmt.Errorf("encrypt access token: %w", err)
	}

	var refreshCT, refreshNonce sql.NullString
	if creds.RefreshToken != "" {
		ct, nonce, err := s.encryptor.Encrypt(creds.RefreshToken)
		if err != nil {
			return fmt.Errorf("encrypt refresh token: %w", err)
		}
		refreshCT = sql.NullString{String: ct, Valid: true}
		refreshNonce = sql.NullString{String: nonce, Valid: true}
	}

	var expiresAt sql.NullString
	if creds.ExpiresAt != nil {
		expiresAt = sql.NullString{String: creds.ExpiresAt.UTC().Format(time.RFC3339Nano), Valid: true}
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_, err = s.db.Exec(`
		INSERT INTO credentials (
			user_id, connector,
			access_token, access_token_nonce,
			refresh_token, refresh_token_nonce,
			expires_at, created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, connector) DO UPDATE SET
			access_token = excluded.access_token,
			access_token_nonce = excluded.access_token_nonce,
			refresh_token = excluded.refresh_token,
			refresh_token_nonce = excluded.refresh_token_nonce,
			expires_at = excluded.expires_at,
			updated_at = excluded.updated_at`,
		userID, connector, accessCT, accessNonce, refreshCT, refreshNonce, expiresAt, now, now,
	)
	if err != nil {
		return fmt.Errorf("store credentials for %s/%s: %w", userID, connector, err)
	}
	return nil
}

// Update is an alias for Store (upsert semantics).
func (s *Store) Update(userID, connector string, creds Credentials) error {
	return s.Store(userID, connector, creds)
}

// Get returns the decrypted credentials for (userID, connector), or
// (nil, nil) when no row exists.
func (s *Store) Get(userID, connector string) (*Credentials, error) {
	row := s.db.QueryRowx(`
		SELECT access_token, access_token_nonce, refresh_token, refresh_token_nonce, expires_at
		FROM credentials WHERE user_id = ? AND connector = ?`,
		userID, connector,
	)

	var accessCT, accessNonce string
	var refreshCT, refreshNonce, expiresAt sql.NullString
	if err := row.Scan(&accessCT, &accessNonce, &refreshCT, &refreshNonce, &expiresAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("query credentials for %s/%s: %w", userID, connector, err)
	}

	accessToken, err := s.encryptor.Decrypt(accessCT, accessNonce)
	if err != nil {
		return nil, fmt.Errorf("decrypt access token for %s/%s: %w", userID, connector, err)
	}

	creds := &Credentials{AccessToken: accessToken}

	if refreshCT.Valid && refreshNonce.Valid {
		refreshToken, err := s.encryptor.Decrypt(refreshCT.String, refreshNonce.String)
		if err != nil {
			return nil, fmt.Errorf("decrypt refresh token for %s/%s: %w", userID, connector, err)
		}
		creds.RefreshToken = refreshToken
	}

	if expiresAt.Valid {
		ts, err := time.Parse(time.RFC3339Nano, expiresAt.String)
		if err != nil {
			return nil, fmt.Errorf("parse expires_at for %s/%s: %w", userID, connector, err)
		}
		creds.ExpiresAt = &ts
	}

	return creds, nil
}

// Delete removes the credentials for (userID, connector). Returns whether
// a row existed.
func (s *Store) Delete(userID, connector string) (bool, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	res, err := s.db.Exec(
		"DELETE FROM credentials WHERE user_id = ? AND connector = ?",
		userID, connector,
	)
	if err != nil {
		return false, fmt.Errorf("delete credentials for %s/%s: %w", userID, connector, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ListByUser returns the connector names the user has credentials for.
func (s *Store) ListByUser(userID string) ([]string, error) {
	rows, err := s.db.Queryx(
		"SELECT connector FROM credentials WHERE user_id = ? ORDER BY connector ASC",
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list credentials for %s: %w", userID, err)
	}
	defer rows.Close()

	var connectors []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, err
		}
		connectors = append(connectors, c)
	}
	return connectors, rows.Err()
}

// ListAll returns every (user, connector) key in the store.
func (s *Store) ListAll() ([]Key, error) {
	rows, err := s.db.Queryx(
		"SELECT user_id, connector FROM credentials ORDER BY user_id, connector",
	)
	if err != nil {
		return nil, fmt.Errorf("list all credentials: %w", err)
	}
	defer rows.Close()

	var keys []Key
	for rows.Next() {
		var k Key
		if err := rows.Scan(&k.UserID, &k.Connector); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// RawTokenRow returns the stored (still encrypted) access token column for
// one row. Used by tests to assert at-rest confidentiality.
func (s *Store) RawTokenRow(userID, connector string) (string, error) {
	var ct string
	err := s.db.QueryRowx(
		"SELECT access_token FROM credentials WHERE user_id = ? AND connector = ?",
		userID, connector,
	).Scan(&ct)
	if err != nil {
		return "", err
	}
	return ct, nil
}
