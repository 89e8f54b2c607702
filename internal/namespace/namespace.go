// Flux - Event Ingestion, State Projection, and Real-Time Fan-Out
// Copyright 2026 EckmanTech LLC
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/EckmanTechLLC/flux

// Package namespace provides the namespace registry: named authorization
// scopes with secret bearer tokens, indexed for O(1) lookup by id, name,
// and token, with optional SQLite persistence.
package namespace

import (
	"crypto/rand"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/EckmanTechLLC/flux/internal/logging"
)

// Namespace is a user's isolated space in Flux.
type Namespace struct {
	// ID is system-generated: ns_ followed by 8 random [0-9a-z] chars.
	ID string `json:"id" db:"id"`
	// Name is user-chosen: unique, 3-32 chars of [a-z0-9-_].
	Name string `json:"name" db:"name"`
	// Token is the bearer secret authorizing writes to this namespace.
	Token string `json:"token" db:"token"`
	// CreatedAt is the registration time.
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Registration and lookup errors.
var (
	ErrNameTooShort      = errors.New("namespace name must be at least 3 characters")
	ErrNameTooLong       = errors.New("namespace name must be at most 32 characters")
	ErrNameInvalidChars  = errors.New("namespace name must contain only [a-z0-9-_]")
	ErrNameExists        = errors.New("namespace name already exists")
	ErrStoreFailed       = errors.New("namespace persistence failed")
	ErrNamespaceNotFound = errors.New("namespace not found")
	ErrUnauthorized      = errors.New("token does not own namespace")
)

// ValidateName checks the namespace name grammar: 3-32 characters,
// lowercase alphanumeric plus dash and underscore.
func ValidateName(name string) error {
	if len(name) < 3 {
		return ErrNameTooShort
	}
	if len(name) > 32 {
		return ErrNameTooLong
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		if (c < 'a' || c > 'z') && (c < '0' || c > '9') && c != '-' && c != '_' {
			return fmt.Errorf("%w: %q", ErrNameInvalidChars, string(c))
		}
	}
	return nil
}

// Registry manages namespace registration and lookups.
//
// Three indices are kept in agreement: the primary map by id is
// authoritative; by-name and by-token are secondary. All writes go through
// a single writer gate so no reader can observe an inconsistent trio;
// reads take only the read side of the lock.
type Registry struct {
	mu         sync.RWMutex
	namespaces map[string]Namespace // id -> namespace
	names      map[string]string    // name -> id
	tokens     map[string]string    // token -> id

	store *Store // nil when persistence is disabled
}

// NewRegistry creates an empty in-memory registry without persistence.
func NewRegistry() *Registry {
	return &Registry{
		namespaces: make(map[string]Namespace),
		names:      make(map[string]string),
		tokens:     make(map[string]string),
	}
}

// NewPersistentRegistry creates a registry backed by the given store and
// rebuilds the indices from persisted rows.
func NewPersistentRegistry(store *Store) *Registry {
	r := NewRegistry()
	r.store = store

	namespaces, err := store.LoadAll()
	if err != nil {
		logging.Warn().Err(err).Msg("failed to load namespaces from store")
		return r
	}
	for _, ns := range namespaces {
		r.namespaces[ns.ID] = ns
		r.names[ns.Name] = ns.ID
		r.tokens[ns.Token] = ns.ID
	}
	logging.Info().Int("count", len(namespaces)).Msg("namespaces loaded from store")
	return r
}

// Register creates a namespace with a generated id and token.
//
// The persistence write happens before any in-memory insertion: if it
// fails, the registry is unchanged and the caller sees the failure.
func (r *Registry) Register(name string) (Namespace, error) {
	if err := ValidateName(name); err != nil {
		return Namespace{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.names[name]; exists {
		return Namespace{}, ErrNameExists
	}

	ns := Namespace{
		ID:        generateNamespaceID(),
		Name:      name,
		Token:     uuid.New().String(),
		CreatedAt: time.Now().UTC(),
	}

	if r.store != nil {
		if err := r.store.Insert(ns); err != nil {
			logging.Error().Err(err).Str("name", name).Msg("namespace insert failed")
			return Namespace{}, fmt.Errorf("%w: %v", ErrStoreFailed, err)
		}
	}

	r.namespaces[ns.ID] = ns
	r.names[ns.Name] = ns.ID
	r.tokens[ns.Token] = ns.ID

	return ns, nil
}

// LookupByName returns the namespace with the given name.
func (r *Registry) LookupByName(name string) (Namespace, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.names[name]
	if !ok {
		return Namespace{}, false
	}
	ns, ok := r.namespaces[id]
	return ns, ok
}

// LookupByToken returns the namespace owning the given token.
func (r *Registry) LookupByToken(token string) (Namespace, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.tokens[token]
	if !ok {
		return Namespace{}, false
	}
	ns, ok := r.namespaces[id]
	return ns, ok
}

// Get returns the namespace with the given id.
func (r *Registry) Get(id string) (Namespace, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ns, ok := r.namespaces[id]
	return ns, ok
}

// ValidateToken checks that token owns the named namespace.
// Returns ErrNamespaceNotFound when the name is unknown and
// ErrUnauthorized on token mismatch.
func (r *Registry) ValidateToken(token, name string) error {
	ns, ok := r.LookupByName(name)
	if !ok {
		return ErrNamespaceNotFound
	}
	if ns.Token != token {
		return ErrUnauthorized
	}
	return nil
}

// Delete removes a namespace from all indices and persistence.
// Returns true if the namespace existed. Idempotent.
func (r *Registry) Delete(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.names[name]
	if !ok {
		return false
	}
	delete(r.names, name)

	if ns, ok := r.namespaces[id]; ok {
		delete(r.namespaces, id)
		delete(r.tokens, ns.Token)
	}

	if r.store != nil {
		if err := r.store.Delete(name); err != nil {
			logging.Warn().Err(err).Str("name", name).Msg("failed to delete namespace from store")
		}
	}

	return true
}

// Count returns the number of registered namespaces.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.namespaces)
}

const namespaceIDAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

func generateNamespaceID() string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failure is unrecoverable
		panic(fmt.Sprintf("namespace id generation: %v", err))
	}
	for i, b := range buf {
		buf[i] = namespaceIDAlphabet[int(b)%len(namespaceIDAlphabet)]
	}
	return "ns_" + string(buf)
}
