// Flux - Event Ingestion, State Projection, and Real-Time Fan-Out
// Copyright 2026 EckmanTech LLC
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/EckmanTechLLC/flux

package credentials

import (
	"encoding/base64"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func testKey() string {
	return base64.StdEncoding.EncodeToString(make([]byte, 32))
}

func testStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "creds.db"), testKey())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	enc, err := NewEncryptor(testKey())
	if err != nil {
		t.Fatal(err)
	}

	ct, nonce, err := enc.Encrypt("my-secret-token")
	if err != nil {
		t.Fatal(err)
	}
	if ct == "my-secret-token" {
		t.Error("ciphertext equals plaintext")
	}

	pt, err := enc.Decrypt(ct, nonce)
	if err != nil {
		t.Fatal(err)
	}
	if pt != "my-secret-token" {
		t.Errorf("round trip = %q", pt)
	}
}

func TestEncryptUsesFreshNonces(t *testing.T) {
	enc, err := NewEncryptor(testKey())
	if err != nil {
		t.Fatal(err)
	}

	ct1, n1, _ := enc.Encrypt("same")
	ct2, n2, _ := enc.Encrypt("same")
	if n1 == n2 {
		t.Error("nonce reused across encryptions")
	}
	if ct1 == ct2 {
		t.Error("identical ciphertext for same plaintext")
	}
}

func TestDecryptWithWrongKeyFails(t *testing.T) {
	enc1, _ := NewEncryptor(testKey())
	otherKey := base64.StdEncoding.EncodeToString(append(make([]byte, 31), 1))
	enc2, _ := NewEncryptor(otherKey)

	ct, nonce, _ := enc1.Encrypt("secret")
	if _, err := enc2.Decrypt(ct, nonce); !errors.Is(err, ErrDecryptFailed) {
		t.Errorf("expected ErrDecryptFailed, got %v", err)
	}
}

func TestDecryptTamperedCiphertextFails(t *testing.T) {
	enc, _ := NewEncryptor(testKey())
	ct, nonce, _ := enc.Encrypt("secret")

	raw, _ := base64.StdEncoding.DecodeString(ct)
	raw[0] ^= 0xff
	tampered := base64.StdEncoding.EncodeToString(raw)

	if _, err := enc.Decrypt(tampered, nonce); !errors.Is(err, ErrDecryptFailed) {
		t.Errorf("expected ErrDecryptFailed, got %v", err)
	}
}

func TestInvalidKeys(t *testing.T) {
	for _, key := range []string{
		"",
		"not-base64!!!",
		base64.StdEncoding.EncodeToString(make([]byte, 16)),
		base64.StdEncoding.EncodeToString(make([]byte, 64)),
	} {
		if _, err := NewEncryptor(key); !errors.Is(err, ErrInvalidKey) {
			t.Errorf("key %q: expected ErrInvalidKey, got %v", key, err)
		}
	}
}

func TestStoreGetRoundTrip(t *testing.T) {
	store := testStore(t)

	expires := time.Now().UTC().Add(time.Hour).Truncate(time.Millisecond)
	creds := Credentials{
		AccessToken:  "gho_access",
		RefreshToken: "ghr_refresh",
		ExpiresAt:    &expires,
	}
	if err := store.Store("user1", "github", creds); err != nil {
		t.Fatal(err)
	}

	got, err := store.Get("user1", "github")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil {
		t.Fatal("credentials not found")
	}
	if got.AccessToken != "gho_access" || got.RefreshToken != "ghr_refresh" {
		t.Errorf("token mismatch: %+v", got)
	}
	if got.ExpiresAt == nil || !got.ExpiresAt.Equal(expires) {
		t.Errorf("expires_at mismatch: %v vs %v", got.ExpiresAt, expires)
	}
}

func TestStoreUpsertReplaces(t *testing.T) {
	store := testStore(t)

	if err := store.Store("user1", "github", Credentials{AccessToken: "old"}); err != nil {
		t.Fatal(err)
	}
	if err := store.Store("user1", "github", Credentials{AccessToken: "new"}); err != nil {
		t.Fatal(err)
	}

	got, err := store.Get("user1", "github")
	if err != nil {
		t.Fatal(err)
	}
	if got.AccessToken != "new" {
		t.Errorf("upsert did not replace token: %q", got.AccessToken)
	}
}

func TestGetMissingReturnsNil(t *testing.T) {
	store := testStore(t)
	got, err := store.Get("nobody", "github")
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Errorf("expected nil for missing credentials, got %+v", got)
	}
}

func TestDeleteReportsExistence(t *testing.T) {
	store := testStore(t)
	if err := store.Store("user1", "github", Credentials{AccessToken: "t"}); err != nil {
		t.Fatal(err)
	}

	existed, err := store.Delete("user1", "github")
	if err != nil {
		t.Fatal(err)
	}
	if !existed {
		t.Error("delete of existing row reported false")
	}

	existed, err = store.Delete("user1", "github")
	if err != nil {
		t.Fatal(err)
	}
	if existed {
		t.Error("second delete reported true")
	}
}

func TestListByUserAndListAll(t *testing.T) {
	store := testStore(t)
	_ = store.Store("alice", "github", Credentials{AccessToken: "a"})
	_ = store.Store("alice", "gmail", Credentials{AccessToken: "b"})
	_ = store.Store("bob", "github", Credentials{AccessToken: "c"})

	connectors, err := store.ListByUser("alice")
	if err != nil {
		t.Fatal(err)
	}
	if len(connectors) != 2 || connectors[0] != "github" || connectors[1] != "gmail" {
		t.Errorf("ListByUser = %v", connectors)
	}

	keys, err := store.ListAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != 3 {
		t.Errorf("ListAll returned %d keys, want 3", len(keys))
	}
}

func TestTokensEncryptedAtRest(t *testing.T) {
	store := testStore(t)
	if err := store.Store("user1", "github", Credentials{AccessToken: "plaintext-token"}); err != nil {
		t.Fatal(err)
	}

	raw, err := store.RawTokenRow("user1", "github")
	if err != nil {
		t.Fatal(err)
	}
	if raw == "plaintext-token" {
		t.Error("access token stored in plaintext")
	}
}

func TestUpsertRotatesNonce(t *testing.T) {
	store := testStore(t)
	_ = store.Store("user1", "github", Credentials{AccessToken: "same"})
	first, _ := store.RawTokenRow("user1", "github")

	_ = store.Store("user1", "github", Credentials{AccessToken: "same"})
	second, _ := store.RawTokenRow("user1", "github")

	if first == second {
		t.Error("re-storing the same plaintext produced identical ciphertext")
	}
}
