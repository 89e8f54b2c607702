// Flux - Event Ingestion, State Projection, and Real-Time Fan-Out
// Copyright 2026 EckmanTech LLC
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/EckmanTechLLC/flux

// Package credentials provides encrypted persistent storage of OAuth
// secrets. Tokens are encrypted at rest with AES-256-GCM; every stored
// value gets a freshly generated nonce, so even re-storing the same
// plaintext yields different ciphertext. Decryption is authenticated:
// tampering with ciphertext or nonce fails.
package credentials

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const (
	// masterKeySize is the required size of the decoded master key.
	masterKeySize = 32

	// gcmNonceSize is the standard GCM nonce size.
	gcmNonceSize = 12

	// hkdfSalt binds derived keys to Flux credential encryption.
	hkdfSalt = "flux-credential-store"

	// hkdfInfo versions the derivation so future schema changes can
	// rotate without changing the master key.
	hkdfInfo = "token-encryption-v1"
)

var (
	// ErrInvalidKey is returned when the master key is not base64 or not
	// 32 bytes after decoding.
	ErrInvalidKey = errors.New("encryption key must be 32 bytes, base64-encoded")

	// ErrDecryptFailed is returned when decryption fails: wrong key,
	// corrupted ciphertext, or tampered data.
	ErrDecryptFailed = errors.New("decryption failed: wrong key or corrupted data")
)

// Encryptor performs AES-256-GCM encryption with per-value nonces.
// The AES key is derived from the 32-byte master key via HKDF-SHA256.
type Encryptor struct {
	aead cipher.AEAD
}

// NewEncryptor validates the base64-encoded master key and derives the
// AES-GCM cipher from it.
func NewEncryptor(masterKeyBase64 string) (*Encryptor, error) {
	master, err := base64.StdEncoding.DecodeString(masterKeyBase64)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	if len(master) != masterKeySize {
		return nil, fmt.Errorf("%w: got %d bytes", ErrInvalidKey, len(master))
	}

	key := make([]byte, masterKeySize)
	kdf := hkdf.New(sha256.New, master, []byte(hkdfSalt), []byte(hkdfInfo))
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("derive encryption key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create AES cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}

	return &Encryptor{aead: aead}, nil
}

// Encrypt encrypts plaintext with a fresh random nonce. Returns the
// ciphertext and nonce, both base64-encoded for storage.
func (e *Encryptor) Encrypt(plaintext string) (ciphertext, nonce string, err error) {
	nonceBytes := make([]byte, gcmNonceSize)
	if _, err := io.ReadFull(rand.Reader, nonceBytes); err != nil {
		return "", "", fmt.Errorf("generate nonce: %w", err)
	}

	sealed := e.aead.Seal(nil, nonceBytes, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed),
		base64.StdEncoding.EncodeToString(nonceBytes),
		nil
}

// Decrypt reverses Encrypt. The nonce must be the one produced alongside
// the ciphertext.
func (e *Encryptor) Decrypt(ciphertext, nonce string) (string, error) {
	sealed, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("decode ciphertext: %w", err)
	}
	nonceBytes, err := base64.StdEncoding.DecodeString(nonce)
	if err != nil {
		return "", fmt.Errorf("decode nonce: %w", err)
	}
	if len(nonceBytes) != gcmNonceSize {
		return "", fmt.Errorf("invalid nonce size: expected %d, got %d", gcmNonceSize, len(nonceBytes))
	}

	plaintext, err := e.aead.Open(nil, nonceBytes, sealed, nil)
	if err != nil {
		return "", ErrDecryptFailed
	}
	return string(plaintext), nil
}
