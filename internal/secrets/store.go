// Copyright 2026 The skillsd Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package secrets

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"golang.org/x/crypto/argon2"
)

const (
	// Argon2id parameters: time=3, memory=64MB, parallelism=4.
	argon2Time        = 3
	argon2Memory      = 64 * 1024
	argon2Parallelism = 4
	argon2KeyLength   = 32 // 256 bits for AES-256

	// AES-GCM nonce size (96 bits, standard for GCM)
	gcmNonceSize = 12
)

// EncryptedStore provides encrypted secret storage using AES-256-GCM with
// an Argon2id-derived key. Secrets live in a single JSON file; the master
// key is resolved from either the SKILLSD_MASTER_KEY environment variable
// or ~/.config/skillsd/master.key.
type EncryptedStore struct {
	path      string
	masterKey []byte
	mu        sync.RWMutex
	available bool
}

// encryptedPayload is the on-disk structure of the secret store.
type encryptedPayload struct {
	Salt  []byte `json:"salt"`  // Salt for Argon2 key derivation
	Nonce []byte `json:"nonce"` // GCM nonce
	Data  []byte `json:"data"`  // Encrypted secrets data
}

// NewEncryptedStore creates an encrypted secret store backed by the given
// file path. An empty path defaults to ~/.config/skillsd/secrets.enc.
// When no master key can be resolved the store is returned in an
// unavailable state rather than as an error, so callers can register it
// unconditionally.
func NewEncryptedStore(path string, masterKey string) (*EncryptedStore, error) {
	if path == "" {
		configDir, err := os.UserConfigDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get config directory: %w", err)
		}
		path = filepath.Join(configDir, "skillsd", "secrets.enc")
	}

	key, err := resolveMasterKey(masterKey)
	if err != nil {
		return &EncryptedStore{
			path:      path,
			available: false,
		}, nil
	}

	store := &EncryptedStore{
		path:      path,
		masterKey: key,
		available: true,
	}

	if err := store.ensureParentDir(); err != nil {
		return nil, fmt.Errorf("failed to create parent directory: %w", err)
	}

	return store, nil
}

// Scheme returns "store".
func (s *EncryptedStore) Scheme() string {
	return "store"
}

// Available reports whether a master key was resolved.
func (s *EncryptedStore) Available() bool {
	return s.available
}

// Resolve retrieves a secret from the encrypted store.
func (s *EncryptedStore) Resolve(ctx context.Context, key string) (string, error) {
	if !s.available {
		return "", fmt.Errorf("%w: master key not available", ErrUnavailable)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	values, err := s.load()
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return "", fmt.Errorf("failed to load secret store: %w", err)
	}

	value, ok := values[key]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, key)
	}

	return value, nil
}

// Set stores a secret in the encrypted store.
func (s *EncryptedStore) Set(ctx context.Context, key, value string) error {
	if !s.available {
		return fmt.Errorf("%w: master key not available", ErrUnavailable)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	values, err := s.load()
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to load secret store: %w", err)
	}
	if values == nil {
		values = make(map[string]string)
	}

	values[key] = value

	if err := s.save(values); err != nil {
		return fmt.Errorf("failed to save secret store: %w", err)
	}

	return nil
}

// Delete removes a secret from the encrypted store.
func (s *EncryptedStore) Delete(ctx context.Context, key string) error {
	if !s.available {
		return fmt.Errorf("%w: master key not available", ErrUnavailable)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	values, err := s.load()
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return fmt.Errorf("failed to load secret store: %w", err)
	}

	if _, ok := values[key]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	}

	delete(values, key)
	if err := s.save(values); err != nil {
		return fmt.Errorf("failed to save secret store: %w", err)
	}

	return nil
}

// List returns all secret keys (never values) in sorted order.
func (s *EncryptedStore) List(ctx context.Context) ([]string, error) {
	if !s.available {
		return nil, fmt.Errorf("%w: master key not available", ErrUnavailable)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	values, err := s.load()
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to load secret store: %w", err)
	}

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	return keys, nil
}

// load reads and decrypts the secret store file.
func (s *EncryptedStore) load() (map[string]string, error) {
	encData, err := os.ReadFile(s.path)
	if err != nil {
		return nil, err
	}

	var payload encryptedPayload
	if err := json.Unmarshal(encData, &payload); err != nil {
		return nil, fmt.Errorf("invalid encrypted data format: %w", err)
	}

	key := argon2.IDKey(s.masterKey, payload.Salt, argon2Time, argon2Memory, argon2Parallelism, argon2KeyLength)
	defer zeroBytes(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	plaintext, err := gcm.Open(nil, payload.Nonce, payload.Data, nil)
	if err != nil {
		return nil, fmt.Errorf("decryption failed (wrong master key or corrupted data): %w", err)
	}
	defer zeroBytes(plaintext)

	var values map[string]string
	if err := json.Unmarshal(plaintext, &values); err != nil {
		return nil, fmt.Errorf("invalid decrypted data format: %w", err)
	}

	return values, nil
}

// save encrypts and atomically writes the secret store file.
func (s *EncryptedStore) save(values map[string]string) error {
	plaintext, err := json.Marshal(values)
	if err != nil {
		return fmt.Errorf("failed to marshal secrets: %w", err)
	}
	defer zeroBytes(plaintext)

	// A fresh salt per write means a stolen older file cannot be used to
	// attack the current one with a precomputed key.
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return fmt.Errorf("failed to generate salt: %w", err)
	}

	key := argon2.IDKey(s.masterKey, salt, argon2Time, argon2Memory, argon2Parallelism, argon2KeyLength)
	defer zeroBytes(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return fmt.Errorf("failed to create GCM: %w", err)
	}

	nonce := make([]byte, gcmNonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("failed to generate nonce: %w", err)
	}

	payload := encryptedPayload{
		Salt:  salt,
		Nonce: nonce,
		Data:  gcm.Seal(nil, nonce, plaintext, nil),
	}

	encData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal encrypted data: %w", err)
	}

	// Write to temp file then rename so readers never observe a partial
	// store.
	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, encData, 0600); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	return nil
}

// ensureParentDir creates the parent directory with owner-only permissions.
func (s *EncryptedStore) ensureParentDir() error {
	dir := filepath.Dir(s.path)

	info, err := os.Stat(dir)
	if err == nil {
		if !info.IsDir() {
			return fmt.Errorf("parent path exists but is not a directory: %s", dir)
		}
		return nil
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	return nil
}

// resolveMasterKey resolves the master key from the provided value, the
// SKILLSD_MASTER_KEY environment variable, or the master.key file.
func resolveMasterKey(providedKey string) ([]byte, error) {
	if providedKey != "" {
		return []byte(providedKey), nil
	}

	if envKey := os.Getenv("SKILLSD_MASTER_KEY"); envKey != "" {
		return []byte(envKey), nil
	}

	configDir, err := os.UserConfigDir()
	if err == nil {
		keyPath := filepath.Join(configDir, "skillsd", "master.key")
		if key, err := os.ReadFile(keyPath); err == nil {
			if err := verifyKeyFilePermissions(keyPath); err == nil {
				return key, nil
			}
		}
	}

	return nil, errors.New("master key not available (set SKILLSD_MASTER_KEY or create ~/.config/skillsd/master.key)")
}

// verifyKeyFilePermissions checks that a key file is not group or world
// readable.
func verifyKeyFilePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}

	if info.Mode()&os.ModeSymlink != 0 {
		return errors.New("key file is a symlink")
	}

	perm := info.Mode().Perm()
	if perm&0077 != 0 {
		return fmt.Errorf("key file permissions too open (got %o, want 0600)", perm)
	}

	return nil
}

// zeroBytes overwrites a byte slice with zeros.
func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
