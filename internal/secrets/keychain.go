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
	"errors"
	"fmt"
	"strings"

	"github.com/zalando/go-keyring"
)

// DefaultKeychainService is the keychain service name used for all entries.
const DefaultKeychainService = "skillsd"

// KeychainProvider resolves secrets from the system keychain.
//
// Supported platforms:
//   - macOS: Keychain Access
//   - Linux: Secret Service API (GNOME Keyring, KWallet)
//   - Windows: Credential Manager
type KeychainProvider struct {
	service   string
	available bool
}

// NewKeychainProvider creates a keychain secret provider. An empty service
// name selects DefaultKeychainService.
func NewKeychainProvider(service string) *KeychainProvider {
	if service == "" {
		service = DefaultKeychainService
	}

	provider := &KeychainProvider{
		service:   service,
		available: true,
	}

	// Probe the keychain once at construction so an unlocked, reachable
	// keyring is a precondition for resolution rather than a per-call
	// surprise.
	_, err := keyring.Get(service, "__skillsd_availability_probe__")
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		provider.available = false
	}

	return provider
}

// Scheme returns "keychain".
func (k *KeychainProvider) Scheme() string {
	return "keychain"
}

// Available reports whether the system keychain is usable.
func (k *KeychainProvider) Available() bool {
	return k.available
}

// Resolve retrieves a secret value from the system keychain.
func (k *KeychainProvider) Resolve(ctx context.Context, key string) (string, error) {
	if !k.available {
		return "", fmt.Errorf("%w: system keychain unavailable or locked", ErrUnavailable)
	}

	value, err := keyring.Get(k.service, key)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", fmt.Errorf("%w: keychain entry %q", ErrNotFound, key)
		}

		if isKeychainLockedError(err) {
			return "", fmt.Errorf("%w: keychain is locked or inaccessible", ErrAccessDenied)
		}

		return "", fmt.Errorf("keychain access error: %w", err)
	}

	return value, nil
}

// Set stores a secret in the system keychain.
func (k *KeychainProvider) Set(ctx context.Context, key, value string) error {
	if !k.available {
		return fmt.Errorf("%w: system keychain unavailable or locked", ErrUnavailable)
	}

	if err := keyring.Set(k.service, key, value); err != nil {
		return fmt.Errorf("keychain write error: %w", err)
	}

	return nil
}

// Delete removes a secret from the system keychain.
func (k *KeychainProvider) Delete(ctx context.Context, key string) error {
	if !k.available {
		return fmt.Errorf("%w: system keychain unavailable or locked", ErrUnavailable)
	}

	if err := keyring.Delete(k.service, key); err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return fmt.Errorf("%w: keychain entry %q", ErrNotFound, key)
		}
		return fmt.Errorf("keychain delete error: %w", err)
	}

	return nil
}

// isKeychainLockedError detects locked or permission errors from the
// platform keyring, which surface as plain strings.
func isKeychainLockedError(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, keyword := range []string{"locked", "permission denied", "access denied", "not authorized"} {
		if strings.Contains(msg, keyword) {
			return true
		}
	}
	return false
}
