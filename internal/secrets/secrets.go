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

// Package secrets resolves credential references from plugin and connector
// configuration. References use a scheme prefix to select the provider:
//
//	env:JIRA_API_TOKEN     -> environment variable
//	keychain:jira-token    -> system keychain entry
//	store:confluence-token -> encrypted secret store
//	${JIRA_API_TOKEN}      -> environment variable (legacy syntax)
//
// Values without a scheme are treated as plain literals so configuration
// can mix secret references with ordinary strings.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	// ErrNotFound is returned when a secret key does not exist in the provider.
	ErrNotFound = errors.New("secret not found")

	// ErrUnavailable is returned when a provider cannot be used in the
	// current environment.
	ErrUnavailable = errors.New("secret provider unavailable")

	// ErrAccessDenied is returned when resolution is blocked by policy.
	ErrAccessDenied = errors.New("secret access denied")
)

// Provider resolves secret values for a single reference scheme.
type Provider interface {
	// Scheme returns the provider's URI scheme identifier (e.g., "env").
	Scheme() string

	// Resolve retrieves a secret by key. The key excludes the scheme
	// prefix. Returns an error wrapping ErrNotFound if not present.
	Resolve(ctx context.Context, key string) (string, error)
}

// ResolutionError wraps provider failures without leaking secret values.
// The reference (never the resolved value) is retained for diagnostics.
type ResolutionError struct {
	Reference string
	Scheme    string
	Message   string
	Cause     error
}

// Error implements the error interface.
func (e *ResolutionError) Error() string {
	if e.Scheme != "" {
		return fmt.Sprintf("secret %q (%s): %s", e.Reference, e.Scheme, e.Message)
	}
	return fmt.Sprintf("secret %q: %s", e.Reference, e.Message)
}

// Unwrap returns the underlying error.
func (e *ResolutionError) Unwrap() error {
	return e.Cause
}

var (
	// legacyEnvVarRegex matches ${VAR_NAME} syntax
	legacyEnvVarRegex = regexp.MustCompile(`^\$\{([A-Z_][A-Z0-9_]*)\}$`)

	// schemeRegex matches scheme:reference format
	schemeRegex = regexp.MustCompile(`^([a-z][a-z0-9]*):(.+)$`)
)

// Registry routes secret references to providers based on URI schemes.
type Registry struct {
	providers map[string]Provider
}

// NewRegistry creates an empty secret provider registry.
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]Provider),
	}
}

// Register adds a provider to the registry.
// Returns an error if a provider with the same scheme already exists.
func (r *Registry) Register(provider Provider) error {
	scheme := provider.Scheme()
	if _, exists := r.providers[scheme]; exists {
		return fmt.Errorf("provider for scheme %q already registered", scheme)
	}
	r.providers[scheme] = provider
	return nil
}

// Provider returns the provider for the given scheme, or nil if none is
// registered.
func (r *Registry) Provider(scheme string) Provider {
	return r.providers[scheme]
}

// Resolve routes a secret reference to the appropriate provider and
// returns the resolved value. Plain strings without a scheme pass
// through unchanged.
func (r *Registry) Resolve(ctx context.Context, reference string) (string, error) {
	scheme, key, err := parseReference(reference)
	if err != nil {
		return "", &ResolutionError{
			Reference: reference,
			Message:   "invalid secret reference syntax",
			Cause:     err,
		}
	}

	// Plain values are not secret references.
	if scheme == "" {
		return reference, nil
	}

	provider, exists := r.providers[scheme]
	if !exists {
		return "", &ResolutionError{
			Reference: reference,
			Scheme:    scheme,
			Message:   fmt.Sprintf("no provider registered for scheme %q", scheme),
			Cause:     ErrNotFound,
		}
	}

	value, err := provider.Resolve(ctx, key)
	if err != nil {
		// Keep the provider error as Cause for server-side logging; the
		// message itself stays generic so values and paths never leak.
		return "", &ResolutionError{
			Reference: reference,
			Scheme:    scheme,
			Message:   "secret resolution failed",
			Cause:     err,
		}
	}

	return value, nil
}

// ResolveMap resolves every value of the given map in place, returning a
// new map. Non-reference values pass through unchanged. Resolution stops
// at the first failure so misconfigured credentials surface immediately.
func (r *Registry) ResolveMap(ctx context.Context, values map[string]string) (map[string]string, error) {
	if values == nil {
		return nil, nil
	}

	resolved := make(map[string]string, len(values))
	for k, v := range values {
		rv, err := r.Resolve(ctx, v)
		if err != nil {
			return nil, fmt.Errorf("resolving %q: %w", k, err)
		}
		resolved[k] = rv
	}

	return resolved, nil
}

// IsReference reports whether a string looks like a secret reference
// rather than a plain value.
func IsReference(s string) bool {
	if legacyEnvVarRegex.MatchString(s) {
		return true
	}
	return schemeRegex.MatchString(s)
}

// parseReference extracts the scheme and key from a secret reference.
// An empty scheme means the reference is a plain value.
func parseReference(reference string) (scheme, key string, err error) {
	if reference == "" {
		return "", "", nil
	}

	if matches := legacyEnvVarRegex.FindStringSubmatch(reference); matches != nil {
		return "env", matches[1], nil
	}

	if matches := schemeRegex.FindStringSubmatch(reference); matches != nil {
		scheme := matches[1]
		key := matches[2]

		if strings.TrimSpace(key) == "" {
			return "", "", fmt.Errorf("empty key for scheme %q", scheme)
		}

		return scheme, key, nil
	}

	return "", reference, nil
}
