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
	"fmt"
	"os"
	"strings"
)

// EnvProvider resolves secrets from environment variables.
//
// An optional allowlist restricts which variables can be read. Patterns
// support exact match plus a single leading or trailing wildcard
// ("JIRA_*", "*_TOKEN"). An empty allowlist permits all variables.
type EnvProvider struct {
	allowlist []string
}

// NewEnvProvider creates an environment variable secret provider.
func NewEnvProvider(allowlist []string) *EnvProvider {
	return &EnvProvider{allowlist: allowlist}
}

// Scheme returns "env".
func (e *EnvProvider) Scheme() string {
	return "env"
}

// Resolve retrieves a secret value from an environment variable.
func (e *EnvProvider) Resolve(ctx context.Context, key string) (string, error) {
	if len(e.allowlist) > 0 && !e.isAllowed(key) {
		return "", fmt.Errorf("%w: %q not in allowlist", ErrAccessDenied, key)
	}

	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return "", fmt.Errorf("%w: environment variable %q not set", ErrNotFound, key)
	}

	return value, nil
}

func (e *EnvProvider) isAllowed(name string) bool {
	for _, pattern := range e.allowlist {
		if matchesPattern(name, pattern) {
			return true
		}
	}
	return false
}

// matchesPattern performs simple glob matching with a single wildcard at
// either end of the pattern.
func matchesPattern(value, pattern string) bool {
	if pattern == "" {
		return false
	}
	if pattern == value {
		return true
	}

	if strings.HasSuffix(pattern, "*") {
		return strings.HasPrefix(value, pattern[:len(pattern)-1])
	}
	if strings.HasPrefix(pattern, "*") {
		return strings.HasSuffix(value, pattern[1:])
	}

	return false
}
