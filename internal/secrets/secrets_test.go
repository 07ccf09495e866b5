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
	"testing"
)

// fakeProvider is a scripted provider for registry tests.
type fakeProvider struct {
	scheme string
	values map[string]string
	err    error
}

func (f *fakeProvider) Scheme() string { return f.scheme }

func (f *fakeProvider) Resolve(ctx context.Context, key string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	v, ok := f.values[key]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return v, nil
}

func TestParseReference(t *testing.T) {
	tests := []struct {
		name       string
		reference  string
		wantScheme string
		wantKey    string
		wantErr    bool
	}{
		{"scheme reference", "env:API_TOKEN", "env", "API_TOKEN", false},
		{"keychain reference", "keychain:jira-token", "keychain", "jira-token", false},
		{"store reference", "store:confluence-token", "store", "confluence-token", false},
		{"legacy env syntax", "${API_TOKEN}", "env", "API_TOKEN", false},
		{"plain value", "just-a-string", "", "just-a-string", false},
		{"plain value with spaces", "hello world", "", "hello world", false},
		{"empty reference", "", "", "", false},
		{"whitespace key", "env:   ", "", "", true},
		{"uppercase scheme is plain", "ENV:FOO", "", "ENV:FOO", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scheme, key, err := parseReference(tt.reference)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseReference() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if scheme != tt.wantScheme || key != tt.wantKey {
				t.Errorf("parseReference() = (%q, %q), want (%q, %q)", scheme, key, tt.wantScheme, tt.wantKey)
			}
		})
	}
}

func TestRegistry_Resolve(t *testing.T) {
	registry := NewRegistry()
	if err := registry.Register(&fakeProvider{
		scheme: "env",
		values: map[string]string{"API_TOKEN": "tok-123"},
	}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	ctx := context.Background()

	t.Run("resolves scheme reference", func(t *testing.T) {
		got, err := registry.Resolve(ctx, "env:API_TOKEN")
		if err != nil {
			t.Fatalf("Resolve() error = %v", err)
		}
		if got != "tok-123" {
			t.Errorf("Resolve() = %q, want tok-123", got)
		}
	})

	t.Run("resolves legacy syntax", func(t *testing.T) {
		got, err := registry.Resolve(ctx, "${API_TOKEN}")
		if err != nil {
			t.Fatalf("Resolve() error = %v", err)
		}
		if got != "tok-123" {
			t.Errorf("Resolve() = %q, want tok-123", got)
		}
	})

	t.Run("plain value passes through", func(t *testing.T) {
		got, err := registry.Resolve(ctx, "plain-value")
		if err != nil {
			t.Fatalf("Resolve() error = %v", err)
		}
		if got != "plain-value" {
			t.Errorf("Resolve() = %q, want plain-value", got)
		}
	})

	t.Run("unknown scheme fails", func(t *testing.T) {
		_, err := registry.Resolve(ctx, "vault:some/path")
		if err == nil {
			t.Fatal("Resolve() error = nil, want error")
		}

		var resErr *ResolutionError
		if !errors.As(err, &resErr) {
			t.Fatalf("error type = %T, want *ResolutionError", err)
		}
		if resErr.Scheme != "vault" {
			t.Errorf("error scheme = %q, want vault", resErr.Scheme)
		}
	})

	t.Run("provider failure is wrapped without leaking", func(t *testing.T) {
		_, err := registry.Resolve(ctx, "env:MISSING")
		if err == nil {
			t.Fatal("Resolve() error = nil, want error")
		}
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("error chain missing ErrNotFound: %v", err)
		}
		if strings.Contains(err.Error(), "tok-123") {
			t.Error("error message leaked a secret value")
		}
	})
}

func TestRegistry_RegisterDuplicate(t *testing.T) {
	registry := NewRegistry()
	if err := registry.Register(&fakeProvider{scheme: "env"}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if err := registry.Register(&fakeProvider{scheme: "env"}); err == nil {
		t.Error("Register() duplicate scheme error = nil, want error")
	}
}

func TestRegistry_ResolveMap(t *testing.T) {
	registry := NewRegistry()
	registry.Register(&fakeProvider{
		scheme: "env",
		values: map[string]string{"TOKEN": "secret-token"},
	})

	ctx := context.Background()

	t.Run("mixed references and literals", func(t *testing.T) {
		resolved, err := registry.ResolveMap(ctx, map[string]string{
			"token":    "env:TOKEN",
			"username": "svc-account",
		})
		if err != nil {
			t.Fatalf("ResolveMap() error = %v", err)
		}
		if resolved["token"] != "secret-token" {
			t.Errorf("token = %q, want secret-token", resolved["token"])
		}
		if resolved["username"] != "svc-account" {
			t.Errorf("username = %q, want svc-account", resolved["username"])
		}
	})

	t.Run("failure names the config key not the value", func(t *testing.T) {
		_, err := registry.ResolveMap(ctx, map[string]string{
			"token": "env:DOES_NOT_EXIST",
		})
		if err == nil {
			t.Fatal("ResolveMap() error = nil, want error")
		}
		if !strings.Contains(err.Error(), `"token"`) {
			t.Errorf("error should name the config key: %v", err)
		}
	})

	t.Run("nil map passes through", func(t *testing.T) {
		resolved, err := registry.ResolveMap(ctx, nil)
		if err != nil {
			t.Fatalf("ResolveMap() error = %v", err)
		}
		if resolved != nil {
			t.Errorf("ResolveMap(nil) = %v, want nil", resolved)
		}
	})
}

func TestIsReference(t *testing.T) {
	tests := []struct {
		value string
		want  bool
	}{
		{"env:API_TOKEN", true},
		{"keychain:jira-token", true},
		{"${API_TOKEN}", true},
		{"plain-value", false},
		{"", false},
		{"no scheme here", false},
	}

	for _, tt := range tests {
		if got := IsReference(tt.value); got != tt.want {
			t.Errorf("IsReference(%q) = %v, want %v", tt.value, got, tt.want)
		}
	}
}
