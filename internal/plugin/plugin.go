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

// Package plugin defines the daemon's plugin contract and the registry
// that sequences plugin lifecycles.
//
// A plugin owns one or more connectors and exposes them to the daemon
// through a uniform lifecycle: Startup connects, Shutdown disconnects,
// HealthCheck reports the connector-derived health used by the daemon's
// health endpoint. Bulk lifecycle operations are dispatched concurrently
// with per-plugin fault isolation so one broken plugin never blocks its
// siblings.
package plugin

import (
	"context"
	"net/http"

	"github.com/skillsd/skillsd/internal/breaker"
	"github.com/skillsd/skillsd/internal/connector"
)

// Plugin is the contract every daemon plugin satisfies.
type Plugin interface {
	// Name returns the unique plugin identifier.
	Name() string

	// Version returns the plugin version string.
	Version() string

	// Startup prepares the plugin for use, typically by connecting its
	// connector. Called once during daemon start and again after a
	// plugin reload.
	Startup(ctx context.Context) error

	// Shutdown releases the plugin's resources, typically by
	// disconnecting its connector. Safe to call on a plugin whose
	// Startup failed.
	Shutdown(ctx context.Context) error

	// HealthCheck reports the plugin's current health. It must never
	// block on the downstream service; health is derived from local
	// connector state.
	HealthCheck(ctx context.Context) Health

	// Router returns the plugin's HTTP routes, mounted by the daemon
	// under /{name}/. Returns nil when the plugin exposes no routes.
	Router() http.Handler
}

// Health status values.
const (
	// StatusHealthy means the plugin is connected and its circuit is
	// not open.
	StatusHealthy = "healthy"

	// StatusDegraded means the plugin is connected but its circuit
	// breaker is open or probing.
	StatusDegraded = "degraded"

	// StatusUnavailable means the plugin has no established connection.
	StatusUnavailable = "unavailable"
)

// Health is a plugin health snapshot, serialized into the daemon's
// health endpoint per plugin.
type Health struct {
	Status       string `json:"status"`
	Connected    bool   `json:"connected"`
	CircuitState string `json:"circuit_state"`
	FailureCount int    `json:"failure_count"`
	Error        string `json:"error,omitempty"`
}

// HealthFromConnector derives a plugin health snapshot from connector
// state. Plugins that wrap a single connector use this directly.
func HealthFromConnector(c connector.Connector) Health {
	status := c.Status()

	h := Health{
		Connected:    status.Connected,
		CircuitState: c.CircuitState(),
	}
	if br := c.Breaker(); br != nil {
		h.FailureCount = br.FailureCount()
	}

	switch {
	case !status.Connected:
		h.Status = StatusUnavailable
	case h.CircuitState == breaker.StateClosed.String() && h.FailureCount == 0:
		h.Status = StatusHealthy
	default:
		h.Status = StatusDegraded
	}

	return h
}

// Info is plugin metadata for listings.
type Info struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}
