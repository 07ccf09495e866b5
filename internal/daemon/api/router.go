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

// Package api provides the HTTP API for the daemon.
package api

import (
	"context"
	"log/slog"
	"net/http"

	"golang.org/x/time/rate"

	"github.com/skillsd/skillsd/internal/connector"
	"github.com/skillsd/skillsd/internal/daemon/httputil"
	"github.com/skillsd/skillsd/internal/history"
	"github.com/skillsd/skillsd/internal/idle"
	"github.com/skillsd/skillsd/internal/log"
	"github.com/skillsd/skillsd/internal/permissions"
	"github.com/skillsd/skillsd/internal/plugin"
	"github.com/skillsd/skillsd/internal/tracing"
)

// RouterConfig holds configuration for the API router.
type RouterConfig struct {
	Version   string
	Commit    string
	BuildDate string
}

// PluginService exposes the plugin registry operations the API serves.
type PluginService interface {
	ListPlugins() []plugin.Info
	HealthAll(ctx context.Context) map[string]plugin.Health
	Get(name string) (plugin.Plugin, error)
}

// ConnectorStatusProvider provides connector registry status for the
// status endpoint.
type ConnectorStatusProvider interface {
	Status() connector.RegistryStatus
}

// IdleStatusProvider provides the idle monitor snapshot for the status
// endpoint.
type IdleStatusProvider interface {
	Status() idle.Status
}

// ActivityRecorder tracks daemon activity for idle timeout monitoring.
type ActivityRecorder interface {
	Touch()
}

// ShutdownTrigger requests a daemon shutdown.
type ShutdownTrigger interface {
	TriggerShutdown()
}

// PluginReloader reloads the plugin set from configuration. Returns
// ErrReloadInProgress when another reload is already running.
type PluginReloader interface {
	ReloadPlugins(ctx context.Context) (map[string]bool, error)
}

// HistoryStore records executed operations and lists recent ones.
type HistoryStore interface {
	Record(ctx context.Context, rec *history.Record) error
	List(ctx context.Context, filter history.Filter, limit int) ([]*history.Record, error)
}

// MetricsHandler provides a Prometheus metrics endpoint.
type MetricsHandler interface {
	ServeHTTP(w http.ResponseWriter, r *http.Request)
}

// Router wraps an http.ServeMux with the daemon's middleware chain.
type Router struct {
	mux      *http.ServeMux
	config   RouterConfig
	logger   *slog.Logger
	plugins  PluginService
	conns    ConnectorStatusProvider
	idle     IdleStatusProvider
	activity ActivityRecorder
	shutdown ShutdownTrigger
	reloader PluginReloader
	history  HistoryStore
	policy   *permissions.Policy
	limiter  *rate.Limiter
}

// NewRouter creates a new HTTP router with the core API endpoints. The
// optional providers are attached through the Set methods before the
// server starts.
func NewRouter(cfg RouterConfig, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}

	r := &Router{
		mux:    http.NewServeMux(),
		config: cfg,
		logger: log.WithComponent(logger, "api"),
	}

	r.mux.HandleFunc("GET /v1/health", r.handleHealth)
	r.mux.HandleFunc("GET /v1/version", r.handleVersion)
	r.mux.HandleFunc("GET /v1/status", r.handleStatus)
	r.mux.HandleFunc("POST /v1/shutdown", r.handleShutdown)
	r.mux.HandleFunc("POST /v1/reload-plugins", r.handleReload)
	r.mux.HandleFunc("GET /v1/history", r.handleHistory)
	r.mux.HandleFunc("POST /v1/plugins/{plugin}/execute", r.handleExecute)

	// Root endpoint for basic connectivity check
	r.mux.HandleFunc("GET /", r.handleRoot)

	return r
}

// SetPluginService sets the plugin registry provider.
func (r *Router) SetPluginService(svc PluginService) {
	r.plugins = svc
}

// SetConnectorStatusProvider sets the connector registry provider.
func (r *Router) SetConnectorStatusProvider(provider ConnectorStatusProvider) {
	r.conns = provider
}

// SetIdleStatusProvider sets the idle monitor provider.
func (r *Router) SetIdleStatusProvider(provider IdleStatusProvider) {
	r.idle = provider
}

// SetActivityRecorder sets the activity recorder for idle timeout
// tracking.
func (r *Router) SetActivityRecorder(recorder ActivityRecorder) {
	r.activity = recorder
}

// SetShutdownTrigger sets the handler behind POST /v1/shutdown.
func (r *Router) SetShutdownTrigger(trigger ShutdownTrigger) {
	r.shutdown = trigger
}

// SetPluginReloader sets the handler behind POST /v1/reload-plugins.
func (r *Router) SetPluginReloader(reloader PluginReloader) {
	r.reloader = reloader
}

// SetHistoryStore sets the operation history store.
func (r *Router) SetHistoryStore(store HistoryStore) {
	r.history = store
}

// SetPolicy sets the operation permission policy consulted by the
// execute endpoint. A nil policy allows everything.
func (r *Router) SetPolicy(policy *permissions.Policy) {
	r.policy = policy
}

// SetMetricsHandler sets the Prometheus metrics handler.
func (r *Router) SetMetricsHandler(handler MetricsHandler) {
	if handler != nil {
		r.mux.HandleFunc("GET /metrics", handler.ServeHTTP)
	}
}

// SetRateLimit enables the inbound token-bucket rate limit. Zero or
// negative rps leaves the limiter off.
func (r *Router) SetRateLimit(rps float64, burst int) {
	if rps <= 0 {
		return
	}
	if burst < 1 {
		burst = 1
	}
	r.limiter = rate.NewLimiter(rate.Limit(rps), burst)
}

// MountPlugin mounts a plugin router under /{name}/.
func (r *Router) MountPlugin(name string, handler http.Handler) {
	if handler == nil {
		return
	}
	r.mux.Handle("/"+name+"/", http.StripPrefix("/"+name, handler))
}

// ServeHTTP implements http.Handler.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	// Record activity for idle timeout tracking
	if r.activity != nil {
		r.activity.Touch()
	}

	// Build middleware chain from innermost to outermost: rate limit,
	// request logging, request ID, trace extraction.
	var handler http.Handler = r.mux
	handler = r.rateLimitMiddleware(handler)
	handler = r.loggingMiddleware(handler)
	handler = requestIDMiddleware(handler)
	handler = tracing.HTTPMiddleware(handler)

	handler.ServeHTTP(w, req)
}

// Mux returns the underlying ServeMux for registering additional routes.
func (r *Router) Mux() *http.ServeMux {
	return r.mux
}

// handleRoot handles GET / for basic connectivity.
func (r *Router) handleRoot(w http.ResponseWriter, req *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{
		"name":    "skillsd",
		"version": r.config.Version,
	})
}
