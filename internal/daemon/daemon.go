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

// Package daemon composes the skillsd process: plugins and their
// connectors, the idle monitor, operation history, tracing, and the
// HTTP control plane, all built from one Config.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/skillsd/skillsd/internal/breaker"
	"github.com/skillsd/skillsd/internal/config"
	"github.com/skillsd/skillsd/internal/connector"
	"github.com/skillsd/skillsd/internal/daemon/api"
	"github.com/skillsd/skillsd/internal/history"
	"github.com/skillsd/skillsd/internal/idle"
	"github.com/skillsd/skillsd/internal/lifecycle"
	"github.com/skillsd/skillsd/internal/log"
	"github.com/skillsd/skillsd/internal/plugin"
	"github.com/skillsd/skillsd/internal/plugin/confluence"
	"github.com/skillsd/skillsd/internal/plugin/jira"
	"github.com/skillsd/skillsd/internal/secrets"
	"github.com/skillsd/skillsd/internal/tracing"
)

// bundledPlugins are the plugin names the daemon knows how to build.
// Routes for every bundled plugin are mounted up front; an unconfigured
// name answers 404 until a reload brings it in.
var bundledPlugins = []string{"jira", "confluence"}

// Options carries build metadata and the config file location into the
// daemon.
type Options struct {
	Version   string
	Commit    string
	BuildDate string

	// ConfigPath is the file the configuration was loaded from. Plugin
	// reloads re-read it and the config watcher watches it. Empty means
	// the daemon runs on defaults and environment only, and reloads are
	// limited to re-resolving the same empty path.
	ConfigPath string
}

// Daemon is a running skillsd instance.
type Daemon struct {
	cfg    *config.Config
	opts   Options
	logger *slog.Logger

	pidFile     *lifecycle.PIDFile
	signals     *lifecycle.SignalHandler
	connectors  *connector.Registry
	plugins     *plugin.Registry
	pluginState *plugin.Store
	idle        *idle.Monitor
	history     *history.Store
	tracer      *tracing.Provider
	watcher     *plugin.Watcher

	// reloadMu makes plugin reloads single-flight.
	reloadMu sync.Mutex

	mu      sync.Mutex
	server  *http.Server
	ln      net.Listener
	started bool

	// ownsPID is true only between a successful pidFile.Create and the
	// matching Remove. A Start that lost the single-instance race must
	// never delete the winning daemon's PID file on its way out.
	ownsPID bool
}

// New wires a daemon from configuration. Optional components degrade
// rather than fail: a history store, tracing provider, or config
// watcher that cannot be built is logged and skipped. A broken plugin
// definition fails construction.
func New(cfg *config.Config, opts Options) (*Daemon, error) {
	base := slog.Default()

	d := &Daemon{
		cfg:        cfg,
		opts:       opts,
		logger:     log.WithComponent(base, "daemon"),
		pidFile:    lifecycle.NewPIDFile(cfg.Daemon.PIDFilePath()),
		signals:    lifecycle.NewSignalHandler(base),
		connectors: connector.NewRegistry(),
	}

	// Lifecycle outcomes survive restarts for status reporting.
	d.pluginState = plugin.NewStore(cfg.PluginStatePath())
	d.plugins = plugin.NewRegistry(base)
	d.plugins.BindState(d.pluginState)

	bundles, err := buildPluginSet(cfg, base)
	if err != nil {
		return nil, err
	}
	if err := d.registerPlugins(bundles); err != nil {
		return nil, err
	}

	if cfg.Idle.Enabled {
		d.idle = idle.New(idle.Config{
			Timeout:       cfg.Idle.Timeout,
			CheckInterval: cfg.Idle.CheckInterval,
			OnIdle: func() {
				d.logger.Info("idle timeout reached, shutting down",
					slog.Duration("timeout", cfg.Idle.Timeout))
				d.signals.TriggerShutdown()
			},
		}, base)

		// A shutdown trigger from any source freezes idle accounting
		// right away; the monitor's own Stop is a no-op by then.
		d.signals.Register(d.idle.Stop)
	}

	if cfg.History.Enabled {
		store, err := history.New(cfg.HistoryPath())
		if err != nil {
			d.logger.Warn("failed to open history store, operation history disabled",
				log.String("path", cfg.HistoryPath()), log.Error(err))
		} else {
			d.history = store
		}
	}

	tracer, err := tracing.New(context.Background(), tracingConfig(cfg.Tracing, opts.Version))
	if err != nil {
		d.logger.Warn("failed to initialize tracing", log.Error(err))
	} else {
		d.tracer = tracer
	}

	if opts.ConfigPath != "" {
		w, err := plugin.NewWatcher(plugin.WatcherConfig{
			Path: opts.ConfigPath,
			OnChange: func() {
				d.logger.Info("config file changed, reloading plugins")
				if _, err := d.ReloadPlugins(context.Background()); err != nil && !errors.Is(err, api.ErrReloadInProgress) {
					d.logger.Error("plugin reload failed", log.Error(err))
				}
			},
		}, base)
		if err != nil {
			d.logger.Warn("failed to watch config file",
				log.String("path", opts.ConfigPath), log.Error(err))
		} else {
			d.watcher = w
		}
	}

	return d, nil
}

// Start claims the PID file, connects the plugins and serves the HTTP
// API. It blocks until ctx is cancelled or the server fails. Cleanup is
// Shutdown's job, also after a failed Start.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.started {
		d.mu.Unlock()
		return errors.New("daemon already started")
	}
	d.started = true
	d.mu.Unlock()

	// Single-instance lock. Losing it means another daemon is alive and
	// its PID file is not ours to touch.
	if err := d.pidFile.Create(); err != nil {
		d.mu.Lock()
		d.started = false
		d.mu.Unlock()
		return fmt.Errorf("failed to create PID file: %w", err)
	}
	d.mu.Lock()
	d.ownsPID = true
	d.mu.Unlock()

	// Connect plugins. A failed startup leaves the plugin registered
	// and unhealthy; the health endpoint reports it.
	d.plugins.StartupAll(ctx)
	if err := d.pluginState.Save(); err != nil {
		d.logger.Warn("failed to save plugin state", log.Error(err))
	}

	if d.idle != nil {
		d.idle.Start()
	}
	if d.watcher != nil {
		if err := d.watcher.Start(); err != nil {
			d.logger.Warn("failed to start config watcher", log.Error(err))
		}
	}
	if d.history != nil && d.cfg.History.Retention > 0 {
		go d.pruneHistory(ctx)
	}

	ln, err := net.Listen("tcp", d.cfg.Daemon.Listen)
	if err != nil {
		d.mu.Lock()
		d.pidFile.Remove()
		d.ownsPID = false
		d.mu.Unlock()
		return fmt.Errorf("failed to listen on %s: %w", d.cfg.Daemon.Listen, err)
	}

	srv := &http.Server{
		Handler:      d.buildRouter(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	d.mu.Lock()
	d.server = srv
	d.ln = ln
	d.mu.Unlock()

	d.logger.Info("skillsd started",
		log.String("version", d.opts.Version),
		log.String("listen_addr", ln.Addr().String()),
		log.Int("plugins", len(d.plugins.Names())))

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

// Shutdown stops the daemon: drains HTTP connections, disconnects
// plugins, stops the idle monitor, closes the history store, flushes
// tracing and releases the PID file. Safe to call more than once and
// after a failed Start.
func (d *Daemon) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.started {
		return nil
	}

	d.logger.Info("graceful shutdown initiated")

	if d.watcher != nil {
		d.watcher.Stop()
	}

	if d.server != nil {
		d.server.SetKeepAlivesEnabled(false)

		drainCtx, cancel := context.WithTimeout(ctx, d.cfg.Daemon.ShutdownTimeout)
		defer cancel()
		if err := d.server.Shutdown(drainCtx); err != nil {
			d.logger.Error("HTTP server shutdown error", log.Error(err))
		}
		d.server = nil
		d.ln = nil
	}

	d.plugins.ShutdownAll(ctx)
	d.pluginState.MarkAllStopped()
	if err := d.pluginState.Save(); err != nil {
		d.logger.Warn("failed to save plugin state", log.Error(err))
	}

	if d.idle != nil {
		d.idle.Stop()
	}

	if d.history != nil {
		if err := d.history.Close(); err != nil {
			d.logger.Error("failed to close history store", log.Error(err))
		}
	}

	if d.tracer != nil {
		flushCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := d.tracer.Shutdown(flushCtx); err != nil {
			d.logger.Error("tracing shutdown error", log.Error(err))
		}
	}

	if d.ownsPID {
		d.pidFile.Remove()
		d.ownsPID = false
	}

	d.started = false
	d.logger.Info("daemon stopped")
	return nil
}

// buildRouter wires the HTTP API to the daemon's components.
func (d *Daemon) buildRouter() *api.Router {
	router := api.NewRouter(api.RouterConfig{
		Version:   d.opts.Version,
		Commit:    d.opts.Commit,
		BuildDate: d.opts.BuildDate,
	}, slog.Default())

	router.SetPluginService(d.plugins)
	router.SetConnectorStatusProvider(d.connectors)
	router.SetShutdownTrigger(d.signals)
	router.SetPluginReloader(d)
	router.SetPolicy(&d.cfg.Permissions)
	router.SetMetricsHandler(promhttp.Handler())

	if d.idle != nil {
		router.SetIdleStatusProvider(d.idle)
		router.SetActivityRecorder(d.idle)
	}
	if d.history != nil {
		router.SetHistoryStore(d.history)
	}
	if d.cfg.RateLimit.RequestsPerSecond > 0 {
		router.SetRateLimit(d.cfg.RateLimit.RequestsPerSecond, d.cfg.RateLimit.Burst)
	}

	// Mounts resolve the live plugin per request so a reload swaps
	// instances without touching the mux.
	for _, name := range bundledPlugins {
		router.MountPlugin(name, d.pluginRouter(name))
	}

	return router
}

// pluginRouter serves the named plugin's routes, looked up at request
// time. Unconfigured plugins and plugins without routes answer 404.
func (d *Daemon) pluginRouter(name string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := d.plugins.GetOptional(name)
		if !ok {
			http.NotFound(w, r)
			return
		}
		h := p.Router()
		if h == nil {
			http.NotFound(w, r)
			return
		}
		h.ServeHTTP(w, r)
	})
}

// pruneHistory applies the retention window once at startup.
func (d *Daemon) pruneHistory(ctx context.Context) {
	pruneCtx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	removed, err := d.history.Prune(pruneCtx, d.cfg.History.Retention)
	if err != nil {
		d.logger.Warn("history prune failed", log.Error(err))
		return
	}
	if removed > 0 {
		d.logger.Info("history pruned",
			log.Int64("removed", removed),
			slog.Duration("retention", d.cfg.History.Retention))
	}
}

// pluginBundle pairs a constructed plugin with its connector for
// registry wiring.
type pluginBundle struct {
	plugin plugin.Plugin
	conn   connector.Connector
}

// buildPluginSet constructs every enabled plugin from the config. It
// performs no I/O; connections are made by StartupAll.
func buildPluginSet(cfg *config.Config, logger *slog.Logger) ([]pluginBundle, error) {
	seen := make(map[string]bool, len(cfg.Plugins))
	bundles := make([]pluginBundle, 0, len(cfg.Plugins))

	for _, pc := range cfg.Plugins {
		if pc.Disabled {
			logger.Info("plugin disabled in config", log.String(log.PluginKey, pc.Name))
			continue
		}
		if seen[pc.Name] {
			return nil, fmt.Errorf("plugin %q configured twice", pc.Name)
		}
		seen[pc.Name] = true

		cc, ok := cfg.Connectors[pc.ConnectorName()]
		if !ok {
			return nil, fmt.Errorf("plugin %q: no connectors entry named %q", pc.Name, pc.ConnectorName())
		}

		b, err := buildPlugin(pc.Name, cc, logger)
		if err != nil {
			return nil, fmt.Errorf("plugin %q: %w", pc.Name, err)
		}
		bundles = append(bundles, b)
	}

	return bundles, nil
}

// buildPlugin constructs one bundled plugin from its connector settings.
func buildPlugin(name string, cc config.ConnectorConfig, logger *slog.Logger) (pluginBundle, error) {
	brk := breaker.Config{
		FailureThreshold: cc.Breaker.FailureThreshold,
		ResetTimeout:     cc.Breaker.ResetTimeout,
	}

	switch name {
	case "jira":
		p, err := jira.New(jira.Config{
			BaseURL:           cc.BaseURL,
			Email:             cc.Auth.Username,
			APIToken:          cc.Auth.Password,
			RequestsPerSecond: cc.RateLimit.RequestsPerSecond,
			Burst:             cc.RateLimit.Burst,
			Timeout:           cc.Timeout,
			Headers:           cc.Headers,
			Breaker:           brk,
		}, logger)
		if err != nil {
			return pluginBundle{}, err
		}
		return pluginBundle{plugin: p, conn: p.Connector()}, nil

	case "confluence":
		p, err := confluence.New(confluence.Config{
			BaseURL:           cc.BaseURL,
			APIToken:          cc.Auth.Token,
			RequestsPerSecond: cc.RateLimit.RequestsPerSecond,
			Burst:             cc.RateLimit.Burst,
			Timeout:           cc.Timeout,
			Headers:           cc.Headers,
			Breaker:           brk,
		}, logger)
		if err != nil {
			return pluginBundle{}, err
		}
		return pluginBundle{plugin: p, conn: p.Connector()}, nil

	default:
		return pluginBundle{}, fmt.Errorf("unknown plugin %q (bundled plugins: %s)",
			name, strings.Join(bundledPlugins, ", "))
	}
}

// registerPlugins installs a built set into the plugin and connector
// registries.
func (d *Daemon) registerPlugins(bundles []pluginBundle) error {
	for _, b := range bundles {
		if err := d.plugins.Register(b.plugin); err != nil {
			return fmt.Errorf("register plugin %q: %w", b.plugin.Name(), err)
		}
		if err := d.connectors.Register(b.conn); err != nil {
			return fmt.Errorf("register connector %q: %w", b.conn.Name(), err)
		}
	}
	return nil
}

// newSecretsRegistry assembles the secret resolvers used for connector
// credentials: process environment, OS keychain and the encrypted file
// store.
func newSecretsRegistry(logger *slog.Logger) *secrets.Registry {
	reg := secrets.NewRegistry()

	providers := []secrets.Provider{
		secrets.NewEnvProvider(nil),
		secrets.NewKeychainProvider(""),
	}

	if store, err := secrets.NewEncryptedStore("", ""); err != nil {
		logger.Warn("encrypted secret store unavailable", log.Error(err))
	} else {
		providers = append(providers, store)
	}

	for _, p := range providers {
		if err := reg.Register(p); err != nil {
			logger.Warn("failed to register secret provider",
				log.String("scheme", p.Scheme()), log.Error(err))
		}
	}

	return reg
}

// tracingConfig converts the config section into the tracing package's
// settings, defaulting the reported service version to the build
// version.
func tracingConfig(tc config.TracingConfig, version string) tracing.Config {
	cfg := tracing.Config{
		Enabled:        tc.Enabled,
		ServiceName:    tc.ServiceName,
		ServiceVersion: tc.ServiceVersion,
		SampleRate:     tc.SampleRate,
		Endpoint:       tc.Endpoint,
		Insecure:       tc.Insecure,
		Headers:        tc.Headers,
	}
	if cfg.ServiceVersion == "" {
		cfg.ServiceVersion = version
	}
	return cfg
}
