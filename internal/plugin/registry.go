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

package plugin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"

	"github.com/skillsd/skillsd/internal/log"
	"github.com/skillsd/skillsd/internal/tracing"
)

var (
	// ErrAlreadyRegistered is returned when registering a plugin whose
	// name is taken. The existing plugin is kept.
	ErrAlreadyRegistered = errors.New("plugin already registered")

	// ErrNotFound is returned when looking up an unregistered plugin.
	ErrNotFound = errors.New("plugin not found")
)

// Registry owns the daemon's plugins and sequences their lifecycle.
// All methods are safe for concurrent use.
type Registry struct {
	logger *slog.Logger

	mu      sync.RWMutex
	plugins map[string]Plugin

	// store, when set, receives startup/shutdown outcomes so the next
	// daemon start knows which plugins were running.
	store *Store
}

// NewRegistry creates an empty plugin registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}

	return &Registry{
		logger:  logger.With("component", "plugins"),
		plugins: make(map[string]Plugin),
	}
}

// BindState attaches a state store that records lifecycle outcomes.
func (r *Registry) BindState(store *Store) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.store = store
}

// Register adds a plugin. The first registration for a name wins;
// duplicates return ErrAlreadyRegistered and leave the original in place.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := p.Name()
	if _, exists := r.plugins[name]; exists {
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, name)
	}

	r.plugins[name] = p
	r.logger.Debug("plugin registered",
		log.String(log.PluginKey, name),
		log.String("version", p.Version()))

	return nil
}

// Unregister removes and returns the named plugin, or nil if it was not
// registered. The plugin is not shut down; reload paths shut it down
// first.
func (r *Registry) Unregister(name string) Plugin {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, exists := r.plugins[name]
	if !exists {
		return nil
	}

	delete(r.plugins, name)
	if r.store != nil {
		r.store.Remove(name)
	}

	return p
}

// Get retrieves a plugin by name, returning ErrNotFound when absent.
func (r *Registry) Get(name string) (Plugin, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, exists := r.plugins[name]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}

	return p, nil
}

// GetOptional retrieves a plugin by name without an error, for callers
// that treat absence as a normal condition.
func (r *Registry) GetOptional(name string) (Plugin, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, exists := r.plugins[name]
	return p, exists
}

// Startup runs one plugin's startup hook. Outcomes are recorded in the
// state store and metrics; hook panics are recovered and returned as
// errors.
func (r *Registry) Startup(ctx context.Context, name string) error {
	p, err := r.Get(name)
	if err != nil {
		return err
	}

	return r.startupOne(ctx, p)
}

// StartupAll starts every registered plugin concurrently. Failures are
// logged and recorded as false in the result map; siblings always
// proceed. The map holds an entry for every registered plugin.
func (r *Registry) StartupAll(ctx context.Context) map[string]bool {
	results := r.fanOut(ctx, func(ctx context.Context, p Plugin) error {
		return r.startupOne(ctx, p)
	})

	r.logger.Info("plugin startup complete",
		log.Int("started", countTrue(results)),
		log.Int("failed", len(results)-countTrue(results)))

	return results
}

// Shutdown runs one plugin's shutdown hook.
func (r *Registry) Shutdown(ctx context.Context, name string) error {
	p, err := r.Get(name)
	if err != nil {
		return err
	}

	return r.shutdownOne(ctx, p)
}

// ShutdownAll stops every registered plugin concurrently with the same
// fault isolation as StartupAll.
func (r *Registry) ShutdownAll(ctx context.Context) map[string]bool {
	results := r.fanOut(ctx, func(ctx context.Context, p Plugin) error {
		return r.shutdownOne(ctx, p)
	})

	r.logger.Info("plugin shutdown complete",
		log.Int("stopped", countTrue(results)),
		log.Int("failed", len(results)-countTrue(results)))

	return results
}

// HealthCheck returns the named plugin's health snapshot.
func (r *Registry) HealthCheck(ctx context.Context, name string) (Health, error) {
	p, err := r.Get(name)
	if err != nil {
		return Health{}, err
	}

	return p.HealthCheck(ctx), nil
}

// HealthAll returns every plugin's health snapshot, keyed by name.
func (r *Registry) HealthAll(ctx context.Context) map[string]Health {
	health := make(map[string]Health)
	for _, p := range r.snapshot() {
		health[p.Name()] = p.HealthCheck(ctx)
	}

	return health
}

// ListPlugins returns metadata for every registered plugin, sorted by
// name.
func (r *Registry) ListPlugins() []Info {
	plugins := r.snapshot()

	infos := make([]Info, 0, len(plugins))
	for _, p := range plugins {
		infos = append(infos, Info{Name: p.Name(), Version: p.Version()})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })

	return infos
}

// Names returns the sorted names of all registered plugins.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.plugins))
	for name := range r.plugins {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}

// Routers returns the HTTP routers of plugins that expose one, keyed by
// plugin name. The daemon mounts each under /{name}/.
func (r *Registry) Routers() map[string]http.Handler {
	routers := make(map[string]http.Handler)
	for _, p := range r.snapshot() {
		if router := p.Router(); router != nil {
			routers[p.Name()] = router
		}
	}

	return routers
}

// Clear removes every plugin and returns the sorted names that were
// removed. Plugins are not shut down; reload paths run ShutdownAll
// first.
func (r *Registry) Clear() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.plugins))
	for name := range r.plugins {
		names = append(names, name)
	}
	sort.Strings(names)

	r.plugins = make(map[string]Plugin)
	return names
}

func (r *Registry) startupOne(ctx context.Context, p Plugin) error {
	name := p.Name()

	ctx, span := tracing.PluginStartup(ctx, name)

	err := runHook(ctx, "startup", p.Startup)
	if err != nil {
		recordStartup(name, false)
		r.logger.Error("plugin startup failed",
			log.String(log.PluginKey, name),
			log.Error(err))
		if store := r.stateStore(); store != nil {
			store.MarkFailed(name, err.Error())
		}
		tracing.End(span, err)
		return err
	}

	recordStartup(name, true)
	r.logger.Info("plugin started", log.String(log.PluginKey, name))
	if store := r.stateStore(); store != nil {
		store.MarkStarted(name)
	}
	tracing.End(span, nil)

	return nil
}

func (r *Registry) shutdownOne(ctx context.Context, p Plugin) error {
	name := p.Name()

	err := runHook(ctx, "shutdown", p.Shutdown)
	if store := r.stateStore(); store != nil {
		store.MarkStopped(name)
	}
	if err != nil {
		r.logger.Error("plugin shutdown failed",
			log.String(log.PluginKey, name),
			log.Error(err))
		return err
	}

	r.logger.Info("plugin stopped", log.String(log.PluginKey, name))
	return nil
}

// fanOut runs hook against every plugin in parallel and reports per-
// plugin success. One plugin's failure or panic never blocks siblings.
func (r *Registry) fanOut(ctx context.Context, hook func(context.Context, Plugin) error) map[string]bool {
	plugins := r.snapshot()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results = make(map[string]bool, len(plugins))
	)

	for _, p := range plugins {
		wg.Add(1)
		go func(p Plugin) {
			defer wg.Done()

			err := hook(ctx, p)

			mu.Lock()
			results[p.Name()] = err == nil
			mu.Unlock()
		}(p)
	}

	wg.Wait()
	return results
}

func (r *Registry) snapshot() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	plugins := make([]Plugin, 0, len(r.plugins))
	for _, p := range r.plugins {
		plugins = append(plugins, p)
	}

	return plugins
}

func (r *Registry) stateStore() *Store {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.store
}

// runHook invokes a lifecycle hook with panic recovery so a broken
// plugin degrades to an error instead of taking the daemon down.
func runHook(ctx context.Context, kind string, hook func(context.Context) error) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("plugin %s hook panicked: %v", kind, rec)
		}
	}()

	return hook(ctx)
}

func countTrue(results map[string]bool) int {
	n := 0
	for _, ok := range results {
		if ok {
			n++
		}
	}
	return n
}
