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
	"net/http"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"
)

// fakePlugin is a scripted plugin for registry tests.
type fakePlugin struct {
	name    string
	version string
	router  http.Handler

	failStartup  bool
	panicStartup bool
	failShutdown bool
	startupDelay time.Duration
	health       Health

	mu            sync.Mutex
	startupCalls  int
	shutdownCalls int
}

func (f *fakePlugin) Name() string    { return f.name }
func (f *fakePlugin) Version() string { return f.version }

func (f *fakePlugin) Startup(ctx context.Context) error {
	f.mu.Lock()
	f.startupCalls++
	f.mu.Unlock()

	if f.startupDelay > 0 {
		time.Sleep(f.startupDelay)
	}
	if f.panicStartup {
		panic("startup exploded")
	}
	if f.failStartup {
		return fmt.Errorf("%s refused to start", f.name)
	}
	return nil
}

func (f *fakePlugin) Shutdown(ctx context.Context) error {
	f.mu.Lock()
	f.shutdownCalls++
	f.mu.Unlock()

	if f.failShutdown {
		return fmt.Errorf("%s refused to stop", f.name)
	}
	return nil
}

func (f *fakePlugin) HealthCheck(ctx context.Context) Health {
	if f.health.Status == "" {
		return Health{Status: StatusHealthy, Connected: true, CircuitState: "CLOSED"}
	}
	return f.health
}

func (f *fakePlugin) Router() http.Handler { return f.router }

func (f *fakePlugin) calls() (startups, shutdowns int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.startupCalls, f.shutdownCalls
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	r := NewRegistry(nil)

	p := &fakePlugin{name: "jira", version: "1.0.0"}
	if err := r.Register(p); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	got, err := r.Get("jira")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got != Plugin(p) {
		t.Error("Get() returned a different plugin")
	}

	if _, ok := r.GetOptional("jira"); !ok {
		t.Error("GetOptional() ok = false for registered plugin")
	}
	if _, ok := r.GetOptional("ghost"); ok {
		t.Error("GetOptional() ok = true for unknown plugin")
	}
}

func TestRegistry_RegisterDuplicate(t *testing.T) {
	r := NewRegistry(nil)

	first := &fakePlugin{name: "jira"}
	second := &fakePlugin{name: "jira"}

	if err := r.Register(first); err != nil {
		t.Fatalf("first Register() error = %v", err)
	}

	err := r.Register(second)
	if !errors.Is(err, ErrAlreadyRegistered) {
		t.Fatalf("second Register() error = %v, want ErrAlreadyRegistered", err)
	}

	got, _ := r.Get("jira")
	if got != Plugin(first) {
		t.Error("duplicate registration replaced the original plugin")
	}
}

func TestRegistry_GetNotFound(t *testing.T) {
	r := NewRegistry(nil)

	_, err := r.Get("ghost")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get() error = %v, want ErrNotFound", err)
	}
}

func TestRegistry_StartupAllIsolatesFailures(t *testing.T) {
	r := NewRegistry(nil)

	good1 := &fakePlugin{name: "jira"}
	bad := &fakePlugin{name: "confluence", failStartup: true}
	good2 := &fakePlugin{name: "github"}

	for _, p := range []Plugin{good1, bad, good2} {
		if err := r.Register(p); err != nil {
			t.Fatalf("Register() error = %v", err)
		}
	}

	results := r.StartupAll(context.Background())

	want := map[string]bool{"jira": true, "confluence": false, "github": true}
	if !reflect.DeepEqual(results, want) {
		t.Errorf("StartupAll() = %v, want %v", results, want)
	}

	for _, p := range []*fakePlugin{good1, bad, good2} {
		if startups, _ := p.calls(); startups != 1 {
			t.Errorf("plugin %s startup calls = %d, want 1", p.name, startups)
		}
	}
}

func TestRegistry_StartupAllRecoversPanics(t *testing.T) {
	r := NewRegistry(nil)

	volatile := &fakePlugin{name: "volatile", panicStartup: true}
	stable := &fakePlugin{name: "stable"}

	if err := r.Register(volatile); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if err := r.Register(stable); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	results := r.StartupAll(context.Background())

	if results["volatile"] {
		t.Error("panicking plugin reported as started")
	}
	if !results["stable"] {
		t.Error("sibling of panicking plugin reported as failed")
	}
}

func TestRegistry_StartupAllDispatchesConcurrently(t *testing.T) {
	r := NewRegistry(nil)

	const delay = 100 * time.Millisecond
	for i := 0; i < 4; i++ {
		p := &fakePlugin{name: fmt.Sprintf("plugin-%d", i), startupDelay: delay}
		if err := r.Register(p); err != nil {
			t.Fatalf("Register() error = %v", err)
		}
	}

	start := time.Now()
	results := r.StartupAll(context.Background())
	elapsed := time.Since(start)

	if len(results) != 4 {
		t.Fatalf("StartupAll() returned %d results, want 4", len(results))
	}
	// Serial dispatch would take 4x the delay.
	if elapsed > 3*delay {
		t.Errorf("StartupAll() took %v, want concurrent dispatch well under %v", elapsed, 4*delay)
	}
}

func TestRegistry_ShutdownAllIsolatesFailures(t *testing.T) {
	r := NewRegistry(nil)

	good := &fakePlugin{name: "jira"}
	bad := &fakePlugin{name: "confluence", failShutdown: true}

	if err := r.Register(good); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if err := r.Register(bad); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	results := r.ShutdownAll(context.Background())

	if !results["jira"] {
		t.Error("healthy plugin reported shutdown failure")
	}
	if results["confluence"] {
		t.Error("failing plugin reported shutdown success")
	}
	for _, p := range []*fakePlugin{good, bad} {
		if _, shutdowns := p.calls(); shutdowns != 1 {
			t.Errorf("plugin %s shutdown calls = %d, want 1", p.name, shutdowns)
		}
	}
}

func TestRegistry_HealthCheck(t *testing.T) {
	r := NewRegistry(nil)

	degraded := &fakePlugin{name: "jira", health: Health{
		Status:       StatusDegraded,
		Connected:    true,
		CircuitState: "OPEN",
		FailureCount: 5,
	}}
	if err := r.Register(degraded); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	h, err := r.HealthCheck(context.Background(), "jira")
	if err != nil {
		t.Fatalf("HealthCheck() error = %v", err)
	}
	if h.Status != StatusDegraded || h.CircuitState != "OPEN" || h.FailureCount != 5 {
		t.Errorf("HealthCheck() = %+v, want degraded snapshot", h)
	}

	if _, err := r.HealthCheck(context.Background(), "ghost"); !errors.Is(err, ErrNotFound) {
		t.Errorf("HealthCheck() error = %v, want ErrNotFound", err)
	}
}

func TestRegistry_HealthAll(t *testing.T) {
	r := NewRegistry(nil)

	for _, name := range []string{"jira", "confluence"} {
		if err := r.Register(&fakePlugin{name: name}); err != nil {
			t.Fatalf("Register() error = %v", err)
		}
	}

	health := r.HealthAll(context.Background())
	if len(health) != 2 {
		t.Fatalf("HealthAll() returned %d entries, want 2", len(health))
	}
	for name, h := range health {
		if h.Status != StatusHealthy {
			t.Errorf("plugin %s status = %q, want %q", name, h.Status, StatusHealthy)
		}
	}
}

func TestRegistry_ListPluginsSorted(t *testing.T) {
	r := NewRegistry(nil)

	for _, name := range []string{"jira", "confluence", "github"} {
		if err := r.Register(&fakePlugin{name: name, version: "1.0.0"}); err != nil {
			t.Fatalf("Register() error = %v", err)
		}
	}

	infos := r.ListPlugins()
	want := []string{"confluence", "github", "jira"}
	for i, info := range infos {
		if info.Name != want[i] {
			t.Errorf("ListPlugins()[%d].Name = %q, want %q", i, info.Name, want[i])
		}
	}

	if names := r.Names(); !reflect.DeepEqual(names, want) {
		t.Errorf("Names() = %v, want %v", names, want)
	}
}

func TestRegistry_Routers(t *testing.T) {
	r := NewRegistry(nil)

	mux := http.NewServeMux()
	withRouter := &fakePlugin{name: "jira", router: mux}
	withoutRouter := &fakePlugin{name: "confluence"}

	if err := r.Register(withRouter); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if err := r.Register(withoutRouter); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	routers := r.Routers()
	if len(routers) != 1 {
		t.Fatalf("Routers() returned %d entries, want 1", len(routers))
	}
	if routers["jira"] == nil {
		t.Error("Routers() missing entry for plugin with a router")
	}
}

func TestRegistry_RecordsStateOutcomes(t *testing.T) {
	r := NewRegistry(nil)
	store := NewStore(filepath.Join(t.TempDir(), "plugin-state.json"))
	r.BindState(store)

	good := &fakePlugin{name: "jira"}
	bad := &fakePlugin{name: "confluence", failStartup: true}

	if err := r.Register(good); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if err := r.Register(bad); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	r.StartupAll(context.Background())

	if !store.WasRunning("jira") {
		t.Error("successful startup not recorded as running")
	}
	entry, ok := store.Get("confluence")
	if !ok {
		t.Fatal("failed startup left no state entry")
	}
	if entry.WasRunning {
		t.Error("failed startup recorded as running")
	}
	if entry.FailureCount != 1 {
		t.Errorf("failure count = %d, want 1", entry.FailureCount)
	}
	if entry.LastError == "" {
		t.Error("failure left no error message")
	}

	r.ShutdownAll(context.Background())
	if store.WasRunning("jira") {
		t.Error("shutdown plugin still recorded as running")
	}
}

func TestRegistry_UnregisterDropsState(t *testing.T) {
	r := NewRegistry(nil)
	store := NewStore(filepath.Join(t.TempDir(), "plugin-state.json"))
	r.BindState(store)

	p := &fakePlugin{name: "jira"}
	if err := r.Register(p); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if err := r.Startup(context.Background(), "jira"); err != nil {
		t.Fatalf("Startup() error = %v", err)
	}

	if got := r.Unregister("jira"); got != Plugin(p) {
		t.Error("Unregister() did not return the removed plugin")
	}
	if r.Unregister("jira") != nil {
		t.Error("second Unregister() returned a plugin")
	}
	if _, ok := store.Get("jira"); ok {
		t.Error("Unregister() left state behind")
	}
}
