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
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startWatcher builds and starts a watcher over a fresh config file,
// returning the file path and a change counter.
func startWatcher(t *testing.T, cfg WatcherConfig) (string, *atomic.Int32) {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("plugins: {}\n"), 0600))

	var changes atomic.Int32
	cfg.Path = path
	cfg.OnChange = func() { changes.Add(1) }
	if cfg.Debounce == 0 {
		cfg.Debounce = 50 * time.Millisecond
	}

	w, err := NewWatcher(cfg, nil)
	require.NoError(t, err)
	require.NoError(t, w.Start())
	t.Cleanup(w.Stop)

	return path, &changes
}

func TestWatcher_FiresOnConfigWrite(t *testing.T) {
	path, changes := startWatcher(t, WatcherConfig{})

	require.NoError(t, os.WriteFile(path, []byte("plugins:\n  jira: {}\n"), 0600))

	require.Eventually(t, func() bool {
		return changes.Load() == 1
	}, 2*time.Second, 20*time.Millisecond, "config write did not trigger a change")
}

func TestWatcher_DebouncesRapidWrites(t *testing.T) {
	path, changes := startWatcher(t, WatcherConfig{Debounce: 100 * time.Millisecond})

	// A burst of writes inside the debounce window.
	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(path, []byte("plugins: {}\n"), 0600))
		time.Sleep(10 * time.Millisecond)
	}

	require.Eventually(t, func() bool {
		return changes.Load() >= 1
	}, 2*time.Second, 20*time.Millisecond)

	// Let any stray timers expire; the burst must have collapsed.
	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, int32(1), changes.Load(), "burst of writes triggered more than one change")
}

func TestWatcher_FiresOnAtomicReplace(t *testing.T) {
	path, changes := startWatcher(t, WatcherConfig{})

	// Atomic save: write a sibling file, then rename it over the target.
	tmp := filepath.Join(filepath.Dir(path), "config.yaml.new")
	require.NoError(t, os.WriteFile(tmp, []byte("plugins:\n  jira: {}\n"), 0600))
	require.NoError(t, os.Rename(tmp, path))

	require.Eventually(t, func() bool {
		return changes.Load() >= 1
	}, 2*time.Second, 20*time.Millisecond, "atomic replace did not trigger a change")
}

func TestWatcher_IgnoresEditorChurn(t *testing.T) {
	path, changes := startWatcher(t, WatcherConfig{
		// Include everything so only the ignore patterns filter.
		Include:  []string{"*"},
		Debounce: 50 * time.Millisecond,
	})
	dir := filepath.Dir(path)

	for _, name := range []string{".config.yaml.swp", "config.yaml.tmp", "scratch~", "4913"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0600))
	}

	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, int32(0), changes.Load(), "editor temp files triggered a change")

	// A real file still gets through the same include pattern.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "extra.yaml"), []byte("x"), 0600))
	require.Eventually(t, func() bool {
		return changes.Load() == 1
	}, 2*time.Second, 20*time.Millisecond)
}

func TestWatcher_IgnoresUnrelatedFiles(t *testing.T) {
	path, changes := startWatcher(t, WatcherConfig{})
	dir := filepath.Dir(path)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "history.db"), []byte("x"), 0600))

	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, int32(0), changes.Load(), "unrelated file triggered a change")
}

func TestWatcher_StopPreventsCallbacks(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("plugins: {}\n"), 0600))

	var changes atomic.Int32
	w, err := NewWatcher(WatcherConfig{
		Path:     path,
		Debounce: 30 * time.Millisecond,
		OnChange: func() { changes.Add(1) },
	}, nil)
	require.NoError(t, err)
	require.NoError(t, w.Start())

	w.Stop()

	require.NoError(t, os.WriteFile(path, []byte("plugins:\n  jira: {}\n"), 0600))
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, int32(0), changes.Load(), "stopped watcher delivered a change")

	// Stopping again is a no-op.
	w.Stop()
}

func TestWatcher_StartIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("plugins: {}\n"), 0600))

	var changes atomic.Int32
	w, err := NewWatcher(WatcherConfig{
		Path:     path,
		Debounce: 50 * time.Millisecond,
		OnChange: func() { changes.Add(1) },
	}, nil)
	require.NoError(t, err)
	require.NoError(t, w.Start())
	require.NoError(t, w.Start())
	t.Cleanup(w.Stop)

	require.NoError(t, os.WriteFile(path, []byte("plugins:\n  jira: {}\n"), 0600))

	require.Eventually(t, func() bool {
		return changes.Load() >= 1
	}, 2*time.Second, 20*time.Millisecond)

	// A doubled event stream would deliver the change twice.
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, int32(1), changes.Load())
}

func TestWatcher_CallbackPanicIsRecovered(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("a\n"), 0600))

	var calls atomic.Int32
	w, err := NewWatcher(WatcherConfig{
		Path:     path,
		Debounce: 30 * time.Millisecond,
		OnChange: func() {
			calls.Add(1)
			panic("reload exploded")
		},
	}, nil)
	require.NoError(t, err)
	require.NoError(t, w.Start())
	t.Cleanup(w.Stop)

	require.NoError(t, os.WriteFile(path, []byte("b\n"), 0600))
	require.Eventually(t, func() bool {
		return calls.Load() == 1
	}, 2*time.Second, 20*time.Millisecond)

	// The loop survived the panic and keeps delivering.
	require.NoError(t, os.WriteFile(path, []byte("c\n"), 0600))
	require.Eventually(t, func() bool {
		return calls.Load() == 2
	}, 2*time.Second, 20*time.Millisecond)
}

func TestNewWatcher_Validation(t *testing.T) {
	_, err := NewWatcher(WatcherConfig{OnChange: func() {}}, nil)
	assert.Error(t, err, "missing path accepted")

	_, err = NewWatcher(WatcherConfig{Path: "/tmp/config.yaml"}, nil)
	assert.Error(t, err, "missing callback accepted")

	_, err = NewWatcher(WatcherConfig{
		Path:     "/tmp/config.yaml",
		OnChange: func() {},
		Ignore:   []string{"[bad"},
	}, nil)
	assert.Error(t, err, "invalid pattern accepted")
}
