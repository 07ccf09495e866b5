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
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"

	"github.com/skillsd/skillsd/internal/log"
)

// DefaultDebounce is the window during which rapid file events collapse
// into a single change notification. Editors commonly emit several
// events per save (temp file, rename, write).
const DefaultDebounce = 500 * time.Millisecond

// DefaultIgnorePatterns returns glob patterns for editor temp files and
// other churn that should never trigger a reload.
func DefaultIgnorePatterns() []string {
	return []string{
		"*.tmp",
		"*.temp",
		"*.swp",
		"*.swo",
		"*~",
		"#*#",
		".#*",
		".*",
		"4913", // vim write test file
	}
}

// WatcherConfig configures a config file watcher.
type WatcherConfig struct {
	// Path is the config file to watch. The watch is placed on its
	// directory so atomic saves (write temp, rename over) are seen.
	Path string

	// Include are glob patterns selecting which changed files count.
	// Defaults to the base name of Path.
	Include []string

	// Ignore are glob patterns filtered out before Include is consulted.
	// Defaults to DefaultIgnorePatterns.
	Ignore []string

	// Debounce is the quiet window before OnChange fires. Defaults to
	// DefaultDebounce.
	Debounce time.Duration

	// OnChange is invoked once per settled change burst. Required.
	OnChange func()
}

// Watcher watches a config file for changes and invokes a callback
// after a debounce window. It exists so edits to the daemon's config
// trigger the same plugin reload as the reload endpoint.
type Watcher struct {
	path     string
	include  []string
	ignore   []string
	debounce time.Duration
	onChange func()

	fsw    *fsnotify.Watcher
	logger *slog.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewWatcher creates a watcher for the given config file. Patterns are
// validated up front so a bad pattern fails at construction, not at
// match time.
func NewWatcher(cfg WatcherConfig, logger *slog.Logger) (*Watcher, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("watcher requires a path")
	}
	if cfg.OnChange == nil {
		return nil, fmt.Errorf("watcher requires an OnChange callback")
	}
	if logger == nil {
		logger = slog.Default()
	}

	absPath, err := filepath.Abs(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve watch path: %w", err)
	}

	include := cfg.Include
	if len(include) == 0 {
		include = []string{filepath.Base(absPath)}
	}
	ignore := cfg.Ignore
	if ignore == nil {
		ignore = DefaultIgnorePatterns()
	}
	for _, pattern := range append(append([]string{}, include...), ignore...) {
		if _, err := doublestar.Match(pattern, "probe"); err != nil {
			return nil, fmt.Errorf("invalid watch pattern %q: %w", pattern, err)
		}
	}

	debounce := cfg.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	return &Watcher{
		path:     absPath,
		include:  include,
		ignore:   ignore,
		debounce: debounce,
		onChange: cfg.OnChange,
		logger:   logger.With("component", "configwatch", "path", absPath),
	}, nil
}

// Start begins watching. Starting an already-running watcher is a no-op.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return nil
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}

	// Watch the directory, not the file: atomic saves replace the inode
	// and a file-level watch would go stale after the first edit.
	if err := fsw.Add(filepath.Dir(w.path)); err != nil {
		fsw.Close()
		return fmt.Errorf("failed to watch config directory: %w", err)
	}

	w.fsw = fsw
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	w.running = true

	go w.loop(w.stopCh, w.doneCh)

	w.logger.Info("config watcher started")
	return nil
}

// Stop stops watching and waits for the event loop to exit. Stopping a
// watcher that is not running is a no-op.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	stop, done, fsw := w.stopCh, w.doneCh, w.fsw
	w.mu.Unlock()

	close(stop)
	<-done
	fsw.Close()

	w.logger.Info("config watcher stopped")
}

func (w *Watcher) loop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	var pending <-chan time.Time

	for {
		select {
		case <-stop:
			return

		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !w.relevant(event) {
				continue
			}
			w.logger.Debug("config change observed",
				log.String("file", filepath.Base(event.Name)),
				log.String("op", event.Op.String()))
			// Restart the quiet window on every relevant event.
			pending = time.After(w.debounce)

		case <-pending:
			pending = nil
			w.fire()

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Error("config watcher error", log.Error(err))
		}
	}
}

// relevant reports whether a filesystem event should count as a config
// change. Chmod-only events and ignored/unmatched files do not.
func (w *Watcher) relevant(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return false
	}

	for _, pattern := range w.ignore {
		if matchPattern(pattern, event.Name) {
			return false
		}
	}
	for _, pattern := range w.include {
		if matchPattern(pattern, event.Name) {
			return true
		}
	}

	return false
}

// matchPattern matches against both the full path and the base name, so
// simple patterns like "config.yaml" work without directory prefixes.
func matchPattern(pattern, path string) bool {
	if matched, _ := doublestar.PathMatch(pattern, path); matched {
		return true
	}
	matched, _ := doublestar.Match(pattern, filepath.Base(path))
	return matched
}

func (w *Watcher) fire() {
	defer func() {
		if rec := recover(); rec != nil {
			w.logger.Error("config change callback panicked", log.Attr("panic", rec))
		}
	}()

	w.logger.Info("config changed, triggering reload")
	w.onChange()
}
