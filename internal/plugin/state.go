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
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// stateFileVersion is the current state file format version. Files with
// a different version are discarded and rebuilt.
const stateFileVersion = 1

// runtimeState is the persisted form of all plugin runtime state.
type runtimeState struct {
	Version     int                    `json:"version"`
	Plugins     map[string]*EntryState `json:"plugins"`
	LastUpdated time.Time              `json:"last_updated"`
}

// EntryState is the persisted runtime state of a single plugin.
type EntryState struct {
	// WasRunning reports whether the plugin was running when state was
	// last saved. Drives resume decisions on the next daemon start.
	WasRunning bool `json:"was_running"`

	// FailureCount is the consecutive startup failure streak.
	FailureCount int `json:"failure_count"`

	// LastFailure is when the last startup failure occurred.
	LastFailure *time.Time `json:"last_failure,omitempty"`

	// LastError is the last startup error message.
	LastError string `json:"last_error,omitempty"`

	// StartedAt is when the plugin last started successfully.
	StartedAt *time.Time `json:"started_at,omitempty"`
}

// Store persists plugin runtime state as JSON so the daemon knows which
// plugins were running across restarts. Writes are atomic (temp file and
// rename) and skipped entirely when nothing changed.
type Store struct {
	mu    sync.RWMutex
	state *runtimeState
	path  string
	dirty bool
}

// NewStore creates a state store backed by the given file. Existing
// state is loaded; a missing, corrupt, or version-mismatched file starts
// fresh rather than failing.
func NewStore(path string) *Store {
	s := &Store{
		path:  path,
		state: emptyState(),
	}

	if loaded, err := loadState(path); err == nil && loaded != nil {
		s.state = loaded
	}

	return s
}

func emptyState() *runtimeState {
	return &runtimeState{
		Version: stateFileVersion,
		Plugins: make(map[string]*EntryState),
	}
}

func loadState(path string) (*runtimeState, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var state runtimeState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, err
	}
	if state.Version != stateFileVersion {
		return nil, nil
	}
	if state.Plugins == nil {
		state.Plugins = make(map[string]*EntryState)
	}

	return &state, nil
}

// Save persists the state to disk if it changed since the last save.
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.dirty {
		return nil
	}

	return s.saveLocked()
}

func (s *Store) saveLocked() error {
	s.state.LastUpdated = time.Now()

	data, err := json.MarshalIndent(s.state, "", "  ")
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return err
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return err
	}

	s.dirty = false
	return nil
}

// MarkStarted records a successful plugin startup, clearing its failure
// streak.
func (s *Store) MarkStarted(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := s.entryLocked(name)
	now := time.Now()
	entry.WasRunning = true
	entry.FailureCount = 0
	entry.LastError = ""
	entry.StartedAt = &now
	s.dirty = true
}

// MarkFailed records a failed plugin startup, extending its failure
// streak.
func (s *Store) MarkFailed(name, errMsg string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := s.entryLocked(name)
	now := time.Now()
	entry.WasRunning = false
	entry.FailureCount++
	entry.LastError = errMsg
	entry.LastFailure = &now
	entry.StartedAt = nil
	s.dirty = true
}

// MarkStopped records that a plugin was shut down.
func (s *Store) MarkStopped(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := s.entryLocked(name)
	entry.WasRunning = false
	entry.StartedAt = nil
	s.dirty = true
}

// MarkAllStopped marks every plugin as stopped. Called during graceful
// shutdown so a clean stop is not mistaken for a crash on the next
// start.
func (s *Store) MarkAllStopped() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, entry := range s.state.Plugins {
		entry.WasRunning = false
		entry.StartedAt = nil
	}
	s.dirty = true
}

func (s *Store) entryLocked(name string) *EntryState {
	entry := s.state.Plugins[name]
	if entry == nil {
		entry = &EntryState{}
		s.state.Plugins[name] = entry
	}
	return entry
}

// Get returns a copy of the persisted state for a plugin, or false when
// the plugin has no recorded state.
func (s *Store) Get(name string) (EntryState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry := s.state.Plugins[name]
	if entry == nil {
		return EntryState{}, false
	}

	return *entry, true
}

// WasRunning reports whether the plugin was running at the last save.
func (s *Store) WasRunning(name string) bool {
	entry, ok := s.Get(name)
	return ok && entry.WasRunning
}

// RunningNames returns the names of plugins that were running at the
// last save, for resume-on-start decisions.
func (s *Store) RunningNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var names []string
	for name, entry := range s.state.Plugins {
		if entry.WasRunning {
			names = append(names, name)
		}
	}

	return names
}

// Remove drops a plugin's persisted state.
func (s *Store) Remove(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.state.Plugins, name)
	s.dirty = true
}

// Clear drops all persisted state.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.Plugins = make(map[string]*EntryState)
	s.dirty = true
}

// Path returns the state file path.
func (s *Store) Path() string {
	return s.path
}
