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

package lifecycle

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

var (
	// ErrAlreadyRunning is returned by Create when the PID file names a
	// live process.
	ErrAlreadyRunning = errors.New("daemon already running")

	// ErrUnsafeDirectory is returned when the PID file parent is
	// world-writable.
	ErrUnsafeDirectory = errors.New("PID file directory is world-writable")
)

// PIDFile enforces single-instance daemon startup through a PID file
// with stale-entry recovery: a file whose recorded process is dead is
// treated as absent and replaced.
//
// The guard is best-effort, not a distributed lock. Create checks
// liveness and then writes with O_EXCL, which leaves a narrow window
// where a concurrent duplicate loses the exclusive create and is
// reported as already running.
type PIDFile struct {
	path string
}

// NewPIDFile creates a PID file handle for the given path. Nothing is
// written until Create.
func NewPIDFile(path string) *PIDFile {
	return &PIDFile{path: path}
}

// Path returns the PID file location.
func (p *PIDFile) Path() string {
	return p.path
}

// Create writes the current process id. It fails with
// ErrAlreadyRunning when the file names a live process; a stale file
// (dead or unparseable pid) is removed and overwritten.
func (p *PIDFile) Create() error {
	dir := filepath.Dir(p.path)
	if err := verifyDirectorySafety(dir); err != nil {
		return fmt.Errorf("unsafe PID file location: %w", err)
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create PID file directory: %w", err)
	}

	if data, err := os.ReadFile(p.path); err == nil {
		if pid, ok := parsePID(data); ok && IsProcessRunning(pid) {
			return fmt.Errorf("%w (pid %d)", ErrAlreadyRunning, pid)
		}
		// Stale entry from a dead process, or garbage. Either way the
		// previous owner is gone.
		os.Remove(p.path)
	}

	// O_EXCL prevents symlink tricks and keeps a concurrent duplicate
	// Create from succeeding twice.
	f, err := os.OpenFile(p.path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		if os.IsExist(err) {
			return fmt.Errorf("%w: lost creation race for %s", ErrAlreadyRunning, p.path)
		}
		return fmt.Errorf("failed to create PID file: %w", err)
	}

	if _, err := fmt.Fprintf(f, "%d\n", os.Getpid()); err != nil {
		f.Close()
		os.Remove(p.path)
		return fmt.Errorf("failed to write PID: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(p.path)
		return fmt.Errorf("failed to sync PID file: %w", err)
	}

	return f.Close()
}

// Read returns the recorded pid and whether the file held a parseable
// positive integer. It never errors; a missing or corrupt file reads
// as absent.
func (p *PIDFile) Read() (int, bool) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return 0, false
	}
	return parsePID(data)
}

// Remove deletes the PID file and reports whether a file was actually
// removed.
func (p *PIDFile) Remove() bool {
	return os.Remove(p.path) == nil
}

// IsRunning reports whether the recorded pid denotes a live process.
// A stale file is deleted as a side effect and false returned.
func (p *PIDFile) IsRunning() bool {
	pid, ok := p.Read()
	if !ok {
		return false
	}
	if IsProcessRunning(pid) {
		return true
	}
	os.Remove(p.path)
	return false
}

// WithLock runs fn under the PID file guard: Create, fn, then Remove
// on every exit path.
func (p *PIDFile) WithLock(fn func() error) error {
	if err := p.Create(); err != nil {
		return err
	}
	defer p.Remove()
	return fn()
}

func parsePID(data []byte) (int, bool) {
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, false
	}
	return pid, true
}

// verifyDirectorySafety rejects world-writable parents, where anyone
// could drop a symlink to a file they want the daemon to clobber.
func verifyDirectorySafety(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		// Missing directory is fine, Create makes it with 0700.
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to stat directory: %w", err)
	}

	mode := info.Mode()
	if mode&0002 != 0 {
		return fmt.Errorf("%w: %s has mode %04o", ErrUnsafeDirectory, dir, mode&os.ModePerm)
	}

	return nil
}
