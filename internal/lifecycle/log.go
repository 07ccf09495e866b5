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
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Event is one lifecycle audit record (start, stop, ...).
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Event     string    `json:"event"`
	PID       int       `json:"pid,omitempty"`
	Version   string    `json:"version,omitempty"`
	Success   bool      `json:"success"`
	Message   string    `json:"message,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// EventLog appends daemon lifecycle events to a JSON-lines file so
// start/stop attempts remain auditable across daemon restarts.
type EventLog struct {
	path string
}

// NewEventLog creates an event log writing to the given path.
func NewEventLog(path string) *EventLog {
	return &EventLog{path: path}
}

// LogStart records a daemon start attempt.
func (l *EventLog) LogStart(version string) error {
	return l.write(Event{
		Timestamp: time.Now(),
		Event:     "start",
		Version:   version,
		Success:   true,
		Message:   "daemon start initiated",
	})
}

// LogStartSuccess records a successful daemon start.
func (l *EventLog) LogStartSuccess(pid int, duration time.Duration) error {
	return l.write(Event{
		Timestamp: time.Now(),
		Event:     "start_success",
		PID:       pid,
		Success:   true,
		Message:   fmt.Sprintf("daemon started (ready after %v)", duration.Round(time.Millisecond)),
	})
}

// LogStartFailure records a failed daemon start.
func (l *EventLog) LogStartFailure(err error) error {
	return l.write(Event{
		Timestamp: time.Now(),
		Event:     "start_failure",
		Success:   false,
		Message:   "daemon failed to start",
		Error:     err.Error(),
	})
}

// LogAlreadyRunning records a start attempt against a live daemon.
func (l *EventLog) LogAlreadyRunning(pid int) error {
	return l.write(Event{
		Timestamp: time.Now(),
		Event:     "already_running",
		PID:       pid,
		Success:   true,
		Message:   "daemon already running",
	})
}

// LogStop records a daemon stop attempt.
func (l *EventLog) LogStop(pid int, force bool) error {
	message := "daemon stop initiated"
	if force {
		message = "daemon force stop initiated"
	}
	return l.write(Event{
		Timestamp: time.Now(),
		Event:     "stop",
		PID:       pid,
		Success:   true,
		Message:   message,
	})
}

// LogStopSuccess records a successful daemon stop.
func (l *EventLog) LogStopSuccess(pid int, duration time.Duration) error {
	return l.write(Event{
		Timestamp: time.Now(),
		Event:     "stop_success",
		PID:       pid,
		Success:   true,
		Message:   fmt.Sprintf("daemon stopped after %v", duration.Round(time.Millisecond)),
	})
}

// LogStopFailure records a failed daemon stop.
func (l *EventLog) LogStopFailure(pid int, err error) error {
	return l.write(Event{
		Timestamp: time.Now(),
		Event:     "stop_failure",
		PID:       pid,
		Success:   false,
		Message:   "failed to stop daemon",
		Error:     err.Error(),
	})
}

// write appends one event to the log file.
func (l *EventLog) write(event Event) error {
	dir := filepath.Dir(l.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return fmt.Errorf("failed to open lifecycle log: %w", err)
	}
	defer f.Close()

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write event: %w", err)
	}

	return nil
}
