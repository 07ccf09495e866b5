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

// Package idle detects sustained daemon inactivity and fires a one-shot
// callback so the process can shut itself down to conserve resources.
package idle

import (
	"log/slog"
	"math"
	"sync"
	"time"
)

const (
	// DefaultTimeout is the quiet period after which the daemon counts
	// as idle.
	DefaultTimeout = 5 * time.Minute

	// DefaultCheckInterval is how often the monitor re-checks activity.
	DefaultCheckInterval = 10 * time.Second
)

// Config holds the idle monitor settings. Zero values select the
// defaults.
type Config struct {
	// Timeout is the inactivity window that makes the daemon idle.
	Timeout time.Duration

	// CheckInterval is the period between idle checks.
	CheckInterval time.Duration

	// OnIdle runs once, from the monitor goroutine, on the first idle
	// observation after Start. The monitor is already stopped when the
	// callback runs, so the callback may call Stop (or a shutdown path
	// that does) without deadlocking.
	OnIdle func()
}

// Monitor watches the gap since the last recorded activity and fires
// OnIdle once the gap reaches the timeout. Touch is called by the
// request path on every inbound request.
type Monitor struct {
	timeout       time.Duration
	checkInterval time.Duration
	onIdle        func()
	logger        *slog.Logger

	mu           sync.Mutex
	lastActivity time.Time
	running      bool
	stopRequest  bool
	stopCh       chan struct{}
	doneCh       chan struct{}
}

// Status is the monitor snapshot reported by the status endpoint.
// Durations are seconds rounded to one decimal.
type Status struct {
	Running        bool    `json:"running"`
	IdleSeconds    float64 `json:"idle_seconds"`
	TimeoutSeconds float64 `json:"timeout_seconds"`
	IsIdle         bool    `json:"is_idle"`
	TimeUntilIdle  float64 `json:"time_until_idle"`
}

// New creates a stopped monitor. Start launches the check loop.
func New(cfg Config, logger *slog.Logger) *Monitor {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = DefaultCheckInterval
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Monitor{
		timeout:       cfg.Timeout,
		checkInterval: cfg.CheckInterval,
		onIdle:        cfg.OnIdle,
		logger:        logger.With("component", "idle"),
		lastActivity:  time.Now(),
	}
}

// Touch records current time as the last activity.
func (m *Monitor) Touch() {
	m.mu.Lock()
	m.lastActivity = time.Now()
	m.mu.Unlock()
}

// IsIdle reports whether the inactivity window has elapsed.
func (m *Monitor) IsIdle() bool {
	return m.idleDuration() >= m.timeout
}

// Running reports whether the check loop is live.
func (m *Monitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// Start launches the check goroutine. It is idempotent and resets the
// activity clock, so a restarted monitor never fires from a stale gap.
func (m *Monitor) Start() {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.stopRequest = false
	m.lastActivity = time.Now()
	m.stopCh = make(chan struct{})
	m.doneCh = make(chan struct{})
	stop, done := m.stopCh, m.doneCh
	m.mu.Unlock()

	m.logger.Debug("idle monitor started",
		slog.Duration("timeout", m.timeout),
		slog.Duration("check_interval", m.checkInterval))

	go func() {
		// The loop marks itself stopped before the callback runs, so a
		// Stop issued from inside OnIdle returns immediately instead of
		// waiting on its own goroutine.
		if fired := m.loop(stop, done); fired {
			m.fireOnIdle()
		}
	}()
}

// Stop cancels the check goroutine and waits for it to exit. It is
// idempotent; stop latency is at most one check interval. A Stop that
// races the loop's idle observation suppresses a not-yet-started
// on_idle callback; a callback already in flight runs to completion.
func (m *Monitor) Stop() {
	m.mu.Lock()
	m.stopRequest = true
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	stop, done := m.stopCh, m.doneCh
	m.mu.Unlock()

	close(stop)
	<-done

	m.logger.Debug("idle monitor stopped")
}

// Status returns the current monitor snapshot.
func (m *Monitor) Status() Status {
	idle := m.idleDuration()
	until := m.timeout - idle
	if until < 0 {
		until = 0
	}

	return Status{
		Running:        m.Running(),
		IdleSeconds:    roundTenth(idle.Seconds()),
		TimeoutSeconds: m.timeout.Seconds(),
		IsIdle:         idle >= m.timeout,
		TimeUntilIdle:  roundTenth(until.Seconds()),
	}
}

func (m *Monitor) idleDuration() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return time.Since(m.lastActivity)
}

// loop ticks until stopped or until the first idle observation, and
// reports whether it observed idleness. It never fires the callback
// itself.
func (m *Monitor) loop(stop <-chan struct{}, done chan<- struct{}) bool {
	defer close(done)

	ticker := time.NewTicker(m.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return false
		case <-ticker.C:
			// Re-test the stop request before acting on the tick, so a
			// Stop racing the ticker wins.
			select {
			case <-stop:
				return false
			default:
			}
			if m.checkOnce() {
				m.mu.Lock()
				m.running = false
				m.mu.Unlock()
				return true
			}
		}
	}
}

// checkOnce is one loop iteration. A panic inside the check is logged
// and treated as a non-idle observation so the loop keeps running.
func (m *Monitor) checkOnce() (idle bool) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("idle check panicked", "panic", r)
			idle = false
		}
	}()

	gap := m.idleDuration()
	if gap < m.timeout {
		return false
	}

	m.logger.Info("idle timeout reached, shutting down",
		slog.Duration("idle_duration", gap),
		slog.Duration("idle_timeout", m.timeout))
	recordIdleShutdown()
	return true
}

// fireOnIdle invokes the callback at most once. A panicking callback is
// logged, never propagated; the monitor does not re-arm either way.
// A Stop that landed between the idle observation and this call wins:
// the callback is skipped.
func (m *Monitor) fireOnIdle() {
	m.mu.Lock()
	suppressed := m.stopRequest
	m.mu.Unlock()
	if suppressed || m.onIdle == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("on_idle callback panicked", "panic", r)
		}
	}()
	m.onIdle()
}

func roundTenth(v float64) float64 {
	return math.Round(v*10) / 10
}
