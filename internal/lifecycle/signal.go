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
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// SignalHandler is the single point of truth for "should the process
// shut down". It decouples OS signal delivery and explicit triggers
// from the cleanup callbacks tied to shutdown.
//
// The shutdown flag transitions false to true exactly once per process
// lifetime; every registered callback runs at most once.
type SignalHandler struct {
	logger *slog.Logger

	mu        sync.Mutex
	triggered bool
	syncFns   []func()
	asyncFns  []func()

	asyncWG sync.WaitGroup

	// shutdownCh closes when the flag flips; settledCh closes once the
	// async callbacks have finished as well.
	shutdownCh chan struct{}
	settledCh  chan struct{}
}

// NewSignalHandler creates a handler with no registered callbacks.
func NewSignalHandler(logger *slog.Logger) *SignalHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SignalHandler{
		logger:     logger.With("component", "lifecycle"),
		shutdownCh: make(chan struct{}),
		settledCh:  make(chan struct{}),
	}
}

// ShouldShutdown reports whether shutdown has been triggered.
func (h *SignalHandler) ShouldShutdown() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.triggered
}

// Register appends a synchronous callback. Sync callbacks run inside
// TriggerShutdown in registration order. Registering after the trigger
// records the callback but never invokes it.
func (h *SignalHandler) Register(fn func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.triggered {
		h.logger.Warn("shutdown callback registered after trigger, it will not run")
	}
	h.syncFns = append(h.syncFns, fn)
}

// RegisterAsync appends an asynchronous callback. Async callbacks are
// scheduled as goroutines by TriggerShutdown and may run concurrently
// with each other; their completion is observable via WaitForShutdown.
func (h *SignalHandler) RegisterAsync(fn func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.triggered {
		h.logger.Warn("shutdown callback registered after trigger, it will not run")
	}
	h.asyncFns = append(h.asyncFns, fn)
}

// TriggerShutdown flips the shutdown flag, runs the sync callbacks in
// registration order, and schedules the async ones. Second and later
// calls are no-ops, so callbacks run at most once per process.
func (h *SignalHandler) TriggerShutdown() {
	h.mu.Lock()
	if h.triggered {
		h.mu.Unlock()
		return
	}
	h.triggered = true
	syncs := make([]func(), len(h.syncFns))
	copy(syncs, h.syncFns)
	asyncs := make([]func(), len(h.asyncFns))
	copy(asyncs, h.asyncFns)
	h.mu.Unlock()

	close(h.shutdownCh)
	h.logger.Info("shutdown triggered",
		slog.Int("sync_callbacks", len(syncs)),
		slog.Int("async_callbacks", len(asyncs)))

	for i, fn := range syncs {
		h.runCallback("sync", i, fn)
	}

	h.asyncWG.Add(len(asyncs))
	for i, fn := range asyncs {
		go func(i int, fn func()) {
			defer h.asyncWG.Done()
			h.runCallback("async", i, fn)
		}(i, fn)
	}

	go func() {
		h.asyncWG.Wait()
		close(h.settledCh)
	}()
}

// WaitForShutdown blocks until the shutdown flag is set and all async
// callbacks have completed, or until ctx is cancelled.
func (h *SignalHandler) WaitForShutdown(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-h.settledCh:
		return nil
	}
}

// ShutdownChan returns a channel closed as soon as shutdown triggers,
// before callbacks complete. Select on it to react promptly.
func (h *SignalHandler) ShutdownChan() <-chan struct{} {
	return h.shutdownCh
}

// Notify wires SIGINT and SIGTERM to TriggerShutdown until ctx is
// cancelled.
func (h *SignalHandler) Notify(ctx context.Context) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigCh)
		select {
		case sig := <-sigCh:
			h.logger.Info("received signal, shutting down", slog.String("signal", sig.String()))
			h.TriggerShutdown()
		case <-ctx.Done():
		}
	}()
}

// runCallback invokes one callback, containing panics so one broken
// cleanup step cannot prevent the others from running.
func (h *SignalHandler) runCallback(kind string, index int, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("shutdown callback panicked",
				slog.String("kind", kind),
				slog.Int("index", index),
				slog.Any("panic", r))
		}
	}()
	fn()
}
