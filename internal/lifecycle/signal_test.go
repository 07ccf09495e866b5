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
	"errors"
	"sync"
	"sync/atomic"
	"syscall"
	"testing"
	"time"
)

func TestSignalHandler_StartsFalse(t *testing.T) {
	h := NewSignalHandler(nil)
	if h.ShouldShutdown() {
		t.Error("ShouldShutdown() = true before any trigger")
	}
}

func TestSignalHandler_SyncCallbacksRunInOrder(t *testing.T) {
	h := NewSignalHandler(nil)

	var mu sync.Mutex
	var order []int
	for i := 0; i < 5; i++ {
		i := i
		h.Register(func() {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		})
	}

	h.TriggerShutdown()

	if !h.ShouldShutdown() {
		t.Error("ShouldShutdown() = false after trigger")
	}
	for i, got := range order {
		if got != i {
			t.Fatalf("callback order = %v, want registration order", order)
		}
	}
	if len(order) != 5 {
		t.Errorf("ran %d callbacks, want 5", len(order))
	}
}

func TestSignalHandler_DoubleTriggerRunsCallbacksOnce(t *testing.T) {
	h := NewSignalHandler(nil)

	var syncRuns, asyncRuns atomic.Int32
	h.Register(func() { syncRuns.Add(1) })
	h.RegisterAsync(func() { asyncRuns.Add(1) })

	// Concurrent triggers model a signal racing the idle monitor.
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.TriggerShutdown()
		}()
	}
	wg.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := h.WaitForShutdown(ctx); err != nil {
		t.Fatalf("WaitForShutdown() error = %v", err)
	}

	if got := syncRuns.Load(); got != 1 {
		t.Errorf("sync callback ran %d times, want 1", got)
	}
	if got := asyncRuns.Load(); got != 1 {
		t.Errorf("async callback ran %d times, want 1", got)
	}
}

func TestSignalHandler_WaitForShutdownCoversAsync(t *testing.T) {
	h := NewSignalHandler(nil)

	var done atomic.Int32
	for i := 0; i < 3; i++ {
		h.RegisterAsync(func() {
			time.Sleep(30 * time.Millisecond)
			done.Add(1)
		})
	}

	h.TriggerShutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := h.WaitForShutdown(ctx); err != nil {
		t.Fatalf("WaitForShutdown() error = %v", err)
	}

	// All async callbacks completed before the wait returned.
	if got := done.Load(); got != 3 {
		t.Errorf("%d async callbacks completed at wait return, want 3", got)
	}
}

func TestSignalHandler_WaitForShutdownCancellable(t *testing.T) {
	h := NewSignalHandler(nil)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	err := h.WaitForShutdown(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("WaitForShutdown() error = %v, want deadline exceeded", err)
	}

	// The handler state is intact; a later trigger still works.
	h.TriggerShutdown()
	if !h.ShouldShutdown() {
		t.Error("ShouldShutdown() = false after trigger")
	}
}

func TestSignalHandler_PanickingCallbackDoesNotStopSiblings(t *testing.T) {
	h := NewSignalHandler(nil)

	var ran atomic.Int32
	h.Register(func() { panic("cleanup exploded") })
	h.Register(func() { ran.Add(1) })
	h.RegisterAsync(func() { panic("async cleanup exploded") })
	h.RegisterAsync(func() { ran.Add(1) })

	h.TriggerShutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := h.WaitForShutdown(ctx); err != nil {
		t.Fatalf("WaitForShutdown() error = %v", err)
	}

	if got := ran.Load(); got != 2 {
		t.Errorf("%d sibling callbacks ran, want 2", got)
	}
}

func TestSignalHandler_LateRegistrationDoesNotRun(t *testing.T) {
	h := NewSignalHandler(nil)
	h.TriggerShutdown()

	var ran atomic.Int32
	h.Register(func() { ran.Add(1) })
	h.RegisterAsync(func() { ran.Add(1) })

	// A second trigger is a no-op and must not invoke the late
	// registrations either.
	h.TriggerShutdown()
	time.Sleep(20 * time.Millisecond)

	if got := ran.Load(); got != 0 {
		t.Errorf("late-registered callbacks ran %d times, want 0", got)
	}
}

func TestSignalHandler_ShutdownChan(t *testing.T) {
	h := NewSignalHandler(nil)

	select {
	case <-h.ShutdownChan():
		t.Fatal("ShutdownChan() closed before trigger")
	default:
	}

	h.TriggerShutdown()

	select {
	case <-h.ShutdownChan():
	case <-time.After(time.Second):
		t.Fatal("ShutdownChan() not closed after trigger")
	}
}

func TestSignalHandler_NotifyOnSIGTERM(t *testing.T) {
	h := NewSignalHandler(nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.Notify(ctx)

	if err := syscall.Kill(syscall.Getpid(), syscall.SIGTERM); err != nil {
		t.Fatalf("Failed to signal self: %v", err)
	}

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer waitCancel()
	if err := h.WaitForShutdown(waitCtx); err != nil {
		t.Fatalf("WaitForShutdown() after SIGTERM error = %v", err)
	}
	if !h.ShouldShutdown() {
		t.Error("ShouldShutdown() = false after SIGTERM")
	}
}
