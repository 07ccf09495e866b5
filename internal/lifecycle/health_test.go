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
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestHealthChecker_Check(t *testing.T) {
	t.Run("returns success for healthy endpoint", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		checker := NewHealthChecker(server.URL)
		result := checker.Check(context.Background())

		if !result.Success {
			t.Errorf("Check() success = false, want true (error: %v)", result.Error)
		}
		if result.StatusCode != http.StatusOK {
			t.Errorf("Check() status = %d, want %d", result.StatusCode, http.StatusOK)
		}
		if result.ResponseTime <= 0 {
			t.Error("Check() response time should be positive")
		}
	})

	t.Run("returns failure for unhealthy endpoint", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer server.Close()

		checker := NewHealthChecker(server.URL)
		result := checker.Check(context.Background())

		if result.Success {
			t.Error("Check() success = true, want false")
		}
		if result.StatusCode != http.StatusServiceUnavailable {
			t.Errorf("Check() status = %d, want %d", result.StatusCode, http.StatusServiceUnavailable)
		}
	})

	t.Run("returns error for connection failure", func(t *testing.T) {
		checker := NewHealthChecker("http://127.0.0.1:1/v1/health")
		result := checker.Check(context.Background())

		if result.Success {
			t.Error("Check() success = true, want false")
		}
		if result.Error == nil {
			t.Error("Check() error = nil, want non-nil")
		}
	})

	t.Run("respects context cancellation", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(1 * time.Second)
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()

		checker := NewHealthChecker(server.URL)
		result := checker.Check(ctx)

		if result.Success {
			t.Error("Check() success = true, want false (should timeout)")
		}
		if result.Error == nil {
			t.Error("Check() error = nil, want timeout error")
		}
	})
}

func TestHealthChecker_WaitUntilHealthy(t *testing.T) {
	t.Run("returns immediately for healthy endpoint", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		checker := NewHealthChecker(server.URL)
		start := time.Now()

		err := checker.WaitUntilHealthy(context.Background(), 5*time.Second)
		duration := time.Since(start)

		if err != nil {
			t.Errorf("WaitUntilHealthy() error = %v", err)
		}
		if duration > 1*time.Second {
			t.Errorf("WaitUntilHealthy() took %v, should be nearly instant", duration)
		}
	})

	t.Run("waits and succeeds when endpoint becomes healthy", func(t *testing.T) {
		var attempts atomic.Int32

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Become healthy after 3 attempts
			if attempts.Add(1) >= 3 {
				w.WriteHeader(http.StatusOK)
			} else {
				w.WriteHeader(http.StatusServiceUnavailable)
			}
		}))
		defer server.Close()

		checker := NewHealthChecker(server.URL)
		if err := checker.WaitUntilHealthy(context.Background(), 5*time.Second); err != nil {
			t.Errorf("WaitUntilHealthy() error = %v", err)
		}
		if attempts.Load() < 3 {
			t.Errorf("Expected at least 3 attempts, got %d", attempts.Load())
		}
	})

	t.Run("times out for persistently unhealthy endpoint", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer server.Close()

		checker := NewHealthChecker(server.URL)
		start := time.Now()

		err := checker.WaitUntilHealthy(context.Background(), 500*time.Millisecond)
		duration := time.Since(start)

		if !errors.Is(err, ErrHealthCheckTimeout) {
			t.Errorf("WaitUntilHealthy() error = %v, want ErrHealthCheckTimeout", err)
		}
		if duration < 500*time.Millisecond {
			t.Errorf("WaitUntilHealthy() returned too early: %v", duration)
		}
	})

	t.Run("stops when the caller context is cancelled", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer server.Close()

		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			time.Sleep(100 * time.Millisecond)
			cancel()
		}()

		c := NewHealthChecker(server.URL).WithBackoff(20*time.Millisecond, 100*time.Millisecond, 2.0)
		start := time.Now()
		err := c.WaitUntilHealthy(ctx, 10*time.Second)
		if err == nil {
			t.Fatal("WaitUntilHealthy() = nil, want error after cancel")
		}
		if elapsed := time.Since(start); elapsed > 2*time.Second {
			t.Errorf("WaitUntilHealthy() ran %v after cancel", elapsed)
		}
	})

	t.Run("uses exponential backoff", func(t *testing.T) {
		var mu sync.Mutex
		var requestTimes []time.Time

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			mu.Lock()
			requestTimes = append(requestTimes, time.Now())
			mu.Unlock()
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer server.Close()

		c := NewHealthChecker(server.URL).WithBackoff(50*time.Millisecond, 200*time.Millisecond, 2.0)
		c.WaitUntilHealthy(context.Background(), 1*time.Second)

		mu.Lock()
		defer mu.Unlock()
		if len(requestTimes) < 3 {
			t.Fatalf("Expected at least 3 requests, got %d", len(requestTimes))
		}

		// First interval ~50ms, second ~100ms from the 2x multiplier.
		interval1 := requestTimes[1].Sub(requestTimes[0])
		if interval1 < 40*time.Millisecond || interval1 > 100*time.Millisecond {
			t.Errorf("First interval = %v, want ~50ms", interval1)
		}

		interval2 := requestTimes[2].Sub(requestTimes[1])
		if interval2 < 80*time.Millisecond || interval2 > 150*time.Millisecond {
			t.Errorf("Second interval = %v, want ~100ms", interval2)
		}
	})
}
