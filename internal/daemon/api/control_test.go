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

package api

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"
)

// fakeShutdown signals when the trigger fires.
type fakeShutdown struct {
	triggered chan struct{}
}

func newFakeShutdown() *fakeShutdown {
	return &fakeShutdown{triggered: make(chan struct{})}
}

func (s *fakeShutdown) TriggerShutdown() { close(s.triggered) }

// fakeReloader returns canned reload results.
type fakeReloader struct {
	results map[string]bool
	err     error
}

func (f *fakeReloader) ReloadPlugins(ctx context.Context) (map[string]bool, error) {
	return f.results, f.err
}

func TestHandleShutdown(t *testing.T) {
	trigger := newFakeShutdown()
	r := newTestRouter(t)
	r.SetShutdownTrigger(trigger)

	w := doRequest(t, r, "POST", "/v1/shutdown", nil)
	if w.Code != http.StatusAccepted {
		t.Fatalf("Status = %d, want %d", w.Code, http.StatusAccepted)
	}

	resp := decodeBody(t, w)
	if resp["status"] != "shutting_down" {
		t.Errorf("status = %v, want shutting_down", resp["status"])
	}

	// The trigger fires after the response is written.
	select {
	case <-trigger.triggered:
	case <-time.After(time.Second):
		t.Fatal("shutdown trigger never fired")
	}
}

func TestHandleShutdown_NoTrigger(t *testing.T) {
	r := newTestRouter(t)

	w := doRequest(t, r, "POST", "/v1/shutdown", nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Status = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}
}

func TestHandleReload(t *testing.T) {
	tests := []struct {
		name        string
		reloader    *fakeReloader
		wantStatus  int
		wantStarted float64
		wantFailed  float64
	}{
		{
			name: "all plugins restart",
			reloader: &fakeReloader{
				results: map[string]bool{"jira": true, "confluence": true},
			},
			wantStatus:  http.StatusOK,
			wantStarted: 2,
		},
		{
			name: "partial failure",
			reloader: &fakeReloader{
				results: map[string]bool{"jira": true, "confluence": false},
			},
			wantStatus:  http.StatusOK,
			wantStarted: 1,
			wantFailed:  1,
		},
		{
			name:       "reload already running",
			reloader:   &fakeReloader{err: ErrReloadInProgress},
			wantStatus: http.StatusConflict,
		},
		{
			name:       "reload fails",
			reloader:   &fakeReloader{err: errors.New("config is invalid")},
			wantStatus: http.StatusUnprocessableEntity,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRouter(t)
			r.SetPluginReloader(tt.reloader)

			w := doRequest(t, r, "POST", "/v1/reload-plugins", nil)
			if w.Code != tt.wantStatus {
				t.Fatalf("Status = %d, want %d. Body: %s", w.Code, tt.wantStatus, w.Body.String())
			}
			if tt.wantStatus != http.StatusOK {
				return
			}

			resp := decodeBody(t, w)
			if resp["started"] != tt.wantStarted {
				t.Errorf("started = %v, want %v", resp["started"], tt.wantStarted)
			}
			if resp["failed"] != tt.wantFailed {
				t.Errorf("failed = %v, want %v", resp["failed"], tt.wantFailed)
			}
		})
	}
}

func TestHandleReload_NoReloader(t *testing.T) {
	r := newTestRouter(t)

	w := doRequest(t, r, "POST", "/v1/reload-plugins", nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Status = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}
}
