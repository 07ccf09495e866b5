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
	"net/http"
	"strings"
	"testing"

	"github.com/skillsd/skillsd/internal/connector"
	"github.com/skillsd/skillsd/internal/permissions"
	"github.com/skillsd/skillsd/internal/plugin"
)

// executeRouter builds a router with one registered jira fake whose
// Execute returns execErr, plus a recording history store.
func executeRouter(t *testing.T, execErr error) (*Router, *fakeHistory) {
	t.Helper()

	reg := plugin.NewRegistry(testLogger())
	err := reg.Register(&fakePlugin{
		name: "jira",
		execute: func(ctx context.Context, operation string, inputs map[string]any) (*connector.Result, error) {
			if execErr != nil {
				return nil, execErr
			}
			return &connector.Result{
				Response:   map[string]any{"key": inputs["key"], "operation": operation},
				StatusCode: http.StatusOK,
			}, nil
		},
	})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	hist := &fakeHistory{}
	r := newTestRouter(t)
	r.SetPluginService(reg)
	r.SetHistoryStore(hist)

	return r, hist
}

func TestHandleExecute_Success(t *testing.T) {
	r, hist := executeRouter(t, nil)

	w := doRequest(t, r, "POST", "/v1/plugins/jira/execute",
		strings.NewReader(`{"operation":"get_issue","inputs":{"key":"PROJ-1"}}`))
	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d, want %d. Body: %s", w.Code, http.StatusOK, w.Body.String())
	}

	resp := decodeBody(t, w)
	if resp["plugin"] != "jira" {
		t.Errorf("plugin = %v, want jira", resp["plugin"])
	}
	if resp["operation"] != "get_issue" {
		t.Errorf("operation = %v, want get_issue", resp["operation"])
	}
	result, _ := resp["response"].(map[string]any)
	if result["key"] != "PROJ-1" {
		t.Errorf("response key = %v, want PROJ-1", result["key"])
	}

	records := hist.all()
	if len(records) != 1 {
		t.Fatalf("history records = %d, want 1", len(records))
	}
	if !records[0].Success || records[0].Plugin != "jira" || records[0].Operation != "get_issue" {
		t.Errorf("history record = %+v, want successful jira get_issue", records[0])
	}
}

func TestHandleExecute_Errors(t *testing.T) {
	tests := []struct {
		name           string
		path           string
		body           string
		execErr        error
		policy         *permissions.Policy
		wantStatus     int
		wantRetryAfter bool
		wantErrPart    string
		wantHistory    int
	}{
		{
			name:        "unknown plugin",
			path:        "/v1/plugins/nonexistent/execute",
			body:        `{"operation":"get_issue"}`,
			wantStatus:  http.StatusNotFound,
			wantErrPart: "plugin not found",
		},
		{
			name:        "missing operation",
			path:        "/v1/plugins/jira/execute",
			body:        `{"inputs":{}}`,
			wantStatus:  http.StatusBadRequest,
			wantErrPart: "operation required",
		},
		{
			name:        "malformed body",
			path:        "/v1/plugins/jira/execute",
			body:        `{not json}`,
			wantStatus:  http.StatusBadRequest,
			wantErrPart: "invalid JSON",
		},
		{
			name:        "blocked by policy",
			path:        "/v1/plugins/jira/execute",
			body:        `{"operation":"delete_issue"}`,
			policy:      &permissions.Policy{Blocked: []string{"jira.delete_*"}},
			wantStatus:  http.StatusForbidden,
			wantErrPart: "permission denied",
		},
		{
			name:        "not in allowed patterns",
			path:        "/v1/plugins/confluence/execute",
			body:        `{"operation":"get_page"}`,
			policy:      &permissions.Policy{Allowed: []string{"jira.*"}},
			wantStatus:  http.StatusForbidden,
			wantErrPart: "permission denied",
		},
		{
			name:           "circuit open",
			path:           "/v1/plugins/jira/execute",
			body:           `{"operation":"get_issue"}`,
			execErr:        connector.NewCircuitOpenError("jira", "get_issue"),
			wantStatus:     http.StatusServiceUnavailable,
			wantRetryAfter: true,
			wantErrPart:    "circuit breaker is open",
			wantHistory:    1,
		},
		{
			name:        "not connected",
			path:        "/v1/plugins/jira/execute",
			body:        `{"operation":"get_issue"}`,
			execErr:     connector.NewNotConnectedError("jira"),
			wantStatus:  http.StatusConflict,
			wantErrPart: "not connected",
			wantHistory: 1,
		},
		{
			name:        "unknown operation",
			path:        "/v1/plugins/jira/execute",
			body:        `{"operation":"explode"}`,
			execErr:     connector.NewUnknownOperationError("jira", "explode"),
			wantStatus:  http.StatusNotFound,
			wantErrPart: "unknown operation",
			wantHistory: 1,
		},
		{
			name: "upstream server error",
			path: "/v1/plugins/jira/execute",
			body: `{"operation":"get_issue"}`,
			execErr: &connector.Error{
				Type:       connector.ErrorTypeServer,
				Connector:  "jira",
				Operation:  "get_issue",
				Message:    "jira returned 500",
				StatusCode: 500,
			},
			wantStatus:  http.StatusBadGateway,
			wantErrPart: "jira returned 500",
			wantHistory: 1,
		},
		{
			name: "upstream auth failure",
			path: "/v1/plugins/jira/execute",
			body: `{"operation":"get_issue"}`,
			execErr: &connector.Error{
				Type:      connector.ErrorTypeAuth,
				Connector: "jira",
				Message:   "credentials rejected",
			},
			wantStatus:  http.StatusBadGateway,
			wantErrPart: "credentials rejected",
			wantHistory: 1,
		},
		{
			name: "upstream timeout",
			path: "/v1/plugins/jira/execute",
			body: `{"operation":"get_issue"}`,
			execErr: &connector.Error{
				Type:      connector.ErrorTypeTimeout,
				Connector: "jira",
				Message:   "request timed out",
			},
			wantStatus:  http.StatusGatewayTimeout,
			wantErrPart: "timed out",
			wantHistory: 1,
		},
		{
			name: "validation error",
			path: "/v1/plugins/jira/execute",
			body: `{"operation":"create_issue"}`,
			execErr: &connector.Error{
				Type:      connector.ErrorTypeValidation,
				Connector: "jira",
				Operation: "create_issue",
				Message:   "project is required",
			},
			wantStatus:  http.StatusBadRequest,
			wantErrPart: "project is required",
			wantHistory: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, hist := executeRouter(t, tt.execErr)
			if tt.policy != nil {
				r.SetPolicy(tt.policy)
			}

			w := doRequest(t, r, "POST", tt.path, strings.NewReader(tt.body))
			if w.Code != tt.wantStatus {
				t.Fatalf("Status = %d, want %d. Body: %s", w.Code, tt.wantStatus, w.Body.String())
			}

			if tt.wantRetryAfter && w.Header().Get("Retry-After") == "" {
				t.Error("response missing Retry-After header")
			}

			resp := decodeBody(t, w)
			errMsg, _ := resp["error"].(string)
			if !strings.Contains(errMsg, tt.wantErrPart) {
				t.Errorf("error = %q, want to contain %q", errMsg, tt.wantErrPart)
			}

			if got := len(hist.all()); got != tt.wantHistory {
				t.Errorf("history records = %d, want %d", got, tt.wantHistory)
			}
		})
	}
}

func TestHandleExecute_FailureRecordsHistory(t *testing.T) {
	r, hist := executeRouter(t, connector.NewCircuitOpenError("jira", "get_issue"))

	doRequest(t, r, "POST", "/v1/plugins/jira/execute", strings.NewReader(`{"operation":"get_issue"}`))

	records := hist.all()
	if len(records) != 1 {
		t.Fatalf("history records = %d, want 1", len(records))
	}
	if records[0].Success {
		t.Error("record marked successful for a failed operation")
	}
	if !strings.Contains(records[0].Error, "circuit breaker is open") {
		t.Errorf("record error = %q, want circuit breaker message", records[0].Error)
	}
}

func TestHandleExecute_HistoryFailureDoesNotFailRequest(t *testing.T) {
	r, hist := executeRouter(t, nil)
	hist.recordErr = context.DeadlineExceeded

	w := doRequest(t, r, "POST", "/v1/plugins/jira/execute", strings.NewReader(`{"operation":"get_issue"}`))
	if w.Code != http.StatusOK {
		t.Errorf("Status = %d, want %d despite history failure", w.Code, http.StatusOK)
	}
}

func TestHandleExecute_NonExecutorPlugin(t *testing.T) {
	reg := plugin.NewRegistry(testLogger())
	if err := reg.Register(&barePlugin{name: "static"}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	r := newTestRouter(t)
	r.SetPluginService(reg)

	w := doRequest(t, r, "POST", "/v1/plugins/static/execute", strings.NewReader(`{"operation":"noop"}`))
	if w.Code != http.StatusNotImplemented {
		t.Errorf("Status = %d, want %d", w.Code, http.StatusNotImplemented)
	}
}

func TestHandleExecute_OversizedBody(t *testing.T) {
	r, _ := executeRouter(t, nil)

	big := `{"operation":"` + strings.Repeat("x", 2<<20) + `"}`
	w := doRequest(t, r, "POST", "/v1/plugins/jira/execute", strings.NewReader(big))
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("Status = %d, want %d", w.Code, http.StatusRequestEntityTooLarge)
	}
}

func TestHandleExecute_TouchesActivity(t *testing.T) {
	r, _ := executeRouter(t, nil)
	activity := &fakeActivity{}
	r.SetActivityRecorder(activity)

	doRequest(t, r, "POST", "/v1/plugins/jira/execute", strings.NewReader(`{"operation":"get_issue"}`))

	// Once on arrival, once after the operation completed.
	if got := activity.touches.Load(); got != 2 {
		t.Errorf("touches = %d, want 2", got)
	}
}
