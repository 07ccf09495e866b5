package httputil

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestWriteJSON(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		data       any
		wantStatus int
		wantJSON   string
	}{
		{
			name:       "success with map",
			status:     http.StatusOK,
			data:       map[string]string{"status": "running"},
			wantStatus: http.StatusOK,
			wantJSON:   `{"status":"running"}`,
		},
		{
			name:       "accepted with struct",
			status:     http.StatusAccepted,
			data:       struct{ ID int }{ID: 42},
			wantStatus: http.StatusAccepted,
			wantJSON:   `{"ID":42}`,
		},
		{
			name:       "error status code",
			status:     http.StatusBadGateway,
			data:       map[string]string{"error": "upstream failed"},
			wantStatus: http.StatusBadGateway,
			wantJSON:   `{"error":"upstream failed"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			WriteJSON(w, tt.status, tt.data)

			if w.Code != tt.wantStatus {
				t.Errorf("WriteJSON() status = %v, want %v", w.Code, tt.wantStatus)
			}

			if ct := w.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("WriteJSON() Content-Type = %v, want application/json", ct)
			}

			var got, want map[string]any
			if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
				t.Fatalf("Failed to unmarshal response: %v", err)
			}
			if err := json.Unmarshal([]byte(tt.wantJSON), &want); err != nil {
				t.Fatalf("Failed to unmarshal expected JSON: %v", err)
			}

			for k, v := range want {
				if got[k] != v {
					t.Errorf("WriteJSON() response[%s] = %v, want %v", k, got[k], v)
				}
			}
		})
	}
}

func TestWriteError(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(w, http.StatusNotFound, "plugin not found: jira")

	if w.Code != http.StatusNotFound {
		t.Errorf("WriteError() status = %v, want %v", w.Code, http.StatusNotFound)
	}

	var response map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
		t.Fatalf("Failed to unmarshal response: %v", err)
	}

	if response["error"] != "plugin not found: jira" {
		t.Errorf("WriteError() error message = %v", response["error"])
	}
}

func TestWriteRetryError(t *testing.T) {
	tests := []struct {
		name           string
		retryAfter     time.Duration
		wantRetryAfter string
	}{
		{name: "whole seconds", retryAfter: 30 * time.Second, wantRetryAfter: "30"},
		{name: "sub-second rounds up", retryAfter: 200 * time.Millisecond, wantRetryAfter: "1"},
		{name: "zero rounds up", retryAfter: 0, wantRetryAfter: "1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			WriteRetryError(w, http.StatusServiceUnavailable, tt.retryAfter, "circuit breaker is open")

			if w.Code != http.StatusServiceUnavailable {
				t.Errorf("WriteRetryError() status = %v, want %v", w.Code, http.StatusServiceUnavailable)
			}
			if got := w.Header().Get("Retry-After"); got != tt.wantRetryAfter {
				t.Errorf("WriteRetryError() Retry-After = %q, want %q", got, tt.wantRetryAfter)
			}

			var response map[string]string
			if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
				t.Fatalf("Failed to unmarshal response: %v", err)
			}
			if response["error"] != "circuit breaker is open" {
				t.Errorf("WriteRetryError() error message = %v", response["error"])
			}
		})
	}
}

func TestDecodeJSON(t *testing.T) {
	type payload struct {
		Operation string         `json:"operation"`
		Inputs    map[string]any `json:"inputs"`
	}

	t.Run("valid body", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/v1/plugins/jira/execute",
			strings.NewReader(`{"operation":"get_issue","inputs":{"key":"PROJ-1"}}`))
		w := httptest.NewRecorder()

		var p payload
		if err := DecodeJSON(w, req, &p); err != nil {
			t.Fatalf("DecodeJSON() error = %v", err)
		}
		if p.Operation != "get_issue" {
			t.Errorf("operation = %q, want get_issue", p.Operation)
		}
		if p.Inputs["key"] != "PROJ-1" {
			t.Errorf("inputs[key] = %v, want PROJ-1", p.Inputs["key"])
		}
	})

	t.Run("malformed body", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/", strings.NewReader(`{not json}`))
		w := httptest.NewRecorder()

		var p payload
		err := DecodeJSON(w, req, &p)
		if err == nil {
			t.Fatal("DecodeJSON() expected error for malformed JSON")
		}
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			t.Error("DecodeJSON() misclassified malformed JSON as oversized body")
		}
	})

	t.Run("oversized body", func(t *testing.T) {
		big := `{"operation":"` + strings.Repeat("x", MaxBodyBytes) + `"}`
		req := httptest.NewRequest("POST", "/", strings.NewReader(big))
		w := httptest.NewRecorder()

		var p payload
		err := DecodeJSON(w, req, &p)
		if err == nil {
			t.Fatal("DecodeJSON() expected error for oversized body")
		}
		var maxErr *http.MaxBytesError
		if !errors.As(err, &maxErr) {
			t.Errorf("DecodeJSON() error = %v, want *http.MaxBytesError", err)
		}
	})
}
