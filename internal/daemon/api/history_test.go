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
	"net/http"
	"testing"
	"time"

	"github.com/skillsd/skillsd/internal/history"
)

func TestHandleHistory(t *testing.T) {
	hist := &fakeHistory{
		records: []*history.Record{
			{ID: "a", Time: time.Now(), Plugin: "jira", Operation: "get_issue", Success: true},
			{ID: "b", Time: time.Now(), Plugin: "confluence", Operation: "get_page", Success: false, Error: "boom"},
		},
	}
	r := newTestRouter(t)
	r.SetHistoryStore(hist)

	w := doRequest(t, r, "GET", "/v1/history", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d, want %d. Body: %s", w.Code, http.StatusOK, w.Body.String())
	}

	resp := decodeBody(t, w)
	if resp["count"] != float64(2) {
		t.Errorf("count = %v, want 2", resp["count"])
	}
	records, _ := resp["records"].([]any)
	if len(records) != 2 {
		t.Fatalf("records = %d, want 2", len(records))
	}

	if hist.lastLimit != defaultHistoryLimit {
		t.Errorf("limit = %d, want default %d", hist.lastLimit, defaultHistoryLimit)
	}
}

func TestHandleHistory_Filters(t *testing.T) {
	hist := &fakeHistory{}
	r := newTestRouter(t)
	r.SetHistoryStore(hist)

	w := doRequest(t, r, "GET", "/v1/history?plugin=jira&operation=get_issue&limit=5", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d, want %d", w.Code, http.StatusOK)
	}

	if hist.lastFilter.Plugin != "jira" {
		t.Errorf("filter plugin = %q, want jira", hist.lastFilter.Plugin)
	}
	if hist.lastFilter.Operation != "get_issue" {
		t.Errorf("filter operation = %q, want get_issue", hist.lastFilter.Operation)
	}
	if hist.lastLimit != 5 {
		t.Errorf("limit = %d, want 5", hist.lastLimit)
	}

	// No records stored. The response still carries an empty array.
	resp := decodeBody(t, w)
	if resp["count"] != float64(0) {
		t.Errorf("count = %v, want 0", resp["count"])
	}
	if _, ok := resp["records"].([]any); !ok {
		t.Errorf("records = %T, want JSON array", resp["records"])
	}
}

func TestHandleHistory_InvalidLimit(t *testing.T) {
	tests := []string{"abc", "0", "-3", "1.5"}

	for _, limit := range tests {
		t.Run(limit, func(t *testing.T) {
			r := newTestRouter(t)
			r.SetHistoryStore(&fakeHistory{})

			w := doRequest(t, r, "GET", "/v1/history?limit="+limit, nil)
			if w.Code != http.StatusBadRequest {
				t.Errorf("Status = %d, want %d", w.Code, http.StatusBadRequest)
			}
		})
	}
}

func TestHandleHistory_NotEnabled(t *testing.T) {
	r := newTestRouter(t)

	w := doRequest(t, r, "GET", "/v1/history", nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Status = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}
}
