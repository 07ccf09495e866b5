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
	"fmt"
	"net/http"
	"strconv"

	"github.com/skillsd/skillsd/internal/daemon/httputil"
	"github.com/skillsd/skillsd/internal/history"
)

// defaultHistoryLimit bounds GET /v1/history when no limit is given.
const defaultHistoryLimit = 50

// handleHistory handles GET /v1/history?plugin=&operation=&limit=.
func (r *Router) handleHistory(w http.ResponseWriter, req *http.Request) {
	if r.history == nil {
		httputil.WriteError(w, http.StatusServiceUnavailable, "operation history is not enabled")
		return
	}

	limit := defaultHistoryLimit
	if raw := req.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			httputil.WriteError(w, http.StatusBadRequest, fmt.Sprintf("invalid limit: %q", raw))
			return
		}
		limit = parsed
	}

	filter := history.Filter{
		Plugin:    req.URL.Query().Get("plugin"),
		Operation: req.URL.Query().Get("operation"),
	}

	records, err := r.history.List(req.Context(), filter, limit)
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, fmt.Sprintf("failed to list history: %v", err))
		return
	}
	if records == nil {
		records = []*history.Record{}
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"records": records,
		"count":   len(records),
	})
}
