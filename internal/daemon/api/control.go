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
	"errors"
	"net/http"

	"github.com/skillsd/skillsd/internal/daemon/httputil"
)

// ErrReloadInProgress is returned by PluginReloader implementations when
// a reload is already running. The endpoint maps it to 409.
var ErrReloadInProgress = errors.New("plugin reload already in progress")

// handleShutdown handles POST /v1/shutdown. The trigger runs after the
// response is written; a synchronous trigger would deadlock against the
// server draining this very request.
func (r *Router) handleShutdown(w http.ResponseWriter, req *http.Request) {
	if r.shutdown == nil {
		httputil.WriteError(w, http.StatusServiceUnavailable, "shutdown is not available")
		return
	}

	r.logger.Info("shutdown requested via API")
	httputil.WriteJSON(w, http.StatusAccepted, map[string]string{
		"status": "shutting_down",
	})

	go r.shutdown.TriggerShutdown()
}

// ReloadResponse is the response format for /v1/reload-plugins.
type ReloadResponse struct {
	Plugins map[string]bool `json:"plugins"`
	Started int             `json:"started"`
	Failed  int             `json:"failed"`
}

// handleReload handles POST /v1/reload-plugins.
func (r *Router) handleReload(w http.ResponseWriter, req *http.Request) {
	if r.reloader == nil {
		httputil.WriteError(w, http.StatusServiceUnavailable, "plugin reload is not available")
		return
	}

	results, err := r.reloader.ReloadPlugins(req.Context())
	if err != nil {
		if errors.Is(err, ErrReloadInProgress) {
			httputil.WriteError(w, http.StatusConflict, err.Error())
			return
		}
		httputil.WriteError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	resp := ReloadResponse{Plugins: results}
	for _, ok := range results {
		if ok {
			resp.Started++
		} else {
			resp.Failed++
		}
	}

	httputil.WriteJSON(w, http.StatusOK, resp)
}
