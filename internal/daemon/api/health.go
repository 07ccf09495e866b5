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
	"os"
	"runtime"
	"time"

	"github.com/skillsd/skillsd/internal/connector"
	"github.com/skillsd/skillsd/internal/daemon/httputil"
	"github.com/skillsd/skillsd/internal/idle"
	"github.com/skillsd/skillsd/internal/plugin"
)

var startTime = time.Now()

// HealthResponse is the response format for /v1/health. The endpoint
// answers 200 whenever the daemon is up; individual plugin failures show
// in PluginHealth, never in the status code.
type HealthResponse struct {
	Status       string                   `json:"status"`
	Version      string                   `json:"version"`
	Plugins      []string                 `json:"plugins"`
	PluginHealth map[string]plugin.Health `json:"plugin_health"`
}

// handleHealth handles GET /v1/health.
func (r *Router) handleHealth(w http.ResponseWriter, req *http.Request) {
	resp := HealthResponse{
		Status:       "running",
		Version:      r.config.Version,
		Plugins:      []string{},
		PluginHealth: map[string]plugin.Health{},
	}

	if r.plugins != nil {
		for _, info := range r.plugins.ListPlugins() {
			resp.Plugins = append(resp.Plugins, info.Name)
		}
		resp.PluginHealth = r.plugins.HealthAll(req.Context())
	}

	httputil.WriteJSON(w, http.StatusOK, resp)
}

// VersionResponse is the response format for /v1/version.
type VersionResponse struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

// handleVersion handles GET /v1/version.
func (r *Router) handleVersion(w http.ResponseWriter, req *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, VersionResponse{
		Version:   r.config.Version,
		Commit:    r.config.Commit,
		BuildDate: r.config.BuildDate,
		GoVersion: runtime.Version(),
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	})
}

// StatusResponse is the response format for /v1/status.
type StatusResponse struct {
	Status        string                    `json:"status"`
	Version       string                    `json:"version"`
	PID           int                       `json:"pid"`
	UptimeSeconds float64                   `json:"uptime_seconds"`
	Idle          *idle.Status              `json:"idle,omitempty"`
	Connectors    *connector.RegistryStatus `json:"connectors,omitempty"`
	Plugins       []plugin.Info             `json:"plugins,omitempty"`
}

// handleStatus handles GET /v1/status.
func (r *Router) handleStatus(w http.ResponseWriter, req *http.Request) {
	resp := StatusResponse{
		Status:        "running",
		Version:       r.config.Version,
		PID:           os.Getpid(),
		UptimeSeconds: time.Since(startTime).Round(100 * time.Millisecond).Seconds(),
	}

	if r.idle != nil {
		status := r.idle.Status()
		resp.Idle = &status
	}
	if r.conns != nil {
		status := r.conns.Status()
		resp.Connectors = &status
	}
	if r.plugins != nil {
		resp.Plugins = r.plugins.ListPlugins()
	}

	httputil.WriteJSON(w, http.StatusOK, resp)
}
