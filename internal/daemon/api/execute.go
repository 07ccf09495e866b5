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
	"time"

	"github.com/skillsd/skillsd/internal/connector"
	"github.com/skillsd/skillsd/internal/daemon/httputil"
	"github.com/skillsd/skillsd/internal/history"
	"github.com/skillsd/skillsd/internal/log"
	"github.com/skillsd/skillsd/internal/permissions"
)

// circuitRetryAfter is the Retry-After hint for breaker-open rejections.
const circuitRetryAfter = 30 * time.Second

// ExecuteRequest is the request body for POST /v1/plugins/{plugin}/execute.
type ExecuteRequest struct {
	Operation string         `json:"operation"`
	Inputs    map[string]any `json:"inputs,omitempty"`
}

// ExecuteResponse is the success response for the execute endpoint.
type ExecuteResponse struct {
	Plugin     string         `json:"plugin"`
	Operation  string         `json:"operation"`
	DurationMS int64          `json:"duration_ms"`
	Response   any            `json:"response"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// handleExecute handles POST /v1/plugins/{plugin}/execute.
func (r *Router) handleExecute(w http.ResponseWriter, req *http.Request) {
	name := req.PathValue("plugin")
	if name == "" {
		httputil.WriteError(w, http.StatusBadRequest, "plugin name required")
		return
	}

	var body ExecuteRequest
	if err := httputil.DecodeJSON(w, req, &body); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			httputil.WriteError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if body.Operation == "" {
		httputil.WriteError(w, http.StatusBadRequest, "operation required")
		return
	}

	// Permission gate runs before the plugin lookup so probing blocked
	// names reveals nothing about which plugins exist.
	if err := r.policy.Check(permissions.QualifiedName(name, body.Operation)); err != nil {
		httputil.WriteError(w, http.StatusForbidden, err.Error())
		return
	}

	if r.plugins == nil {
		httputil.WriteError(w, http.StatusServiceUnavailable, "plugins are not available")
		return
	}

	p, err := r.plugins.Get(name)
	if err != nil {
		httputil.WriteError(w, http.StatusNotFound, err.Error())
		return
	}

	exec, ok := p.(connector.Executor)
	if !ok {
		httputil.WriteError(w, http.StatusNotImplemented, "plugin does not execute operations")
		return
	}

	opReq := &log.OperationRequest{
		Plugin:    name,
		Operation: body.Operation,
		RequestID: RequestIDFromContext(req.Context()),
	}

	var result *connector.Result
	start := time.Now()
	execErr := log.NewOperationMiddleware(r.logger).Handler(opReq, func() error {
		var err error
		result, err = exec.Execute(req.Context(), body.Operation, body.Inputs)
		return err
	})
	elapsed := time.Since(start)

	// Long operations count as activity at completion, not just arrival.
	if r.activity != nil {
		r.activity.Touch()
	}

	r.recordHistory(req.Context(), name, body.Operation, execErr, elapsed)

	if execErr != nil {
		status, retryAfter := statusForError(execErr)
		if retryAfter > 0 {
			httputil.WriteRetryError(w, status, retryAfter, execErr.Error())
			return
		}
		httputil.WriteError(w, status, execErr.Error())
		return
	}

	resp := ExecuteResponse{
		Plugin:     name,
		Operation:  body.Operation,
		DurationMS: elapsed.Milliseconds(),
		Response:   result.Response,
		Metadata:   result.Metadata,
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

// recordHistory persists the operation outcome. Recording is detached
// from request cancellation so an abandoned caller still leaves a trace.
func (r *Router) recordHistory(ctx context.Context, pluginName, operation string, execErr error, elapsed time.Duration) {
	if r.history == nil {
		return
	}

	rec := &history.Record{
		Plugin:     pluginName,
		Operation:  operation,
		Success:    execErr == nil,
		DurationMS: elapsed.Milliseconds(),
	}
	if execErr != nil {
		rec.Error = execErr.Error()
	}

	if err := r.history.Record(context.WithoutCancel(ctx), rec); err != nil {
		r.logger.Warn("failed to record operation history",
			log.String(log.PluginKey, pluginName),
			log.String(log.OperationKey, operation),
			log.Error(err))
	}
}

// statusForError maps the connector error taxonomy onto HTTP status
// codes. A positive Retry-After duration tells the caller when the
// request is worth repeating.
func statusForError(err error) (int, time.Duration) {
	var connErr *connector.Error
	if !errors.As(err, &connErr) {
		return http.StatusInternalServerError, 0
	}

	switch connErr.Type {
	case connector.ErrorTypeCircuitOpen:
		return http.StatusServiceUnavailable, circuitRetryAfter
	case connector.ErrorTypeNotConnected:
		return http.StatusConflict, 0
	case connector.ErrorTypeNotFound, connector.ErrorTypeNotImplemented:
		return http.StatusNotFound, 0
	case connector.ErrorTypeValidation, connector.ErrorTypeTransform:
		return http.StatusBadRequest, 0
	case connector.ErrorTypeRateLimit:
		return http.StatusTooManyRequests, circuitRetryAfter
	case connector.ErrorTypeTimeout:
		return http.StatusGatewayTimeout, 0
	case connector.ErrorTypeCancelled:
		return http.StatusRequestTimeout, 0
	default:
		// auth, server, connection: the upstream call failed.
		return http.StatusBadGateway, 0
	}
}
