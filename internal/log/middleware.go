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

package log

import (
	"log/slog"
	"time"
)

// OperationRequest describes a connector operation for logging purposes.
type OperationRequest struct {
	// Plugin is the plugin handling the operation.
	Plugin string

	// Operation is the operation name (e.g., "get_issue", "search_pages").
	Operation string

	// RequestID is the unique ID for this specific request.
	RequestID string

	// Metadata contains additional request metadata.
	Metadata map[string]interface{}
}

// OperationResult describes the outcome of a connector operation
// for logging purposes.
type OperationResult struct {
	// Success indicates whether the operation succeeded.
	Success bool

	// Error is the error message if the operation failed.
	Error string

	// DurationMs is the duration of the operation in milliseconds.
	DurationMs int64

	// Metadata contains additional result metadata.
	Metadata map[string]interface{}
}

// LogOperationStart logs an incoming connector operation.
func LogOperationStart(logger *slog.Logger, req *OperationRequest) {
	attrs := []any{
		EventKey, "operation_start",
		PluginKey, req.Plugin,
		OperationKey, req.Operation,
	}

	if req.RequestID != "" {
		attrs = append(attrs, "request_id", req.RequestID)
	}

	for k, v := range req.Metadata {
		attrs = append(attrs, k, v)
	}

	logger.Debug("operation started", attrs...)
}

// LogOperationEnd logs a completed connector operation.
func LogOperationEnd(logger *slog.Logger, req *OperationRequest, res *OperationResult) {
	attrs := []any{
		EventKey, "operation_end",
		PluginKey, req.Plugin,
		OperationKey, req.Operation,
		"success", res.Success,
		DurationKey, res.DurationMs,
	}

	if req.RequestID != "" {
		attrs = append(attrs, "request_id", req.RequestID)
	}

	if res.Error != "" {
		attrs = append(attrs, "error", res.Error)
	}

	for k, v := range res.Metadata {
		attrs = append(attrs, k, v)
	}

	level := slog.LevelInfo
	message := "operation completed"

	if !res.Success {
		level = slog.LevelError
		message = "operation failed"
	}

	logger.Log(nil, level, message, attrs...)
}

// OperationMiddleware wraps connector operation execution with logging.
// It logs the operation when it starts and the outcome when it completes.
type OperationMiddleware struct {
	logger *slog.Logger
}

// NewOperationMiddleware creates a new operation logging middleware.
func NewOperationMiddleware(logger *slog.Logger) *OperationMiddleware {
	return &OperationMiddleware{
		logger: logger,
	}
}

// Handler wraps a function that executes a connector operation.
// It logs the start and outcome automatically.
func (m *OperationMiddleware) Handler(req *OperationRequest, handler func() error) error {
	start := time.Now()

	LogOperationStart(m.logger, req)

	err := handler()

	duration := time.Since(start).Milliseconds()

	res := &OperationResult{
		Success:    err == nil,
		DurationMs: duration,
	}

	if err != nil {
		res.Error = err.Error()
	}

	LogOperationEnd(m.logger, req, res)

	return err
}
