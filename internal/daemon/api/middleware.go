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
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/skillsd/skillsd/internal/daemon/httputil"
	"github.com/skillsd/skillsd/internal/log"
)

// RequestIDHeader carries the request ID on requests and responses.
const RequestIDHeader = "X-Request-ID"

type requestIDKey struct{}

// RequestIDFromContext returns the request ID assigned by the router
// middleware, or empty outside a request.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// requestIDMiddleware assigns each request a unique ID, honoring one
// supplied by the caller, and echoes it on the response.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		id := req.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}

		w.Header().Set(RequestIDHeader, id)
		ctx := context.WithValue(req.Context(), requestIDKey{}, id)
		next.ServeHTTP(w, req.WithContext(ctx))
	})
}

// loggingMiddleware logs every request with its status and duration and
// feeds the request metrics.
func (r *Router) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		defer func() {
			elapsed := time.Since(start)
			recordRequest(req.Method, req.URL.Path, rec.status, elapsed.Seconds())

			logger := r.logger
			if id := RequestIDFromContext(req.Context()); id != "" {
				logger = log.WithRequestID(logger, id)
			}
			logger.Info("request completed",
				slog.String("method", req.Method),
				slog.String("path", req.URL.Path),
				slog.Int("status", rec.status),
				slog.Int64("duration_ms", elapsed.Milliseconds()),
			)
		}()

		next.ServeHTTP(rec, req)
	})
}

// rateLimitMiddleware rejects requests beyond the configured token
// bucket with 429 and Retry-After. /v1/health and /metrics are exempt.
func (r *Router) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if r.limiter != nil && !exemptFromRateLimit(req.URL.Path) {
			if !r.limiter.Allow() {
				recordRateLimited()
				httputil.WriteRetryError(w, http.StatusTooManyRequests, time.Second, "rate limit exceeded")
				return
			}
		}
		next.ServeHTTP(w, req)
	})
}

func exemptFromRateLimit(path string) bool {
	return path == "/v1/health" || path == "/metrics"
}

// statusRecorder captures the response status for logging and metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
