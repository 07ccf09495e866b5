// Package httputil provides the small response and body helpers shared
// by the daemon's HTTP handlers.
package httputil

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"
)

// MaxBodyBytes caps request bodies accepted by DecodeJSON.
const MaxBodyBytes = 1 << 20

// WriteJSON writes a JSON response with the given status code and data.
// If encoding fails, it logs the error; headers are already flushed.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to write JSON response", slog.Any("error", err))
	}
}

// WriteError writes a JSON error response with the given status code and
// message.
func WriteError(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, map[string]string{
		"error": message,
	})
}

// WriteRetryError writes a JSON error response with a Retry-After header
// telling the caller when the request is worth repeating. Sub-second
// waits round up to one second.
func WriteRetryError(w http.ResponseWriter, status int, retryAfter time.Duration, message string) {
	seconds := int(retryAfter / time.Second)
	if seconds < 1 {
		seconds = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(seconds))
	WriteError(w, status, message)
}

// DecodeJSON decodes a JSON request body into dst, enforcing the
// MaxBodyBytes cap. Oversized bodies surface as *http.MaxBytesError so
// handlers can answer 413 instead of 400.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}
