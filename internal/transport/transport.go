// Package transport provides protocol-level request execution for connectors.
//
// The transport layer separates protocol concerns (HTTP, OAuth2) from
// connector-level concerns (operation definition, input validation, result
// shaping). All transports implement the Transport interface, providing
// unified authentication, error classification, retry logic, and rate
// limiting for calls into downstream services.
package transport

import (
	"context"
)

// Transport executes requests with protocol-specific handling.
// Each implementation handles authentication, request construction, and
// error classification according to its protocol.
type Transport interface {
	// Execute sends a request and returns a response.
	// The context controls cancellation and deadlines.
	// Returns a *Error on failure.
	Execute(ctx context.Context, req *Request) (*Response, error)

	// Name returns the transport identifier (e.g., "http", "oauth2").
	Name() string

	// SetRateLimiter configures rate limiting for this transport.
	// The limiter is consulted before every request attempt.
	SetRateLimiter(limiter RateLimiter)
}

// Request is a transport-agnostic request.
type Request struct {
	// Method is the HTTP method (GET, POST, PUT, DELETE, PATCH, HEAD, OPTIONS).
	// Required, must be non-empty.
	Method string

	// URL is the request URL. May be a path relative to the
	// transport's base URL or a full http(s) URL.
	URL string

	// Headers are request headers. Optional.
	Headers map[string]string

	// Body is the request body. Optional.
	Body []byte
}

// Response is a transport-agnostic response.
type Response struct {
	// StatusCode is the HTTP status code.
	StatusCode int

	// Headers contains response headers.
	Headers map[string][]string

	// Body is the response body.
	Body []byte

	// Metadata contains transport-specific data (e.g., service request ID).
	Metadata map[string]interface{}
}

// Standard metadata keys used across transports.
const (
	// MetadataRequestID is the service request ID.
	MetadataRequestID = "request_id"

	// MetadataRetryCount is the number of retries performed for this request.
	MetadataRetryCount = "retry_count"
)

// RateLimiter provides rate limiting for transport requests.
// Implementations block until a request is allowed.
type RateLimiter interface {
	// Wait blocks until a request is allowed under the rate limit.
	// Returns an error if the context is cancelled before the request
	// can proceed.
	Wait(ctx context.Context) error
}
