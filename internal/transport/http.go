package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// HTTPTransport implements the Transport interface for HTTP/HTTPS requests.
// Supports bearer, basic, and API key authentication with configurable
// timeouts and default headers.
type HTTPTransport struct {
	config      *HTTPConfig
	client      *http.Client
	rateLimiter RateLimiter
}

// HTTPConfig configures the HTTP transport.
type HTTPConfig struct {
	// BaseURL is the base URL for requests (required)
	BaseURL string

	// Timeout is the request timeout (default: 30s)
	Timeout time.Duration

	// Headers are default headers applied to all requests
	Headers map[string]string

	// Auth configures authentication
	Auth *AuthConfig

	// Retry configures retry behavior (optional, uses defaults if nil)
	Retry *RetryConfig

	// MaxResponseSize caps how many response body bytes are read
	// (default: 10MB). Larger responses fail with a server error.
	MaxResponseSize int64
}

// DefaultMaxResponseSize bounds response bodies when MaxResponseSize
// is not configured.
const DefaultMaxResponseSize = 10 * 1024 * 1024

// AuthConfig configures HTTP authentication.
type AuthConfig struct {
	// Type is the authentication type ("bearer", "basic", "api_key")
	Type string

	// Token is the bearer token (for type: bearer)
	Token string

	// Username for basic auth (type: basic)
	Username string

	// Password for basic auth (type: basic)
	Password string

	// HeaderName is the header name for API key auth (type: api_key),
	// e.g. "X-API-Key"
	HeaderName string

	// HeaderValue is the API key value (type: api_key)
	HeaderValue string
}

// Validate checks if the configuration is valid.
func (c *HTTPConfig) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base_url is required")
	}

	parsedURL, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid base_url: %w", err)
	}

	if parsedURL.Scheme == "" {
		return fmt.Errorf("base_url must include scheme (http:// or https://)")
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("base_url must include host")
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return fmt.Errorf("base_url scheme must be http or https, got %q", parsedURL.Scheme)
	}

	if c.Timeout < 0 {
		return fmt.Errorf("timeout must be non-negative, got %v", c.Timeout)
	}

	if c.MaxResponseSize < 0 {
		return fmt.Errorf("max_response_size must be non-negative, got %d", c.MaxResponseSize)
	}

	if c.Auth != nil {
		if err := c.Auth.Validate(); err != nil {
			return fmt.Errorf("invalid auth configuration: %w", err)
		}
	}

	if c.Retry != nil {
		if err := c.Retry.Validate(); err != nil {
			return fmt.Errorf("invalid retry configuration: %w", err)
		}
	}

	return nil
}

// Validate checks if the auth configuration is valid.
// Credential values are expected to be already resolved through the
// secrets layer by the time the transport is constructed.
func (a *AuthConfig) Validate() error {
	switch a.Type {
	case "bearer":
		if a.Token == "" {
			return fmt.Errorf("token is required for bearer auth")
		}

	case "basic":
		if a.Username == "" {
			return fmt.Errorf("username is required for basic auth")
		}
		if a.Password == "" {
			return fmt.Errorf("password is required for basic auth")
		}

	case "api_key":
		if a.HeaderName == "" {
			return fmt.Errorf("header_name is required for api_key auth")
		}
		if a.HeaderValue == "" {
			return fmt.Errorf("header_value is required for api_key auth")
		}

	default:
		return fmt.Errorf("invalid auth type: %q (must be bearer, basic, or api_key)", a.Type)
	}

	return nil
}

// NewHTTPTransport creates a new HTTP transport with the given configuration.
func NewHTTPTransport(config *HTTPConfig) (*HTTPTransport, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	timeout := config.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	client := &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,

			DialContext: (&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout:   10 * time.Second,
			ResponseHeaderTimeout: timeout,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}

	return &HTTPTransport{
		config: config,
		client: client,
	}, nil
}

// Name returns "http".
func (t *HTTPTransport) Name() string {
	return "http"
}

// BaseURL returns the configured base URL.
func (t *HTTPTransport) BaseURL() string {
	return t.config.BaseURL
}

// SetRateLimiter configures rate limiting for this transport.
func (t *HTTPTransport) SetRateLimiter(limiter RateLimiter) {
	t.rateLimiter = limiter
}

// Execute sends an HTTP request and returns the response.
// Failed attempts are retried with exponential backoff.
func (t *HTTPTransport) Execute(ctx context.Context, req *Request) (*Response, error) {
	if err := validateRequest(req); err != nil {
		return nil, &Error{
			Type:      ErrorTypeInvalidReq,
			Message:   fmt.Sprintf("invalid request: %s", err.Error()),
			Retryable: false,
			Cause:     err,
		}
	}

	retryConfig := t.config.Retry
	if retryConfig == nil {
		retryConfig = DefaultRetryConfig()
	}

	return ExecuteWithRetry(ctx, retryConfig, func(ctx context.Context) (*Response, error) {
		return t.executeOnce(ctx, req)
	})
}

// executeOnce executes a single HTTP request without retry logic.
func (t *HTTPTransport) executeOnce(ctx context.Context, req *Request) (*Response, error) {
	// Apply rate limiting if configured.
	if t.rateLimiter != nil {
		if err := t.rateLimiter.Wait(ctx); err != nil {
			return nil, &Error{
				Type:      ErrorTypeCancelled,
				Message:   "rate limit wait cancelled",
				Retryable: false,
				Cause:     err,
			}
		}
	}

	httpReq, err := t.buildHTTPRequest(ctx, req)
	if err != nil {
		return nil, &Error{
			Type:      ErrorTypeInvalidReq,
			Message:   fmt.Sprintf("failed to build HTTP request: %s", err.Error()),
			Retryable: false,
			Cause:     err,
		}
	}

	httpResp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, classifyHTTPError(err)
	}
	defer httpResp.Body.Close()

	// Bound the read so a misbehaving downstream cannot exhaust memory.
	maxSize := t.config.MaxResponseSize
	if maxSize == 0 {
		maxSize = DefaultMaxResponseSize
	}
	body, err := io.ReadAll(io.LimitReader(httpResp.Body, maxSize+1))
	if err != nil {
		return nil, &Error{
			Type:      ErrorTypeConnection,
			Message:   fmt.Sprintf("failed to read response body: %s", err.Error()),
			Retryable: true,
			Cause:     err,
		}
	}
	if int64(len(body)) > maxSize {
		return nil, &Error{
			Type:       ErrorTypeServer,
			StatusCode: httpResp.StatusCode,
			Message:    fmt.Sprintf("response body exceeds %d bytes", maxSize),
			Retryable:  false,
		}
	}

	resp := &Response{
		StatusCode: httpResp.StatusCode,
		Headers:    httpResp.Header,
		Body:       body,
		Metadata:   make(map[string]interface{}),
	}

	if requestID := httpResp.Header.Get("X-Request-ID"); requestID != "" {
		resp.Metadata[MetadataRequestID] = requestID
	}

	if httpResp.StatusCode >= 400 {
		if retryAfter := httpResp.Header.Get("Retry-After"); retryAfter != "" {
			resp.Metadata["retry_after"] = retryAfter
		}
		return nil, classifyHTTPStatusError(httpResp.StatusCode, body, resp.Metadata)
	}

	return resp, nil
}

// validateRequest checks if the request is valid.
func validateRequest(req *Request) error {
	if req.Method == "" {
		return fmt.Errorf("method is required")
	}

	validMethods := map[string]bool{
		"GET": true, "POST": true, "PUT": true, "DELETE": true,
		"PATCH": true, "HEAD": true, "OPTIONS": true,
	}
	if !validMethods[req.Method] {
		return fmt.Errorf("invalid HTTP method: %q", req.Method)
	}

	if req.URL == "" {
		return fmt.Errorf("URL is required")
	}

	if _, err := url.Parse(req.URL); err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	return nil
}

// buildHTTPRequest constructs an http.Request from a transport Request.
func (t *HTTPTransport) buildHTTPRequest(ctx context.Context, req *Request) (*http.Request, error) {
	var bodyReader io.Reader
	if req.Body != nil {
		bodyReader = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, t.resolveURL(req.URL), bodyReader)
	if err != nil {
		return nil, err
	}

	// Default headers from config first, request headers override.
	for key, value := range t.config.Headers {
		httpReq.Header.Set(key, value)
	}
	for key, value := range req.Headers {
		httpReq.Header.Set(key, value)
	}

	if t.config.Auth != nil {
		if err := t.applyAuth(httpReq); err != nil {
			return nil, err
		}
	}

	if req.Body != nil && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	return httpReq, nil
}

// resolveURL resolves a request URL against the transport's base URL.
// Absolute URLs pass through unchanged so callers can still hit
// endpoints outside the base path when an API demands it.
func (t *HTTPTransport) resolveURL(reqURL string) string {
	if strings.HasPrefix(reqURL, "http://") || strings.HasPrefix(reqURL, "https://") {
		return reqURL
	}
	base := strings.TrimSuffix(t.config.BaseURL, "/")
	if !strings.HasPrefix(reqURL, "/") {
		reqURL = "/" + reqURL
	}
	return base + reqURL
}

// applyAuth applies authentication to the HTTP request.
func (t *HTTPTransport) applyAuth(req *http.Request) error {
	auth := t.config.Auth

	switch auth.Type {
	case "bearer":
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", auth.Token))

	case "basic":
		req.SetBasicAuth(auth.Username, auth.Password)

	case "api_key":
		req.Header.Set(auth.HeaderName, auth.HeaderValue)

	default:
		return fmt.Errorf("unsupported auth type: %q", auth.Type)
	}

	return nil
}

// classifyHTTPError classifies HTTP client errors into transport error types.
func classifyHTTPError(err error) *Error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) ||
		strings.Contains(err.Error(), "context canceled") || strings.Contains(err.Error(), "context deadline exceeded") {
		return &Error{
			Type:      ErrorTypeCancelled,
			Message:   "request cancelled",
			Retryable: false,
			Cause:     err,
		}
	}

	if isTimeoutError(err) {
		return &Error{
			Type:      ErrorTypeTimeout,
			Message:   "request timeout",
			Retryable: true,
			Cause:     err,
		}
	}

	if isConnectionError(err) {
		return &Error{
			Type:      ErrorTypeConnection,
			Message:   "connection error",
			Retryable: true,
			Cause:     err,
		}
	}

	// Default to connection error (retryable).
	return &Error{
		Type:      ErrorTypeConnection,
		Message:   fmt.Sprintf("HTTP error: %s", err.Error()),
		Retryable: true,
		Cause:     err,
	}
}

// classifyHTTPStatusError classifies HTTP status code errors.
func classifyHTTPStatusError(statusCode int, body []byte, metadata map[string]interface{}) *Error {
	var errorType ErrorType
	var retryable bool

	switch {
	case statusCode == 401 || statusCode == 403:
		errorType = ErrorTypeAuth
		retryable = false
	case statusCode == 429:
		errorType = ErrorTypeRateLimit
		retryable = true
	case statusCode >= 500:
		errorType = ErrorTypeServer
		retryable = true
	case statusCode == 408:
		errorType = ErrorTypeTimeout
		retryable = true
	default:
		// Other 4xx errors.
		errorType = ErrorTypeClient
		retryable = false
	}

	// Include small error responses in the message; large bodies are
	// truncated to avoid log noise and accidental data leaks.
	message := fmt.Sprintf("HTTP %d", statusCode)
	if len(body) > 0 && len(body) < 500 {
		message = fmt.Sprintf("HTTP %d: %s", statusCode, strings.TrimSpace(string(body)))
	}

	return &Error{
		Type:       errorType,
		StatusCode: statusCode,
		Message:    message,
		Retryable:  retryable,
		Metadata:   metadata,
	}
}

// isTimeoutError checks if an error is a timeout error.
func isTimeoutError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return false
}

// isConnectionError checks if an error is a connection error.
func isConnectionError(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}

	errMsg := strings.ToLower(err.Error())
	connectionKeywords := []string{
		"connection refused",
		"connection reset",
		"no such host",
		"network unreachable",
		"eof",
	}

	for _, keyword := range connectionKeywords {
		if strings.Contains(errMsg, keyword) {
			return true
		}
	}

	return false
}
