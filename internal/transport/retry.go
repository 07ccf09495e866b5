package transport

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"strconv"
	"time"
)

// RetryConfig configures retry behavior for transport operations.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts including the first
	// (default: 3)
	MaxAttempts int

	// InitialBackoff is the initial backoff duration (default: 1s)
	InitialBackoff time.Duration

	// MaxBackoff is the maximum backoff duration (default: 30s)
	MaxBackoff time.Duration

	// BackoffFactor is the exponential backoff multiplier (default: 2.0)
	BackoffFactor float64

	// RetryableStatusCodes is the list of HTTP status codes to retry.
	// Default: [408, 429, 500, 502, 503, 504]
	RetryableStatusCodes []int
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:          3,
		InitialBackoff:       1 * time.Second,
		MaxBackoff:           30 * time.Second,
		BackoffFactor:        2.0,
		RetryableStatusCodes: []int{408, 429, 500, 502, 503, 504},
	}
}

// Validate checks if the retry configuration is valid.
func (c *RetryConfig) Validate() error {
	if c.MaxAttempts < 1 {
		return fmt.Errorf("max_attempts must be at least 1, got %d", c.MaxAttempts)
	}
	if c.InitialBackoff < 0 {
		return fmt.Errorf("initial_backoff must be non-negative, got %v", c.InitialBackoff)
	}
	if c.MaxBackoff < c.InitialBackoff {
		return fmt.Errorf("max_backoff (%v) must be >= initial_backoff (%v)", c.MaxBackoff, c.InitialBackoff)
	}
	if c.BackoffFactor < 1.0 {
		return fmt.Errorf("backoff_factor must be >= 1.0, got %f", c.BackoffFactor)
	}
	return nil
}

// IsRetryable returns true if the given status code should be retried.
func (c *RetryConfig) IsRetryable(statusCode int) bool {
	for _, code := range c.RetryableStatusCodes {
		if code == statusCode {
			return true
		}
	}
	return false
}

// ExecuteFunc executes a single request attempt.
type ExecuteFunc func(ctx context.Context) (*Response, error)

// ExecuteWithRetry runs the given function with bounded retries.
// Implements exponential backoff with jitter and Retry-After handling.
//
// Retry behavior:
//   - Retries on retryable status codes (408, 429, 5xx)
//   - Retries on connection errors and timeouts
//   - Does NOT retry on other 4xx errors
//   - Respects the Retry-After header when present
//   - Stops immediately on context cancellation
func ExecuteWithRetry(ctx context.Context, config *RetryConfig, fn ExecuteFunc) (*Response, error) {
	if config == nil {
		config = DefaultRetryConfig()
	}

	var lastErr error
	var resp *Response

	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		resp, lastErr = fn(ctx)

		// Success, return immediately.
		if lastErr == nil {
			if resp.Metadata == nil {
				resp.Metadata = make(map[string]interface{})
			}
			resp.Metadata[MetadataRetryCount] = attempt - 1
			return resp, nil
		}

		shouldRetry, retryAfter := shouldRetryError(lastErr, config)

		if attempt >= config.MaxAttempts || !shouldRetry {
			return nil, lastErr
		}

		// Check context before sleeping.
		if ctx.Err() != nil {
			return nil, &Error{
				Type:      ErrorTypeCancelled,
				Message:   "request cancelled before retry",
				Retryable: false,
				Cause:     ctx.Err(),
			}
		}

		delay := calculateBackoff(config, attempt, retryAfter)

		select {
		case <-time.After(delay):
			// Continue to next attempt.
		case <-ctx.Done():
			return nil, &Error{
				Type:      ErrorTypeCancelled,
				Message:   "request cancelled during retry backoff",
				Retryable: false,
				Cause:     ctx.Err(),
			}
		}
	}

	return nil, lastErr
}

// shouldRetryError determines if an error should be retried and extracts
// the Retry-After hint if present.
func shouldRetryError(err error, config *RetryConfig) (shouldRetry bool, retryAfter time.Duration) {
	var terr *Error
	if !errors.As(err, &terr) {
		// Unknown error type, don't retry.
		return false, 0
	}

	if !terr.Retryable {
		return false, 0
	}

	// For HTTP status code errors, check if the code is retryable.
	if terr.StatusCode > 0 {
		if !config.IsRetryable(terr.StatusCode) {
			return false, 0
		}

		if terr.StatusCode == 429 || terr.StatusCode == 503 {
			retryAfter = extractRetryAfter(terr)
		}
	}

	return true, retryAfter
}

// calculateBackoff calculates the backoff delay for a retry attempt.
//
// Formula: delay = min(InitialBackoff * (BackoffFactor ^ (attempt - 1)), MaxBackoff) + jitter
// Jitter: random [0ms, 100ms]
func calculateBackoff(config *RetryConfig, attempt int, retryAfter time.Duration) time.Duration {
	baseDelay := float64(config.InitialBackoff)
	for i := 1; i < attempt; i++ {
		baseDelay *= config.BackoffFactor
	}

	if baseDelay > float64(config.MaxBackoff) {
		baseDelay = float64(config.MaxBackoff)
	}

	delay := time.Duration(baseDelay)

	// When Retry-After is specified use max(calculated, retry_after),
	// capped at MaxBackoff to avoid waiting indefinitely.
	if retryAfter > 0 {
		if retryAfter > delay {
			delay = retryAfter
		}
		if delay > config.MaxBackoff {
			delay = config.MaxBackoff
		}
	}

	jitter := time.Duration(rand.Int63n(101)) * time.Millisecond

	return delay + jitter
}

// extractRetryAfter extracts the Retry-After value from error metadata.
// Returns 0 if not present or invalid.
//
// Supports two formats:
//   - Numeric: seconds to wait (e.g., "120")
//   - HTTP-date: absolute time (e.g., "Wed, 21 Oct 2015 07:28:00 GMT")
func extractRetryAfter(err *Error) time.Duration {
	if err.Metadata == nil {
		return 0
	}

	raw, ok := err.Metadata["retry_after"]
	if !ok {
		return 0
	}

	str, ok := raw.(string)
	if !ok {
		return 0
	}

	if seconds, perr := strconv.ParseInt(str, 10, 64); perr == nil {
		return time.Duration(seconds) * time.Second
	}

	retryTime, perr := http.ParseTime(str)
	if perr != nil {
		// Malformed Retry-After, fall back to calculated backoff.
		return 0
	}

	delay := time.Until(retryTime)
	if delay < 0 {
		return 0
	}

	return delay
}
