package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// OAuth2Transport implements the Transport interface for OAuth2-protected
// APIs. Token acquisition and refresh are delegated to the oauth2 package's
// reusable token source, so callers never handle tokens directly.
type OAuth2Transport struct {
	config      *OAuth2Config
	client      *http.Client
	base        *HTTPTransport
	rateLimiter RateLimiter
}

// OAuth2Config configures the OAuth2 transport.
type OAuth2Config struct {
	// BaseURL is the base URL for API requests (required)
	BaseURL string

	// TokenURL is the OAuth2 token endpoint (required)
	TokenURL string

	// ClientID is the OAuth2 client identifier (required)
	ClientID string

	// ClientSecret is the OAuth2 client secret (required)
	ClientSecret string

	// GrantType selects the flow: "client_credentials" (default) or
	// "refresh_token"
	GrantType string

	// RefreshToken seeds the token source for the refresh_token grant
	RefreshToken string

	// Scopes are the OAuth2 scopes to request
	Scopes []string

	// Timeout is the request timeout (default: 30s)
	Timeout time.Duration

	// Headers are default headers applied to all requests
	Headers map[string]string

	// Retry configures retry behavior (optional, uses defaults if nil)
	Retry *RetryConfig
}

// Validate checks if the configuration is valid.
func (c *OAuth2Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base_url is required")
	}
	if c.TokenURL == "" {
		return fmt.Errorf("token_url is required")
	}
	if c.ClientID == "" {
		return fmt.Errorf("client_id is required")
	}
	if c.ClientSecret == "" {
		return fmt.Errorf("client_secret is required")
	}

	switch c.GrantType {
	case "", "client_credentials":
	case "refresh_token":
		if c.RefreshToken == "" {
			return fmt.Errorf("refresh_token is required for refresh_token grant")
		}
	default:
		return fmt.Errorf("invalid grant_type: %q (must be client_credentials or refresh_token)", c.GrantType)
	}

	if c.Timeout < 0 {
		return fmt.Errorf("timeout must be non-negative, got %v", c.Timeout)
	}

	if c.Retry != nil {
		if err := c.Retry.Validate(); err != nil {
			return fmt.Errorf("invalid retry configuration: %w", err)
		}
	}

	return nil
}

// NewOAuth2Transport creates a new OAuth2 transport. The returned transport
// obtains its first token lazily on the first request.
func NewOAuth2Transport(config *OAuth2Config) (*OAuth2Transport, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	timeout := config.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	// The underlying HTTP transport handles request building, retry, and
	// error classification; the oauth2 client layered on top injects
	// Authorization headers and refreshes tokens as they expire.
	base, err := NewHTTPTransport(&HTTPConfig{
		BaseURL: config.BaseURL,
		Timeout: timeout,
		Headers: config.Headers,
		Retry:   config.Retry,
	})
	if err != nil {
		return nil, err
	}

	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, &http.Client{
		Timeout: timeout,
	})

	var source oauth2.TokenSource
	switch config.GrantType {
	case "", "client_credentials":
		cc := &clientcredentials.Config{
			ClientID:     config.ClientID,
			ClientSecret: config.ClientSecret,
			TokenURL:     config.TokenURL,
			Scopes:       config.Scopes,
		}
		source = cc.TokenSource(ctx)

	case "refresh_token":
		oc := &oauth2.Config{
			ClientID:     config.ClientID,
			ClientSecret: config.ClientSecret,
			Endpoint:     oauth2.Endpoint{TokenURL: config.TokenURL},
			Scopes:       config.Scopes,
		}
		source = oc.TokenSource(ctx, &oauth2.Token{RefreshToken: config.RefreshToken})
	}

	client := oauth2.NewClient(ctx, source)
	client.Timeout = timeout
	base.client = client

	return &OAuth2Transport{
		config: config,
		client: client,
		base:   base,
	}, nil
}

// Name returns "oauth2".
func (t *OAuth2Transport) Name() string {
	return "oauth2"
}

// BaseURL returns the configured base URL.
func (t *OAuth2Transport) BaseURL() string {
	return t.config.BaseURL
}

// SetRateLimiter configures rate limiting for this transport.
func (t *OAuth2Transport) SetRateLimiter(limiter RateLimiter) {
	t.rateLimiter = limiter
	t.base.SetRateLimiter(limiter)
}

// Execute sends an authenticated HTTP request and returns the response.
// Token acquisition failures surface as auth errors.
func (t *OAuth2Transport) Execute(ctx context.Context, req *Request) (*Response, error) {
	resp, err := t.base.Execute(ctx, req)
	if err != nil {
		// Token endpoint failures arrive wrapped in *url.Error from the
		// oauth2 round tripper; re-classify them as auth errors so
		// callers do not retry with the same dead credentials.
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			return nil, &Error{
				Type:       ErrorTypeAuth,
				StatusCode: retrieveErr.Response.StatusCode,
				Message:    "failed to obtain OAuth2 token",
				Retryable:  false,
				Cause:      retrieveErr,
			}
		}
		return nil, err
	}
	return resp, nil
}
