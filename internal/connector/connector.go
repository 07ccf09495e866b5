// Package connector provides managed clients for external services.
//
// A connector owns one downstream connection (Jira, Confluence, ...) and
// wraps it with a circuit breaker, health reporting, and lifecycle
// control. Connectors are registered with a Registry which fans out
// connect and disconnect calls and aggregates status for the daemon's
// health endpoints.
package connector

import (
	"context"

	"github.com/skillsd/skillsd/internal/breaker"
)

// Connector is the capability contract every managed connection satisfies.
type Connector interface {
	// Name returns the connector identifier.
	Name() string

	// Healthy reports whether the connector can serve requests: a client
	// is established and the circuit breaker is not open.
	Healthy() bool

	// CircuitState returns the breaker state name ("CLOSED", "OPEN",
	// "HALF_OPEN").
	CircuitState() string

	// Connect establishes the downstream client. Failures are recorded
	// on the breaker and returned; the connector stays registered and
	// unhealthy rather than aborting startup.
	Connect(ctx context.Context) error

	// Disconnect releases the downstream client. Safe to call when
	// already disconnected.
	Disconnect(ctx context.Context) error

	// Status returns a serializable summary for health endpoints.
	Status() Status

	// Breaker exposes the circuit breaker guarding this connector.
	Breaker() *breaker.Breaker
}

// Executor is implemented by connectors that execute named operations.
// The daemon's execute endpoint and the plugins route through this.
type Executor interface {
	// Execute runs a named operation with the given inputs.
	Execute(ctx context.Context, operation string, inputs map[string]interface{}) (*Result, error)

	// Operations returns the list of available operations with metadata.
	Operations() []OperationInfo
}

// Status is a serializable connector summary.
type Status struct {
	Name      string         `json:"name"`
	Healthy   bool           `json:"healthy"`
	Connected bool           `json:"connected"`
	Circuit   breaker.Status `json:"circuit"`
}

// Result is the output of a connector operation.
type Result struct {
	// Response is the transformed response data
	Response interface{} `json:"response"`

	// RawResponse is the original response before transformation
	RawResponse interface{} `json:"-"`

	// StatusCode is the HTTP status code (for HTTP connectors)
	StatusCode int `json:"status_code,omitempty"`

	// Metadata contains execution metadata (request ID, timing, retries)
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// OperationInfo provides metadata about a connector operation.
type OperationInfo struct {
	// Name is the operation identifier (e.g., "create_issue")
	Name string `json:"name"`

	// Description is a human-readable description
	Description string `json:"description"`

	// Category groups related operations (e.g., "issues", "pages")
	Category string `json:"category,omitempty"`

	// Tags classify operations (e.g., "write", "destructive")
	Tags []string `json:"tags,omitempty"`
}
