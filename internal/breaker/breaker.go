// Package breaker implements a three-state circuit breaker that guards
// calls into a failing downstream dependency.
//
// Each connector owns exactly one Breaker. The breaker starts CLOSED and
// opens once consecutive failures reach the configured threshold. While
// OPEN, calls are rejected until the reset timeout has elapsed, at which
// point the first CanExecute query moves the breaker to HALF_OPEN and
// admits a single probe. A recorded success closes the circuit again; a
// recorded failure reopens it.
package breaker

import (
	"log/slog"
	"sync"
	"time"
)

// State is the circuit breaker state.
type State int

const (
	// StateClosed admits all calls. Normal operation.
	StateClosed State = iota
	// StateOpen rejects all calls until the reset timeout elapses.
	StateOpen
	// StateHalfOpen admits probe calls to test recovery.
	StateHalfOpen
)

// String returns the canonical state name.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

const (
	// DefaultFailureThreshold is the consecutive failure count that opens
	// the circuit when no threshold is configured.
	DefaultFailureThreshold = 5

	// DefaultResetTimeout is how long the circuit stays open before a
	// probe is admitted when no timeout is configured.
	DefaultResetTimeout = 60 * time.Second
)

// Config holds circuit breaker tuning parameters.
type Config struct {
	// FailureThreshold is the number of consecutive failures that opens
	// the circuit. Must be positive; defaults to DefaultFailureThreshold.
	FailureThreshold int

	// ResetTimeout is how long the circuit stays open before the next
	// CanExecute call transitions it to HALF_OPEN.
	// Defaults to DefaultResetTimeout.
	ResetTimeout time.Duration
}

// Breaker is a circuit breaker for a single downstream dependency.
// All methods are safe for concurrent use.
type Breaker struct {
	name string

	mu               sync.Mutex
	state            State
	failureCount     int
	failureThreshold int
	resetTimeout     time.Duration
	lastFailureTime  time.Time

	logger *slog.Logger
}

// New creates a circuit breaker in the CLOSED state.
// The name identifies the guarded dependency in logs and metrics.
func New(name string, cfg Config, logger *slog.Logger) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultFailureThreshold
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = DefaultResetTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}

	b := &Breaker{
		name:             name,
		state:            StateClosed,
		failureThreshold: cfg.FailureThreshold,
		resetTimeout:     cfg.ResetTimeout,
		logger:           logger.With("component", "breaker", "connector", name),
	}
	recordState(name, StateClosed)
	return b
}

// Name returns the name of the guarded dependency.
func (b *Breaker) Name() string {
	return b.name
}

// CanExecute reports whether a call may proceed.
//
// Returns true when the circuit is CLOSED or HALF_OPEN. When the circuit
// is OPEN and the reset timeout has elapsed since the last failure, the
// call itself transitions the circuit to HALF_OPEN and returns true; the
// transition happens lazily here rather than on a timer.
func (b *Breaker) CanExecute() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed, StateHalfOpen:
		return true
	case StateOpen:
		if time.Since(b.lastFailureTime) >= b.resetTimeout {
			b.transition(StateHalfOpen)
			return true
		}
		return false
	default:
		return false
	}
}

// RecordSuccess records a successful call.
//
// Resets the consecutive failure count. From HALF_OPEN the circuit
// closes. From OPEN the state is deliberately left unchanged: the caller
// must observe CanExecute first, which admits the probe via HALF_OPEN.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failureCount = 0
	recordFailureCount(b.name, 0)

	if b.state == StateHalfOpen {
		b.transition(StateClosed)
	}
}

// RecordFailure records a failed call.
//
// Increments the consecutive failure count and stamps the failure time.
// From CLOSED the circuit opens once the count reaches the threshold.
// From HALF_OPEN the circuit reopens unconditionally.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failureCount++
	b.lastFailureTime = time.Now()
	recordFailureCount(b.name, b.failureCount)

	switch b.state {
	case StateClosed:
		if b.failureCount >= b.failureThreshold {
			b.transition(StateOpen)
		}
	case StateHalfOpen:
		b.transition(StateOpen)
	}
}

// Reset forces the circuit to CLOSED and clears the failure count,
// regardless of the current state.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failureCount = 0
	recordFailureCount(b.name, 0)

	if b.state != StateClosed {
		b.transition(StateClosed)
	}
}

// State returns the current state without side effects.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// FailureCount returns the current consecutive failure count.
func (b *Breaker) FailureCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failureCount
}

// Status is a serializable snapshot of the breaker for observability.
type Status struct {
	State            string  `json:"state"`
	FailureCount     int     `json:"failure_count"`
	FailureThreshold int     `json:"failure_threshold"`
	ResetTimeout     float64 `json:"reset_timeout_seconds"`
}

// Status returns a snapshot of the breaker without side effects.
// In particular it does not perform the OPEN to HALF_OPEN check.
func (b *Breaker) Status() Status {
	b.mu.Lock()
	defer b.mu.Unlock()

	return Status{
		State:            b.state.String(),
		FailureCount:     b.failureCount,
		FailureThreshold: b.failureThreshold,
		ResetTimeout:     b.resetTimeout.Seconds(),
	}
}

// transition moves the breaker to a new state. Caller must hold b.mu.
func (b *Breaker) transition(to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to

	recordTransition(b.name, from, to)
	recordState(b.name, to)

	b.logger.Info("circuit breaker state change",
		"from", from.String(),
		"to", to.String(),
		"failure_count", b.failureCount,
	)
}
