package connector

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/skillsd/skillsd/internal/breaker"
	"github.com/skillsd/skillsd/internal/log"
	"github.com/skillsd/skillsd/internal/tracing"
)

// BaseConnector supplies the machinery shared by all connectors: the
// name, the circuit breaker, the guarded client handle, and status
// reporting. Concrete connectors embed it and implement only the dial
// and hangup steps plus their operations.
type BaseConnector struct {
	name   string
	br     *breaker.Breaker
	logger *slog.Logger

	mu     sync.RWMutex
	client interface{}
}

// NewBase creates the shared connector core. A zero breaker config
// selects the defaults.
func NewBase(name string, cfg breaker.Config, logger *slog.Logger) *BaseConnector {
	if logger == nil {
		logger = slog.Default()
	}

	return &BaseConnector{
		name:   name,
		br:     breaker.New(name, cfg, logger),
		logger: logger.With("component", "connector", log.ConnectorKey, name),
	}
}

// Name returns the connector identifier.
func (b *BaseConnector) Name() string {
	return b.name
}

// Breaker exposes the circuit breaker guarding this connector.
func (b *BaseConnector) Breaker() *breaker.Breaker {
	return b.br
}

// CircuitState returns the breaker state name.
func (b *BaseConnector) CircuitState() string {
	return b.br.State().String()
}

// Healthy reports whether a client is established and the circuit is
// not open.
func (b *BaseConnector) Healthy() bool {
	b.mu.RLock()
	connected := b.client != nil
	b.mu.RUnlock()

	return connected && b.br.State() != breaker.StateOpen
}

// Connected reports whether a client handle is established.
func (b *BaseConnector) Connected() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.client != nil
}

// Client returns the established client handle, or nil when disconnected.
func (b *BaseConnector) Client() interface{} {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.client
}

// Status returns a serializable summary for health endpoints.
func (b *BaseConnector) Status() Status {
	b.mu.RLock()
	connected := b.client != nil
	b.mu.RUnlock()

	return Status{
		Name:      b.name,
		Healthy:   connected && b.br.State() != breaker.StateOpen,
		Connected: connected,
		Circuit:   b.br.Status(),
	}
}

// Logger returns the connector-scoped logger.
func (b *BaseConnector) Logger() *slog.Logger {
	return b.logger
}

// ConnectWith establishes the client through dial under the breaker.
// Already-connected healthy connectors return nil without redialing.
// Dial failures are recorded on the breaker and returned; the connector
// remains registered and unhealthy.
func (b *BaseConnector) ConnectWith(ctx context.Context, dial func(ctx context.Context) (interface{}, error)) error {
	b.mu.Lock()
	if b.client != nil {
		b.mu.Unlock()
		return nil
	}
	b.mu.Unlock()

	ctx, span := tracing.ConnectorConnect(ctx, b.name)

	client, err := dial(ctx)
	if err != nil {
		b.br.RecordFailure()
		recordConnect(b.name, false)
		b.logger.Error("connector connect failed", log.Error(err))
		cerr := &Error{
			Type:      ErrorTypeConnection,
			Connector: b.name,
			Message:   "connect failed",
			Cause:     err,
		}
		tracing.End(span, cerr)
		return cerr
	}

	b.mu.Lock()
	b.client = client
	b.mu.Unlock()

	b.br.RecordSuccess()
	recordConnect(b.name, true)
	recordConnected(b.name, true)
	b.logger.Info("connector connected")
	tracing.End(span, nil)

	return nil
}

// DisconnectWith clears the client handle and runs hangup on the old
// client if one was established. Disconnecting twice is a no-op.
func (b *BaseConnector) DisconnectWith(ctx context.Context, hangup func(ctx context.Context, client interface{}) error) error {
	b.mu.Lock()
	client := b.client
	b.client = nil
	b.mu.Unlock()

	recordConnected(b.name, false)

	if client == nil {
		return nil
	}

	if hangup != nil {
		if err := hangup(ctx, client); err != nil {
			b.logger.Warn("connector disconnect error", log.Error(err))
			return &Error{
				Type:      ErrorTypeConnection,
				Connector: b.name,
				Message:   "disconnect failed",
				Cause:     err,
			}
		}
	}

	b.logger.Info("connector disconnected")
	return nil
}

// Do executes an operation under the circuit breaker. Calls are rejected
// without reaching the service while the breaker is open; outcomes are
// recorded so consecutive downstream failures eventually open it. Caller
// mistakes (validation, unknown operation) do not count against the
// breaker.
func (b *BaseConnector) Do(ctx context.Context, operation string, fn func(ctx context.Context) (*Result, error)) (*Result, error) {
	ctx, span := tracing.ConnectorExecute(ctx, b.name, operation, b.CircuitState())

	if !b.Connected() {
		err := NewNotConnectedError(b.name)
		tracing.End(span, err)
		return nil, err
	}

	if !b.br.CanExecute() {
		recordRejected(b.name, operation)
		err := NewCircuitOpenError(b.name, operation)
		tracing.End(span, err)
		return nil, err
	}

	start := time.Now()
	result, err := fn(ctx)
	duration := time.Since(start)

	if err != nil {
		if countsAsFailure(err) {
			b.br.RecordFailure()
		}
		recordOperation(b.name, operation, "error", duration)
		b.logger.Error("operation failed",
			log.String(log.OperationKey, operation),
			log.Duration("duration", duration.Milliseconds()),
			log.Error(err))
		tracing.End(span, err)
		return nil, err
	}

	b.br.RecordSuccess()
	recordOperation(b.name, operation, "success", duration)
	b.logger.Debug("operation completed",
		log.String(log.OperationKey, operation),
		log.Duration("duration", duration.Milliseconds()))
	tracing.End(span, nil)

	return result, nil
}

// countsAsFailure decides whether an execution error indicates downstream
// trouble. Unknown error types count by default.
func countsAsFailure(err error) bool {
	var cerr *Error
	if errors.As(err, &cerr) {
		return cerr.CountsAsFailure()
	}
	return true
}
