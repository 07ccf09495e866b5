package connector

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// connectorConnected tracks whether each connector has an
	// established client (1) or not (0).
	connectorConnected = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "skillsd_connector_connected",
			Help: "Whether the connector has an established client (1) or not (0)",
		},
		[]string{"connector"},
	)

	// connectAttempts counts connect attempts by outcome.
	connectAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "skillsd_connector_connect_attempts_total",
			Help: "Total connector connect attempts by outcome",
		},
		[]string{"connector", "outcome"},
	)

	// operationsTotal counts executed operations by outcome.
	operationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "skillsd_connector_operations_total",
			Help: "Total connector operations by operation and outcome",
		},
		[]string{"connector", "operation", "outcome"},
	)

	// operationDuration observes operation latency.
	operationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "skillsd_connector_operation_duration_seconds",
			Help:    "Connector operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"connector", "operation"},
	)

	// operationsRejected counts operations rejected by an open breaker.
	operationsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "skillsd_connector_operations_rejected_total",
			Help: "Total operations rejected by an open circuit breaker",
		},
		[]string{"connector", "operation"},
	)
)

// recordConnected updates the connected gauge.
func recordConnected(connector string, connected bool) {
	v := 0.0
	if connected {
		v = 1.0
	}
	connectorConnected.WithLabelValues(connector).Set(v)
}

// recordConnect increments the connect attempt counter.
func recordConnect(connector string, success bool) {
	outcome := "failure"
	if success {
		outcome = "success"
	}
	connectAttempts.WithLabelValues(connector, outcome).Inc()
}

// recordOperation records an executed operation and its latency.
func recordOperation(connector, operation, outcome string, duration time.Duration) {
	operationsTotal.WithLabelValues(connector, operation, outcome).Inc()
	operationDuration.WithLabelValues(connector, operation).Observe(duration.Seconds())
}

// recordRejected increments the breaker rejection counter.
func recordRejected(connector, operation string) {
	operationsRejected.WithLabelValues(connector, operation).Inc()
}
