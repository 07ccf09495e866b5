package breaker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// breakerState tracks the current state per connector
	// (0: CLOSED, 1: OPEN, 2: HALF_OPEN).
	breakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "skillsd_breaker_state",
			Help: "Current circuit breaker state per connector (0=closed, 1=open, 2=half-open)",
		},
		[]string{"connector"},
	)

	// breakerTransitions tracks state transitions per connector
	breakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "skillsd_breaker_transitions_total",
			Help: "Total circuit breaker state transitions by connector and edge",
		},
		[]string{"connector", "from", "to"},
	)

	// breakerFailures tracks consecutive failures per connector
	breakerFailures = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "skillsd_breaker_consecutive_failures",
			Help: "Current consecutive failure count per connector",
		},
		[]string{"connector"},
	)
)

// stateValue maps a state to its gauge value.
func stateValue(s State) float64 {
	switch s {
	case StateClosed:
		return 0
	case StateOpen:
		return 1
	case StateHalfOpen:
		return 2
	default:
		return -1
	}
}

// recordState updates the state gauge
func recordState(connector string, s State) {
	breakerState.WithLabelValues(connector).Set(stateValue(s))
}

// recordTransition increments the transition counter
func recordTransition(connector string, from, to State) {
	breakerTransitions.WithLabelValues(connector, from.String(), to.String()).Inc()
}

// recordFailureCount updates the consecutive failure gauge
func recordFailureCount(connector string, count int) {
	breakerFailures.WithLabelValues(connector).Set(float64(count))
}
