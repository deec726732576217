// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	circuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "clubsync_circuit_breaker_state",
		Help: "Circuit breaker state per collaborator; the active state is 1",
	}, []string{"service", "state"})

	CircuitBreakerTrips = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clubsync_circuit_breaker_trips_total",
		Help: "Transitions to open per collaborator, labelled by the state it left",
	}, []string{"service", "from"})
)

var circuitStates = []string{"closed", "half-open", "open"}

// SetCircuitBreakerState marks state as the active breaker state of service.
func SetCircuitBreakerState(service, state string) {
	for _, s := range circuitStates {
		value := 0.0
		if s == state {
			value = 1.0
		}
		circuitBreakerState.WithLabelValues(service, s).Set(value)
	}
}

// RecordCircuitBreakerTrip counts a breaker opening.
func RecordCircuitBreakerTrip(service, from string) {
	CircuitBreakerTrips.WithLabelValues(service, from).Inc()
}
