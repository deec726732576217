// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PendingOperations = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "clubsync_pending_operations",
		Help: "Number of operations waiting for retry by kind",
	}, []string{"kind"})

	RetryAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clubsync_retry_attempts_total",
		Help: "Retry attempts by operation kind and outcome",
	}, []string{"kind", "outcome"}) // outcome=succeeded|requeued|exhausted|permanent

	OperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clubsync_operations_total",
		Help: "Orchestrator operations by name and outcome",
	}, []string{"operation", "outcome"}) // outcome=success|queued|rejected|failed

	SyncRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clubsync_full_sync_total",
		Help: "Full sync runs by result",
	}, []string{"result"}) // result=completed|failed|offline

	syncDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "clubsync_full_sync_duration_seconds",
		Help:    "Duration of full sync runs",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	})

	OfflineMode = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "clubsync_offline_mode",
		Help: "Whether the orchestrator is in offline mode (1) or online (0)",
	})

	ModeTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clubsync_mode_transitions_total",
		Help: "Connectivity mode transitions by target mode",
	}, []string{"to"})

	serviceHealth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "clubsync_service_health",
		Help: "Collaborator health by service (active state=1, others 0)",
	}, []string{"service", "state"})

	healthProbeDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "clubsync_health_probe_duration_seconds",
		Help:    "Duration of individual health probes",
		Buckets: prometheus.DefBuckets,
	}, []string{"service"})
)

var healthStates = []string{"unknown", "healthy", "degraded", "error"}

// SetPendingOperations records the queue depth for a kind.
func SetPendingOperations(kind string, n int) {
	PendingOperations.WithLabelValues(kind).Set(float64(n))
}

// RecordRetryAttempt records the outcome of one retry dispatch.
func RecordRetryAttempt(kind, outcome string) {
	RetryAttemptsTotal.WithLabelValues(kind, outcome).Inc()
}

// RecordOperation records the outcome of a caller-facing orchestrator operation.
func RecordOperation(operation, outcome string) {
	OperationsTotal.WithLabelValues(operation, outcome).Inc()
}

// RecordFullSync records a full sync run.
func RecordFullSync(result string, d time.Duration) {
	SyncRunsTotal.WithLabelValues(result).Inc()
	syncDuration.Observe(d.Seconds())
}

// SetOfflineMode updates the offline gauge.
func SetOfflineMode(offline bool) {
	if offline {
		OfflineMode.Set(1)
		return
	}
	OfflineMode.Set(0)
}

// RecordModeTransition counts a transition into mode.
func RecordModeTransition(mode string) {
	ModeTransitionsTotal.WithLabelValues(mode).Inc()
}

// SetServiceHealth records the active health state for a collaborator.
func SetServiceHealth(service, state string) {
	for _, s := range healthStates {
		value := 0.0
		if s == state {
			value = 1.0
		}
		serviceHealth.WithLabelValues(service, s).Set(value)
	}
}

// ObserveHealthProbe records how long a single probe took.
func ObserveHealthProbe(service string, d time.Duration) {
	healthProbeDuration.WithLabelValues(service).Observe(d.Seconds())
}
