package core

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// dispatchMetrics holds the Prometheus collectors for the dispatch
// pipeline. A single package-level instance is registered against the
// default registry at import time, covering the handful of
// signals the retry executor, health tracker and accounting sink can
// cheaply produce without their own metrics dependency.
type dispatchMetrics struct {
	retryAttempts        *prometheus.CounterVec
	healthFlips          *prometheus.CounterVec
	instancesExhausted   *prometheus.CounterVec
	accountingQueueDepth *prometheus.GaugeVec
	sessionTableSize     prometheus.Gauge
}

var metrics = newDispatchMetrics()

func newDispatchMetrics() *dispatchMetrics {
	return &dispatchMetrics{
		retryAttempts: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "jupiter",
			Subsystem: "dispatch",
			Name:      "retry_attempts_total",
			Help:      "Attempts made by the retry executor, labeled by provider and outcome.",
		}, []string{"provider", "outcome"}),
		healthFlips: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "jupiter",
			Subsystem: "dispatch",
			Name:      "instance_health_flips_total",
			Help:      "Instance health transitions, labeled by provider and the state flipped to.",
		}, []string{"provider", "state"}),
		instancesExhausted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "jupiter",
			Subsystem: "dispatch",
			Name:      "instances_exhausted_total",
			Help:      "Requests that exhausted every candidate instance for a provider.",
		}, []string{"provider"}),
		accountingQueueDepth: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "jupiter",
			Subsystem: "accounting",
			Name:      "queue_depth",
			Help:      "Pending events in the accounting sink's submit queue, sampled periodically.",
		}, []string{"sink"}),
		sessionTableSize: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: "jupiter",
			Subsystem: "dispatch",
			Name:      "session_table_entries",
			Help:      "Current entry count in the sticky-session table, sampled periodically.",
		}),
	}
}

// SetAccountingQueueDepth records the accounting sink's current queue
// depth. Called periodically by the cron-backed sweep in cmd/mercator,
// since pkg/core cannot import pkg/core/accounting without a cycle.
func SetAccountingQueueDepth(sink string, depth int) {
	metrics.accountingQueueDepth.WithLabelValues(sink).Set(float64(depth))
}

// SetSessionTableSize records the sticky-session table's current entry
// count, sampled alongside the accounting queue depth.
func SetSessionTableSize(n int) {
	metrics.sessionTableSize.Set(float64(n))
}
