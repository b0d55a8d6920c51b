package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// LoginAttempts records local login attempts by result (success|failure|locked).
	LoginAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gatehouse_login_attempts_total",
			Help: "Total number of local login attempts",
		},
		[]string{"result"},
	)

	// InteractionOutcomes counts terminal interaction outcomes by flow (login|logout).
	InteractionOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gatehouse_interaction_outcomes_total",
			Help: "Total number of interaction outcomes",
		},
		[]string{"flow", "outcome"},
	)

	// ActiveSessions tracks authenticated sessions (not expired/revoked).
	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gatehouse_active_sessions",
			Help: "Number of active sessions",
		},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gatehouse_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
