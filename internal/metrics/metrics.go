// Package metrics holds the Prometheus collectors for the chat service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chat_sessions_active",
		Help: "Sessions currently held in memory",
	})

	TurnsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_turns_total",
		Help: "Questions answered, by outcome",
	}, []string{"outcome"})

	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "chat_stage_duration_seconds",
		Help:    "Per-stage latency of the turn loop",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0, 60.0},
	}, []string{"stage"})

	Errors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_errors_total",
		Help: "Collaborator errors by stage",
	}, []string{"stage"})

	HistoryWarnings = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chat_history_warnings_total",
		Help: "Chat history windows replaced by an empty history",
	})
)
