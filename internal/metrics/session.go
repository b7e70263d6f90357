// SPDX-License-Identifier: MIT
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SessionsStartedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "peersync_sessions_started_total",
		Help: "Sessions started by kind (wake|shutdown)",
	}, []string{"kind"})

	SessionsJoinedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "peersync_sessions_joined_total",
		Help: "Start requests that joined an already active session",
	}, []string{"kind"})

	SessionsFinishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "peersync_sessions_finished_total",
		Help: "Terminal sessions by kind and result (succeeded|failed|aborted)",
	}, []string{"kind", "result"})

	sessionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "peersync_session_duration_seconds",
		Help:    "Wall-clock duration of terminal sessions",
		Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 90, 120, 300},
	}, []string{"kind", "result"})

	AttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "peersync_attempts_total",
		Help: "Attempt records by kind, method and outcome",
	}, []string{"kind", "method", "outcome"})

	sessionActive = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "peersync_session_active",
		Help: "Whether a session of the kind is currently active (1) or not (0)",
	}, []string{"kind"})
)

// IncSessionStarted records a newly created session.
func IncSessionStarted(kind string) {
	SessionsStartedTotal.WithLabelValues(kind).Inc()
	sessionActive.WithLabelValues(kind).Set(1)
}

// IncSessionJoined records a start request coalesced into an active session.
func IncSessionJoined(kind string) {
	SessionsJoinedTotal.WithLabelValues(kind).Inc()
}

// ObserveSessionFinished records a terminal session.
func ObserveSessionFinished(kind, result string, d time.Duration) {
	SessionsFinishedTotal.WithLabelValues(kind, result).Inc()
	sessionDuration.WithLabelValues(kind, result).Observe(d.Seconds())
	sessionActive.WithLabelValues(kind).Set(0)
}

// IncAttempt records a finished attempt record.
func IncAttempt(kind, method, outcome string) {
	if method == "" {
		method = "unknown"
	}
	AttemptsTotal.WithLabelValues(kind, method, outcome).Inc()
}
