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
	peerOnline = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "peersync_peer_online",
		Help: "Last observed peer presence (1 online, 0 offline)",
	})

	probeDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "peersync_probe_duration_seconds",
		Help:    "Reachability probe latency by result",
		Buckets: prometheus.DefBuckets,
	}, []string{"result"}) // result=reachable|pingable|offline

	WakeDatagramsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "peersync_wake_datagrams_total",
		Help: "Wake datagrams written by outcome",
	}, []string{"outcome"}) // outcome=sent|error

	GuardReleasesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "peersync_guard_releases_total",
		Help: "OS shutdown releases by reason (completed|deadline|no_session)",
	}, []string{"reason"})

	guardHold = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "peersync_guard_hold_seconds",
		Help:    "How long the guard held the OS shutdown",
		Buckets: []float64{0.1, 1, 5, 10, 30, 60, 90, 120},
	})
)

// SetPeerOnline records the last presence observation.
func SetPeerOnline(online bool) {
	if online {
		peerOnline.Set(1)
		return
	}
	peerOnline.Set(0)
}

// ObserveProbe records one reachability probe.
func ObserveProbe(result string, d time.Duration) {
	probeDuration.WithLabelValues(result).Observe(d.Seconds())
}

// IncWakeDatagram records a written (or failed) magic packet.
func IncWakeDatagram(outcome string) {
	WakeDatagramsTotal.WithLabelValues(outcome).Inc()
}

// ObserveGuardRelease records the guard releasing the OS shutdown.
func ObserveGuardRelease(reason string, held time.Duration) {
	GuardReleasesTotal.WithLabelValues(reason).Inc()
	guardHold.Observe(held.Seconds())
}
