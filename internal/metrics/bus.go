// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BusDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "peersync_bus_dropped_total",
		Help: "Intermediate status events dropped from a full subscriber buffer",
	}, []string{"reason"})

	busSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "peersync_bus_subscribers",
		Help: "Number of active status bus subscribers",
	})
)

// IncBusDrop records a dropped status event with a concrete reason.
func IncBusDrop(reason string) {
	if reason == "" {
		reason = "unknown"
	}
	BusDroppedTotal.WithLabelValues(reason).Inc()
}

// SetBusSubscribers records the current number of subscribers.
func SetBusSubscribers(n int) {
	busSubscribers.Set(float64(n))
}
