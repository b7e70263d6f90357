// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "peersync_http_request_duration_seconds",
		Help:    "Local API request latencies in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})

	httpRequestsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "peersync_http_requests_in_flight",
		Help: "Current number of local API requests being served",
	})

	HTTPRateLimitedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "peersync_http_rate_limited_total",
		Help: "Requests rejected by the API rate limiter",
	}, []string{"route"})
)

// HTTPRequestStarted tracks an in-flight request; call the returned
// function with the route pattern and status when it completes.
func HTTPRequestStarted(method string) func(route string, status int) {
	start := time.Now()
	httpRequestsInFlight.Inc()
	return func(route string, status int) {
		httpRequestsInFlight.Dec()
		if route == "" {
			route = "unmatched"
		}
		httpRequestDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(time.Since(start).Seconds())
	}
}

// IncRateLimited records a request rejected with 429.
func IncRateLimited(route string) {
	HTTPRateLimitedTotal.WithLabelValues(route).Inc()
}
