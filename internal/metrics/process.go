// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	procTerminateTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "peersync_proc_terminate_total",
		Help: "Signals sent to strategy subprocess groups by outcome",
	}, []string{"signal", "outcome"})

	procWaitTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "peersync_proc_wait_total",
		Help: "Strategy subprocess exits by result",
	}, []string{"result"})
)

// IncProcTerminate records a terminate signal sent to a process group.
func IncProcTerminate(signal, outcome string) {
	procTerminateTotal.WithLabelValues(signal, outcome).Inc()
}

// IncProcWait records how a subprocess wait returned.
func IncProcWait(result string) {
	procWaitTotal.WithLabelValues(result).Inc()
}
