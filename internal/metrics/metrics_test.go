// SPDX-License-Identifier: MIT
package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	m := &dto.Metric{}
	require.NoError(t, c.Write(m))
	return m.GetCounter().GetValue()
}

func TestSessionCounters(t *testing.T) {
	before := counterValue(t, SessionsFinishedTotal.WithLabelValues("wake", "succeeded"))
	IncSessionStarted("wake")
	ObserveSessionFinished("wake", "succeeded", 1500*time.Millisecond)
	after := counterValue(t, SessionsFinishedTotal.WithLabelValues("wake", "succeeded"))
	require.Equal(t, before+1, after)
}

func TestAttemptDefaultsMethodLabel(t *testing.T) {
	before := counterValue(t, AttemptsTotal.WithLabelValues("shutdown", "unknown", "failure"))
	IncAttempt("shutdown", "", "failure")
	require.Equal(t, before+1, counterValue(t, AttemptsTotal.WithLabelValues("shutdown", "unknown", "failure")))
}

func TestBusDropDefaultsReason(t *testing.T) {
	before := counterValue(t, BusDroppedTotal.WithLabelValues("unknown"))
	IncBusDrop("")
	require.Equal(t, before+1, counterValue(t, BusDroppedTotal.WithLabelValues("unknown")))
}

func TestGuardRelease(t *testing.T) {
	before := counterValue(t, GuardReleasesTotal.WithLabelValues("deadline"))
	ObserveGuardRelease("deadline", 90*time.Second)
	require.Equal(t, before+1, counterValue(t, GuardReleasesTotal.WithLabelValues("deadline")))
}
