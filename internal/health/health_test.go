// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/peersync/internal/presence"
	"github.com/ManuGH/peersync/internal/target"
)

type mockChecker struct {
	name   string
	status Status
}

func (m *mockChecker) Name() string { return m.name }
func (m *mockChecker) Check(context.Context) CheckResult {
	return CheckResult{Status: m.status}
}

type pingFunc func(context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestHealthNonVerboseSkipsChecks(t *testing.T) {
	m := NewManager("v1.0.0")
	m.RegisterChecker(&mockChecker{name: "broken", status: StatusUnhealthy})

	resp := m.Health(context.Background(), false)
	assert.Equal(t, StatusHealthy, resp.Status)
	assert.Equal(t, "v1.0.0", resp.Version)
	assert.Nil(t, resp.Checks)
	assert.GreaterOrEqual(t, resp.Uptime, int64(0))
}

func TestHealthVerboseAggregates(t *testing.T) {
	m := NewManager("v1.0.0")
	m.RegisterChecker(&mockChecker{name: "healthy", status: StatusHealthy})
	m.RegisterChecker(&mockChecker{name: "degraded", status: StatusDegraded})

	resp := m.Health(context.Background(), true)
	assert.Equal(t, StatusDegraded, resp.Status)
	assert.True(t, resp.Ready)
	assert.Len(t, resp.Checks, 2)
}

func TestReady(t *testing.T) {
	tests := []struct {
		name      string
		checkers  []Checker
		wantReady bool
		want      Status
	}{
		{"no checkers", nil, true, StatusHealthy},
		{"degraded stays ready", []Checker{&mockChecker{name: "a", status: StatusDegraded}}, true, StatusDegraded},
		{"unhealthy wins", []Checker{
			&mockChecker{name: "a", status: StatusDegraded},
			&mockChecker{name: "b", status: StatusUnhealthy},
		}, false, StatusUnhealthy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewManager("v")
			for _, c := range tt.checkers {
				m.RegisterChecker(c)
			}
			resp := m.Ready(context.Background())
			assert.Equal(t, tt.wantReady, resp.Ready)
			assert.Equal(t, tt.want, resp.Status)
		})
	}
}

func TestServeReadyStatusCodes(t *testing.T) {
	m := NewManager("v")
	rec := httptest.NewRecorder()
	m.ServeReady(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	m.RegisterChecker(&mockChecker{name: "peer_config", status: StatusUnhealthy})
	rec = httptest.NewRecorder()
	m.ServeReady(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp Response
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.False(t, resp.Ready)
	assert.Equal(t, StatusUnhealthy, resp.Checks["peer_config"].Status)
}

func TestServeHealthAlwaysOK(t *testing.T) {
	m := NewManager("v")
	m.RegisterChecker(&mockChecker{name: "x", status: StatusUnhealthy})
	rec := httptest.NewRecorder()
	m.ServeHealth(rec, httptest.NewRequest(http.MethodGet, "/healthz?verbose=true", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestPeerConfigChecker(t *testing.T) {
	bad := NewPeerConfigChecker(func() (target.Descriptor, error) { return target.Descriptor{}, errors.New("peer.mac: empty") })
	assert.Equal(t, StatusUnhealthy, bad.Check(context.Background()).Status)

	good := NewPeerConfigChecker(func() (target.Descriptor, error) {
		return target.New(target.Params{Address: "10.0.0.2", MAC: "001122334455", Username: "u", Secret: "pw"})
	})
	res := good.Check(context.Background())
	assert.Equal(t, StatusHealthy, res.Status)
	assert.NotContains(t, res.Message, "pw")
}

func TestJournalChecker(t *testing.T) {
	assert.Equal(t, StatusHealthy, NewJournalChecker(nil).Check(context.Background()).Status)
	ok := NewJournalChecker(pingFunc(func(context.Context) error { return nil }))
	assert.Equal(t, StatusHealthy, ok.Check(context.Background()).Status)
	broken := NewJournalChecker(pingFunc(func(context.Context) error { return errors.New("locked") }))
	assert.Equal(t, StatusDegraded, broken.Check(context.Background()).Status)
}

func TestPresenceChecker(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	var obs presence.Observation
	var seen bool
	c := NewPresenceChecker(func() (presence.Observation, bool) { return obs, seen }, time.Minute)
	c.now = func() time.Time { return now }

	assert.Equal(t, StatusHealthy, c.Check(context.Background()).Status)

	obs, seen = presence.Observation{State: "offline", CheckedAt: now.Add(-10 * time.Second)}, true
	res := c.Check(context.Background())
	assert.Equal(t, StatusHealthy, res.Status)
	assert.Equal(t, "peer offline", res.Message)

	obs.CheckedAt = now.Add(-2 * time.Minute)
	assert.Equal(t, StatusDegraded, c.Check(context.Background()).Status)
}
