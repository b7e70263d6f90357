// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package presence periodically probes the peer so observers can show
// whether it is up outside of wake and shutdown sessions.
package presence

import (
	"context"
	"sync"
	"time"

	"github.com/ManuGH/peersync/internal/log"
	"github.com/ManuGH/peersync/internal/metrics"
	"github.com/ManuGH/peersync/internal/probe"
	"github.com/ManuGH/peersync/internal/target"
)

// StateUnknown is reported before the first probe and when probing fails.
const StateUnknown = "unknown"

// Observation is the latest presence reading.
type Observation struct {
	Peer    string       `json:"peer"`
	Address string       `json:"address"`
	Online  bool         `json:"online"`
	State   string       `json:"state"` // reachable, booting, offline or unknown
	Status  probe.Status `json:"status"`
	Error   string       `json:"error,omitempty"`
	// Since is when State last changed.
	Since     time.Time `json:"since"`
	CheckedAt time.Time `json:"checked_at"`
}

// Monitor probes the peer on a fixed interval.
type Monitor struct {
	prober   probe.Prober
	target   func() target.Descriptor
	interval time.Duration
	now      func() time.Time

	mu   sync.RWMutex
	last Observation
	seen bool
}

// New creates a monitor. target is read before every probe so a config
// reload takes effect on the next tick.
func New(prober probe.Prober, t func() target.Descriptor, interval time.Duration) *Monitor {
	return &Monitor{prober: prober, target: t, interval: interval, now: time.Now}
}

// Last returns the latest observation and whether one exists.
func (m *Monitor) Last() (Observation, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.last, m.seen
}

// Check probes once and stores the result.
func (m *Monitor) Check(ctx context.Context) Observation {
	t := m.target()
	obs := Observation{Peer: t.Name(), Address: t.Address(), State: StateUnknown}

	st, err := m.prober.Probe(ctx, t)
	if err != nil && ctx.Err() != nil {
		// Shutting down; keep the last real reading.
		last, _ := m.Last()
		return last
	}
	obs.CheckedAt = m.now()
	if err != nil {
		obs.Error = err.Error()
	} else {
		obs.Status = st
		obs.State = st.Label()
		obs.Online = !st.Offline()
	}

	m.mu.Lock()
	prev, seen := m.last, m.seen
	obs.Since = obs.CheckedAt
	if seen && prev.State == obs.State && prev.Address == obs.Address {
		obs.Since = prev.Since
	}
	m.last, m.seen = obs, true
	m.mu.Unlock()

	if err == nil {
		metrics.SetPeerOnline(obs.Online)
	}
	if !seen || prev.State != obs.State {
		logger := log.WithComponent("presence")
		ev := logger.Info()
		if err != nil {
			ev = logger.Warn().Err(err)
		}
		ev.Str(log.FieldEvent, "presence.changed").
			Str(log.FieldPeer, obs.Peer).
			Str(log.FieldOldState, prev.State).
			Str(log.FieldNewState, obs.State).
			Msg("peer presence changed")
	}
	return obs
}

// Run checks immediately and then every interval until ctx ends. A zero
// interval disables the monitor.
func (m *Monitor) Run(ctx context.Context) error {
	if m.interval <= 0 {
		return nil
	}
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		if !m.target().IsZero() {
			m.Check(ctx)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
