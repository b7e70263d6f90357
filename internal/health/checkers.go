// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package health

import (
	"context"
	"time"

	"github.com/ManuGH/peersync/internal/presence"
	"github.com/ManuGH/peersync/internal/target"
)

// FuncChecker adapts a function to Checker.
type FuncChecker struct {
	name string
	fn   func(ctx context.Context) CheckResult
}

// NewFuncChecker creates a FuncChecker.
func NewFuncChecker(name string, fn func(ctx context.Context) CheckResult) *FuncChecker {
	return &FuncChecker{name: name, fn: fn}
}

func (c *FuncChecker) Name() string                          { return c.name }
func (c *FuncChecker) Check(ctx context.Context) CheckResult { return c.fn(ctx) }

// PeerConfigChecker is unhealthy while no valid peer is configured; no
// session can start without one.
type PeerConfigChecker struct {
	target func() (target.Descriptor, error)
}

func NewPeerConfigChecker(t func() (target.Descriptor, error)) *PeerConfigChecker {
	return &PeerConfigChecker{target: t}
}

func (c *PeerConfigChecker) Name() string { return "peer_config" }

func (c *PeerConfigChecker) Check(context.Context) CheckResult {
	t, err := c.target()
	if err != nil {
		return CheckResult{Status: StatusUnhealthy, Error: err.Error(), Message: "peer is not configured"}
	}
	return CheckResult{Status: StatusHealthy, Message: t.String()}
}

// Pinger is satisfied by the journal store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// JournalChecker reports the journal database. A broken journal degrades
// the service but does not make it unready: sessions still run.
type JournalChecker struct {
	db Pinger
}

func NewJournalChecker(db Pinger) *JournalChecker { return &JournalChecker{db: db} }

func (c *JournalChecker) Name() string { return "journal" }

func (c *JournalChecker) Check(ctx context.Context) CheckResult {
	if c.db == nil {
		return CheckResult{Status: StatusHealthy, Message: "not configured (optional)"}
	}
	if err := c.db.Ping(ctx); err != nil {
		return CheckResult{Status: StatusDegraded, Error: err.Error(), Message: "journal unavailable"}
	}
	return CheckResult{Status: StatusHealthy}
}

// PresenceChecker surfaces the last presence reading. The peer being off is
// a normal state; only a monitor that stopped reporting is degraded.
type PresenceChecker struct {
	last   func() (presence.Observation, bool)
	maxAge time.Duration
	now    func() time.Time
}

// NewPresenceChecker creates a checker that is degraded when the last
// observation is older than maxAge. maxAge <= 0 disables the age check.
func NewPresenceChecker(last func() (presence.Observation, bool), maxAge time.Duration) *PresenceChecker {
	return &PresenceChecker{last: last, maxAge: maxAge, now: time.Now}
}

func (c *PresenceChecker) Name() string { return "presence" }

func (c *PresenceChecker) Check(context.Context) CheckResult {
	obs, ok := c.last()
	if !ok {
		return CheckResult{Status: StatusHealthy, Message: "no observation yet"}
	}
	if c.maxAge > 0 && c.now().Sub(obs.CheckedAt) > c.maxAge {
		return CheckResult{Status: StatusDegraded, Message: "presence monitor stalled"}
	}
	res := CheckResult{Status: StatusHealthy, Message: "peer " + obs.State}
	if obs.Error != "" {
		res.Error = obs.Error
	}
	return res
}
