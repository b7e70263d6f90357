// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package guard holds the controller's own shutdown until the peer is
// confirmed off or a hard deadline passes, then lets it continue. It never
// keeps the controller from shutting down.
package guard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ManuGH/peersync/internal/bus"
	"github.com/ManuGH/peersync/internal/failure"
	"github.com/ManuGH/peersync/internal/log"
	"github.com/ManuGH/peersync/internal/metrics"
	"github.com/ManuGH/peersync/internal/session"
	"github.com/ManuGH/peersync/internal/shutdown"
	"github.com/ManuGH/peersync/internal/target"
)

// ErrDeadlineTooShort is returned when the deadline does not exceed the
// confirmation budget of the shutdown policy.
var ErrDeadlineTooShort = errors.New("guard deadline must exceed the shutdown confirmation budget")

// MsgHolding is published while the controller shutdown is held.
const MsgHolding = "controller shutdown held: remote shutdown in progress"

// Release reasons.
const (
	ReleaseTerminated = "session_terminated"
	ReleaseDeadline   = "deadline"
	ReleaseNoSession  = "no_session"
	ReleaseDisabled   = "disabled"
)

// Orchestrator is what the guard needs from the shutdown orchestrator.
type Orchestrator interface {
	Start(ctx context.Context, t target.Descriptor, p shutdown.Policy) (*session.Handle, error)
	Abort(id string, reason session.Reason, kind failure.Kind, msg string) bool
}

// Snapshot is the configuration a single hold runs with.
type Snapshot struct {
	Enabled  bool
	Deadline time.Duration
	Target   target.Descriptor
	Policy   shutdown.Policy
}

// Validate checks the deadline against the confirmation budget.
func (s Snapshot) Validate() error {
	if !s.Enabled {
		return nil
	}
	if budget := s.Policy.ConfirmBudget(); s.Deadline <= budget {
		return fmt.Errorf("%w: deadline %s, confirmation budget %s", ErrDeadlineTooShort, s.Deadline, budget)
	}
	return nil
}

// Outcome describes one hold.
type Outcome struct {
	SessionID string
	Result    session.Result
	Released  string
	Held      time.Duration
}

// Guard brackets a controller shutdown: veto, run, release.
type Guard struct {
	orch   Orchestrator
	bus    *bus.Bus
	config func() Snapshot
	now    func() time.Time
}

// New creates a Guard. config is read once per hold so reloads apply to
// the next controller shutdown.
func New(orch Orchestrator, b *bus.Bus, config func() Snapshot) *Guard {
	return &Guard{orch: orch, bus: b, config: config, now: time.Now}
}

// Hold runs the shutdown session for ending and returns once it is safe to
// let the controller continue: the session terminated, the deadline passed
// or no session could be started. Hold never blocks past the deadline.
func (g *Guard) Hold(ctx context.Context, ending Ending) Outcome {
	start := g.now()
	cfg := g.config()
	logger := log.WithComponent("guard")

	out := Outcome{}
	defer func() {
		out.Held = g.now().Sub(start)
		metrics.ObserveGuardRelease(out.Released, out.Held)
		logger.Info().
			Str(log.FieldEvent, "guard.release").
			Str("trigger", ending.Reason).
			Str("released", out.Released).
			Str(log.FieldSessionID, out.SessionID).
			Str(log.FieldResult, string(out.Result)).
			Dur("held", out.Held).
			Msg("controller shutdown released")
	}()

	if !cfg.Enabled || cfg.Target.IsZero() {
		out.Released = ReleaseDisabled
		return out
	}

	deadline := cfg.Deadline
	if err := cfg.Validate(); err != nil {
		logger.Warn().Err(err).Msg("guard deadline misconfigured, using confirmation budget plus margin")
		deadline = cfg.Policy.ConfirmBudget() + 10*time.Second
	}
	holdCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), deadline)
	defer cancel()

	logger.Info().
		Str(log.FieldEvent, "guard.hold").
		Str("trigger", ending.Reason).
		Dur("deadline", deadline).
		Msg("controller shutdown intercepted")

	h, err := g.orch.Start(holdCtx, cfg.Target, cfg.Policy)
	if err != nil {
		logger.Warn().Err(err).Str(log.FieldEvent, "guard.no_session").Msg("shutdown session could not start, releasing immediately")
		out.Released = ReleaseNoSession
		return out
	}
	out.SessionID = h.ID()

	snap := h.Snapshot()
	g.bus.Publish(bus.Event{
		SessionID: snap.ID,
		Kind:      session.KindShutdown,
		State:     snap.State,
		Progress:  snap.Progress,
		Message:   MsgHolding,
		At:        g.now(),
	})

	select {
	case <-h.Done():
		out.Released = ReleaseTerminated
	case <-holdCtx.Done():
		msg := fmt.Sprintf("guard deadline of %s reached, releasing controller shutdown", deadline)
		if g.orch.Abort(h.ID(), session.ReasonGuardDeadline, failure.KindGuardDeadlineExceeded, msg) {
			out.Released = ReleaseDeadline
		} else {
			// The session finished in the same instant.
			out.Released = ReleaseTerminated
		}
	}
	out.Result = h.Snapshot().Result
	return out
}
