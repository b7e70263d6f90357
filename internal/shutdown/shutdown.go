// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package shutdown powers the peer off: strategies are tried in a fixed
// order until one is accepted, then the peer is polled until it is offline.
package shutdown

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"github.com/ManuGH/peersync/internal/bus"
	"github.com/ManuGH/peersync/internal/clock"
	"github.com/ManuGH/peersync/internal/failure"
	"github.com/ManuGH/peersync/internal/log"
	"github.com/ManuGH/peersync/internal/metrics"
	"github.com/ManuGH/peersync/internal/probe"
	"github.com/ManuGH/peersync/internal/session"
	"github.com/ManuGH/peersync/internal/strategy"
	"github.com/ManuGH/peersync/internal/target"
	"github.com/ManuGH/peersync/internal/telemetry"
)

var ErrClosed = errors.New("shutdown orchestrator closed")

const (
	component     = "shutdown"
	confirmMethod = "confirm"

	// The strategy phase fills the first half of the progress bar.
	strategyShare = 0.5
)

// Progress messages shown to observers.
const (
	MsgPrecheck       = "checking whether the peer is already off"
	MsgAlreadyOffline = "peer is already offline"
	MsgConfirming     = "waiting for the peer to go offline"
	MsgOffline        = "peer is offline"
	MsgStillOnline    = "shutdown was accepted but the peer is still online"
	MsgNoStrategy     = "no shutdown strategy succeeded"
	MsgNoStrategies   = "no shutdown strategies configured"
	MsgCancelled      = "shutdown cancelled"
)

// Deps are the collaborators of the orchestrator.
type Deps struct {
	// Strategies in priority order. The order never changes between sessions.
	Strategies []strategy.Strategy
	Prober     probe.Prober
	Bus        *bus.Bus
	Clock      clock.Clock
	OnFinish   func(session.Snapshot)
}

// Orchestrator runs at most one shutdown session at a time.
type Orchestrator struct {
	deps   Deps
	tracer trace.Tracer
	slot   session.Slot

	root   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
	// maxAttempts of the running session, for the terminal event.
	lastMax int
}

// New creates an orchestrator. The strategy list is copied.
func New(deps Deps) *Orchestrator {
	if deps.Clock == nil {
		deps.Clock = clock.Real{}
	}
	if deps.Bus == nil {
		deps.Bus = bus.New(0)
	}
	deps.Strategies = append([]strategy.Strategy(nil), deps.Strategies...)
	root, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		deps:   deps,
		tracer: telemetry.Tracer("peersync/shutdown"),
		root:   root,
		cancel: cancel,
	}
}

// Strategies returns the configured strategy names in order.
func (o *Orchestrator) Strategies() []string { return strategy.Names(o.deps.Strategies) }

// Start begins a shutdown session, or joins the running one.
func (o *Orchestrator) Start(ctx context.Context, t target.Descriptor, p Policy) (*session.Handle, error) {
	if t.IsZero() {
		return nil, errors.New("shutdown: empty target")
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("shutdown policy: %w", err)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return nil, ErrClosed
	}

	now := o.deps.Clock.Now()
	s, joined := o.slot.Acquire(func() *session.Session {
		return session.New(session.KindShutdown, t, now)
	})
	if joined {
		metrics.IncSessionJoined(string(session.KindShutdown))
		logger := log.WithComponent(component)
		logger.Info().
			Str(log.FieldSessionID, s.ID()).
			Str(log.FieldEvent, "shutdown.joined").
			Msg("shutdown already in progress, joining session")
		return session.NewHandle(s, true), nil
	}

	metrics.IncSessionStarted(string(session.KindShutdown))
	wctx, cancel := context.WithCancel(o.root)
	s.BindCancel(cancel)

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer cancel()
		o.run(trace.ContextWithSpanContext(wctx, trace.SpanContextFromContext(ctx)), s, p)
	}()
	return session.NewHandle(s, false), nil
}

// Active returns the running session, if any.
func (o *Orchestrator) Active() *session.Session { return o.slot.Active() }

// Current returns the running or last finished session.
func (o *Orchestrator) Current() *session.Session { return o.slot.Current() }

// Abort terminates the running session with id as aborted and cancels its
// worker. It returns false if that session is not running.
func (o *Orchestrator) Abort(id string, reason session.Reason, kind failure.Kind, msg string) bool {
	s := o.slot.Active()
	if s == nil || s.ID() != id {
		return false
	}
	return o.finish(s, session.ResultAborted, reason, kind, msg, 0, 0)
}

// Close cancels running workers and waits for them.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	o.closed = true
	o.mu.Unlock()
	o.cancel()
	o.wg.Wait()
}

type run struct {
	o       *Orchestrator
	s       *session.Session
	p       Policy
	logger  zerolog.Logger
	attempt int
	max     int
}

type verdict struct {
	result session.Result
	reason session.Reason
	kind   failure.Kind
	msg    string
}

var cancelled = verdict{session.ResultAborted, session.ReasonCancelled, failure.KindNone, MsgCancelled}

func (o *Orchestrator) run(ctx context.Context, s *session.Session, p Policy) {
	ctx = log.ContextWithSessionID(ctx, s.ID())
	t := s.Target()
	ctx, span := o.tracer.Start(ctx, "shutdown.session",
		trace.WithAttributes(telemetry.SessionAttributes(s.ID(), string(session.KindShutdown), t.Name(), t.Address())...))
	defer span.End()

	r := &run{
		o:      o,
		s:      s,
		p:      p,
		logger: log.WithComponentFromContext(ctx, component),
		max:    len(o.deps.Strategies),
	}
	r.logger.Info().
		Str(log.FieldEvent, "shutdown.start").
		Str(log.FieldPeer, t.Name()).
		Str(log.FieldAddress, t.Address()).
		Strs("strategies", o.Strategies()).
		Msg("shutdown session started")
	r.emit()

	v := r.loop(ctx)
	o.finish(s, v.result, v.reason, v.kind, v.msg, r.attempt, r.max)
	span.SetAttributes(telemetry.ResultAttributes(string(v.result), string(v.reason))...)
}

func (r *run) loop(ctx context.Context) verdict {
	if r.p.SkipIfOffline {
		offline, err := r.precheck(ctx)
		if err != nil {
			return cancelled
		}
		if offline {
			return verdict{session.ResultSucceeded, session.ReasonAlreadyOffline, failure.KindNone, MsgAlreadyOffline}
		}
	}

	if len(r.o.deps.Strategies) == 0 {
		return verdict{session.ResultFailed, session.ReasonNoStrategies, failure.KindStrategyUnsupported, MsgNoStrategies}
	}

	accepted, err := r.strategies(ctx)
	if err != nil {
		return cancelled
	}
	if accepted == "" {
		return verdict{session.ResultFailed, session.ReasonNoStrategy, failure.KindExhaustedRetries, MsgNoStrategy}
	}

	offline, err := r.confirm(ctx, accepted)
	if err != nil {
		return cancelled
	}
	if !offline {
		return verdict{session.ResultFailed, session.ReasonPeerStillOnline, failure.KindExhaustedRetries, MsgStillOnline}
	}
	return verdict{session.ResultSucceeded, session.ReasonPeerOffline, failure.KindNone, MsgOffline}
}

// precheck is a single probe that is neither an attempt nor a confirmation.
func (r *run) precheck(ctx context.Context) (bool, error) {
	_ = r.s.SetState(session.StatePrechecking, MsgPrecheck)
	r.emit()
	st, err := r.o.deps.Prober.Probe(ctx, r.s.Target())
	if err != nil {
		return false, err
	}
	r.logger.Debug().Str(log.FieldEvent, "shutdown.precheck").Str(log.FieldOutcome, st.Label()).Msg("pre-check complete")
	return st.Offline(), nil
}

// strategies tries each strategy once, strictly one after another, and
// returns the name of the first that accepted.
func (r *run) strategies(ctx context.Context) (string, error) {
	c := r.o.deps.Clock
	t := r.s.Target()
	for i, st := range r.o.deps.Strategies {
		name := st.Name()
		seq, err := r.s.BeginAttempt(name, c.Now())
		if err != nil {
			return "", err
		}
		r.attempt = seq
		_ = r.s.SetState(session.StateCommanding, "trying "+name)
		r.emit()

		timeout := r.p.TimeoutFor(name)
		actx, span := r.o.tracer.Start(ctx, "shutdown.attempt", trace.WithAttributes(telemetry.AttemptAttributes(seq, name)...))
		actx, cancelAttempt := context.WithTimeout(actx, timeout)
		attemptErr := st.Attempt(actx, t, timeout)
		cancelAttempt()
		if ctx.Err() != nil {
			telemetry.EndSpan(span, ctx.Err())
			return "", ctx.Err()
		}

		outcome, kind, detail := session.OutcomeSuccess, failure.KindNone, "shutdown accepted"
		if attemptErr != nil {
			kind = failure.KindOf(attemptErr)
			outcome = session.OutcomeFailure
			if kind == failure.KindTimeout {
				outcome = session.OutcomeTimeout
			}
			detail = attemptErr.Error()
		}
		span.SetAttributes(telemetry.OutcomeAttributes(string(outcome), string(kind))...)
		telemetry.EndSpan(span, attemptErr)

		if err := r.s.EndAttempt(seq, outcome, kind, detail, c.Now()); err != nil {
			return "", err
		}
		metrics.IncAttempt(string(session.KindShutdown), name, string(outcome))
		r.s.AdvanceProgress(strategyShare * float64(i+1) / float64(r.max))

		ev := r.logger.Info()
		if attemptErr != nil {
			ev = r.logger.Warn().Err(attemptErr).Str(log.FieldFailure, string(kind))
		}
		ev.Str(log.FieldEvent, "shutdown.strategy_"+string(outcome)).
			Str(log.FieldMethod, name).
			Int(log.FieldAttempt, seq).
			Dur("timeout", timeout).
			Msg("shutdown strategy finished")

		if attemptErr == nil {
			return name, nil
		}
		_ = r.s.SetState(session.StateCommanding, name+" failed: "+string(kind))
		r.emit()
	}
	return "", nil
}

// confirm polls until ConfirmConsecutive probes in a row see the peer offline.
func (r *run) confirm(ctx context.Context, accepted string) (bool, error) {
	c := r.o.deps.Clock
	r.max = r.p.ConfirmAttempts
	r.attempt = 0
	_ = r.s.SetState(session.StateConfirming, MsgConfirming)
	r.s.AdvanceProgress(strategyShare)
	r.emit()

	streak := 0
	for k := 1; k <= r.p.ConfirmAttempts; k++ {
		if err := clock.Sleep(ctx, c, r.p.ConfirmInterval); err != nil {
			return false, err
		}
		seq, err := r.s.BeginConfirmation(c.Now())
		if err != nil {
			return false, err
		}
		r.attempt = seq

		st, err := r.o.deps.Prober.Probe(ctx, r.s.Target())
		if err != nil {
			return false, err
		}
		outcome, detail := session.OutcomeFailure, "peer still "+st.Label()
		if st.Offline() {
			outcome, detail = session.OutcomeSuccess, MsgOffline
			streak++
		} else {
			streak = 0
		}
		if err := r.s.EndConfirmation(seq, outcome, detail, c.Now()); err != nil {
			return false, err
		}
		metrics.IncAttempt(string(session.KindShutdown), confirmMethod, string(outcome))
		r.s.AdvanceProgress(strategyShare + (1-strategyShare)*float64(k)/float64(r.p.ConfirmAttempts))

		r.logger.Debug().
			Str(log.FieldEvent, "shutdown.confirm").
			Str(log.FieldMethod, accepted).
			Int(log.FieldAttempt, k).
			Str(log.FieldOutcome, st.Label()).
			Msg(detail)

		if streak >= r.p.ConfirmConsecutive {
			return true, nil
		}
		_ = r.s.SetState(session.StateConfirming, detail)
		r.emit()
	}
	return false, nil
}

func (r *run) emit() {
	snap := r.s.Snapshot()
	if snap.Terminal() {
		return
	}
	r.o.mu.Lock()
	r.o.lastMax = r.max
	r.o.mu.Unlock()
	r.o.deps.Bus.Publish(bus.FromSnapshot(snap, r.attempt, r.max, r.o.deps.Clock.Now()))
}

// finish terminates s once and publishes the terminal event.
func (o *Orchestrator) finish(s *session.Session, result session.Result, reason session.Reason, kind failure.Kind, msg string, attempt, maxAttempts int) bool {
	now := o.deps.Clock.Now()
	if !s.Finish(result, reason, kind, msg, now) {
		return false
	}
	snap := s.Snapshot()
	if maxAttempts == 0 {
		o.mu.Lock()
		maxAttempts = o.lastMax
		o.mu.Unlock()
		attempt = len(snap.Attempts)
	}
	o.deps.Bus.Publish(bus.FromSnapshot(snap, attempt, maxAttempts, now))
	metrics.ObserveSessionFinished(string(session.KindShutdown), string(result), snap.Duration())

	logger := log.WithComponent(component)
	ev := logger.Info()
	if result != session.ResultSucceeded {
		ev = logger.Warn()
	}
	ev.Str(log.FieldSessionID, snap.ID).
		Str(log.FieldEvent, "shutdown."+string(result)).
		Str(log.FieldResult, string(result)).
		Str("reason", string(reason)).
		Int("attempts", len(snap.Attempts)).
		Int("confirmations", len(snap.Confirmations)).
		Dur("elapsed", snap.Duration()).
		Msg(msg)

	if o.deps.OnFinish != nil {
		o.deps.OnFinish(snap)
	}
	return true
}
