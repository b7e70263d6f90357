// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package wake drives a peer from off to reachable: send the wake datagram,
// then probe with bounded retry until the peer answers.
package wake

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
	"github.com/ManuGH/peersync/internal/target"
	"github.com/ManuGH/peersync/internal/telemetry"
	"github.com/ManuGH/peersync/internal/wol"
)

var ErrClosed = errors.New("wake orchestrator closed")

// Progress messages shown to observers.
const (
	MsgSending    = "sending wake datagram"
	MsgProbing    = "checking whether the peer is reachable"
	MsgWaiting    = "waiting before next check"
	MsgBooting    = "peer responds to ping, still booting"
	MsgNoResponse = "no response from peer"
	MsgReachable  = "peer is reachable"
	MsgExhausted  = "peer did not become reachable"
	MsgSendFailed = "wake datagram could not be sent and the peer did not answer"
	MsgCancelled  = "wake cancelled"
	probeMethod   = "probe"
	component     = "wake"
)

// Deps are the collaborators of the orchestrator.
type Deps struct {
	Signaler wol.Signaler
	Prober   probe.Prober
	Bus      *bus.Bus
	Clock    clock.Clock
	// OnFinish receives every terminal snapshot (journal, presence).
	OnFinish func(session.Snapshot)
}

// Orchestrator runs at most one wake session at a time.
type Orchestrator struct {
	deps   Deps
	tracer trace.Tracer
	slot   session.Slot

	root   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// New creates an orchestrator. Workers run until Close.
func New(deps Deps) *Orchestrator {
	if deps.Clock == nil {
		deps.Clock = clock.Real{}
	}
	if deps.Bus == nil {
		deps.Bus = bus.New(0)
	}
	root, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		deps:   deps,
		tracer: telemetry.Tracer("peersync/wake"),
		root:   root,
		cancel: cancel,
	}
}

// Start begins a wake session, or joins the running one. It returns
// immediately; the result arrives on the bus and through Handle.Wait.
// ctx only contributes request-scoped values, not cancellation.
func (o *Orchestrator) Start(ctx context.Context, t target.Descriptor, p Policy) (*session.Handle, error) {
	if t.IsZero() {
		return nil, errors.New("wake: empty target")
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("wake policy: %w", err)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return nil, ErrClosed
	}

	now := o.deps.Clock.Now()
	s, joined := o.slot.Acquire(func() *session.Session {
		return session.New(session.KindWake, t, now)
	})
	if joined {
		metrics.IncSessionJoined(string(session.KindWake))
		logger := log.WithComponent(component)
		logger.Info().
			Str(log.FieldSessionID, s.ID()).
			Str(log.FieldEvent, "wake.joined").
			Msg("wake already in progress, joining session")
		return session.NewHandle(s, true), nil
	}

	metrics.IncSessionStarted(string(session.KindWake))
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
	sentOK  bool
	attempt int
}

func (o *Orchestrator) run(ctx context.Context, s *session.Session, p Policy) {
	ctx = log.ContextWithSessionID(ctx, s.ID())
	t := s.Target()
	ctx, span := o.tracer.Start(ctx, "wake.session",
		trace.WithAttributes(telemetry.SessionAttributes(s.ID(), string(session.KindWake), t.Name(), t.Address())...))
	defer span.End()

	r := &run{
		o:      o,
		s:      s,
		p:      p,
		logger: log.WithComponentFromContext(ctx, component),
	}
	r.logger.Info().
		Str(log.FieldEvent, "wake.start").
		Str(log.FieldPeer, t.Name()).
		Str(log.FieldAddress, t.Address()).
		Str(log.FieldMAC, t.MACString()).
		Int(log.FieldMaxAttempts, p.MaxAttempts).
		Dur("retry_interval", p.RetryInterval).
		Msg("wake session started")
	r.emit(0)

	result, reason, kind, msg := r.loop(ctx)
	o.finish(s, result, reason, kind, msg, r.attempt, p.MaxAttempts)
	span.SetAttributes(telemetry.ResultAttributes(string(result), string(reason))...)
}

func (r *run) loop(ctx context.Context) (session.Result, session.Reason, failure.Kind, string) {
	c := r.o.deps.Clock

	r.send(ctx)
	if err := clock.Sleep(ctx, c, r.p.SettleDelay); err != nil {
		return session.ResultAborted, session.ReasonCancelled, failure.KindNone, MsgCancelled
	}

	for n := 1; n <= r.p.MaxAttempts; n++ {
		if n > 1 {
			r.setState(session.StateWaiting, MsgWaiting)
			r.emit(r.attempt)
			if err := clock.Sleep(ctx, c, r.p.RetryInterval); err != nil {
				return session.ResultAborted, session.ReasonCancelled, failure.KindNone, MsgCancelled
			}
			if r.p.resendBefore(n) {
				r.send(ctx)
			}
		}

		reachable, err := r.probe(ctx, n)
		if err != nil {
			return session.ResultAborted, session.ReasonCancelled, failure.KindNone, MsgCancelled
		}
		if reachable {
			return session.ResultSucceeded, session.ReasonPeerReachable, failure.KindNone, MsgReachable
		}
	}

	if !r.sentOK {
		return session.ResultFailed, session.ReasonWakeSendFailed, failure.KindExhaustedRetries, MsgSendFailed
	}
	return session.ResultFailed, session.ReasonPeerUnreachable, failure.KindExhaustedRetries, MsgExhausted
}

// send transmits the datagram. A failed transmission does not end the
// session: the peer may already be on.
func (r *run) send(ctx context.Context) {
	r.setState(session.StateSignaling, MsgSending)
	r.emit(r.attempt)
	if err := r.o.deps.Signaler.Send(ctx, r.s.Target()); err != nil {
		r.logger.Warn().Err(err).
			Str(log.FieldEvent, "wake.send_failed").
			Str(log.FieldFailure, string(failure.KindOf(err))).
			Msg("wake datagram not sent")
		return
	}
	r.sentOK = true
}

func (r *run) probe(ctx context.Context, n int) (bool, error) {
	c := r.o.deps.Clock
	seq, err := r.s.BeginAttempt(probeMethod, c.Now())
	if err != nil {
		return false, err
	}
	r.attempt = seq
	r.setState(session.StateProbing, MsgProbing)

	actx, span := r.o.tracer.Start(ctx, "wake.attempt", trace.WithAttributes(telemetry.AttemptAttributes(seq, probeMethod)...))
	st, err := r.o.deps.Prober.Probe(actx, r.s.Target())
	if err != nil {
		telemetry.EndSpan(span, err)
		return false, err
	}

	outcome, kind, detail := session.OutcomeSuccess, failure.KindNone, MsgReachable
	if !st.Reachable {
		outcome, kind, detail = session.OutcomeFailure, failure.KindNetworkUnreachable, MsgNoResponse
		if st.Booting() {
			detail = MsgBooting
		}
	}
	span.SetAttributes(telemetry.OutcomeAttributes(string(outcome), string(kind))...)
	span.End()

	if err := r.s.EndAttempt(seq, outcome, kind, detail, c.Now()); err != nil {
		return false, err
	}
	metrics.IncAttempt(string(session.KindWake), probeMethod, string(outcome))

	r.s.AdvanceProgress(float64(n) / float64(r.p.MaxAttempts))
	r.setState(session.StateProbing, detail)
	r.logger.Info().
		Str(log.FieldEvent, "wake.attempt").
		Int(log.FieldAttempt, n).
		Int(log.FieldMaxAttempts, r.p.MaxAttempts).
		Str(log.FieldOutcome, st.Label()).
		Ints("open_ports", st.OpenPorts).
		Msg(detail)
	if !st.Reachable {
		r.emit(seq)
	}
	return st.Reachable, nil
}

func (r *run) setState(state session.State, msg string) {
	_ = r.s.SetState(state, msg)
}

func (r *run) emit(attempt int) {
	snap := r.s.Snapshot()
	if snap.Terminal() {
		return
	}
	r.o.deps.Bus.Publish(bus.FromSnapshot(snap, attempt, r.p.MaxAttempts, r.o.deps.Clock.Now()))
}

// finish terminates s once and publishes the terminal event.
func (o *Orchestrator) finish(s *session.Session, result session.Result, reason session.Reason, kind failure.Kind, msg string, attempt, maxAttempts int) {
	now := o.deps.Clock.Now()
	if !s.Finish(result, reason, kind, msg, now) {
		return
	}
	snap := s.Snapshot()
	o.deps.Bus.Publish(bus.FromSnapshot(snap, attempt, maxAttempts, now))
	metrics.ObserveSessionFinished(string(session.KindWake), string(result), snap.Duration())

	logger := log.WithComponent(component)
	ev := logger.Info()
	if result != session.ResultSucceeded {
		ev = logger.Warn()
	}
	ev.Str(log.FieldSessionID, snap.ID).
		Str(log.FieldEvent, "wake."+string(result)).
		Str(log.FieldResult, string(result)).
		Str("reason", string(reason)).
		Int("attempts", len(snap.Attempts)).
		Dur("elapsed", snap.Duration()).
		Msg(msg)

	if o.deps.OnFinish != nil {
		o.deps.OnFinish(snap)
	}
}
