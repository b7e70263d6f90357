// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package session holds the wake and shutdown session records, the
// single-flight slot that guards them and the handle callers await.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ManuGH/peersync/internal/failure"
	"github.com/ManuGH/peersync/internal/target"
)

// Attempt is one retry or strategy invocation. Once Outcome leaves
// OutcomePending the record is never changed again.
type Attempt struct {
	Seq       int          `json:"seq"`
	Method    string       `json:"method"`
	StartedAt time.Time    `json:"started_at"`
	EndedAt   time.Time    `json:"ended_at,omitzero"`
	Outcome   Outcome      `json:"outcome"`
	Failure   failure.Kind `json:"failure,omitempty"`
	Detail    string       `json:"detail,omitempty"`
}

// Session is one wake or shutdown lifecycle. All methods are safe for
// concurrent use; only the owning orchestrator records attempts.
type Session struct {
	mu sync.Mutex

	id        string
	kind      Kind
	target    target.Descriptor
	startedAt time.Time

	state         State
	message       string
	progress      float64
	attempts      []Attempt
	confirmations []Attempt
	endedAt       time.Time
	result        Result
	reason        Reason
	failure       failure.Kind

	done   chan struct{}
	cancel context.CancelFunc
}

// NewID returns a fresh session identifier.
func NewID() string { return uuid.NewString() }

// New creates a session in StateStarting.
func New(kind Kind, t target.Descriptor, now time.Time) *Session {
	return &Session{
		id:        NewID(),
		kind:      kind,
		target:    t,
		startedAt: now,
		state:     StateStarting,
		done:      make(chan struct{}),
	}
}

func (s *Session) ID() string                { return s.id }
func (s *Session) Kind() Kind                { return s.kind }
func (s *Session) Target() target.Descriptor { return s.target }
func (s *Session) StartedAt() time.Time      { return s.startedAt }

// Done is closed once the session reaches a terminal result.
func (s *Session) Done() <-chan struct{} { return s.done }

// BindCancel registers the cancel function of the worker context. It is
// invoked when the session is finished from outside the worker.
func (s *Session) BindCancel(cancel context.CancelFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancel = cancel
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Terminal reports whether a result has been set.
func (s *Session) Terminal() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result != ResultNone
}

// Result returns the terminal result, or ResultNone while running.
func (s *Session) Result() Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result
}

// SetState moves a running session to a non-terminal state.
func (s *Session) SetState(state State, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.result != ResultNone {
		return ErrTerminated
	}
	s.state = state
	s.message = message
	return nil
}

// AdvanceProgress returns max(previous, p) clamped to [0,1] so the
// progress a session reports never goes backwards.
func (s *Session) AdvanceProgress(p float64) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p > 1 {
		p = 1
	}
	if p > s.progress {
		s.progress = p
	}
	return s.progress
}

// BeginAttempt appends a pending attempt and returns its sequence number.
// Attempts are strictly sequential: a new one cannot start while the
// previous is pending.
func (s *Session) BeginAttempt(method string, at time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.begin(&s.attempts, method, at)
}

// EndAttempt sets the outcome of a pending attempt.
func (s *Session) EndAttempt(seq int, outcome Outcome, kind failure.Kind, detail string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.end(s.attempts, seq, outcome, kind, detail, at)
}

// BeginConfirmation appends a pending confirmation probe. Confirmation
// probes are numbered independently of attempts.
func (s *Session) BeginConfirmation(at time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.begin(&s.confirmations, "confirm", at)
}

// EndConfirmation sets the outcome of a pending confirmation probe.
func (s *Session) EndConfirmation(seq int, outcome Outcome, detail string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.end(s.confirmations, seq, outcome, failure.KindNone, detail, at)
}

func (s *Session) begin(list *[]Attempt, method string, at time.Time) (int, error) {
	if s.result != ResultNone {
		return 0, ErrTerminated
	}
	if n := len(*list); n > 0 && (*list)[n-1].Outcome == OutcomePending {
		return 0, ErrAttemptInFlight
	}
	seq := len(*list) + 1
	*list = append(*list, Attempt{
		Seq:       seq,
		Method:    method,
		StartedAt: at,
		Outcome:   OutcomePending,
	})
	return seq, nil
}

func (s *Session) end(list []Attempt, seq int, outcome Outcome, kind failure.Kind, detail string, at time.Time) error {
	if s.result != ResultNone {
		return ErrTerminated
	}
	if seq < 1 || seq > len(list) {
		return ErrUnknownAttempt
	}
	a := &list[seq-1]
	if a.Outcome != OutcomePending {
		return ErrAttemptCompleted
	}
	a.Outcome = outcome
	a.Failure = kind
	a.Detail = detail
	a.EndedAt = at
	return nil
}

// Finish sets the terminal result exactly once. It returns false when the
// session was already terminated. A pending attempt is closed as timed out.
// When the caller is not the worker, the worker context is cancelled.
func (s *Session) Finish(result Result, reason Reason, kind failure.Kind, message string, at time.Time) bool {
	s.mu.Lock()
	if s.result != ResultNone || result == ResultNone {
		s.mu.Unlock()
		return false
	}
	closePending(s.attempts, kind, at)
	closePending(s.confirmations, kind, at)
	s.result = result
	s.reason = reason
	s.failure = kind
	s.state = result.State()
	s.message = message
	s.endedAt = at
	if result == ResultSucceeded {
		s.progress = 1
	}
	cancel := s.cancel
	close(s.done)
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	return true
}

func closePending(list []Attempt, kind failure.Kind, at time.Time) {
	if n := len(list); n > 0 && list[n-1].Outcome == OutcomePending {
		list[n-1].Outcome = OutcomeTimeout
		list[n-1].Failure = kind
		list[n-1].Detail = "interrupted by session termination"
		list[n-1].EndedAt = at
	}
}

// Snapshot is an immutable copy of a session for observers.
type Snapshot struct {
	ID            string       `json:"id"`
	Kind          Kind         `json:"kind"`
	Peer          string       `json:"peer"`
	Address       string       `json:"address"`
	StartedAt     time.Time    `json:"started_at"`
	EndedAt       time.Time    `json:"ended_at,omitzero"`
	State         State        `json:"state"`
	Message       string       `json:"message,omitempty"`
	Progress      float64      `json:"progress"`
	Result        Result       `json:"result,omitempty"`
	Reason        Reason       `json:"reason,omitempty"`
	Failure       failure.Kind `json:"failure,omitempty"`
	Attempts      []Attempt    `json:"attempts"`
	Confirmations []Attempt    `json:"confirmations"`
}

// Terminal reports whether the snapshot carries a result.
func (s Snapshot) Terminal() bool { return s.Result != ResultNone }

// Duration is the elapsed time of a finished session.
func (s Snapshot) Duration() time.Duration {
	if s.EndedAt.IsZero() {
		return 0
	}
	return s.EndedAt.Sub(s.StartedAt)
}

// Snapshot copies the current session state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		ID:            s.id,
		Kind:          s.kind,
		Peer:          s.target.Name(),
		Address:       s.target.Address(),
		StartedAt:     s.startedAt,
		EndedAt:       s.endedAt,
		State:         s.state,
		Message:       s.message,
		Progress:      s.progress,
		Result:        s.result,
		Reason:        s.reason,
		Failure:       s.failure,
		Attempts:      make([]Attempt, len(s.attempts)),
		Confirmations: make([]Attempt, len(s.confirmations)),
	}
	copy(snap.Attempts, s.attempts)
	copy(snap.Confirmations, s.confirmations)
	return snap
}
