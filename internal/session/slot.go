// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package session

import (
	"context"
	"sync"
)

// Slot holds at most one active session of a kind. Acquire is an atomic
// check-and-set: two callers can never both observe an empty slot.
type Slot struct {
	mu     sync.Mutex
	active *Session
	last   *Session
}

// Acquire returns the running session (joined=true) or installs the one
// built by create. create runs under the slot lock and must not block.
func (sl *Slot) Acquire(create func() *Session) (s *Session, joined bool) {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	if sl.active != nil {
		if !sl.active.Terminal() {
			return sl.active, true
		}
		sl.last = sl.active
		sl.active = nil
	}
	s = create()
	sl.active = s
	return s, false
}

// Release clears the slot if it still holds s.
func (sl *Slot) Release(s *Session) {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	if sl.active == s {
		sl.active = nil
		sl.last = s
	}
}

// Active returns the running session, or nil.
func (sl *Slot) Active() *Session {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	if sl.active != nil && !sl.active.Terminal() {
		return sl.active
	}
	return nil
}

// Current returns the running session, falling back to the most recent
// finished one. It returns nil before the first session.
func (sl *Slot) Current() *Session {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	if sl.active != nil {
		return sl.active
	}
	return sl.last
}

// Handle is what Start* returns: a reference to a running or joined
// session that callers may await.
type Handle struct {
	s      *Session
	joined bool
}

// NewHandle wraps s.
func NewHandle(s *Session, joined bool) *Handle {
	return &Handle{s: s, joined: joined}
}

func (h *Handle) ID() string { return h.s.ID() }

// Joined reports whether the call attached to an already running session.
func (h *Handle) Joined() bool { return h.joined }

// Session exposes the underlying session.
func (h *Handle) Session() *Session { return h.s }

// Done is closed on termination.
func (h *Handle) Done() <-chan struct{} { return h.s.Done() }

// Snapshot returns the current state.
func (h *Handle) Snapshot() Snapshot { return h.s.Snapshot() }

// Wait blocks until the session terminates or ctx ends. On ctx expiry the
// session keeps running; the returned snapshot is the state at that time.
func (h *Handle) Wait(ctx context.Context) (Snapshot, error) {
	select {
	case <-h.s.Done():
		return h.s.Snapshot(), nil
	case <-ctx.Done():
		return h.s.Snapshot(), ctx.Err()
	}
}
