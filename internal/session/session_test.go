// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ManuGH/peersync/internal/failure"
	"github.com/ManuGH/peersync/internal/target"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var t0 = time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)

func peer(t *testing.T) target.Descriptor {
	t.Helper()
	d, err := target.New(target.Params{Name: "gaming-pc", Address: "192.168.1.50", MAC: "AA:BB:CC:DD:EE:FF", Username: "admin"})
	require.NoError(t, err)
	return d
}

func TestAttemptsAreSequential(t *testing.T) {
	s := New(KindWake, peer(t), t0)

	seq, err := s.BeginAttempt("probe", t0)
	require.NoError(t, err)
	require.Equal(t, 1, seq)

	_, err = s.BeginAttempt("probe", t0)
	require.ErrorIs(t, err, ErrAttemptInFlight)

	require.NoError(t, s.EndAttempt(seq, OutcomeFailure, failure.KindTimeout, "no reply", t0.Add(time.Second)))
	require.ErrorIs(t, s.EndAttempt(seq, OutcomeSuccess, failure.KindNone, "", t0), ErrAttemptCompleted)
	require.ErrorIs(t, s.EndAttempt(9, OutcomeSuccess, failure.KindNone, "", t0), ErrUnknownAttempt)

	seq, err = s.BeginAttempt("probe", t0.Add(2*time.Second))
	require.NoError(t, err)
	require.Equal(t, 2, seq)
	require.NoError(t, s.EndAttempt(seq, OutcomeSuccess, failure.KindNone, "", t0.Add(3*time.Second)))

	want := []Attempt{
		{Seq: 1, Method: "probe", StartedAt: t0, EndedAt: t0.Add(time.Second), Outcome: OutcomeFailure, Failure: failure.KindTimeout, Detail: "no reply"},
		{Seq: 2, Method: "probe", StartedAt: t0.Add(2 * time.Second), EndedAt: t0.Add(3 * time.Second), Outcome: OutcomeSuccess},
	}
	if diff := cmp.Diff(want, s.Snapshot().Attempts); diff != "" {
		t.Errorf("attempts mismatch (-want +got):\n%s", diff)
	}
}

func TestConfirmationsAreSeparate(t *testing.T) {
	s := New(KindShutdown, peer(t), t0)
	seq, err := s.BeginAttempt("winrm", t0)
	require.NoError(t, err)
	require.NoError(t, s.EndAttempt(seq, OutcomeSuccess, failure.KindNone, "", t0))

	c, err := s.BeginConfirmation(t0)
	require.NoError(t, err)
	require.Equal(t, 1, c)
	require.NoError(t, s.EndConfirmation(c, OutcomeSuccess, "offline", t0))

	snap := s.Snapshot()
	assert.Len(t, snap.Attempts, 1)
	assert.Len(t, snap.Confirmations, 1)
	assert.Equal(t, "confirm", snap.Confirmations[0].Method)
}

func TestFinishExactlyOnce(t *testing.T) {
	s := New(KindShutdown, peer(t), t0)
	cancelled := false
	s.BindCancel(func() { cancelled = true })

	_, err := s.BeginAttempt("cim", t0)
	require.NoError(t, err)

	require.True(t, s.Finish(ResultAborted, ReasonGuardDeadline, failure.KindGuardDeadlineExceeded, "deadline", t0.Add(time.Minute)))
	require.False(t, s.Finish(ResultFailed, ReasonNoStrategy, failure.KindExhaustedRetries, "", t0))
	require.True(t, cancelled)

	select {
	case <-s.Done():
	default:
		t.Fatal("done not closed")
	}

	snap := s.Snapshot()
	assert.Equal(t, ResultAborted, snap.Result)
	assert.Equal(t, StateAborted, snap.State)
	assert.Equal(t, ReasonGuardDeadline, snap.Reason)
	assert.Equal(t, OutcomeTimeout, snap.Attempts[0].Outcome)
	assert.Equal(t, time.Minute, snap.Duration())

	_, err = s.BeginAttempt("net", t0)
	require.ErrorIs(t, err, ErrTerminated)
	require.ErrorIs(t, s.SetState(StateProbing, ""), ErrTerminated)
}

func TestProgressNeverDecreases(t *testing.T) {
	s := New(KindWake, peer(t), t0)
	assert.Equal(t, 0.3, s.AdvanceProgress(0.3))
	assert.Equal(t, 0.3, s.AdvanceProgress(0.1))
	assert.Equal(t, 1.0, s.AdvanceProgress(4))
}

func TestSlotSingleFlight(t *testing.T) {
	var slot Slot
	d := peer(t)

	const callers = 32
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
		ids     = map[string]struct{}{}
	)
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s, _ := slot.Acquire(func() *Session {
				mu.Lock()
				created++
				mu.Unlock()
				return New(KindWake, d, t0)
			})
			mu.Lock()
			ids[s.ID()] = struct{}{}
			mu.Unlock()
		}()
	}
	wg.Wait()
	require.Equal(t, 1, created)
	require.Len(t, ids, 1)
}

func TestSlotReplacesTerminated(t *testing.T) {
	var slot Slot
	d := peer(t)
	first, joined := slot.Acquire(func() *Session { return New(KindWake, d, t0) })
	require.False(t, joined)

	again, joined := slot.Acquire(func() *Session { return New(KindWake, d, t0) })
	require.True(t, joined)
	require.Same(t, first, again)

	first.Finish(ResultSucceeded, ReasonPeerReachable, failure.KindNone, "", t0)
	require.Nil(t, slot.Active())
	require.Same(t, first, slot.Current())

	second, joined := slot.Acquire(func() *Session { return New(KindWake, d, t0) })
	require.False(t, joined)
	require.NotSame(t, first, second)

	slot.Release(second)
	require.Nil(t, slot.Active())
	require.Same(t, second, slot.Current())
}

func TestHandleWait(t *testing.T) {
	s := New(KindWake, peer(t), t0)
	h := NewHandle(s, false)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	snap, err := h.Wait(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.False(t, snap.Terminal())

	go s.Finish(ResultSucceeded, ReasonPeerReachable, failure.KindNone, "ok", t0)
	snap, err = h.Wait(context.Background())
	require.NoError(t, err)
	require.Equal(t, ResultSucceeded, snap.Result)
	require.Equal(t, 1.0, snap.Progress)
}
