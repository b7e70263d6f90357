// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package shutdown

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ManuGH/peersync/internal/bus"
	"github.com/ManuGH/peersync/internal/clock"
	"github.com/ManuGH/peersync/internal/failure"
	"github.com/ManuGH/peersync/internal/probe"
	"github.com/ManuGH/peersync/internal/probe/probetest"
	"github.com/ManuGH/peersync/internal/session"
	"github.com/ManuGH/peersync/internal/strategy"
	"github.com/ManuGH/peersync/internal/strategy/strategytest"
	"github.com/ManuGH/peersync/internal/target"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var t0 = time.Date(2025, 3, 1, 23, 0, 0, 0, time.UTC)

func peer(t *testing.T) target.Descriptor {
	t.Helper()
	d, err := target.New(target.Params{Name: "desk", Address: "192.168.1.50", MAC: "AA:BB:CC:DD:EE:FF", Username: "admin", Secret: "pw"})
	require.NoError(t, err)
	return d
}

func testPolicy() Policy {
	return Policy{
		StrategyTimeout:    2 * time.Second,
		ConfirmAttempts:    5,
		ConfirmInterval:    time.Second,
		ConfirmConsecutive: 1,
		SkipIfOffline:      true,
	}
}

func newOrch(t *testing.T, prober probe.Prober, strategies ...strategy.Strategy) *Orchestrator {
	t.Helper()
	o := New(Deps{Strategies: strategies, Prober: prober, Bus: bus.New(256), Clock: clock.NewVirtual(t0)})
	t.Cleanup(o.Close)
	return o
}

func runSession(t *testing.T, o *Orchestrator, p Policy) session.Snapshot {
	t.Helper()
	h, err := o.Start(context.Background(), peer(t), p)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	snap, err := h.Wait(ctx)
	require.NoError(t, err)
	return snap
}

func methods(attempts []session.Attempt) []string {
	out := make([]string, len(attempts))
	for i, a := range attempts {
		out[i] = a.Method
	}
	return out
}

func TestFixedOrderAcrossSessions(t *testing.T) {
	calls := &strategytest.CallLog{}
	denied := failure.New(failure.KindAuthenticationRejected, "x", errors.New("access is denied"))
	o := newOrch(t, probetest.Always(probetest.Reachable),
		strategytest.Failing("winrm", calls, denied),
		strategytest.Failing("cim", calls, denied),
		strategytest.Failing("net", calls, denied),
		strategytest.Failing("psexec", calls, denied),
	)

	for range 3 {
		snap := runSession(t, o, testPolicy())
		assert.Equal(t, []string{"winrm", "cim", "net", "psexec"}, methods(snap.Attempts))
	}
	want := []string{"winrm", "cim", "net", "psexec", "winrm", "cim", "net", "psexec", "winrm", "cim", "net", "psexec"}
	if diff := cmp.Diff(want, calls.Names()); diff != "" {
		t.Errorf("call order mismatch (-want +got):\n%s", diff)
	}
}

func TestAllStrategiesFail(t *testing.T) {
	calls := &strategytest.CallLog{}
	prober := probetest.Always(probetest.Reachable)
	o := newOrch(t, prober,
		strategytest.TimingOut("winrm", calls),
		strategytest.Failing("cim", calls, failure.New(failure.KindStrategyUnsupported, "cim", errors.New("the rpc server is unavailable"))),
		strategytest.Failing("net", calls, errors.New("Access is denied.")),
	)

	snap := runSession(t, o, testPolicy())
	assert.Equal(t, session.ResultFailed, snap.Result)
	assert.Equal(t, session.ReasonNoStrategy, snap.Reason)
	assert.Equal(t, failure.KindExhaustedRetries, snap.Failure)
	require.Len(t, snap.Attempts, 3)
	assert.Empty(t, snap.Confirmations)
	assert.Equal(t, 1, prober.Calls(), "only the pre-check probes")

	assert.Equal(t, session.OutcomeTimeout, snap.Attempts[0].Outcome)
	assert.Equal(t, failure.KindTimeout, snap.Attempts[0].Failure)
	assert.Equal(t, session.OutcomeFailure, snap.Attempts[1].Outcome)
	assert.Equal(t, failure.KindStrategyUnsupported, snap.Attempts[1].Failure)
	assert.Equal(t, failure.KindAuthenticationRejected, snap.Attempts[2].Failure)
}

func TestStopsAfterAcceptedStrategy(t *testing.T) {
	calls := &strategytest.CallLog{}
	after := strategytest.Accepting("psexec", calls)
	o := newOrch(t, probetest.New(probetest.Reachable, probetest.Reachable, probetest.Offline),
		strategytest.TimingOut("winrm", calls),
		strategytest.Accepting("cim", calls),
		after,
	)

	snap := runSession(t, o, testPolicy())
	assert.Equal(t, session.ResultSucceeded, snap.Result)
	assert.Equal(t, session.ReasonPeerOffline, snap.Reason)
	assert.Equal(t, []string{"winrm", "cim"}, methods(snap.Attempts))
	assert.Equal(t, 0, after.Calls())
	require.Len(t, snap.Confirmations, 2)
	assert.Equal(t, session.OutcomeFailure, snap.Confirmations[0].Outcome)
	assert.Equal(t, session.OutcomeSuccess, snap.Confirmations[1].Outcome)
}

func TestFourStrategiesScenario(t *testing.T) {
	calls := &strategytest.CallLog{}
	o := newOrch(t, probetest.New(probetest.Reachable, probetest.Offline),
		strategytest.TimingOut("winrm", calls),
		strategytest.TimingOut("cim", calls),
		strategytest.TimingOut("net", calls),
		strategytest.Accepting("psexec", calls),
	)

	snap := runSession(t, o, testPolicy())
	assert.Equal(t, session.ResultSucceeded, snap.Result)
	require.Len(t, snap.Attempts, 4)
	for _, a := range snap.Attempts[:3] {
		assert.Equal(t, session.OutcomeTimeout, a.Outcome)
	}
	assert.Equal(t, session.OutcomeSuccess, snap.Attempts[3].Outcome)
	require.Len(t, snap.Confirmations, 1)
	assert.Equal(t, 1, snap.Confirmations[0].Seq)
	assert.Equal(t, 1.0, snap.Progress)
}

func TestPeerStillOnlineIsDistinct(t *testing.T) {
	calls := &strategytest.CallLog{}
	second := strategytest.Accepting("cim", calls)
	o := newOrch(t, probetest.Always(probetest.Booting),
		strategytest.Accepting("winrm", calls),
		second,
	)

	p := testPolicy()
	snap := runSession(t, o, p)
	assert.Equal(t, session.ResultFailed, snap.Result)
	assert.Equal(t, session.ReasonPeerStillOnline, snap.Reason)
	assert.Len(t, snap.Attempts, 1)
	assert.Len(t, snap.Confirmations, p.ConfirmAttempts)
	assert.Equal(t, 0, second.Calls())
	assert.Equal(t, p.ConfirmBudget(), snap.Duration())
}

func TestAlreadyOffline(t *testing.T) {
	calls := &strategytest.CallLog{}
	o := newOrch(t, probetest.Always(probetest.Offline), strategytest.Accepting("winrm", calls))

	snap := runSession(t, o, testPolicy())
	assert.Equal(t, session.ResultSucceeded, snap.Result)
	assert.Equal(t, session.ReasonAlreadyOffline, snap.Reason)
	assert.Empty(t, snap.Attempts)
	assert.Empty(t, snap.Confirmations)
	assert.Empty(t, calls.Names())
}

func TestPrecheckDisabled(t *testing.T) {
	calls := &strategytest.CallLog{}
	o := newOrch(t, probetest.Always(probetest.Offline), strategytest.Accepting("winrm", calls))

	p := testPolicy()
	p.SkipIfOffline = false
	snap := runSession(t, o, p)
	assert.Equal(t, session.ResultSucceeded, snap.Result)
	assert.Equal(t, session.ReasonPeerOffline, snap.Reason)
	assert.Equal(t, []string{"winrm"}, calls.Names())
	assert.Len(t, snap.Confirmations, 1)
}

func TestConsecutiveConfirmations(t *testing.T) {
	o := newOrch(t,
		probetest.New(probetest.Reachable, probetest.Offline, probetest.Booting, probetest.Offline, probetest.Offline),
		strategytest.Accepting("winrm", nil),
	)
	p := testPolicy()
	p.ConfirmConsecutive = 2
	snap := runSession(t, o, p)
	assert.Equal(t, session.ResultSucceeded, snap.Result)
	assert.Len(t, snap.Confirmations, 4)
}

func TestPerStrategyTimeouts(t *testing.T) {
	a := strategytest.TimingOut("winrm", nil)
	b := strategytest.TimingOut("cim", nil)
	o := newOrch(t, probetest.Always(probetest.Reachable), a, b)

	p := testPolicy()
	p.StrategyTimeouts = map[string]time.Duration{"cim": 7 * time.Second}
	runSession(t, o, p)
	assert.Equal(t, []time.Duration{2 * time.Second}, a.Timeouts())
	assert.Equal(t, []time.Duration{7 * time.Second}, b.Timeouts())
}

func TestNoStrategies(t *testing.T) {
	o := newOrch(t, probetest.Always(probetest.Reachable))
	snap := runSession(t, o, testPolicy())
	assert.Equal(t, session.ResultFailed, snap.Result)
	assert.Equal(t, session.ReasonNoStrategies, snap.Reason)
}

func TestAbortCancelsHangingStrategy(t *testing.T) {
	calls := &strategytest.CallLog{}
	next := strategytest.Accepting("cim", calls)
	o := New(Deps{
		Strategies: []strategy.Strategy{strategytest.Hanging("winrm", calls), next},
		Prober:     probetest.Always(probetest.Reachable),
		Clock:      clock.Real{},
	})
	defer o.Close()

	p := testPolicy()
	p.StrategyTimeout = time.Hour
	h, err := o.Start(context.Background(), peer(t), p)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(calls.Names()) == 1 }, time.Second, time.Millisecond)

	assert.False(t, o.Abort("not-the-id", session.ReasonGuardDeadline, failure.KindGuardDeadlineExceeded, "x"))
	require.True(t, o.Abort(h.ID(), session.ReasonGuardDeadline, failure.KindGuardDeadlineExceeded, "guard deadline reached"))
	assert.False(t, o.Abort(h.ID(), session.ReasonGuardDeadline, failure.KindGuardDeadlineExceeded, "again"))

	snap, err := h.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, session.ResultAborted, snap.Result)
	assert.Equal(t, failure.KindGuardDeadlineExceeded, snap.Failure)
	require.Len(t, snap.Attempts, 1)
	assert.Equal(t, session.OutcomeTimeout, snap.Attempts[0].Outcome)

	o.Close()
	assert.Equal(t, 0, next.Calls())
	assert.Len(t, h.Snapshot().Attempts, 1, "no attempts recorded after termination")
}

func TestStartJoinsRunningSession(t *testing.T) {
	calls := &strategytest.CallLog{}
	release := make(chan struct{})
	blocking := strategytest.Accepting("winrm", calls)
	blocking.OnAttempt = func() { <-release }
	o := newOrch(t, probetest.New(probetest.Reachable, probetest.Offline), blocking)

	first, err := o.Start(context.Background(), peer(t), testPolicy())
	require.NoError(t, err)
	require.Eventually(t, func() bool { return blocking.Calls() == 1 }, time.Second, time.Millisecond)

	second, err := o.Start(context.Background(), peer(t), testPolicy())
	require.NoError(t, err)
	assert.True(t, second.Joined())
	assert.Equal(t, first.ID(), second.ID())

	close(release)
	snap, err := second.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, session.ResultSucceeded, snap.Result)
	assert.Equal(t, 1, blocking.Calls())
}

func TestTerminalEventDelivered(t *testing.T) {
	b := bus.New(2)
	o := New(Deps{
		Strategies: []strategy.Strategy{strategytest.TimingOut("winrm", nil), strategytest.Accepting("cim", nil)},
		Prober:     probetest.New(probetest.Reachable, probetest.Offline),
		Bus:        b,
		Clock:      clock.NewVirtual(t0),
	})
	defer o.Close()
	sub := b.Subscribe()
	defer sub.Close()

	snap := runSession(t, o, testPolicy())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	var last bus.Event
	for {
		e, err := sub.Recv(ctx)
		require.NoError(t, err)
		last = e
		if e.Terminal() {
			break
		}
	}
	assert.Equal(t, snap.ID, last.SessionID)
	assert.Equal(t, session.ResultSucceeded, last.Result)
}

func TestPolicyValidation(t *testing.T) {
	require.NoError(t, DefaultPolicy().Validate())
	p := DefaultPolicy()
	p.ConfirmConsecutive = 20
	require.Error(t, p.Validate())
	p = DefaultPolicy()
	p.StrategyTimeouts = map[string]time.Duration{"winrm": 0}
	require.Error(t, p.Validate())
	assert.Equal(t, 30*time.Second, DefaultPolicy().ConfirmBudget())
}

func TestPolicyWorstCase(t *testing.T) {
	p := DefaultPolicy()
	p.StrategyTimeouts = map[string]time.Duration{strategy.NameSSH: 5 * time.Second}

	assert.Equal(t, 30*time.Second, p.WorstCase(nil))
	assert.Equal(t, 95*time.Second, p.WorstCase(strategy.DefaultOrder))
}
