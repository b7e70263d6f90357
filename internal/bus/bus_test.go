// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package bus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ManuGH/peersync/internal/metrics"
	"github.com/ManuGH/peersync/internal/session"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func intermediate(n int) Event {
	return Event{SessionID: "s1", Kind: session.KindWake, State: session.StateProbing, Attempt: n, MaxAttempts: 10}
}

func terminal() Event {
	return Event{SessionID: "s1", Kind: session.KindWake, State: session.StateSucceeded, Result: session.ResultSucceeded, Progress: 1}
}

func TestFanOut(t *testing.T) {
	b := New(8)
	s1 := b.Subscribe()
	s2 := b.Subscribe()
	defer s1.Close()
	defer s2.Close()
	require.Equal(t, 2, b.Subscribers())

	b.Publish(intermediate(1))
	b.Publish(terminal())

	ctx := context.Background()
	for _, s := range []*Subscription{s1, s2} {
		e, err := s.Recv(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, e.Attempt)
		e, err = s.Recv(ctx)
		require.NoError(t, err)
		assert.True(t, e.Terminal())
	}
}

func TestDropOldestIntermediateKeepsTerminal(t *testing.T) {
	before := testutil.ToFloat64(metrics.BusDroppedTotal.WithLabelValues("overflow"))

	b := New(3)
	s := b.Subscribe()
	defer s.Close()

	for i := 1; i <= 5; i++ {
		b.Publish(intermediate(i))
	}
	b.Publish(terminal())

	ctx := context.Background()
	var got []Event
	for range 3 {
		e, err := s.Recv(ctx)
		require.NoError(t, err)
		got = append(got, e)
	}
	assert.Equal(t, 4, got[0].Attempt)
	assert.Equal(t, 5, got[1].Attempt)
	assert.True(t, got[2].Terminal())
	assert.Equal(t, uint64(3), s.Dropped())

	after := testutil.ToFloat64(metrics.BusDroppedTotal.WithLabelValues("overflow"))
	assert.Equal(t, 3.0, after-before)
}

func TestTerminalNeverDropped(t *testing.T) {
	b := New(1)
	s := b.Subscribe()
	defer s.Close()

	b.Publish(terminal())
	b.Publish(intermediate(1))
	b.Publish(terminal())

	ctx := context.Background()
	e, err := s.Recv(ctx)
	require.NoError(t, err)
	require.True(t, e.Terminal())
	e, err = s.Recv(ctx)
	require.NoError(t, err)
	require.True(t, e.Terminal())
}

func TestLateSubscriberMissesEarlierEvents(t *testing.T) {
	b := New(4)
	b.Publish(intermediate(1))
	s := b.Subscribe()
	defer s.Close()
	b.Publish(terminal())

	e, err := s.Recv(context.Background())
	require.NoError(t, err)
	require.True(t, e.Terminal())
}

func TestRecvBlocksUntilPublish(t *testing.T) {
	b := New(4)
	s := b.Subscribe()
	defer s.Close()

	var wg sync.WaitGroup
	wg.Add(1)
	var got Event
	go func() {
		defer wg.Done()
		got, _ = s.Recv(context.Background())
	}()
	time.Sleep(10 * time.Millisecond)
	b.Publish(terminal())
	wg.Wait()
	require.True(t, got.Terminal())
}

func TestRecvContextAndClose(t *testing.T) {
	b := New(4)
	s := b.Subscribe()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := s.Recv(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	b.Publish(intermediate(1))
	b.Close()
	b.Publish(intermediate(2))

	e, err := s.Recv(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, e.Attempt)
	_, err = s.Recv(context.Background())
	require.ErrorIs(t, err, ErrClosed)
	require.Equal(t, 0, b.Subscribers())

	late := b.Subscribe()
	_, err = late.Recv(context.Background())
	require.ErrorIs(t, err, ErrClosed)
}

func TestRunLogSinkStopsOnClose(t *testing.T) {
	b := New(4)
	done := make(chan error, 1)
	go func() { done <- RunLogSink(context.Background(), b) }()

	require.Eventually(t, func() bool { return b.Subscribers() == 1 }, time.Second, time.Millisecond)
	b.Publish(intermediate(1))
	b.Publish(terminal())
	b.Close()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("log sink did not stop")
	}
}
