// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

//go:build unix

package guard

import (
	"context"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignalInterceptorHoldsUntilHandlerReturns(t *testing.T) {
	ic := &SignalInterceptor{Signals: []os.Signal{syscall.SIGUSR1}}

	handled := make(chan Ending, 1)
	errCh := make(chan error, 1)
	go func() {
		errCh <- ic.Run(context.Background(), func(_ context.Context, e Ending) {
			time.Sleep(20 * time.Millisecond)
			handled <- e
		})
	}()

	// signal.Notify is registered asynchronously; resend until observed.
	require.Eventually(t, func() bool {
		_ = syscall.Kill(os.Getpid(), syscall.SIGUSR1)
		select {
		case e := <-handled:
			assert.Contains(t, e.Reason, "signal:")
			return true
		case <-time.After(20 * time.Millisecond):
			return false
		}
	}, 2*time.Second, 50*time.Millisecond)

	require.ErrorIs(t, <-errCh, ErrSessionEnding)
}

func TestSignalInterceptorStopsOnContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ic := &SignalInterceptor{Signals: []os.Signal{syscall.SIGUSR2}}
	require.NoError(t, ic.Run(ctx, func(context.Context, Ending) {}))
}
