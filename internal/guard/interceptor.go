// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package guard

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"
)

// ErrSessionEnding is returned by Interceptor.Run after an ending was
// handled; the process is expected to exit.
var ErrSessionEnding = errors.New("controller session ending")

// Ending is the notification that the controller session is ending.
type Ending struct {
	Reason string
	At     time.Time
}

// Handler runs while the controller shutdown is held. Returning releases it.
type Handler func(ctx context.Context, e Ending)

// Interceptor registers a veto-and-continue handler with the host.
//
// Run blocks until ctx ends (returning nil) or until an ending was
// intercepted and the handler returned (returning ErrSessionEnding).
type Interceptor interface {
	Run(ctx context.Context, h Handler) error
}

// SignalInterceptor treats SIGTERM and SIGINT as the session ending. On
// Windows the runtime maps logoff and shutdown console events to SIGTERM
// and keeps the process alive while the handler runs.
type SignalInterceptor struct {
	Signals []os.Signal
}

// NewSignalInterceptor returns the platform interceptor.
func NewSignalInterceptor() *SignalInterceptor {
	return &SignalInterceptor{Signals: []os.Signal{syscall.SIGTERM, os.Interrupt}}
}

// Run implements Interceptor.
func (s *SignalInterceptor) Run(ctx context.Context, h Handler) error {
	requestEarlyNotice()

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, s.Signals...)
	defer signal.Stop(ch)

	select {
	case <-ctx.Done():
		return nil
	case sig := <-ch:
		h(ctx, Ending{Reason: "signal:" + sig.String(), At: time.Now()})
		return ErrSessionEnding
	}
}

// ChanInterceptor fires when Trigger is called. It backs the one-shot CLI
// and tests.
type ChanInterceptor struct {
	ch chan Ending
}

// NewChanInterceptor creates a ChanInterceptor.
func NewChanInterceptor() *ChanInterceptor {
	return &ChanInterceptor{ch: make(chan Ending, 1)}
}

// Trigger announces an ending. Extra triggers while one is pending are dropped.
func (c *ChanInterceptor) Trigger(reason string) {
	select {
	case c.ch <- Ending{Reason: reason, At: time.Now()}:
	default:
	}
}

// Run implements Interceptor.
func (c *ChanInterceptor) Run(ctx context.Context, h Handler) error {
	select {
	case <-ctx.Done():
		return nil
	case e := <-c.ch:
		h(ctx, e)
		return ErrSessionEnding
	}
}
