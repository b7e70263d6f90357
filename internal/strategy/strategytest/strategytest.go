// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package strategytest provides scripted strategies for orchestrator tests.
package strategytest

import (
	"context"
	"sync"
	"time"

	"github.com/ManuGH/peersync/internal/failure"
	"github.com/ManuGH/peersync/internal/target"
)

// CallLog records the order in which strategies were attempted.
type CallLog struct {
	mu    sync.Mutex
	names []string
}

func (l *CallLog) add(name string) {
	l.mu.Lock()
	l.names = append(l.names, name)
	l.mu.Unlock()
}

// Names returns the recorded order.
func (l *CallLog) Names() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.names))
	copy(out, l.names)
	return out
}

// Fake is a Strategy whose behaviour is fixed at construction.
type Fake struct {
	name string
	log  *CallLog

	// Err is returned by Attempt (nil means accepted).
	Err error
	// Hang blocks until the attempt context ends and reports a timeout.
	Hang bool
	// Delay is slept (real time) before returning.
	Delay time.Duration
	// OnAttempt runs at the start of every attempt.
	OnAttempt func()

	mu       sync.Mutex
	calls    int
	timeouts []time.Duration
}

// Accepting returns a strategy that accepts immediately.
func Accepting(name string, log *CallLog) *Fake { return &Fake{name: name, log: log} }

// Failing returns a strategy that fails with err.
func Failing(name string, log *CallLog, err error) *Fake {
	return &Fake{name: name, log: log, Err: err}
}

// TimingOut returns a strategy that reports a timeout without waiting.
func TimingOut(name string, log *CallLog) *Fake {
	return &Fake{name: name, log: log, Err: failure.New(failure.KindTimeout, name, context.DeadlineExceeded)}
}

// Hanging returns a strategy that blocks for its whole timeout.
func Hanging(name string, log *CallLog) *Fake { return &Fake{name: name, log: log, Hang: true} }

func (f *Fake) Name() string { return f.name }

// Attempt implements strategy.Strategy.
func (f *Fake) Attempt(ctx context.Context, _ target.Descriptor, timeout time.Duration) error {
	f.mu.Lock()
	f.calls++
	f.timeouts = append(f.timeouts, timeout)
	f.mu.Unlock()
	if f.log != nil {
		f.log.add(f.name)
	}
	if f.OnAttempt != nil {
		f.OnAttempt()
	}

	if f.Hang {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		<-ctx.Done()
		return failure.New(failure.KindTimeout, f.name, ctx.Err())
	}
	if f.Delay > 0 {
		select {
		case <-ctx.Done():
			return failure.New(failure.KindTimeout, f.name, ctx.Err())
		case <-time.After(f.Delay):
		}
	}
	return f.Err
}

// Calls returns how often Attempt ran.
func (f *Fake) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// Timeouts returns the timeout passed to each attempt.
func (f *Fake) Timeouts() []time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]time.Duration, len(f.timeouts))
	copy(out, f.timeouts)
	return out
}
