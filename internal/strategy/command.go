// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package strategy

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/ManuGH/peersync/internal/failure"
	"github.com/ManuGH/peersync/internal/log"
	"github.com/ManuGH/peersync/internal/procgroup"
	"github.com/ManuGH/peersync/internal/target"
)

// Runner executes one external tool.
type Runner interface {
	Run(ctx context.Context, name string, args []string, opts procgroup.Options) (procgroup.Result, error)
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context, name string, args []string, opts procgroup.Options) (procgroup.Result, error)

func (f RunnerFunc) Run(ctx context.Context, name string, args []string, opts procgroup.Options) (procgroup.Result, error) {
	return f(ctx, name, args, opts)
}

// ProcRunner runs tools in their own process group.
var ProcRunner Runner = RunnerFunc(procgroup.Run)

// Cleanup shares the attempt deadline, capped at cleanupTimeout. After a
// timeout or abort it still gets cleanupGrace, so an attempt overruns its
// timeout by at most cleanupGrace.
const (
	cleanupTimeout = 5 * time.Second
	cleanupGrace   = time.Second
)

// Invocation is one tool call of a command strategy.
type Invocation struct {
	Bin   string
	Args  []string
	Env   []string
	Stdin string
	// Accept, when set, decides success instead of the exit status.
	Accept func(res procgroup.Result, err error) bool
}

type step func(t target.Descriptor) Invocation

// Command is a strategy made of sequential tool invocations.
type Command struct {
	name    string
	runner  Runner
	steps   []step
	cleanup []step
}

func (c *Command) Name() string { return c.name }

// Attempt runs every step within timeout. The first failing step ends the
// attempt; cleanup steps always run, bounded as described at cleanupGrace.
func (c *Command) Attempt(ctx context.Context, t target.Descriptor, timeout time.Duration) error {
	logger := log.WithComponentFromContext(ctx, "strategy").With().Str(log.FieldMethod, c.name).Logger()

	deadline := time.Now().Add(timeout)
	runCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()
	defer c.runCleanup(ctx, deadline, t)

	for _, build := range c.steps {
		inv := build(t)
		res, err := c.runner.Run(runCtx, inv.Bin, inv.Args, procgroup.Options{Env: inv.Env, Stdin: inv.Stdin})
		if inv.Accept != nil {
			if inv.Accept(res, err) {
				continue
			}
			if err == nil {
				err = errors.New(firstLine(res.Stdout + res.Stderr))
			}
		}
		if err != nil {
			kind := failure.Classify(err)
			if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
				kind = failure.KindTimeout
			}
			logger.Debug().Str("cmd", describe(inv, t.Secret())).Int("exit_code", res.ExitCode).Str(log.FieldFailure, string(kind)).Msg("strategy step failed")
			return failure.New(kind, c.name, redact(err, t.Secret()))
		}
	}
	return nil
}

func (c *Command) runCleanup(parent context.Context, deadline time.Time, t target.Descriptor) {
	if len(c.cleanup) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), cleanupBudget(time.Until(deadline)))
	defer cancel()
	for _, build := range c.cleanup {
		inv := build(t)
		_, _ = c.runner.Run(ctx, inv.Bin, inv.Args, procgroup.Options{Env: inv.Env})
	}
}

func cleanupBudget(remaining time.Duration) time.Duration {
	return max(cleanupGrace, min(remaining, cleanupTimeout))
}

// redactedError hides the secret in tool output while keeping the chain.
type redactedError struct {
	msg string
	err error
}

func (e *redactedError) Error() string { return e.msg }
func (e *redactedError) Unwrap() error { return e.err }

func redact(err error, secret string) error {
	if secret == "" || !strings.Contains(err.Error(), secret) {
		return err
	}
	return &redactedError{msg: strings.ReplaceAll(err.Error(), secret, "***"), err: err}
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if s == "" {
		return "tool reported failure"
	}
	return strings.TrimSpace(s)
}
