// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package procgroup runs external tools in their own process group so a
// timed-out invocation can be reaped together with any children it spawned.
package procgroup

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

var (
	ErrNonZeroExit = errors.New("process exited with non-zero status")
	ErrNilContext  = errors.New("run context is nil")
)

// DefaultGrace is how long a process group gets between SIGTERM and SIGKILL.
const DefaultGrace = 2 * time.Second

// Options tune a single Run.
type Options struct {
	Grace time.Duration // SIGTERM -> SIGKILL window (DefaultGrace when zero)
	Env   []string      // extra environment, appended to the inherited one
	Dir   string
	Stdin string
}

// Result captures the observable outcome of a finished process.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
}

// Run starts name with args in a new process group and waits for it. When
// ctx ends first the group is terminated and the context error is returned
// (wrapped). A non-zero exit returns ErrNonZeroExit wrapped with stderr.
func Run(ctx context.Context, name string, args []string, opts Options) (Result, error) {
	if ctx == nil {
		return Result{}, ErrNilContext
	}
	grace := opts.Grace
	if grace <= 0 {
		grace = DefaultGrace
	}

	// #nosec G204 -- tool names come from a fixed strategy table, args are built internally
	cmd := exec.Command(name, args...)
	Set(cmd)
	if len(opts.Env) > 0 {
		cmd.Env = append(cmd.Environ(), opts.Env...)
	}
	cmd.Dir = opts.Dir
	if opts.Stdin != "" {
		cmd.Stdin = strings.NewReader(opts.Stdin)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return Result{ExitCode: -1}, fmt.Errorf("start %s: %w", name, err)
	}

	waitCh := make(chan error, 1)
	go func() { waitCh <- cmd.Wait() }()

	var waitErr error
	select {
	case waitErr = <-waitCh:
	case <-ctx.Done():
		_ = Terminate(cmd, waitCh, grace)
		res := Result{
			ExitCode: -1,
			Stdout:   stdout.String(),
			Stderr:   stderr.String(),
			Duration: time.Since(start),
		}
		return res, fmt.Errorf("%s: %w", name, ctx.Err())
	}

	res := Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}
	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			detail := strings.TrimSpace(res.Stderr)
			if detail == "" {
				detail = strings.TrimSpace(res.Stdout)
			}
			return res, fmt.Errorf("%s exited %d: %s: %w", name, res.ExitCode, truncate(detail, 512), ErrNonZeroExit)
		}
		res.ExitCode = -1
		return res, fmt.Errorf("wait %s: %w", name, waitErr)
	}
	return res, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
