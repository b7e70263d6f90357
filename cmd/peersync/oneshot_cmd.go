// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ManuGH/peersync/internal/bus"
	"github.com/ManuGH/peersync/internal/config"
	"github.com/ManuGH/peersync/internal/journal"
	"github.com/ManuGH/peersync/internal/session"
	"github.com/ManuGH/peersync/internal/syncer"
)

var quiet bool

var wakeCmd = &cobra.Command{
	Use:   "wake",
	Short: "Wake the peer and wait until it is reachable",
	Long:  "Run one wake session in-process. Exits 0 when the peer became reachable, 1 otherwise.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runOneShot(cmd.OutOrStdout(), session.KindWake)
	},
}

var shutdownCmd = &cobra.Command{
	Use:   "shutdown",
	Short: "Shut the peer down and wait until it is confirmed off",
	Long:  "Run one shutdown session in-process. Exits 0 when the peer was confirmed off, 1 otherwise.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runOneShot(cmd.OutOrStdout(), session.KindShutdown)
	},
}

func init() {
	wakeCmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "only print the result")
	shutdownCmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "only print the result")
}

// errSessionFailed makes the process exit 1 after the result was printed.
var errSessionFailed = errors.New("session did not succeed")

func runOneShot(out io.Writer, kind session.Kind) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}

	var store *journal.Store
	if cfg.Journal.Enabled {
		if store, err = journal.Open(cfg.Journal.Path); err != nil {
			return fmt.Errorf("open journal: %w", err)
		}
		defer store.Close()
	}

	b := bus.New(0)
	defer b.Close()
	s, err := syncer.New(syncer.Options{
		Config:  func() config.Config { return cfg },
		Bus:     b,
		Journal: store,
	})
	if err != nil {
		return err
	}
	defer s.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sub := b.Subscribe()
	defer sub.Close()

	start := s.StartWake
	if kind == session.KindShutdown {
		start = s.StartShutdown
	}
	h, err := start(ctx)
	if err != nil {
		return err
	}

	for {
		e, err := sub.Recv(ctx)
		if err != nil {
			if ctx.Err() != nil {
				fmt.Fprintln(out, "interrupted")
				return ctx.Err()
			}
			return err
		}
		if e.SessionID != h.ID() {
			continue
		}
		if !quiet {
			printEvent(out, e)
		}
		if e.Terminal() {
			break
		}
	}

	snap := h.Snapshot()
	fmt.Fprintf(out, "%s %s: %s (%d attempts, %s)\n", snap.Kind, snap.Result, snap.Message, len(snap.Attempts), snap.Duration().Round(time.Millisecond))
	if snap.Result != session.ResultSucceeded {
		return errSessionFailed
	}
	return nil
}

func printEvent(out io.Writer, e bus.Event) {
	if e.MaxAttempts > 0 {
		fmt.Fprintf(out, "[%3.0f%%] %-12s %d/%d %s\n", e.Progress*100, e.State, e.Attempt, e.MaxAttempts, e.Message)
		return
	}
	fmt.Fprintf(out, "[%3.0f%%] %-12s %s\n", e.Progress*100, e.State, e.Message)
}
