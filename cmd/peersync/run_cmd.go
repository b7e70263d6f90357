// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/ManuGH/peersync/internal/daemon"
	"github.com/ManuGH/peersync/internal/log"
	"github.com/ManuGH/peersync/internal/version"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the synchronizer daemon",
	Long: `Run the daemon: wake the peer on start (wake.on_start), serve the local API,
and hold this machine's shutdown until the peer is confirmed off.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, loader, err := loadConfig()
		if err != nil {
			return err
		}
		logger := log.WithComponent("daemon")
		logger.Info().
			Str(log.FieldEvent, "daemon.starting").
			Str("version", version.Version).
			Str("commit", version.Commit).
			Str("build_date", version.Date).
			Str(log.FieldPeer, cfg.Peer.Name).
			Str(log.FieldAddress, cfg.Peer.Address).
			Msg("starting peersync")

		// Termination signals belong to the guard interceptor, which
		// ends Run after releasing the hold.
		app, err := daemon.Bootstrap(context.Background(), daemon.Options{Config: cfg, Loader: loader})
		if err != nil {
			logger.Fatal().
				Err(err).
				Str(log.FieldEvent, "startup.failed").
				Msg("failed to assemble daemon")
		}
		if err := app.Run(context.Background()); err != nil {
			logger.Error().Err(err).Str(log.FieldEvent, "daemon.failed").Msg("daemon stopped with error")
			return err
		}
		logger.Info().Str(log.FieldEvent, "daemon.stopped").Msg("daemon stopped")
		return nil
	},
}
