// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

var (
	healthMode    string
	healthTimeout time.Duration
)

var healthcheckCmd = &cobra.Command{
	Use:   "healthcheck",
	Short: "Probe the running daemon (for service managers and containers)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		path := "/readyz"
		switch healthMode {
		case "ready":
		case "live":
			path = "/healthz"
		default:
			return fmt.Errorf("unknown mode %q (use ready or live)", healthMode)
		}

		client := http.Client{Timeout: healthTimeout}
		resp, err := client.Get(resolveAPIAddr() + path)
		if err != nil {
			return fmt.Errorf("healthcheck failed (network): %w", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("healthcheck failed (status): %s", resp.Status)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "healthcheck successful (%s)\n", healthMode)
		return nil
	},
}

func init() {
	healthcheckCmd.Flags().StringVar(&healthMode, "mode", "ready", "healthcheck mode: ready or live")
	healthcheckCmd.Flags().DurationVar(&healthTimeout, "timeout", 5*time.Second, "check timeout")
}
