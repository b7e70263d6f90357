// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Command peersync keeps a remote Windows peer's power state in step with
// this machine: it wakes the peer when the controller starts and shuts it
// down before the controller itself goes down.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ManuGH/peersync/internal/config"
	"github.com/ManuGH/peersync/internal/log"
	"github.com/ManuGH/peersync/internal/version"
)

var (
	configPath string
	apiAddr    string
)

var rootCmd = &cobra.Command{
	Use:   "peersync",
	Short: "Wake and shut down a LAN peer together with this machine",
	Long: `peersync wakes a remote Windows peer when this machine starts and shuts it
down (and confirms it is off) before this machine shuts down.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file (YAML); defaults to $"+config.ConfigPathEnv)
	rootCmd.PersistentFlags().StringVar(&apiAddr, "api", "", "address of a running daemon (default: api.listen_addr from config)")

	rootCmd.AddCommand(runCmd, wakeCmd, shutdownCmd, statusCmd, historyCmd, configCmd, healthcheckCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// resolveConfigPath returns --config, then $PEERSYNC_CONFIG.
func resolveConfigPath() string {
	if p := strings.TrimSpace(configPath); p != "" {
		return p
	}
	return strings.TrimSpace(os.Getenv(config.ConfigPathEnv))
}

// loadConfig loads and validates the configuration and reconfigures logging
// from it.
func loadConfig() (config.Config, *config.Loader, error) {
	path := resolveConfigPath()
	loader := config.NewLoader(path, version.Version)
	cfg, err := loader.Load()
	if err != nil {
		return cfg, nil, err
	}
	if err := log.Configure(log.Config{
		Level:   cfg.Log.Level,
		File:    cfg.Log.File,
		Service: "peersync",
		Version: version.Version,
	}); err != nil {
		return cfg, nil, fmt.Errorf("configure logging: %w", err)
	}

	logger := log.WithComponent("cli")
	source := "defaults+env"
	if path != "" {
		source = "file"
	}
	logger.Debug().Str(log.FieldEvent, "config.loaded").Str("source", source).Str("path", path).Msg("configuration loaded")
	for _, k := range loader.UnknownEnvKeys() {
		logger.Warn().Str(log.FieldEvent, "config.unknown_env").Str("key", k).Msg("unknown environment variable ignored")
	}
	return cfg, loader, nil
}

// resolveAPIAddr returns the base URL of the running daemon.
func resolveAPIAddr() string {
	addr := strings.TrimSpace(apiAddr)
	if addr == "" {
		cfg, err := config.NewLoader(resolveConfigPath(), version.Version).LoadUnvalidated()
		if err == nil {
			addr = cfg.API.ListenAddr
		} else {
			addr = config.Default().API.ListenAddr
		}
	}
	if !strings.HasPrefix(addr, "http://") && !strings.HasPrefix(addr, "https://") {
		addr = "http://" + addr
	}
	return strings.TrimRight(addr, "/")
}
