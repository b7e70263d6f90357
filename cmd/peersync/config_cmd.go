// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ManuGH/peersync/internal/config"
	"github.com/ManuGH/peersync/internal/version"
)

var (
	initForce  bool
	dumpFormat string
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Create, validate and inspect the configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write a sample configuration file",
	Long:  "Write a sample configuration (0600) to path, --config or peersync.yaml. Existing files are kept unless --force is set.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := resolveConfigPath()
		if len(args) == 1 {
			path = args[0]
		}
		if path == "" {
			path = "peersync.yaml"
		}
		if err := config.WriteFile(path, config.Sample(), initForce); err != nil {
			if errors.Is(err, config.ErrExists) {
				return fmt.Errorf("%w (use --force to overwrite)", err)
			}
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %s; edit the peer section before starting the daemon\n", path)
		return nil
	},
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the effective configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		path := resolveConfigPath()
		loader := config.NewLoader(path, version.Version)
		if _, err := loader.Load(); err != nil {
			return fmt.Errorf("configuration error: %w", err)
		}
		out := cmd.OutOrStdout()
		for _, k := range loader.UnknownEnvKeys() {
			fmt.Fprintf(out, "warning: unknown environment variable %s\n", k)
		}
		if path == "" {
			path = "defaults+environment"
		}
		fmt.Fprintf(out, "%s is valid\n", path)
		return nil
	},
}

var configDumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Print the effective configuration with secrets masked",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.NewLoader(resolveConfigPath(), version.Version).LoadUnvalidated()
		if err != nil {
			return err
		}
		masked := config.MaskSecrets(cfg)
		out := cmd.OutOrStdout()

		switch strings.ToLower(strings.TrimSpace(dumpFormat)) {
		case "yaml", "yml":
			enc := yaml.NewEncoder(out)
			enc.SetIndent(2)
			if err := enc.Encode(masked); err != nil {
				return fmt.Errorf("encode YAML: %w", err)
			}
			return enc.Close()
		case "json":
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(masked)
		default:
			return fmt.Errorf("unsupported format %q (use yaml or json)", dumpFormat)
		}
	},
}

func init() {
	configInitCmd.Flags().BoolVarP(&initForce, "force", "f", false, "overwrite an existing file")
	configDumpCmd.Flags().StringVar(&dumpFormat, "format", "yaml", "output format: yaml or json")
	configCmd.AddCommand(configInitCmd, configValidateCmd, configDumpCmd)
}
