// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package health

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/ManuGH/peersync/internal/config"
	"github.com/ManuGH/peersync/internal/log"
	"github.com/ManuGH/peersync/internal/strategy"
)

// lookPath is replaced in tests.
var lookPath = exec.LookPath

// PerformStartupChecks validates the environment before the daemon starts.
// Missing tools only produce warnings: the affected strategy fails at run
// time and the next one is tried. A journal directory that cannot be
// written is fatal when the journal is enabled.
func PerformStartupChecks(_ context.Context, cfg config.Config) (warnings []string, err error) {
	logger := log.WithComponent("startup-check")

	if _, terr := cfg.Target(); terr != nil {
		return nil, fmt.Errorf("peer configuration: %w", terr)
	}

	if cfg.Journal.Enabled {
		if derr := checkWritableDir(filepath.Dir(cfg.Journal.Path)); derr != nil {
			return nil, fmt.Errorf("journal directory: %w", derr)
		}
	}

	opts := cfg.StrategyOptions()
	usable := 0
	for _, name := range cfg.Shutdown.Strategies {
		missing := ""
		for _, tool := range strategy.Tools(name, opts) {
			if _, lerr := lookPath(tool); lerr != nil {
				missing = tool
				break
			}
		}
		if missing != "" {
			warnings = append(warnings, fmt.Sprintf("shutdown strategy %s: %s not found in PATH", name, missing))
			continue
		}
		usable++
	}
	if len(cfg.Shutdown.Strategies) > 0 && usable == 0 {
		warnings = append(warnings, "no shutdown strategy has its tools available; remote shutdown will fail")
	}

	if cfg.Guard.Enabled {
		if worst := cfg.ShutdownPolicy().WorstCase(cfg.Shutdown.Strategies); cfg.Guard.Deadline < worst {
			warnings = append(warnings, fmt.Sprintf(
				"guard.deadline %s is below the worst-case shutdown of %s (all strategy timeouts plus confirmation); strategies late in the order may not run under the guard",
				cfg.Guard.Deadline, worst))
		}
	}

	if cfg.SSH.KeyPath != "" && containsName(cfg.Shutdown.Strategies, strategy.NameSSH) {
		if _, serr := os.Stat(cfg.SSH.KeyPath); serr != nil {
			warnings = append(warnings, fmt.Sprintf("ssh key %s: %v", cfg.SSH.KeyPath, serr))
		}
	}
	if cfg.SSH.KnownHosts != "" && containsName(cfg.Shutdown.Strategies, strategy.NameSSH) {
		if _, serr := os.Stat(cfg.SSH.KnownHosts); serr != nil {
			warnings = append(warnings, fmt.Sprintf("ssh known_hosts %s: %v", cfg.SSH.KnownHosts, serr))
		}
	}

	for _, w := range warnings {
		logger.Warn().Str(log.FieldEvent, "startup.warning").Msg(w)
	}
	logger.Info().
		Str(log.FieldEvent, "startup.checked").
		Int("usable_strategies", usable).
		Int("warnings", len(warnings)).
		Msg("startup checks complete")
	return warnings, nil
}

func checkWritableDir(path string) error {
	if err := os.MkdirAll(path, 0o750); err != nil {
		return err
	}
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return errors.New("not a directory: " + path)
	}
	f, err := os.CreateTemp(path, ".peersync-write-test-*")
	if err != nil {
		return fmt.Errorf("directory is not writable: %s: %w", path, err)
	}
	name := f.Name()
	_ = f.Close()
	_ = os.Remove(name)
	return nil
}

func containsName(list []string, name string) bool {
	for _, n := range list {
		if n == name {
			return true
		}
	}
	return false
}
