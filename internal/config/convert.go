// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"maps"

	"github.com/ManuGH/peersync/internal/probe"
	"github.com/ManuGH/peersync/internal/shutdown"
	"github.com/ManuGH/peersync/internal/strategy"
	"github.com/ManuGH/peersync/internal/target"
	"github.com/ManuGH/peersync/internal/telemetry"
	"github.com/ManuGH/peersync/internal/wake"
	"github.com/ManuGH/peersync/internal/wol"
)

// Target builds the immutable peer descriptor.
func (c Config) Target() (target.Descriptor, error) {
	return target.New(target.Params{
		Name:     c.Peer.Name,
		Address:  c.Peer.Address,
		MAC:      c.Peer.MAC,
		Username: c.Peer.Username,
		Secret:   c.Peer.Password,
	})
}

func (c Config) WakePolicy() wake.Policy {
	return wake.Policy{
		MaxAttempts:   c.Wake.MaxAttempts,
		RetryInterval: c.Wake.RetryInterval,
		SettleDelay:   c.Wake.SettleDelay,
		ResendEvery:   c.Wake.ResendEvery,
	}
}

func (c Config) ShutdownPolicy() shutdown.Policy {
	return shutdown.Policy{
		StrategyTimeout:    c.Shutdown.StrategyTimeout,
		StrategyTimeouts:   maps.Clone(c.Shutdown.StrategyTimeouts),
		ConfirmAttempts:    c.Shutdown.ConfirmAttempts,
		ConfirmInterval:    c.Shutdown.ConfirmInterval,
		ConfirmConsecutive: c.Shutdown.ConfirmConsecutive,
		SkipIfOffline:      c.Shutdown.SkipIfOffline,
	}
}

func (c Config) ProbeConfig() probe.Config {
	return probe.Config{
		Ports:        append([]int(nil), c.Probe.Ports...),
		Ping:         c.Probe.Ping,
		PingTimeout:  c.Probe.PingTimeout,
		PortTimeout:  c.Probe.PortTimeout,
		MinOpenPorts: c.Probe.MinOpenPorts,
	}
}

func (c Config) WOLConfig() wol.Config {
	return wol.Config{
		Ports:            append([]int(nil), c.Wake.Ports...),
		PrefixLen:        c.Wake.BroadcastPrefix,
		LimitedBroadcast: c.Wake.LimitedBroadcast,
		Repeats:          c.Wake.Repeats,
		Interval:         c.Wake.RepeatInterval,
	}
}

func (c Config) StrategyOptions() strategy.Options {
	return strategy.Options{
		PsExecPath: c.PsExec.Path,
		SSH: strategy.SSHConfig{
			Port:       c.SSH.Port,
			KeyPath:    c.SSH.KeyPath,
			KnownHosts: c.SSH.KnownHosts,
			Command:    c.SSH.Command,
		},
	}
}

func (c Config) TelemetryConfig() telemetry.Config {
	return telemetry.Config{
		Enabled:        c.Telemetry.Enabled,
		ServiceName:    "peersync",
		ServiceVersion: c.Version,
		ExporterType:   c.Telemetry.Exporter,
		Endpoint:       c.Telemetry.Endpoint,
		SamplingRate:   c.Telemetry.SamplingRate,
	}
}
