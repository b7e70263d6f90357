// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/ManuGH/peersync/internal/strategy"
	"github.com/ManuGH/peersync/internal/validate"
)

// Validate checks the whole configuration and reports every problem at once.
func Validate(cfg Config) error {
	v := validate.New()

	v.IPv4("peer.address", cfg.Peer.Address)
	v.MAC("peer.mac", cfg.Peer.MAC)
	v.Username("peer.username", cfg.Peer.Username)

	absorb(v, cfg.WakePolicy().Validate())
	for _, p := range cfg.Wake.Ports {
		v.Port("wake.ports", p)
	}
	v.Range("wake.broadcast_prefix", cfg.Wake.BroadcastPrefix, 8, 30)
	v.Positive("wake.repeats", cfg.Wake.Repeats)
	v.NonNegativeDuration("wake.repeat_interval", cfg.Wake.RepeatInterval)

	seen := make(map[string]struct{}, len(cfg.Shutdown.Strategies))
	for _, name := range cfg.Shutdown.Strategies {
		v.OneOf("shutdown.strategies", name, strategy.DefaultOrder)
		if _, dup := seen[name]; dup {
			v.AddError("shutdown.strategies", fmt.Sprintf("strategy %q listed twice", name), name)
		}
		seen[name] = struct{}{}
	}
	for name := range cfg.Shutdown.StrategyTimeouts {
		v.OneOf("shutdown.strategy_timeouts", name, strategy.DefaultOrder)
	}
	sp := cfg.ShutdownPolicy()
	absorb(v, sp.Validate())

	if cfg.Guard.Enabled {
		if budget := sp.ConfirmBudget(); cfg.Guard.Deadline <= budget {
			v.AddError("guard.deadline",
				fmt.Sprintf("must exceed the confirmation budget of %s (confirm_attempts x confirm_interval), got %s", budget, cfg.Guard.Deadline),
				cfg.Guard.Deadline)
		}
	}

	for _, p := range cfg.Probe.Ports {
		v.Port("probe.ports", p)
	}
	v.Range("probe.min_open_ports", cfg.Probe.MinOpenPorts, 0, len(cfg.Probe.Ports))
	if !cfg.Probe.Ping && cfg.Probe.MinOpenPorts == 0 {
		v.AddError("probe.min_open_ports", "must be at least 1 when ping is disabled", 0)
	}
	if cfg.Probe.Ping {
		v.PositiveDuration("probe.ping_timeout", cfg.Probe.PingTimeout)
	}
	v.PositiveDuration("probe.port_timeout", cfg.Probe.PortTimeout)

	v.NotEmpty("api.listen_addr", cfg.API.ListenAddr)
	v.NonNegative("api.rate_limit", cfg.API.RateLimit)
	if cfg.Metrics.Enabled {
		v.NotEmpty("metrics.listen_addr", cfg.Metrics.ListenAddr)
	}
	if cfg.Journal.Enabled {
		v.NotEmpty("journal.path", cfg.Journal.Path)
	}
	v.NonNegative("journal.retain", cfg.Journal.Retain)
	v.NonNegativeDuration("presence.interval", cfg.Presence.Interval)

	if cfg.Telemetry.Enabled {
		v.OneOf("telemetry.exporter", cfg.Telemetry.Exporter, []string{"grpc", "http"})
		v.NotEmpty("telemetry.endpoint", cfg.Telemetry.Endpoint)
		if cfg.Telemetry.SamplingRate < 0 || cfg.Telemetry.SamplingRate > 1 {
			v.AddError("telemetry.sampling_rate", "must be between 0 and 1", cfg.Telemetry.SamplingRate)
		}
	}

	if cfg.Log.Level != "" {
		if _, err := zerolog.ParseLevel(cfg.Log.Level); err != nil {
			v.AddError("log.level", err.Error(), cfg.Log.Level)
		}
	}
	v.Port("ssh.port", cfg.SSH.Port)

	return v.Err()
}

// absorb copies the errors of a nested validation into v.
func absorb(v *validate.Validator, err error) {
	if err == nil {
		return
	}
	var ve validate.ValidationError
	if errors.As(err, &ve) {
		for _, e := range ve.Errors() {
			v.AddError(e.Field, e.Message, e.Value)
		}
		return
	}
	v.AddError("config", err.Error(), nil)
}
