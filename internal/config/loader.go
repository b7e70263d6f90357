// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Loader handles configuration loading with precedence
type Loader struct {
	configPath      string
	version         string
	ConsumedEnvKeys map[string]struct{} // keys read during the last Load
}

// NewLoader creates a new configuration loader. configPath may be empty
// for an environment-only configuration.
func NewLoader(configPath, version string) *Loader {
	return &Loader{
		configPath:      configPath,
		version:         version,
		ConsumedEnvKeys: make(map[string]struct{}),
	}
}

// Path returns the config file path, if any.
func (l *Loader) Path() string { return l.configPath }

func (l *Loader) key(name string) string {
	k := EnvPrefix + name
	l.ConsumedEnvKeys[k] = struct{}{}
	return k
}

// Load loads configuration with precedence: ENV > File > Defaults, then
// validates the result.
func (l *Loader) Load() (Config, error) {
	cfg, err := l.LoadUnvalidated()
	if err != nil {
		return cfg, err
	}
	if err := Validate(cfg); err != nil {
		return cfg, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// LoadUnvalidated applies defaults, file and environment but skips
// validation. config dump uses it to show what would be loaded.
func (l *Loader) LoadUnvalidated() (Config, error) {
	cfg := Default()

	if l.configPath != "" {
		if err := decodeFile(l.configPath, &cfg); err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
	}

	l.mergeEnvConfig(&cfg)

	if cfg.Journal.Path != "" && !filepath.IsAbs(cfg.Journal.Path) && l.configPath != "" {
		cfg.Journal.Path = filepath.Join(filepath.Dir(l.configPath), cfg.Journal.Path)
	}
	cfg.Version = l.version
	return cfg, nil
}

// UnknownEnvKeys lists PEERSYNC_ variables in the environment that the
// last Load did not read, usually typos.
func (l *Loader) UnknownEnvKeys() []string {
	var out []string
	for _, kv := range os.Environ() {
		k, _, _ := strings.Cut(kv, "=")
		if !strings.HasPrefix(k, EnvPrefix) || k == ConfigPathEnv {
			continue
		}
		if _, ok := l.ConsumedEnvKeys[k]; !ok {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

// decodeFile decodes a YAML file onto cfg with STRICT parsing. Unknown
// fields are rejected to prevent silent misconfiguration.
func decodeFile(path string, cfg *Config) error {
	path = filepath.Clean(path)

	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("%w: %s (only YAML supported)", ErrUnsupportedFormat, ext)
	}

	// #nosec G304 -- configuration file paths are provided by the operator via CLI/ENV
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		if strings.Contains(err.Error(), "not found in type") {
			return fmt.Errorf("strict config parse error: %w: %w", ErrUnknownConfigField, err)
		}
		return fmt.Errorf("strict config parse error: %w", err)
	}

	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("config file contains multiple documents or trailing content")
	}
	return nil
}

// mergeEnvConfig overrides cfg with PEERSYNC_ variables.
func (l *Loader) mergeEnvConfig(cfg *Config) {
	cfg.Peer.Name = ParseString(l.key("PEER_NAME"), cfg.Peer.Name)
	cfg.Peer.Address = ParseString(l.key("PEER_ADDRESS"), cfg.Peer.Address)
	cfg.Peer.MAC = ParseString(l.key("PEER_MAC"), cfg.Peer.MAC)
	cfg.Peer.Username = ParseString(l.key("PEER_USERNAME"), cfg.Peer.Username)
	cfg.Peer.Password = ParseString(l.key("PEER_PASSWORD"), cfg.Peer.Password)

	cfg.Wake.OnStart = ParseBool(l.key("WAKE_ON_START"), cfg.Wake.OnStart)
	cfg.Wake.MaxAttempts = ParseInt(l.key("WAKE_MAX_ATTEMPTS"), cfg.Wake.MaxAttempts)
	cfg.Wake.RetryInterval = ParseDuration(l.key("WAKE_RETRY_INTERVAL"), cfg.Wake.RetryInterval)
	cfg.Wake.SettleDelay = ParseDuration(l.key("WAKE_SETTLE_DELAY"), cfg.Wake.SettleDelay)
	cfg.Wake.ResendEvery = ParseInt(l.key("WAKE_RESEND_EVERY"), cfg.Wake.ResendEvery)
	cfg.Wake.Ports = ParseIntList(l.key("WAKE_PORTS"), cfg.Wake.Ports)
	cfg.Wake.BroadcastPrefix = ParseInt(l.key("WAKE_BROADCAST_PREFIX"), cfg.Wake.BroadcastPrefix)
	cfg.Wake.LimitedBroadcast = ParseBool(l.key("WAKE_LIMITED_BROADCAST"), cfg.Wake.LimitedBroadcast)
	cfg.Wake.Repeats = ParseInt(l.key("WAKE_REPEATS"), cfg.Wake.Repeats)
	cfg.Wake.RepeatInterval = ParseDuration(l.key("WAKE_REPEAT_INTERVAL"), cfg.Wake.RepeatInterval)

	cfg.Shutdown.Strategies = ParseList(l.key("SHUTDOWN_STRATEGIES"), cfg.Shutdown.Strategies)
	cfg.Shutdown.StrategyTimeout = ParseDuration(l.key("SHUTDOWN_STRATEGY_TIMEOUT"), cfg.Shutdown.StrategyTimeout)
	cfg.Shutdown.ConfirmAttempts = ParseInt(l.key("SHUTDOWN_CONFIRM_ATTEMPTS"), cfg.Shutdown.ConfirmAttempts)
	cfg.Shutdown.ConfirmInterval = ParseDuration(l.key("SHUTDOWN_CONFIRM_INTERVAL"), cfg.Shutdown.ConfirmInterval)
	cfg.Shutdown.ConfirmConsecutive = ParseInt(l.key("SHUTDOWN_CONFIRM_CONSECUTIVE"), cfg.Shutdown.ConfirmConsecutive)
	cfg.Shutdown.SkipIfOffline = ParseBool(l.key("SHUTDOWN_SKIP_IF_OFFLINE"), cfg.Shutdown.SkipIfOffline)

	cfg.Guard.Enabled = ParseBool(l.key("GUARD_ENABLED"), cfg.Guard.Enabled)
	cfg.Guard.Deadline = ParseDuration(l.key("GUARD_DEADLINE"), cfg.Guard.Deadline)

	cfg.Probe.Ports = ParseIntList(l.key("PROBE_PORTS"), cfg.Probe.Ports)
	cfg.Probe.Ping = ParseBool(l.key("PROBE_PING"), cfg.Probe.Ping)
	cfg.Probe.PingTimeout = ParseDuration(l.key("PROBE_PING_TIMEOUT"), cfg.Probe.PingTimeout)
	cfg.Probe.PortTimeout = ParseDuration(l.key("PROBE_PORT_TIMEOUT"), cfg.Probe.PortTimeout)
	cfg.Probe.MinOpenPorts = ParseInt(l.key("PROBE_MIN_OPEN_PORTS"), cfg.Probe.MinOpenPorts)

	cfg.API.ListenAddr = ParseString(l.key("API_LISTEN_ADDR"), cfg.API.ListenAddr)
	cfg.API.RateLimit = ParseInt(l.key("API_RATE_LIMIT"), cfg.API.RateLimit)

	cfg.Metrics.Enabled = ParseBool(l.key("METRICS_ENABLED"), cfg.Metrics.Enabled)
	cfg.Metrics.ListenAddr = ParseString(l.key("METRICS_LISTEN_ADDR"), cfg.Metrics.ListenAddr)

	cfg.Journal.Enabled = ParseBool(l.key("JOURNAL_ENABLED"), cfg.Journal.Enabled)
	cfg.Journal.Path = ParseString(l.key("JOURNAL_PATH"), cfg.Journal.Path)
	cfg.Journal.Retain = ParseInt(l.key("JOURNAL_RETAIN"), cfg.Journal.Retain)

	cfg.Presence.Interval = ParseDuration(l.key("PRESENCE_INTERVAL"), cfg.Presence.Interval)

	cfg.Telemetry.Enabled = ParseBool(l.key("TELEMETRY_ENABLED"), cfg.Telemetry.Enabled)
	cfg.Telemetry.Exporter = ParseString(l.key("TELEMETRY_EXPORTER"), cfg.Telemetry.Exporter)
	cfg.Telemetry.Endpoint = ParseString(l.key("TELEMETRY_ENDPOINT"), cfg.Telemetry.Endpoint)
	cfg.Telemetry.SamplingRate = ParseFloat(l.key("TELEMETRY_SAMPLING_RATE"), cfg.Telemetry.SamplingRate)

	cfg.Log.Level = ParseString(l.key("LOG_LEVEL"), cfg.Log.Level)
	cfg.Log.File = ParseString(l.key("LOG_FILE"), cfg.Log.File)

	cfg.SSH.Port = ParseInt(l.key("SSH_PORT"), cfg.SSH.Port)
	cfg.SSH.KeyPath = ParseString(l.key("SSH_KEY_PATH"), cfg.SSH.KeyPath)
	cfg.SSH.KnownHosts = ParseString(l.key("SSH_KNOWN_HOSTS"), cfg.SSH.KnownHosts)
	cfg.SSH.Command = ParseString(l.key("SSH_COMMAND"), cfg.SSH.Command)

	cfg.PsExec.Path = ParseString(l.key("PSEXEC_PATH"), cfg.PsExec.Path)
}
