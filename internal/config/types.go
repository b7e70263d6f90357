// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"time"

	"github.com/ManuGH/peersync/internal/strategy"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "PEERSYNC_"

// ConfigPathEnv names the config file when no --config flag is given.
const ConfigPathEnv = EnvPrefix + "CONFIG"

// Config is the complete runtime configuration. The YAML file decodes
// directly into it on top of Default().
type Config struct {
	Peer      PeerConfig      `yaml:"peer"`
	Wake      WakeConfig      `yaml:"wake"`
	Shutdown  ShutdownConfig  `yaml:"shutdown"`
	Guard     GuardConfig     `yaml:"guard"`
	Probe     ProbeConfig     `yaml:"probe"`
	API       APIConfig       `yaml:"api"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Journal   JournalConfig   `yaml:"journal"`
	Presence  PresenceConfig  `yaml:"presence"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Log       LogConfig       `yaml:"log"`
	SSH       SSHConfig       `yaml:"ssh"`
	PsExec    PsExecConfig    `yaml:"psexec"`

	// Version is set from the binary, never from the file.
	Version string `yaml:"-"`
}

// PeerConfig describes the machine being synchronized.
type PeerConfig struct {
	Name     string `yaml:"name,omitempty"`
	Address  string `yaml:"address"`
	MAC      string `yaml:"mac"`
	Username string `yaml:"username"`
	Password string `yaml:"password,omitempty"`
}

type WakeConfig struct {
	OnStart       bool          `yaml:"on_start"`
	MaxAttempts   int           `yaml:"max_attempts"`
	RetryInterval time.Duration `yaml:"retry_interval"`
	SettleDelay   time.Duration `yaml:"settle_delay"`
	ResendEvery   int           `yaml:"resend_every"`

	// Transmission shape of one wake signal.
	Ports            []int         `yaml:"ports"`
	BroadcastPrefix  int           `yaml:"broadcast_prefix"`
	LimitedBroadcast bool          `yaml:"limited_broadcast"`
	Repeats          int           `yaml:"repeats"`
	RepeatInterval   time.Duration `yaml:"repeat_interval"`
}

type ShutdownConfig struct {
	Strategies         []string                 `yaml:"strategies"`
	StrategyTimeout    time.Duration            `yaml:"strategy_timeout"`
	StrategyTimeouts   map[string]time.Duration `yaml:"strategy_timeouts,omitempty"`
	ConfirmAttempts    int                      `yaml:"confirm_attempts"`
	ConfirmInterval    time.Duration            `yaml:"confirm_interval"`
	ConfirmConsecutive int                      `yaml:"confirm_consecutive"`
	SkipIfOffline      bool                     `yaml:"skip_if_offline"`
}

type GuardConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Deadline time.Duration `yaml:"deadline"`
}

type ProbeConfig struct {
	Ports        []int         `yaml:"ports"`
	Ping         bool          `yaml:"ping"`
	PingTimeout  time.Duration `yaml:"ping_timeout"`
	PortTimeout  time.Duration `yaml:"port_timeout"`
	MinOpenPorts int           `yaml:"min_open_ports"`
}

type APIConfig struct {
	ListenAddr string `yaml:"listen_addr"`
	// RateLimit bounds manual wake/shutdown requests per minute and client.
	RateLimit int `yaml:"rate_limit"`
}

type MetricsConfig struct {
	Enabled    bool   `yaml:"enabled"`
	ListenAddr string `yaml:"listen_addr"`
}

type JournalConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
	// Retain is the number of sessions kept; older ones are pruned.
	Retain int `yaml:"retain"`
}

type PresenceConfig struct {
	// Interval between presence probes; 0 disables the monitor.
	Interval time.Duration `yaml:"interval"`
}

type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Exporter     string  `yaml:"exporter"`
	Endpoint     string  `yaml:"endpoint"`
	SamplingRate float64 `yaml:"sampling_rate"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file,omitempty"`
}

type SSHConfig struct {
	Port       int    `yaml:"port"`
	KeyPath    string `yaml:"key_path,omitempty"`
	KnownHosts string `yaml:"known_hosts,omitempty"`
	Command    string `yaml:"command,omitempty"`
}

type PsExecConfig struct {
	Path string `yaml:"path,omitempty"`
}

// Default returns the built-in defaults. The peer section is empty and
// must be supplied by the file or the environment.
func Default() Config {
	return Config{
		Wake: WakeConfig{
			OnStart:          true,
			MaxAttempts:      10,
			RetryInterval:    15 * time.Second,
			ResendEvery:      1,
			Ports:            []int{9, 7},
			BroadcastPrefix:  24,
			LimitedBroadcast: true,
			Repeats:          3,
			RepeatInterval:   100 * time.Millisecond,
		},
		Shutdown: ShutdownConfig{
			Strategies:         append([]string(nil), strategy.DefaultOrder...),
			StrategyTimeout:    15 * time.Second,
			ConfirmAttempts:    15,
			ConfirmInterval:    2 * time.Second,
			ConfirmConsecutive: 1,
			SkipIfOffline:      true,
		},
		Guard: GuardConfig{
			Enabled:  true,
			Deadline: 90 * time.Second,
		},
		Probe: ProbeConfig{
			Ports:        []int{135, 445, 5985},
			Ping:         true,
			PingTimeout:  2 * time.Second,
			PortTimeout:  3 * time.Second,
			MinOpenPorts: 2,
		},
		API: APIConfig{
			ListenAddr: "127.0.0.1:8765",
			RateLimit:  6,
		},
		Metrics: MetricsConfig{
			ListenAddr: "127.0.0.1:9765",
		},
		Journal: JournalConfig{
			Path:   "peersync.db",
			Retain: 500,
		},
		Presence: PresenceConfig{
			Interval: 30 * time.Second,
		},
		Telemetry: TelemetryConfig{
			Exporter:     "grpc",
			Endpoint:     "localhost:4317",
			SamplingRate: 1.0,
		},
		Log: LogConfig{
			Level: "info",
		},
		SSH: SSHConfig{
			Port: 22,
		},
	}
}
