// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package syncer

import (
	"context"

	"github.com/ManuGH/peersync/internal/config"
	"github.com/ManuGH/peersync/internal/probe"
	"github.com/ManuGH/peersync/internal/target"
	"github.com/ManuGH/peersync/internal/wol"
)

// ConfigProber probes with the probe settings of the current configuration,
// so a reload applies to the next probe.
type ConfigProber struct {
	cfg    func() config.Config
	pinger probe.Pinger
}

// NewConfigProber creates a ConfigProber. pinger is shared across probes.
func NewConfigProber(cfg func() config.Config, pinger probe.Pinger) *ConfigProber {
	return &ConfigProber{cfg: cfg, pinger: pinger}
}

// Probe implements probe.Prober.
func (p *ConfigProber) Probe(ctx context.Context, t target.Descriptor) (probe.Status, error) {
	return probe.NewChecker(p.cfg().ProbeConfig(), probe.WithPinger(p.pinger)).Probe(ctx, t)
}

// ConfigSignaler sends wake datagrams with the transmission settings of the
// current configuration.
type ConfigSignaler struct {
	cfg func() config.Config
}

// NewConfigSignaler creates a ConfigSignaler.
func NewConfigSignaler(cfg func() config.Config) *ConfigSignaler {
	return &ConfigSignaler{cfg: cfg}
}

// Send implements wol.Signaler.
func (s *ConfigSignaler) Send(ctx context.Context, t target.Descriptor) error {
	return wol.NewSender(s.cfg().WOLConfig()).Send(ctx, t)
}
