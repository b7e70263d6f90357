// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package probe answers whether the peer is responding on the network.
//
// A probe combines an ICMP echo with TCP connect checks against a small set
// of administrative ports. The result distinguishes three levels: offline
// (nothing answers), booting (ping answers but services are not up yet) and
// reachable (ping plus enough open ports).
package probe

import (
	"context"
	"fmt"
	"net"
	"sort"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ManuGH/peersync/internal/log"
	"github.com/ManuGH/peersync/internal/metrics"
	"github.com/ManuGH/peersync/internal/target"
)

// Prober is the capability the orchestrators depend on.
type Prober interface {
	Probe(ctx context.Context, t target.Descriptor) (Status, error)
}

// Pinger sends a single echo request and returns the round-trip time.
type Pinger interface {
	Ping(ctx context.Context, addr string, timeout time.Duration) (time.Duration, error)
}

// Dialer opens TCP connections. *net.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Status is the outcome of one probe.
type Status struct {
	Pingable  bool          `json:"pingable"`
	OpenPorts []int         `json:"open_ports"`
	Latency   time.Duration `json:"latency"`
	Reachable bool          `json:"reachable"`
	CheckedAt time.Time     `json:"checked_at"`
}

// Offline reports that neither ping nor any port answered.
func (s Status) Offline() bool {
	return !s.Pingable && len(s.OpenPorts) == 0
}

// Booting reports a peer that answers but is not ready yet.
func (s Status) Booting() bool {
	return !s.Reachable && !s.Offline()
}

// Label is the short classification used for logs and metrics.
func (s Status) Label() string {
	switch {
	case s.Reachable:
		return "reachable"
	case s.Offline():
		return "offline"
	default:
		return "booting"
	}
}

// Config controls what a Checker looks at.
type Config struct {
	Ports        []int
	Ping         bool
	PingTimeout  time.Duration
	PortTimeout  time.Duration
	MinOpenPorts int
}

// DefaultConfig mirrors the configuration defaults.
func DefaultConfig() Config {
	return Config{
		Ports:        []int{135, 445, 5985},
		Ping:         true,
		PingTimeout:  2 * time.Second,
		PortTimeout:  3 * time.Second,
		MinOpenPorts: 2,
	}
}

// Checker is the network-backed Prober.
type Checker struct {
	cfg    Config
	pinger Pinger
	dialer Dialer
	now    func() time.Time
}

// Option customises a Checker.
type Option func(*Checker)

// WithPinger replaces the ICMP pinger.
func WithPinger(p Pinger) Option { return func(c *Checker) { c.pinger = p } }

// WithDialer replaces the TCP dialer.
func WithDialer(d Dialer) Option { return func(c *Checker) { c.dialer = d } }

// NewChecker builds a Checker. Without options it pings with ICMP (falling
// back to the system ping tool) and dials with a plain net.Dialer.
func NewChecker(cfg Config, opts ...Option) *Checker {
	if cfg.PingTimeout <= 0 {
		cfg.PingTimeout = 2 * time.Second
	}
	if cfg.PortTimeout <= 0 {
		cfg.PortTimeout = 3 * time.Second
	}
	c := &Checker{
		cfg:    cfg,
		pinger: NewPinger(),
		dialer: &net.Dialer{},
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Probe pings the peer and checks every configured port concurrently. It
// only returns an error when ctx ends before the checks complete.
func (c *Checker) Probe(ctx context.Context, t target.Descriptor) (Status, error) {
	if t.IsZero() {
		return Status{}, fmt.Errorf("probe: empty target")
	}
	start := time.Now()
	logger := log.WithComponentFromContext(ctx, "probe")

	var (
		mu     sync.Mutex
		status Status
	)
	g, gctx := errgroup.WithContext(ctx)

	if c.cfg.Ping {
		g.Go(func() error {
			rtt, err := c.pinger.Ping(gctx, t.Address(), c.cfg.PingTimeout)
			if err != nil {
				logger.Debug().Err(err).Str(log.FieldAddress, t.Address()).Msg("ping failed")
				return nil
			}
			mu.Lock()
			status.Pingable = true
			status.Latency = rtt
			mu.Unlock()
			return nil
		})
	}
	for _, port := range c.cfg.Ports {
		g.Go(func() error {
			if c.portOpen(gctx, t.Address(), port) {
				mu.Lock()
				status.OpenPorts = append(status.OpenPorts, port)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return Status{}, err
	}

	sort.Ints(status.OpenPorts)
	status.Reachable = c.cfg.evaluate(status)
	status.CheckedAt = c.now()
	metrics.ObserveProbe(status.Label(), time.Since(start))

	logger.Debug().
		Str(log.FieldAddress, t.Address()).
		Bool("pingable", status.Pingable).
		Ints("open_ports", status.OpenPorts).
		Str(log.FieldOutcome, status.Label()).
		Msg("probe complete")
	return status, nil
}

func (c *Checker) portOpen(ctx context.Context, host string, port int) bool {
	dctx, cancel := context.WithTimeout(ctx, c.cfg.PortTimeout)
	defer cancel()
	conn, err := c.dialer.DialContext(dctx, "tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

// evaluate applies the readiness rule: ping (when enabled) plus at least
// MinOpenPorts of the configured ports. With ping disabled at least one
// open port is always required.
func (cfg Config) evaluate(s Status) bool {
	need := cfg.MinOpenPorts
	if need > len(cfg.Ports) {
		need = len(cfg.Ports)
	}
	if !cfg.Ping {
		if need < 1 {
			need = 1
		}
		return len(s.OpenPorts) >= need
	}
	return s.Pingable && len(s.OpenPorts) >= need
}
