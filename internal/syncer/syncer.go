// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package syncer wires the wake and shutdown orchestrators, the status bus,
// the guard and the journal around one configuration source. It is the
// single entry point the daemon, the API and the CLI talk to.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ManuGH/peersync/internal/bus"
	"github.com/ManuGH/peersync/internal/clock"
	"github.com/ManuGH/peersync/internal/config"
	"github.com/ManuGH/peersync/internal/guard"
	"github.com/ManuGH/peersync/internal/journal"
	"github.com/ManuGH/peersync/internal/log"
	"github.com/ManuGH/peersync/internal/probe"
	"github.com/ManuGH/peersync/internal/session"
	"github.com/ManuGH/peersync/internal/shutdown"
	"github.com/ManuGH/peersync/internal/strategy"
	"github.com/ManuGH/peersync/internal/target"
	"github.com/ManuGH/peersync/internal/wake"
	"github.com/ManuGH/peersync/internal/wol"
)

// ErrNoJournal is returned by History when the journal is disabled.
var ErrNoJournal = errors.New("session journal is disabled")

const journalTimeout = 5 * time.Second

// Options are the collaborators of a Syncer. Prober, Signaler and
// Strategies default to the real implementations built from Config.
type Options struct {
	// Config returns the current configuration snapshot.
	Config     func() config.Config
	Prober     probe.Prober
	Signaler   wol.Signaler
	Strategies []strategy.Strategy
	Bus        *bus.Bus
	Journal    *journal.Store
	Clock      clock.Clock
}

// Syncer is the power lifecycle synchronizer.
type Syncer struct {
	cfg      func() config.Config
	prober   probe.Prober
	bus      *bus.Bus
	journal  *journal.Store
	wake     *wake.Orchestrator
	shutdown *shutdown.Orchestrator
	guard    *guard.Guard
}

// New builds a Syncer. The strategy list is fixed for the lifetime of the
// Syncer; every other setting is read from Config when a session starts.
func New(o Options) (*Syncer, error) {
	if o.Config == nil {
		return nil, errors.New("syncer: config source is required")
	}
	if o.Bus == nil {
		o.Bus = bus.New(0)
	}
	if o.Prober == nil {
		o.Prober = NewConfigProber(o.Config, probe.NewPinger())
	}
	if o.Signaler == nil {
		o.Signaler = NewConfigSignaler(o.Config)
	}
	if o.Strategies == nil {
		cfg := o.Config()
		list, err := strategy.Build(cfg.Shutdown.Strategies, cfg.StrategyOptions())
		if err != nil {
			return nil, fmt.Errorf("build strategies: %w", err)
		}
		o.Strategies = list
	}

	s := &Syncer{cfg: o.Config, prober: o.Prober, bus: o.Bus, journal: o.Journal}
	s.wake = wake.New(wake.Deps{
		Signaler: o.Signaler,
		Prober:   o.Prober,
		Bus:      o.Bus,
		Clock:    o.Clock,
		OnFinish: s.record,
	})
	s.shutdown = shutdown.New(shutdown.Deps{
		Strategies: o.Strategies,
		Prober:     o.Prober,
		Bus:        o.Bus,
		Clock:      o.Clock,
		OnFinish:   s.record,
	})
	s.guard = guard.New(s.shutdown, o.Bus, s.guardSnapshot)
	return s, nil
}

// Bus returns the status bus observers subscribe to.
func (s *Syncer) Bus() *bus.Bus { return s.bus }

// Prober returns the prober sessions use, for the presence monitor.
func (s *Syncer) Prober() probe.Prober { return s.prober }

// Guard returns the shutdown guard bound to this Syncer.
func (s *Syncer) Guard() *guard.Guard { return s.guard }

// Strategies lists the shutdown strategies in the order they are tried.
func (s *Syncer) Strategies() []string { return s.shutdown.Strategies() }

// Target returns the peer descriptor of the current configuration.
func (s *Syncer) Target() (target.Descriptor, error) {
	return s.cfg().Target()
}

// StartWake starts a wake session or joins the running one.
func (s *Syncer) StartWake(ctx context.Context) (*session.Handle, error) {
	cfg := s.cfg()
	t, err := cfg.Target()
	if err != nil {
		return nil, fmt.Errorf("peer: %w", err)
	}
	return s.wake.Start(ctx, t, cfg.WakePolicy())
}

// StartShutdown starts a shutdown session or joins the running one.
func (s *Syncer) StartShutdown(ctx context.Context) (*session.Handle, error) {
	cfg := s.cfg()
	t, err := cfg.Target()
	if err != nil {
		return nil, fmt.Errorf("peer: %w", err)
	}
	return s.shutdown.Start(ctx, t, cfg.ShutdownPolicy())
}

// Status is the current view of both session kinds.
type Status struct {
	Peer       PeerInfo          `json:"peer"`
	Strategies []string          `json:"strategies"`
	Wake       *session.Snapshot `json:"wake"`
	Shutdown   *session.Snapshot `json:"shutdown"`
}

// PeerInfo is the non-secret part of the peer configuration.
type PeerInfo struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	MAC     string `json:"mac"`
}

// Status returns the running or last finished session of each kind.
func (s *Syncer) Status() Status {
	st := Status{Strategies: s.Strategies()}
	if t, err := s.cfg().Target(); err == nil {
		st.Peer = PeerInfo{Name: t.Name(), Address: t.Address(), MAC: t.MACString()}
	}
	if cur := s.wake.Current(); cur != nil {
		snap := cur.Snapshot()
		st.Wake = &snap
	}
	if cur := s.shutdown.Current(); cur != nil {
		snap := cur.Snapshot()
		st.Shutdown = &snap
	}
	return st
}

// History returns journaled sessions, newest first.
func (s *Syncer) History(ctx context.Context, f journal.Filter) ([]session.Snapshot, error) {
	if s.journal == nil {
		return nil, ErrNoJournal
	}
	return s.journal.History(ctx, f)
}

// Close stops both orchestrators and waits for their workers. The bus and
// the journal are owned by the caller.
func (s *Syncer) Close() {
	s.wake.Close()
	s.shutdown.Close()
}

func (s *Syncer) guardSnapshot() guard.Snapshot {
	cfg := s.cfg()
	t, err := cfg.Target()
	if err != nil {
		return guard.Snapshot{}
	}
	return guard.Snapshot{
		Enabled:  cfg.Guard.Enabled,
		Deadline: cfg.Guard.Deadline,
		Target:   t,
		Policy:   cfg.ShutdownPolicy(),
	}
}

// record journals a terminal snapshot. It runs on the goroutine that
// finished the session, which may be the guard during an OS shutdown, so
// it is bounded.
func (s *Syncer) record(snap session.Snapshot) {
	if s.journal == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), journalTimeout)
	defer cancel()

	logger := log.WithComponent("journal")
	if err := s.journal.Record(ctx, snap); err != nil {
		logger.Warn().Err(err).Str(log.FieldSessionID, snap.ID).Msg("failed to journal session")
		return
	}
	if _, err := s.journal.Prune(ctx, s.cfg().Journal.Retain); err != nil {
		logger.Warn().Err(err).Msg("failed to prune journal")
	}
}
