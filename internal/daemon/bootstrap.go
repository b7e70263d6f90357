// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ManuGH/peersync/internal/api"
	"github.com/ManuGH/peersync/internal/bus"
	"github.com/ManuGH/peersync/internal/config"
	"github.com/ManuGH/peersync/internal/guard"
	"github.com/ManuGH/peersync/internal/health"
	"github.com/ManuGH/peersync/internal/journal"
	"github.com/ManuGH/peersync/internal/log"
	"github.com/ManuGH/peersync/internal/presence"
	"github.com/ManuGH/peersync/internal/probe"
	"github.com/ManuGH/peersync/internal/strategy"
	"github.com/ManuGH/peersync/internal/syncer"
	"github.com/ManuGH/peersync/internal/target"
	"github.com/ManuGH/peersync/internal/telemetry"
	"github.com/ManuGH/peersync/internal/wol"
)

// Options configures Bootstrap. Prober, Signaler and Strategies replace the
// real implementations, for tests.
type Options struct {
	// Config is the validated startup configuration.
	Config config.Config
	// Loader enables live reload; nil keeps Config for the process lifetime.
	Loader *config.Loader
	// Interceptor defaults to the platform signal interceptor.
	Interceptor guard.Interceptor

	Prober     probe.Prober
	Signaler   wol.Signaler
	Strategies []strategy.Strategy
}

// Bootstrap assembles the daemon from its configuration. Listen addresses,
// the journal path and the strategy list are fixed at startup; everything
// else follows config reloads.
func Bootstrap(ctx context.Context, o Options) (*App, error) {
	cfg := o.Config
	logger := log.WithComponent("daemon")

	if _, err := health.PerformStartupChecks(ctx, cfg); err != nil {
		return nil, fmt.Errorf("startup checks: %w", err)
	}

	current := func() config.Config { return cfg }
	var holder *config.ConfigHolder
	if o.Loader != nil {
		holder = config.NewConfigHolder(cfg, o.Loader)
		current = holder.Get
	}

	provider, err := telemetry.NewProvider(ctx, cfg.TelemetryConfig())
	if err != nil {
		logger.Warn().Err(err).Msg("telemetry initialization failed, continuing without tracing")
		provider = nil
	}

	var store *journal.Store
	if cfg.Journal.Enabled {
		store, err = journal.Open(cfg.Journal.Path)
		if err != nil {
			return nil, fmt.Errorf("open journal: %w", err)
		}
	}

	b := bus.New(0)
	s, err := syncer.New(syncer.Options{
		Config:     current,
		Prober:     o.Prober,
		Signaler:   o.Signaler,
		Strategies: o.Strategies,
		Bus:        b,
		Journal:    store,
	})
	if err != nil {
		if store != nil {
			_ = store.Close()
		}
		return nil, err
	}

	var monitor *presence.Monitor
	if cfg.Presence.Interval > 0 {
		monitor = presence.New(s.Prober(), func() target.Descriptor {
			t, _ := current().Target()
			return t
		}, cfg.Presence.Interval)
	}

	hm := health.NewManager(cfg.Version)
	hm.RegisterChecker(health.NewPeerConfigChecker(s.Target))
	if store != nil {
		hm.RegisterChecker(health.NewJournalChecker(store))
	}
	apiDeps := api.Deps{Controller: s, Health: hm, RateLimit: cfg.API.RateLimit}
	if monitor != nil {
		hm.RegisterChecker(health.NewPresenceChecker(monitor.Last, 3*cfg.Presence.Interval))
		apiDeps.Presence = monitor
	}

	deps := Deps{
		Logger:     logger,
		APIAddr:    cfg.API.ListenAddr,
		APIHandler: api.New(apiDeps).Handler(),
	}
	if cfg.Metrics.Enabled {
		deps.MetricsAddr = cfg.Metrics.ListenAddr
		deps.MetricsHandler = promhttp.Handler()
	}
	mgr, err := NewManager(deps)
	if err != nil {
		s.Close()
		if store != nil {
			_ = store.Close()
		}
		return nil, err
	}

	// LIFO: the syncer stops first, telemetry flushes last.
	if provider != nil {
		mgr.RegisterShutdownHook("telemetry", provider.Shutdown)
	}
	if store != nil {
		mgr.RegisterShutdownHook("journal", func(context.Context) error { return store.Close() })
	}
	mgr.RegisterShutdownHook("bus", func(context.Context) error {
		b.Close()
		return nil
	})
	mgr.RegisterShutdownHook("syncer", func(ctx context.Context) error {
		done := make(chan struct{})
		go func() {
			s.Close()
			close(done)
		}()
		select {
		case <-done:
			return nil
		case <-ctx.Done():
			return fmt.Errorf("sessions still running: %w", ctx.Err())
		}
	})

	interceptor := o.Interceptor
	if interceptor == nil {
		interceptor = guard.NewSignalInterceptor()
	}

	logger.Info().
		Str(log.FieldEvent, "daemon.bootstrapped").
		Str("version", cfg.Version).
		Strs("strategies", s.Strategies()).
		Bool("guard", cfg.Guard.Enabled).
		Dur("guard_deadline", cfg.Guard.Deadline).
		Bool("journal", store != nil).
		Dur("presence_interval", cfg.Presence.Interval.Round(time.Second)).
		Msg("daemon assembled")

	return NewApp(AppOptions{
		Logger:      logger,
		Manager:     mgr,
		Syncer:      s,
		Holder:      holder,
		Presence:    monitor,
		Interceptor: interceptor,
		WakeOnStart: cfg.Wake.OnStart,
	})
}
