// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package daemon owns the process lifecycle of the synchronizer: the HTTP
// listeners, the config watcher, the presence monitor, wake-on-start and
// the guard that holds the controller's own shutdown.
package daemon

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ManuGH/peersync/internal/bus"
	"github.com/ManuGH/peersync/internal/config"
	"github.com/ManuGH/peersync/internal/guard"
	"github.com/ManuGH/peersync/internal/log"
	"github.com/ManuGH/peersync/internal/presence"
	"github.com/ManuGH/peersync/internal/syncer"
)

// AppOptions are the parts an App runs. Holder, Presence and Interceptor
// are optional.
type AppOptions struct {
	Logger      zerolog.Logger
	Manager     Manager
	Syncer      *syncer.Syncer
	Holder      *config.ConfigHolder
	Presence    *presence.Monitor
	Interceptor guard.Interceptor
	// WakeOnStart starts a wake session once the listeners are up.
	WakeOnStart bool
}

// App owns the long-lived runtime and delegates server management to
// Manager.
type App struct {
	opts   AppOptions
	logger zerolog.Logger
}

// NewApp creates a new App orchestrator.
func NewApp(o AppOptions) (*App, error) {
	if o.Manager == nil {
		return nil, ErrMissingManager
	}
	if o.Syncer == nil {
		return nil, ErrMissingSyncer
	}
	return &App{opts: o, logger: o.Logger}, nil
}

// Manager returns the server manager.
func (a *App) Manager() Manager { return a.opts.Manager }

// Syncer returns the synchronizer the App drives.
func (a *App) Syncer() *syncer.Syncer { return a.opts.Syncer }

// Run starts all owned subsystems and blocks until ctx is cancelled, a
// server fails, or the controller session ends. A session ending is a
// clean exit: Run returns nil after the guard released it.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	if a.opts.Holder != nil {
		g.Go(func() error {
			if err := a.opts.Holder.Watch(ctx); err != nil {
				a.logger.Warn().Err(err).Str(log.FieldEvent, "config.watcher_start_failed").Msg("failed to start config watcher")
			}
			return nil
		})
	}

	g.Go(func() error { return bus.RunLogSink(ctx, a.opts.Syncer.Bus()) })

	if a.opts.Presence != nil {
		g.Go(func() error { return a.opts.Presence.Run(ctx) })
	}

	if a.opts.Interceptor != nil {
		g.Go(func() error { return a.opts.Interceptor.Run(ctx, a.holdShutdown) })
	}

	g.Go(func() error { return a.opts.Manager.Start(ctx) })

	if a.opts.WakeOnStart {
		g.Go(func() error {
			select {
			case <-a.opts.Manager.Ready():
			case <-ctx.Done():
				return nil
			}
			a.wakeOnStart(ctx)
			return nil
		})
	}

	err := g.Wait()
	if errors.Is(err, guard.ErrSessionEnding) {
		a.logger.Info().Str(log.FieldEvent, "daemon.session_ending").Msg("controller session ending, exiting")
		return nil
	}
	return err
}

func (a *App) wakeOnStart(ctx context.Context) {
	h, err := a.opts.Syncer.StartWake(ctx)
	if err != nil {
		a.logger.Warn().Err(err).Str(log.FieldEvent, "wake.on_start_failed").Msg("wake on start not possible")
		return
	}
	snap, err := h.Wait(ctx)
	if err != nil {
		return
	}
	a.logger.Info().
		Str(log.FieldEvent, "wake.on_start_done").
		Str(log.FieldSessionID, snap.ID).
		Str(log.FieldResult, string(snap.Result)).
		Int("attempts", len(snap.Attempts)).
		Msg("wake on start finished")
}

// holdShutdown is the guard handler: it returns once the peer is off or the
// deadline passed.
func (a *App) holdShutdown(ctx context.Context, e guard.Ending) {
	a.logger.Info().
		Str(log.FieldEvent, "guard.intercepted").
		Str("trigger", e.Reason).
		Msg("controller session ending, shutting down peer first")
	a.opts.Syncer.Guard().Hold(ctx, e)
}
