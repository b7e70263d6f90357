// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/peersync/internal/api"
)

// ShutdownHook is a function that performs cleanup during graceful shutdown.
// Hooks are executed in reverse registration order (LIFO).
type ShutdownHook func(ctx context.Context) error

// Manager runs the HTTP listeners and the shutdown hooks.
type Manager interface {
	// Start binds the listeners and blocks until ctx is cancelled or a
	// server fails; either way it shuts down before returning.
	Start(ctx context.Context) error

	// Shutdown gracefully shuts down all servers and runs the hooks.
	Shutdown(ctx context.Context) error

	// RegisterShutdownHook registers a function to be called during shutdown.
	RegisterShutdownHook(name string, hook ShutdownHook)

	// Ready is closed once the listeners are bound.
	Ready() <-chan struct{}

	// APIAddr is the bound API address, empty before Ready.
	APIAddr() string
}

type manager struct {
	deps Deps

	apiServer     *http.Server
	metricsServer *http.Server
	apiAddr       string

	shutdownHooks []namedHook

	started  bool
	stopping bool
	ready    chan struct{}
	mu       sync.Mutex

	logger zerolog.Logger
}

type namedHook struct {
	name string
	hook ShutdownHook
}

// NewManager creates a new daemon manager with the given dependencies.
func NewManager(deps Deps) (Manager, error) {
	if err := deps.Validate(); err != nil {
		return nil, fmt.Errorf("invalid dependencies: %w", err)
	}
	if deps.ShutdownTimeout <= 0 {
		deps.ShutdownTimeout = defaultShutdownTimeout
	}
	return &manager{
		deps:   deps,
		ready:  make(chan struct{}),
		logger: deps.Logger.With().Str("component", "manager").Logger(),
	}, nil
}

func (m *manager) Start(ctx context.Context) error {
	if ctx == nil {
		return errors.New("start context is nil")
	}

	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return errors.New("manager already started")
	}
	m.started = true
	m.mu.Unlock()

	errChan := make(chan error, 2)

	apiLn, err := net.Listen("tcp", m.deps.APIAddr)
	if err != nil {
		return fmt.Errorf("failed to start API server: %w", err)
	}
	m.apiServer = api.NewHTTPServer(m.deps.APIAddr, m.deps.APIHandler)
	// Request contexts end on shutdown so event streams return.
	baseCtx, cancelBase := context.WithCancel(context.WithoutCancel(ctx))
	m.apiServer.BaseContext = func(net.Listener) context.Context { return baseCtx }
	m.apiServer.RegisterOnShutdown(cancelBase)
	m.mu.Lock()
	m.apiAddr = apiLn.Addr().String()
	m.mu.Unlock()
	m.serve("api", m.apiServer, apiLn, errChan)

	if m.deps.MetricsAddr != "" && m.deps.MetricsHandler != nil {
		metricsLn, err := net.Listen("tcp", m.deps.MetricsAddr)
		if err != nil {
			_ = m.apiServer.Close()
			cancelBase()
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
		m.metricsServer = &http.Server{
			Addr:              m.deps.MetricsAddr,
			Handler:           m.deps.MetricsHandler,
			ReadHeaderTimeout: 5 * time.Second,
		}
		m.serve("metrics", m.metricsServer, metricsLn, errChan)
	}
	close(m.ready)

	m.logger.Info().
		Str("event", "daemon.started").
		Str("api", m.APIAddr()).
		Str("metrics", m.deps.MetricsAddr).
		Msg("daemon listening")

	select {
	case err := <-errChan:
		m.logger.Error().Err(err).Msg("server error, initiating shutdown")
		if shutdownErr := m.Shutdown(context.WithoutCancel(ctx)); shutdownErr != nil {
			return fmt.Errorf("server error and shutdown failure: %w", errors.Join(err, shutdownErr))
		}
		return err
	case <-ctx.Done():
		m.logger.Info().Msg("shutdown signal received")
		return m.Shutdown(context.WithoutCancel(ctx))
	}
}

func (m *manager) serve(name string, srv *http.Server, ln net.Listener, errChan chan<- error) {
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.logger.Error().
				Err(err).
				Str("event", name+".server.failed").
				Msg("server failed")
			errChan <- fmt.Errorf("%s server: %w", name, err)
		}
	}()
}

func (m *manager) Ready() <-chan struct{} { return m.ready }

func (m *manager) APIAddr() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.apiAddr
}

func (m *manager) Shutdown(ctx context.Context) error {
	if ctx == nil {
		return errors.New("shutdown context is nil")
	}

	m.mu.Lock()
	if m.stopping {
		m.mu.Unlock()
		return nil
	}
	if !m.started {
		m.mu.Unlock()
		return ErrManagerNotStarted
	}
	m.stopping = true
	hooks := append([]namedHook(nil), m.shutdownHooks...)
	m.mu.Unlock()

	m.logger.Info().Msg("shutting down daemon manager")

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.deps.ShutdownTimeout)
	defer cancel()

	var errs []error
	errs = append(errs, m.stopServer(shutdownCtx, "API", m.apiServer)...)
	errs = append(errs, m.stopServer(shutdownCtx, "metrics", m.metricsServer)...)

	for i := len(hooks) - 1; i >= 0; i-- {
		hook := hooks[i]
		hookStart := time.Now()
		if err := hook.hook(shutdownCtx); err != nil {
			m.logger.Error().
				Err(err).
				Str("hook", hook.name).
				Dur("duration", time.Since(hookStart)).
				Msg("shutdown hook failed")
			errs = append(errs, fmt.Errorf("hook %s: %w", hook.name, err))
			continue
		}
		m.logger.Debug().
			Str("hook", hook.name).
			Dur("duration", time.Since(hookStart)).
			Msg("shutdown hook completed")
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %w", errors.Join(errs...))
	}
	m.logger.Info().Msg("daemon manager stopped cleanly")
	return nil
}

// stopServer drains srv; connections still open after the grace period
// are closed hard.
func (m *manager) stopServer(ctx context.Context, name string, srv *http.Server) []error {
	if srv == nil {
		return nil
	}
	graceCtx, cancel := context.WithTimeout(ctx, m.deps.ShutdownTimeout/2)
	defer cancel()
	err := srv.Shutdown(graceCtx)
	if err == nil {
		return nil
	}
	_ = srv.Close()
	if errors.Is(err, context.DeadlineExceeded) {
		m.logger.Debug().Str("server", name).Msg("closed lingering connections")
		return nil
	}
	return []error{fmt.Errorf("%s server shutdown: %w", name, err)}
}

func (m *manager) RegisterShutdownHook(name string, hook ShutdownHook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shutdownHooks = append(m.shutdownHooks, namedHook{name: name, hook: hook})
}
