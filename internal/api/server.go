// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ManuGH/peersync/internal/bus"
	"github.com/ManuGH/peersync/internal/health"
	"github.com/ManuGH/peersync/internal/journal"
	"github.com/ManuGH/peersync/internal/presence"
	"github.com/ManuGH/peersync/internal/session"
	"github.com/ManuGH/peersync/internal/syncer"
)

const (
	defaultHeartbeat = 15 * time.Second
	tracingService   = "peersync-api"
)

// Controller is the part of the synchronizer the API drives.
type Controller interface {
	StartWake(ctx context.Context) (*session.Handle, error)
	StartShutdown(ctx context.Context) (*session.Handle, error)
	Status() syncer.Status
	History(ctx context.Context, f journal.Filter) ([]session.Snapshot, error)
	Bus() *bus.Bus
}

// PresenceSource provides the latest presence reading.
type PresenceSource interface {
	Last() (presence.Observation, bool)
}

// Deps are the collaborators of a Server. Presence is optional.
type Deps struct {
	Controller Controller
	Health     *health.Manager
	Presence   PresenceSource
	// RateLimit is the number of manual wake/shutdown requests allowed
	// per client per minute; 0 disables limiting.
	RateLimit int
	// Heartbeat is the SSE keep-alive interval.
	Heartbeat time.Duration
}

// Server is the local HTTP surface.
type Server struct {
	ctl       Controller
	health    *health.Manager
	presence  PresenceSource
	heartbeat time.Duration
	handler   http.Handler
}

// New builds the router.
func New(d Deps) *Server {
	s := &Server{
		ctl:       d.Controller,
		health:    d.Health,
		presence:  d.Presence,
		heartbeat: d.Heartbeat,
	}
	if s.heartbeat <= 0 {
		s.heartbeat = defaultHeartbeat
	}
	if s.health == nil {
		s.health = health.NewManager("")
	}

	r := chi.NewRouter()
	r.Use(recoverer)
	r.Use(requestID)
	r.Use(accessLog)

	r.Get("/healthz", s.health.ServeHealth)
	r.Get("/readyz", s.health.ServeReady)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/peer", s.handlePeer)
		r.Get("/events", s.handleEvents)
		r.Get("/sessions/history", s.handleHistory)

		r.Group(func(r chi.Router) {
			r.Use(rateLimit(d.RateLimit))
			r.Post("/wake", s.handleWake)
			r.Post("/shutdown", s.handleShutdown)
		})
	})
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "not_found", "no such endpoint")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", r.Method+" is not supported here")
	})

	s.handler = tracing(tracingService, r)
	return s
}

// Handler returns the instrumented root handler.
func (s *Server) Handler() http.Handler { return s.handler }

// NewHTTPServer returns an http.Server for addr with the timeouts the
// local API uses. WriteTimeout is left unset for the event stream; the
// stream clears its own deadline and everything else finishes quickly.
func NewHTTPServer(addr string, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 16,
	}
}
