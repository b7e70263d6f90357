// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/ManuGH/peersync/internal/journal"
	"github.com/ManuGH/peersync/internal/log"
	"github.com/ManuGH/peersync/internal/presence"
	"github.com/ManuGH/peersync/internal/session"
	"github.com/ManuGH/peersync/internal/shutdown"
	"github.com/ManuGH/peersync/internal/syncer"
	"github.com/ManuGH/peersync/internal/wake"
)

const maxHistoryLimit = 500

// StartResponse is returned by the manual wake and shutdown endpoints.
type StartResponse struct {
	// Joined is true when a session of the kind was already running.
	Joined  bool             `json:"joined"`
	Session session.Snapshot `json:"session"`
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.ctl.Status())
}

func (s *Server) handleWake(w http.ResponseWriter, r *http.Request) {
	s.start(w, r, session.KindWake, s.ctl.StartWake)
}

func (s *Server) handleShutdown(w http.ResponseWriter, r *http.Request) {
	s.start(w, r, session.KindShutdown, s.ctl.StartShutdown)
}

func (s *Server) start(w http.ResponseWriter, r *http.Request, kind session.Kind, fn func(context.Context) (*session.Handle, error)) {
	logger := log.WithComponentFromContext(r.Context(), "api")

	h, err := fn(r.Context())
	if err != nil {
		logger.Warn().Err(err).Str(log.FieldKind, string(kind)).Msg("manual session request rejected")
		if errors.Is(err, wake.ErrClosed) || errors.Is(err, shutdown.ErrClosed) {
			writeError(w, r, http.StatusServiceUnavailable, "shutting_down", err.Error())
			return
		}
		writeError(w, r, http.StatusUnprocessableEntity, "invalid_configuration", err.Error())
		return
	}

	code := http.StatusAccepted
	if h.Joined() {
		code = http.StatusOK
	}
	logger.Info().
		Str(log.FieldEvent, "api.session_requested").
		Str(log.FieldKind, string(kind)).
		Str(log.FieldSessionID, h.ID()).
		Bool("joined", h.Joined()).
		Msg("manual session requested")
	writeJSON(w, code, StartResponse{Joined: h.Joined(), Session: h.Snapshot()})
}

func (s *Server) handlePeer(w http.ResponseWriter, r *http.Request) {
	if s.presence == nil {
		writeError(w, r, http.StatusNotFound, "presence_disabled", "presence monitoring is disabled")
		return
	}
	obs, ok := s.presence.Last()
	if !ok {
		peer := s.ctl.Status().Peer
		obs = presence.Observation{Peer: peer.Name, Address: peer.Address, State: presence.StateUnknown}
	}
	writeJSON(w, http.StatusOK, obs)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var f journal.Filter

	switch kind := session.Kind(q.Get("kind")); kind {
	case "":
	case session.KindWake, session.KindShutdown:
		f.Kind = kind
	default:
		writeError(w, r, http.StatusBadRequest, "invalid_kind", "kind must be wake or shutdown")
		return
	}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxHistoryLimit {
			writeError(w, r, http.StatusBadRequest, "invalid_limit", "limit must be between 1 and "+strconv.Itoa(maxHistoryLimit))
			return
		}
		f.Limit = n
	}

	list, err := s.ctl.History(r.Context(), f)
	if err != nil {
		if errors.Is(err, syncer.ErrNoJournal) {
			writeError(w, r, http.StatusNotFound, "journal_disabled", err.Error())
			return
		}
		logger := log.WithComponentFromContext(r.Context(), "api")
		logger.Error().Err(err).Msg("failed to read journal")
		writeError(w, r, http.StatusInternalServerError, "journal_error", "failed to read session history")
		return
	}
	if list == nil {
		list = []session.Snapshot{}
	}
	writeJSON(w, http.StatusOK, list)
}
