// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ManuGH/peersync/internal/bus"
	"github.com/ManuGH/peersync/internal/log"
)

// handleEvents streams status bus events as Server-Sent Events. The first
// event ("status") carries the current status so a late observer starts
// from a consistent view; every bus event follows as "session".
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := log.WithComponentFromContext(ctx, "api")

	rc := http.NewResponseController(w)
	sub := s.ctl.Bus().Subscribe()
	defer sub.Close()

	_ = rc.SetWriteDeadline(time.Time{})
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	if err := writeEvent(w, "status", "", s.ctl.Status()); err != nil {
		return
	}
	if err := rc.Flush(); err != nil {
		logger.Warn().Err(err).Msg("event stream not flushable")
		return
	}

	logger.Debug().Str(log.FieldEvent, "events.subscribed").Msg("event stream opened")
	defer func() {
		logger.Debug().
			Str(log.FieldEvent, "events.closed").
			Uint64("dropped", sub.Dropped()).
			Msg("event stream closed")
	}()

	for {
		rctx, cancel := context.WithTimeout(ctx, s.heartbeat)
		e, err := sub.Recv(rctx)
		cancel()
		switch {
		case err == nil:
			if err := writeEvent(w, "session", e.SessionID, e); err != nil {
				return
			}
		case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
		case errors.Is(err, bus.ErrClosed):
			_ = writeEvent(w, "closed", "", struct{}{})
			_ = rc.Flush()
			return
		default:
			return
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}

func writeEvent(w http.ResponseWriter, name, id string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if id != "" {
		if _, err := fmt.Fprintf(w, "id: %s\n", id); err != nil {
			return err
		}
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, data)
	return err
}
