// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package bus

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/ManuGH/peersync/internal/log"
)

// RunLogSink writes every event to the structured log until ctx ends or
// the bus is closed. Terminal events are logged at info, the rest at debug.
func RunLogSink(ctx context.Context, b *Bus) error {
	sub := b.Subscribe()
	defer sub.Close()
	logger := log.WithComponent("status")

	for {
		e, err := sub.Recv(ctx)
		if err != nil {
			if errors.Is(err, ErrClosed) || errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		var ev *zerolog.Event
		if e.Terminal() {
			ev = logger.Info()
		} else {
			ev = logger.Debug()
		}
		ev.Str(log.FieldSessionID, e.SessionID).
			Str(log.FieldKind, string(e.Kind)).
			Str(log.FieldNewState, string(e.State)).
			Float64("progress", e.Progress).
			Int(log.FieldAttempt, e.Attempt).
			Int(log.FieldMaxAttempts, e.MaxAttempts).
			Str(log.FieldResult, string(e.Result)).
			Msg(e.Message)
	}
}
