// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package bus

import (
	"time"

	"github.com/ManuGH/peersync/internal/session"
)

// Event is one status transition of a session.
type Event struct {
	SessionID   string         `json:"session_id"`
	Kind        session.Kind   `json:"kind"`
	State       session.State  `json:"state"`
	Progress    float64        `json:"progress"`
	Attempt     int            `json:"attempt"`
	MaxAttempts int            `json:"max_attempts"`
	Message     string         `json:"message"`
	Result      session.Result `json:"result,omitempty"`
	Reason      session.Reason `json:"reason,omitempty"`
	At          time.Time      `json:"at"`
}

// Terminal reports whether e closes its session's stream.
func (e Event) Terminal() bool { return e.Result != session.ResultNone }

// FromSnapshot builds the event describing snap.
func FromSnapshot(snap session.Snapshot, attempt, maxAttempts int, at time.Time) Event {
	return Event{
		SessionID:   snap.ID,
		Kind:        snap.Kind,
		State:       snap.State,
		Progress:    snap.Progress,
		Attempt:     attempt,
		MaxAttempts: maxAttempts,
		Message:     snap.Message,
		Result:      snap.Result,
		Reason:      snap.Reason,
		At:          at,
	}
}
