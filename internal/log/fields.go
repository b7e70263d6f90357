// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldSessionID = "session_id"
	FieldRequestID = "request_id"
	FieldKind      = "kind"

	// Process fields
	FieldEvent     = "event"
	FieldComponent = "component"

	// Attempt fields
	FieldAttempt     = "attempt"
	FieldMaxAttempts = "max_attempts"
	FieldMethod      = "method"
	FieldOutcome     = "outcome"
	FieldFailure     = "failure"

	// State fields
	FieldOldState = "old_state"
	FieldNewState = "new_state"
	FieldResult   = "result"

	// Peer fields
	FieldPeer    = "peer"
	FieldAddress = "address"
	FieldMAC     = "mac"
)
