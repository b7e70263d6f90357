// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package session

import "errors"

var (
	ErrTerminated       = errors.New("session already terminated")
	ErrAttemptInFlight  = errors.New("previous attempt still pending")
	ErrUnknownAttempt   = errors.New("unknown attempt sequence")
	ErrAttemptCompleted = errors.New("attempt already completed")
)
