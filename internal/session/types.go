// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package session

// Kind distinguishes the two session families.
type Kind string

const (
	KindWake     Kind = "wake"
	KindShutdown Kind = "shutdown"
)

// State is the observable phase of a session.
type State string

const (
	StateStarting    State = "starting"
	StateSignaling   State = "signaling"
	StateProbing     State = "probing"
	StateWaiting     State = "waiting"
	StatePrechecking State = "prechecking"
	StateCommanding  State = "commanding"
	StateConfirming  State = "confirming"
	StateSucceeded   State = "succeeded"
	StateFailed      State = "failed"
	StateAborted     State = "aborted"
)

// IsTerminal returns true if the state is a final state.
func (s State) IsTerminal() bool {
	switch s {
	case StateSucceeded, StateFailed, StateAborted:
		return true
	}
	return false
}

// Result is the terminal verdict of a session.
type Result string

const (
	ResultNone      Result = ""
	ResultSucceeded Result = "succeeded"
	ResultFailed    Result = "failed"
	ResultAborted   Result = "aborted"
)

// State maps a result to its terminal state.
func (r Result) State() State {
	switch r {
	case ResultSucceeded:
		return StateSucceeded
	case ResultFailed:
		return StateFailed
	case ResultAborted:
		return StateAborted
	}
	return ""
}

// Outcome is the verdict of a single attempt.
type Outcome string

const (
	OutcomePending Outcome = "pending"
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
	OutcomeTimeout Outcome = "timeout"
)

// Reason is a compact, stable code explaining a terminal result.
// Keep these stable: metrics, the journal and the API expose them.
type Reason string

const (
	ReasonNone            Reason = ""
	ReasonPeerReachable   Reason = "peer_reachable"
	ReasonPeerUnreachable Reason = "peer_unreachable"
	ReasonWakeSendFailed  Reason = "wake_send_failed"
	ReasonAlreadyOffline  Reason = "already_offline"
	ReasonPeerOffline     Reason = "peer_offline"
	ReasonPeerStillOnline Reason = "peer_still_online"
	ReasonNoStrategy      Reason = "no_strategy_succeeded"
	ReasonNoStrategies    Reason = "no_strategies_configured"
	ReasonGuardDeadline   Reason = "guard_deadline"
	ReasonCancelled       Reason = "cancelled"
)
