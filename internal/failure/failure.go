// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package failure classifies why a probe, strategy or session did not succeed.
package failure

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"syscall"
)

// Kind is the coarse failure taxonomy recorded on attempts and sessions.
type Kind string

const (
	KindNone                   Kind = ""
	KindNetworkUnreachable     Kind = "network_unreachable"
	KindAuthenticationRejected Kind = "authentication_rejected"
	KindStrategyUnsupported    Kind = "strategy_unsupported"
	KindTimeout                Kind = "timeout"
	KindExhaustedRetries       Kind = "exhausted_retries"
	KindGuardDeadlineExceeded  Kind = "guard_deadline_exceeded"
	KindUnknown                Kind = "unknown"
)

// Error attaches a Kind and the failing operation to an underlying error.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error by Kind so callers can write
// errors.Is(err, failure.Timeout).
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Op == "" && t.Err == nil && t.Kind == e.Kind
}

// Sentinels for errors.Is comparisons.
var (
	NetworkUnreachable     = &Error{Kind: KindNetworkUnreachable}
	AuthenticationRejected = &Error{Kind: KindAuthenticationRejected}
	StrategyUnsupported    = &Error{Kind: KindStrategyUnsupported}
	Timeout                = &Error{Kind: KindTimeout}
	ExhaustedRetries       = &Error{Kind: KindExhaustedRetries}
	GuardDeadlineExceeded  = &Error{Kind: KindGuardDeadlineExceeded}
)

// New wraps err with the given kind and operation.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Errorf builds a classified error from a format string.
func Errorf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the kind carried by err, classifying it when it was not
// produced by this package.
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return Classify(err)
}

// authPhrases are fragments remote-administration tools print when
// credentials are refused.
var authPhrases = []string{
	"access is denied",
	"access denied",
	"logon failure",
	"unable to authenticate",
	"authentication failed",
	"permission denied",
	"the user name or password is incorrect",
	"unauthorized",
}

// unsupportedPhrases indicate that the mechanism is disabled, missing or
// blocked on one side.
var unsupportedPhrases = []string{
	"executable file not found",
	"winrm cannot complete the operation",
	"the rpc server is unavailable",
	"connection refused",
	"not recognized as an internal or external command",
	"the network path was not found",
	"no supported methods remain",
}

// Classify maps raw errors from the network stack, context and external
// tools onto a Kind.
func Classify(err error) Kind {
	if err == nil {
		return KindNone
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return KindStrategyUnsupported
	}
	if errors.Is(err, syscall.EHOSTUNREACH) || errors.Is(err, syscall.ENETUNREACH) {
		return KindNetworkUnreachable
	}

	msg := strings.ToLower(err.Error())
	for _, p := range authPhrases {
		if strings.Contains(msg, p) {
			return KindAuthenticationRejected
		}
	}
	for _, p := range unsupportedPhrases {
		if strings.Contains(msg, p) {
			return KindStrategyUnsupported
		}
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return KindNetworkUnreachable
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return KindNetworkUnreachable
	}
	return KindUnknown
}
