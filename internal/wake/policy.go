// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package wake

import (
	"time"

	"github.com/ManuGH/peersync/internal/validate"
)

// Policy bounds one wake session.
type Policy struct {
	MaxAttempts   int
	RetryInterval time.Duration
	// SettleDelay is waited between the first datagram and probe 1.
	SettleDelay time.Duration
	// ResendEvery re-transmits the datagram before every Nth retry probe;
	// 0 sends it only once.
	ResendEvery int
}

// DefaultPolicy returns 10 attempts at 15s intervals, resending before
// every retry.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:   10,
		RetryInterval: 15 * time.Second,
		ResendEvery:   1,
	}
}

// Validate checks the policy bounds.
func (p Policy) Validate() error {
	v := validate.New()
	v.Positive("wake.max_attempts", p.MaxAttempts)
	v.NonNegativeDuration("wake.retry_interval", p.RetryInterval)
	v.NonNegativeDuration("wake.settle_delay", p.SettleDelay)
	v.NonNegative("wake.resend_every", p.ResendEvery)
	return v.Err()
}

// resendBefore reports whether the datagram is re-sent before probe n (n >= 2).
func (p Policy) resendBefore(n int) bool {
	if p.ResendEvery <= 0 || n < 2 {
		return false
	}
	return (n-1)%p.ResendEvery == 0
}

// Budget is the worst-case duration of a session, excluding probe time.
func (p Policy) Budget() time.Duration {
	if p.MaxAttempts <= 0 {
		return p.SettleDelay
	}
	return p.SettleDelay + time.Duration(p.MaxAttempts-1)*p.RetryInterval
}
