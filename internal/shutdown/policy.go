// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package shutdown

import (
	"time"

	"github.com/ManuGH/peersync/internal/validate"
)

// Policy bounds one shutdown session.
type Policy struct {
	// StrategyTimeout applies to every strategy without an override.
	StrategyTimeout  time.Duration
	StrategyTimeouts map[string]time.Duration

	// Confirmation phase: up to ConfirmAttempts probes, ConfirmInterval
	// apart, until ConfirmConsecutive probes in a row find the peer offline.
	ConfirmAttempts    int
	ConfirmInterval    time.Duration
	ConfirmConsecutive int

	// SkipIfOffline ends the session early when a pre-check finds the
	// peer already off.
	SkipIfOffline bool
}

// DefaultPolicy returns the configuration defaults.
func DefaultPolicy() Policy {
	return Policy{
		StrategyTimeout:    15 * time.Second,
		ConfirmAttempts:    15,
		ConfirmInterval:    2 * time.Second,
		ConfirmConsecutive: 1,
		SkipIfOffline:      true,
	}
}

// Validate checks the policy bounds.
func (p Policy) Validate() error {
	v := validate.New()
	v.PositiveDuration("shutdown.strategy_timeout", p.StrategyTimeout)
	for name, d := range p.StrategyTimeouts {
		v.PositiveDuration("shutdown.strategy_timeouts."+name, d)
	}
	v.Positive("shutdown.confirm_attempts", p.ConfirmAttempts)
	v.NonNegativeDuration("shutdown.confirm_interval", p.ConfirmInterval)
	v.Positive("shutdown.confirm_consecutive", p.ConfirmConsecutive)
	if p.ConfirmConsecutive > p.ConfirmAttempts {
		v.AddError("shutdown.confirm_consecutive", "must not exceed confirm_attempts", p.ConfirmConsecutive)
	}
	return v.Err()
}

// TimeoutFor returns the timeout of the named strategy.
func (p Policy) TimeoutFor(name string) time.Duration {
	if d, ok := p.StrategyTimeouts[name]; ok && d > 0 {
		return d
	}
	return p.StrategyTimeout
}

// ConfirmBudget is the worst-case wall time of the confirmation phase,
// excluding probe time.
func (p Policy) ConfirmBudget() time.Duration {
	return time.Duration(p.ConfirmAttempts) * p.ConfirmInterval
}

// WorstCase is the longest a session can take when every strategy in
// order runs into its timeout before confirmation starts, excluding probe
// time.
func (p Policy) WorstCase(order []string) time.Duration {
	total := p.ConfirmBudget()
	for _, name := range order {
		total += p.TimeoutFor(name)
	}
	return total
}
