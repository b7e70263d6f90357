// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package probetest provides scripted probers for orchestrator tests.
package probetest

import (
	"context"
	"sync"

	"github.com/ManuGH/peersync/internal/probe"
	"github.com/ManuGH/peersync/internal/target"
)

// Canned statuses.
var (
	Reachable = probe.Status{Pingable: true, OpenPorts: []int{135, 445}, Reachable: true}
	Booting   = probe.Status{Pingable: true}
	Offline   = probe.Status{}
)

// Scripted returns the configured statuses in order and repeats the last
// one once the script is exhausted.
type Scripted struct {
	mu       sync.Mutex
	statuses []probe.Status
	calls    int
	OnProbe  func(call int)
}

// New builds a Scripted prober.
func New(statuses ...probe.Status) *Scripted {
	if len(statuses) == 0 {
		statuses = []probe.Status{Offline}
	}
	return &Scripted{statuses: statuses}
}

// Always returns a prober that reports s forever.
func Always(s probe.Status) *Scripted { return New(s) }

// Probe implements probe.Prober.
func (s *Scripted) Probe(ctx context.Context, _ target.Descriptor) (probe.Status, error) {
	if err := ctx.Err(); err != nil {
		return probe.Status{}, err
	}
	s.mu.Lock()
	idx := s.calls
	if idx >= len(s.statuses) {
		idx = len(s.statuses) - 1
	}
	st := s.statuses[idx]
	s.calls++
	call := s.calls
	hook := s.OnProbe
	s.mu.Unlock()

	if hook != nil {
		hook(call)
	}
	return st, nil
}

// Calls returns how many probes ran.
func (s *Scripted) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}
