// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package strategy holds the remote shutdown mechanisms. Each strategy is
// independent and reports whether the peer accepted a shutdown request; the
// shutdown orchestrator iterates them in a fixed order.
package strategy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ManuGH/peersync/internal/target"
)

// Strategy names, in default priority order.
const (
	NameWinRM  = "winrm"
	NameCIM    = "cim"
	NameNet    = "net"
	NamePsExec = "psexec"
	NameSSH    = "ssh"
)

// DefaultOrder is the priority order used when none is configured.
var DefaultOrder = []string{NameWinRM, NameCIM, NameNet, NamePsExec, NameSSH}

var ErrUnknownStrategy = errors.New("unknown shutdown strategy")

// Strategy requests a shutdown of the peer. A nil error means the peer
// accepted the request; it does not mean the peer is already off.
// Errors should carry a failure.Kind.
type Strategy interface {
	Name() string
	Attempt(ctx context.Context, t target.Descriptor, timeout time.Duration) error
}

// Options carries what the concrete strategies need.
type Options struct {
	Runner     Runner
	PsExecPath string
	SSH        SSHConfig
}

// Known reports whether name is a supported strategy.
func Known(name string) bool {
	for _, n := range DefaultOrder {
		if n == name {
			return true
		}
	}
	return false
}

// Build instantiates strategies in the given order. Duplicates are rejected
// so a session never issues the same command twice.
func Build(names []string, opts Options) ([]Strategy, error) {
	if opts.Runner == nil {
		opts.Runner = ProcRunner
	}
	seen := make(map[string]struct{}, len(names))
	out := make([]Strategy, 0, len(names))
	for _, name := range names {
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("duplicate shutdown strategy %q", name)
		}
		seen[name] = struct{}{}

		var s Strategy
		switch name {
		case NameWinRM:
			s = NewWinRM(opts.Runner)
		case NameCIM:
			s = NewCIM(opts.Runner)
		case NameNet:
			s = NewNet(opts.Runner)
		case NamePsExec:
			s = NewPsExec(opts.Runner, opts.PsExecPath)
		case NameSSH:
			s = NewSSH(opts.SSH)
		default:
			return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, name)
		}
		out = append(out, s)
	}
	return out, nil
}

// Names lists the names of strategies in order.
func Names(list []Strategy) []string {
	out := make([]string, len(list))
	for i, s := range list {
		out[i] = s.Name()
	}
	return out
}

// Tools lists the local executables a strategy needs. The SSH strategy is
// built in and needs none.
func Tools(name string, opts Options) []string {
	switch name {
	case NameWinRM, NameCIM:
		return []string{"powershell.exe"}
	case NameNet:
		return []string{"net", "shutdown"}
	case NamePsExec:
		if opts.PsExecPath != "" {
			return []string{opts.PsExecPath}
		}
		return []string{"psexec"}
	default:
		return nil
	}
}
