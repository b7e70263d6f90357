// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package strategy

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/ManuGH/peersync/internal/failure"
	"github.com/ManuGH/peersync/internal/log"
	"github.com/ManuGH/peersync/internal/target"
)

// DefaultSSHCommand works against the Windows OpenSSH server.
const DefaultSSHCommand = "shutdown /s /f /t " + shutdownDelay

// SSHConfig configures the SSH strategy.
type SSHConfig struct {
	Port       int
	KeyPath    string
	KnownHosts string
	Command    string
}

// SSH runs the shutdown command over an SSH session.
type SSH struct {
	cfg    SSHConfig
	dialer interface {
		DialContext(ctx context.Context, network, address string) (net.Conn, error)
	}
}

// NewSSH builds the SSH strategy.
func NewSSH(cfg SSHConfig) *SSH {
	if cfg.Port == 0 {
		cfg.Port = 22
	}
	if cfg.Command == "" {
		cfg.Command = DefaultSSHCommand
	}
	return &SSH{cfg: cfg, dialer: &net.Dialer{}}
}

func (s *SSH) Name() string { return NameSSH }

func (s *SSH) clientConfig(t target.Descriptor, timeout time.Duration) (*ssh.ClientConfig, error) {
	var auth []ssh.AuthMethod
	if s.cfg.KeyPath != "" {
		// #nosec G304 -- key path is operator configuration
		pem, err := os.ReadFile(s.cfg.KeyPath)
		if err != nil {
			return nil, fmt.Errorf("read ssh key: %w", err)
		}
		signer, err := ssh.ParsePrivateKey(pem)
		if err != nil {
			return nil, fmt.Errorf("parse ssh key: %w", err)
		}
		auth = append(auth, ssh.PublicKeys(signer))
	}
	if t.Secret() != "" {
		auth = append(auth, ssh.Password(t.Secret()))
	}
	if len(auth) == 0 {
		return nil, errors.New("no ssh key or password configured")
	}

	hostKey := ssh.InsecureIgnoreHostKey() // #nosec G106 -- only without known_hosts, warned below
	if s.cfg.KnownHosts != "" {
		cb, err := knownhosts.New(s.cfg.KnownHosts)
		if err != nil {
			return nil, fmt.Errorf("load known_hosts: %w", err)
		}
		hostKey = cb
	} else {
		logger := log.WithComponent("strategy")
		logger.Warn().Str(log.FieldMethod, NameSSH).Msg("ssh host key is not verified; set ssh.known_hosts")
	}

	return &ssh.ClientConfig{
		User:            t.Username(),
		Auth:            auth,
		HostKeyCallback: hostKey,
		Timeout:         timeout,
	}, nil
}

// Attempt connects, runs the command and waits for it. A connection that
// drops before an exit status arrives counts as accepted: the peer is
// going down.
func (s *SSH) Attempt(ctx context.Context, t target.Descriptor, timeout time.Duration) error {
	conf, err := s.clientConfig(t, timeout)
	if err != nil {
		return failure.New(failure.KindStrategyUnsupported, NameSSH, err)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	addr := net.JoinHostPort(t.Address(), strconv.Itoa(s.cfg.Port))
	conn, err := s.dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return s.fail(ctx, err, t)
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	c, chans, reqs, err := ssh.NewClientConn(conn, addr, conf)
	if err != nil {
		_ = conn.Close()
		return s.fail(ctx, err, t)
	}
	client := ssh.NewClient(c, chans, reqs)
	defer func() { _ = client.Close() }()

	sess, err := client.NewSession()
	if err != nil {
		return s.fail(ctx, err, t)
	}
	defer func() { _ = sess.Close() }()

	var stderr bytes.Buffer
	sess.Stderr = &stderr
	err = sess.Run(s.cfg.Command)
	if err == nil {
		return nil
	}

	var missing *ssh.ExitMissingError
	if errors.As(err, &missing) && ctx.Err() == nil {
		return nil
	}
	var exitErr *ssh.ExitError
	if errors.As(err, &exitErr) {
		err = fmt.Errorf("remote command exited %d: %s", exitErr.ExitStatus(), firstLine(stderr.String()))
	}
	return s.fail(ctx, err, t)
}

func (s *SSH) fail(ctx context.Context, err error, t target.Descriptor) error {
	kind := failure.Classify(err)
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		kind = failure.KindTimeout
	}
	return failure.New(kind, NameSSH, redact(err, t.Secret()))
}
