// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package strategy

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/binary"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"

	"github.com/ManuGH/peersync/internal/failure"
	"github.com/ManuGH/peersync/internal/target"
)

// sshServer is a minimal exec-only SSH server for tests.
type sshServer struct {
	ln       net.Listener
	wg       sync.WaitGroup
	mu       sync.Mutex
	commands []string
	exitCode uint32
	dropExit bool
}

func startSSHServer(t *testing.T, password string) *sshServer {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	signer, err := ssh.NewSignerFromKey(priv)
	require.NoError(t, err)

	conf := &ssh.ServerConfig{
		PasswordCallback: func(_ ssh.ConnMetadata, pass []byte) (*ssh.Permissions, error) {
			if string(pass) == password {
				return nil, nil
			}
			return nil, assert.AnError
		},
	}
	conf.AddHostKey(signer)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	s := &sshServer{ln: ln}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			s.wg.Add(1)
			go func() {
				defer s.wg.Done()
				s.serve(conn, conf)
			}()
		}
	}()
	t.Cleanup(func() {
		_ = ln.Close()
		s.wg.Wait()
	})
	return s
}

func (s *sshServer) port() int { return s.ln.Addr().(*net.TCPAddr).Port }

func (s *sshServer) serve(conn net.Conn, conf *ssh.ServerConfig) {
	defer func() { _ = conn.Close() }()
	sc, chans, reqs, err := ssh.NewServerConn(conn, conf)
	if err != nil {
		return
	}
	defer func() { _ = sc.Close() }()
	go ssh.DiscardRequests(reqs)

	for nc := range chans {
		if nc.ChannelType() != "session" {
			_ = nc.Reject(ssh.UnknownChannelType, "session only")
			continue
		}
		ch, requests, err := nc.Accept()
		if err != nil {
			return
		}
		for req := range requests {
			if req.Type != "exec" {
				_ = req.Reply(false, nil)
				continue
			}
			cmdLen := binary.BigEndian.Uint32(req.Payload[:4])
			s.mu.Lock()
			s.commands = append(s.commands, string(req.Payload[4:4+cmdLen]))
			code, drop := s.exitCode, s.dropExit
			s.mu.Unlock()
			_ = req.Reply(true, nil)
			if !drop {
				status := make([]byte, 4)
				binary.BigEndian.PutUint32(status, code)
				_, _ = ch.SendRequest("exit-status", false, status)
			}
			_ = ch.Close()
			return
		}
	}
}

func (s *sshServer) received() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.commands...)
}

func loopbackPeer(t *testing.T, secret string) target.Descriptor {
	t.Helper()
	d, err := target.New(target.Params{Address: "127.0.0.1", MAC: "AA:BB:CC:DD:EE:FF", Username: "admin", Secret: secret})
	require.NoError(t, err)
	return d
}

func TestSSHRunsCommand(t *testing.T) {
	srv := startSSHServer(t, "hunter2")
	s := NewSSH(SSHConfig{Port: srv.port()})

	err := s.Attempt(context.Background(), loopbackPeer(t, "hunter2"), 2*time.Second)
	require.NoError(t, err)
	require.Equal(t, []string{DefaultSSHCommand}, srv.received())
}

func TestSSHConnectionDropCountsAsAccepted(t *testing.T) {
	srv := startSSHServer(t, "hunter2")
	srv.mu.Lock()
	srv.dropExit = true
	srv.mu.Unlock()
	s := NewSSH(SSHConfig{Port: srv.port(), Command: "poweroff"})

	require.NoError(t, s.Attempt(context.Background(), loopbackPeer(t, "hunter2"), 2*time.Second))
	require.Equal(t, []string{"poweroff"}, srv.received())
}

func TestSSHNonZeroExit(t *testing.T) {
	srv := startSSHServer(t, "hunter2")
	srv.mu.Lock()
	srv.exitCode = 1
	srv.mu.Unlock()
	s := NewSSH(SSHConfig{Port: srv.port()})

	err := s.Attempt(context.Background(), loopbackPeer(t, "hunter2"), 2*time.Second)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exited 1")
}

func TestSSHWrongPassword(t *testing.T) {
	srv := startSSHServer(t, "hunter2")
	s := NewSSH(SSHConfig{Port: srv.port()})

	err := s.Attempt(context.Background(), loopbackPeer(t, "wrong"), 2*time.Second)
	require.Error(t, err)
	assert.Equal(t, failure.KindAuthenticationRejected, failure.KindOf(err))
	assert.Empty(t, srv.received())
}

func TestSSHWithoutCredentials(t *testing.T) {
	s := NewSSH(SSHConfig{})
	err := s.Attempt(context.Background(), loopbackPeer(t, ""), time.Second)
	require.Error(t, err)
	assert.Equal(t, failure.KindStrategyUnsupported, failure.KindOf(err))
}

func TestSSHPortClosed(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())

	s := NewSSH(SSHConfig{Port: port})
	err = s.Attempt(context.Background(), loopbackPeer(t, "x"), time.Second)
	require.Error(t, err)
	assert.Equal(t, failure.KindStrategyUnsupported, failure.KindOf(err), "port %d", port)
}
