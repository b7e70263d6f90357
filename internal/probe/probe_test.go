// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package probe

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ManuGH/peersync/internal/target"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakePinger struct {
	rtt time.Duration
	err error
}

func (f fakePinger) Ping(context.Context, string, time.Duration) (time.Duration, error) {
	return f.rtt, f.err
}

func listenPort(t *testing.T) (int, func()) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			_ = c.Close()
		}
	}()
	return ln.Addr().(*net.TCPAddr).Port, func() {
		_ = ln.Close()
		<-done
	}
}

func closedPort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return port
}

func localTarget(t *testing.T) target.Descriptor {
	t.Helper()
	d, err := target.New(target.Params{Address: "127.0.0.1", MAC: "AA:BB:CC:DD:EE:FF", Username: "admin"})
	require.NoError(t, err)
	return d
}

func TestProbeReachable(t *testing.T) {
	p1, stop1 := listenPort(t)
	defer stop1()
	p2, stop2 := listenPort(t)
	defer stop2()

	c := NewChecker(Config{Ports: []int{p1, p2}, Ping: true, MinOpenPorts: 2},
		WithPinger(fakePinger{rtt: time.Millisecond}))

	st, err := c.Probe(context.Background(), localTarget(t))
	require.NoError(t, err)
	assert.True(t, st.Pingable)
	assert.True(t, st.Reachable)
	assert.Len(t, st.OpenPorts, 2)
	assert.Equal(t, "reachable", st.Label())
	assert.False(t, st.CheckedAt.IsZero())
}

func TestProbeBootingWhenPortsClosed(t *testing.T) {
	p1, stop := listenPort(t)
	defer stop()
	closed := closedPort(t)

	c := NewChecker(Config{Ports: []int{p1, closed}, Ping: true, MinOpenPorts: 2, PortTimeout: time.Second},
		WithPinger(fakePinger{rtt: time.Millisecond}))

	st, err := c.Probe(context.Background(), localTarget(t))
	require.NoError(t, err)
	assert.False(t, st.Reachable)
	assert.True(t, st.Booting())
	assert.Equal(t, []int{p1}, st.OpenPorts)
	assert.Equal(t, "booting", st.Label())
}

func TestProbeOffline(t *testing.T) {
	c := NewChecker(Config{Ports: []int{closedPort(t)}, Ping: true, MinOpenPorts: 1, PortTimeout: time.Second},
		WithPinger(fakePinger{err: errors.New("timeout")}))

	st, err := c.Probe(context.Background(), localTarget(t))
	require.NoError(t, err)
	assert.True(t, st.Offline())
	assert.Equal(t, "offline", st.Label())
}

func TestProbeCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := NewChecker(Config{Ping: true}, WithPinger(fakePinger{rtt: time.Millisecond}))
	_, err := c.Probe(ctx, localTarget(t))
	require.ErrorIs(t, err, context.Canceled)
}

func TestProbeEmptyTarget(t *testing.T) {
	c := NewChecker(DefaultConfig(), WithPinger(fakePinger{}))
	_, err := c.Probe(context.Background(), target.Descriptor{})
	require.Error(t, err)
}

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		st   Status
		want bool
	}{
		{"ping and ports", Config{Ports: []int{1, 2, 3}, Ping: true, MinOpenPorts: 2}, Status{Pingable: true, OpenPorts: []int{1, 2}}, true},
		{"ping only one port", Config{Ports: []int{1, 2, 3}, Ping: true, MinOpenPorts: 2}, Status{Pingable: true, OpenPorts: []int{1}}, false},
		{"ports without ping", Config{Ports: []int{1, 2, 3}, Ping: true, MinOpenPorts: 2}, Status{OpenPorts: []int{1, 2}}, false},
		{"ping with no ports configured", Config{Ping: true, MinOpenPorts: 2}, Status{Pingable: true}, true},
		{"ping disabled needs a port", Config{Ports: []int{1}, MinOpenPorts: 0}, Status{}, false},
		{"ping disabled with port", Config{Ports: []int{1}, MinOpenPorts: 0}, Status{OpenPorts: []int{1}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.cfg.evaluate(tt.st))
		})
	}
}

func TestResolveIPv4(t *testing.T) {
	ip, err := resolveIPv4(context.Background(), "192.168.1.20")
	require.NoError(t, err)
	assert.Equal(t, "192.168.1.20", ip.String())

	_, err = resolveIPv4(context.Background(), "::1")
	require.ErrorIs(t, err, errNoIPv4)
}
