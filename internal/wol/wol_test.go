// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package wol

import (
	"bytes"
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ManuGH/peersync/internal/failure"
	"github.com/ManuGH/peersync/internal/target"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func peer(t *testing.T) target.Descriptor {
	t.Helper()
	d, err := target.New(target.Params{Address: "192.168.10.42", MAC: "00-11-22-33-44-55", Username: "admin"})
	require.NoError(t, err)
	return d
}

func TestMagicPacket(t *testing.T) {
	mac, _ := net.ParseMAC("00:11:22:33:44:55")
	pkt, err := MagicPacket(mac)
	require.NoError(t, err)
	require.Len(t, pkt, PacketSize)
	assert.Equal(t, bytes.Repeat([]byte{0xFF}, 6), pkt[:6])
	for i := range 16 {
		off := 6 + i*6
		assert.Equal(t, []byte(mac), pkt[off:off+6])
	}

	_, err = MagicPacket(net.HardwareAddr{1, 2, 3})
	require.ErrorIs(t, err, ErrInvalidMAC)
}

func TestDestinations(t *testing.T) {
	s := NewSender(DefaultConfig())
	dests, err := s.Destinations(peer(t))
	require.NoError(t, err)
	assert.Equal(t, []string{"192.168.10.255:9", "192.168.10.255:7", "255.255.255.255:9"}, dests)
}

func TestSendRepeats(t *testing.T) {
	ln, err := net.ListenPacket("udp4", "127.0.0.1:0")
	require.NoError(t, err)
	defer func() { _ = ln.Close() }()

	cfg := Config{Repeats: 3, Interval: time.Millisecond}
	s := NewSender(cfg, WithDestinations(ln.LocalAddr().String()))
	require.NoError(t, s.Send(context.Background(), peer(t)))

	require.NoError(t, ln.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, 256)
	for range 3 {
		n, _, err := ln.ReadFrom(buf)
		require.NoError(t, err)
		require.Equal(t, PacketSize, n)
		assert.Equal(t, byte(0xFF), buf[0])
		assert.Equal(t, byte(0x55), buf[n-1])
	}
}

func TestSendNoDatagramWritten(t *testing.T) {
	s := NewSender(Config{Repeats: 1}, WithDestinations("not-a-host.invalid:9"))
	err := s.Send(context.Background(), peer(t))
	require.Error(t, err)
	assert.Equal(t, failure.KindNetworkUnreachable, failure.KindOf(err))
}

func TestSendCancelledBeforeFirstRound(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := NewSender(Config{Repeats: 2, Interval: time.Hour}, WithDestinations("127.0.0.1:9"))
	require.Error(t, s.Send(ctx, peer(t)))
}
