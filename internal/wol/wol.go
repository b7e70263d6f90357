// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package wol builds and transmits Wake-on-LAN magic packets.
package wol

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/ManuGH/peersync/internal/failure"
	"github.com/ManuGH/peersync/internal/log"
	"github.com/ManuGH/peersync/internal/metrics"
	"github.com/ManuGH/peersync/internal/target"
)

// ErrInvalidMAC is returned for hardware addresses that are not 6 bytes.
var ErrInvalidMAC = errors.New("wake-on-lan needs a 6 byte MAC")

const (
	syncStream = 6
	macRepeats = 16

	// PacketSize is the length of a magic packet.
	PacketSize = syncStream + macRepeats*6
)

// Signaler transmits the wake datagram for a target.
type Signaler interface {
	Send(ctx context.Context, t target.Descriptor) error
}

// Config controls where and how often the packet is sent.
type Config struct {
	Ports            []int         // subnet broadcast ports
	PrefixLen        int           // subnet size used to derive the directed broadcast
	LimitedBroadcast bool          // also send to 255.255.255.255:9
	Repeats          int           // rounds per Send
	Interval         time.Duration // pause between rounds
}

// DefaultConfig sends to the /24 broadcast on ports 9 and 7 plus the
// limited broadcast, three rounds 100ms apart.
func DefaultConfig() Config {
	return Config{
		Ports:            []int{9, 7},
		PrefixLen:        24,
		LimitedBroadcast: true,
		Repeats:          3,
		Interval:         100 * time.Millisecond,
	}
}

// MagicPacket returns 6 bytes of 0xFF followed by the MAC repeated 16 times.
func MagicPacket(mac net.HardwareAddr) ([]byte, error) {
	if len(mac) != 6 {
		return nil, ErrInvalidMAC
	}
	var buf bytes.Buffer
	buf.Grow(PacketSize)
	buf.Write(bytes.Repeat([]byte{0xFF}, syncStream))
	for range macRepeats {
		buf.Write(mac)
	}
	return buf.Bytes(), nil
}

// Sender is the UDP implementation of Signaler.
type Sender struct {
	cfg    Config
	listen func() (net.PacketConn, error)
	dests  []string
}

// Option customises a Sender.
type Option func(*Sender)

// WithDestinations replaces the derived broadcast destinations.
func WithDestinations(addrs ...string) Option {
	return func(s *Sender) { s.dests = addrs }
}

// NewSender builds a Sender.
func NewSender(cfg Config, opts ...Option) *Sender {
	if cfg.Repeats <= 0 {
		cfg.Repeats = 1
	}
	if cfg.PrefixLen == 0 {
		cfg.PrefixLen = 24
	}
	s := &Sender{
		cfg: cfg,
		listen: func() (net.PacketConn, error) {
			return net.ListenPacket("udp4", ":0")
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Destinations lists the UDP addresses a Send writes to.
func (s *Sender) Destinations(t target.Descriptor) ([]string, error) {
	if len(s.dests) > 0 {
		return s.dests, nil
	}
	bcast, err := t.SubnetBroadcast(s.cfg.PrefixLen)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(s.cfg.Ports)+1)
	for _, port := range s.cfg.Ports {
		out = append(out, net.JoinHostPort(bcast.String(), strconv.Itoa(port)))
	}
	if s.cfg.LimitedBroadcast {
		out = append(out, net.JoinHostPort(net.IPv4bcast.String(), "9"))
	}
	return out, nil
}

// Send writes the packet to every destination, Repeats times. It succeeds
// when at least one datagram left the host.
func (s *Sender) Send(ctx context.Context, t target.Descriptor) error {
	logger := log.WithComponentFromContext(ctx, "wol")

	packet, err := MagicPacket(t.MAC())
	if err != nil {
		return fmt.Errorf("build magic packet: %w", err)
	}
	dests, err := s.Destinations(t)
	if err != nil {
		return fmt.Errorf("wake destinations: %w", err)
	}

	conn, err := s.listen()
	if err != nil {
		metrics.IncWakeDatagram("error")
		return failure.New(failure.KindNetworkUnreachable, "wake datagram", err)
	}
	defer func() { _ = conn.Close() }()

	limiter := rate.NewLimiter(rate.Every(s.cfg.Interval), 1)
	if s.cfg.Interval <= 0 {
		limiter = rate.NewLimiter(rate.Inf, 1)
	}

	var (
		sent int
		errs []error
	)
	for round := range s.cfg.Repeats {
		if err := limiter.Wait(ctx); err != nil {
			if sent > 0 {
				break
			}
			return err
		}
		for _, dest := range dests {
			addr, err := net.ResolveUDPAddr("udp4", dest)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			if _, err := conn.WriteTo(packet, addr); err != nil {
				metrics.IncWakeDatagram("error")
				errs = append(errs, fmt.Errorf("%s: %w", dest, err))
				logger.Debug().Err(err).Str("dest", dest).Int("round", round+1).Msg("wake datagram failed")
				continue
			}
			metrics.IncWakeDatagram("sent")
			sent++
		}
	}

	if sent == 0 {
		return failure.New(failure.KindNetworkUnreachable, "wake datagram", errors.Join(errs...))
	}
	logger.Info().
		Str(log.FieldEvent, "wol.sent").
		Str(log.FieldMAC, t.MACString()).
		Int("datagrams", sent).
		Strs("destinations", dests).
		Msg("wake datagram sent")
	return nil
}
