// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package probe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"

	"github.com/ManuGH/peersync/internal/failure"
	"github.com/ManuGH/peersync/internal/procgroup"
)

const protocolICMP = 1

var errNoIPv4 = errors.New("no IPv4 address")

// ICMPPinger sends ICMP echo requests. It prefers unprivileged datagram
// sockets and falls back to raw sockets.
type ICMPPinger struct {
	seq atomic.Uint32
}

// Ping implements Pinger.
func (p *ICMPPinger) Ping(ctx context.Context, addr string, timeout time.Duration) (time.Duration, error) {
	ip, err := resolveIPv4(ctx, addr)
	if err != nil {
		return 0, failure.New(failure.KindNetworkUnreachable, "ping", err)
	}

	network := "udp4"
	conn, err := icmp.ListenPacket(network, "0.0.0.0")
	if err != nil {
		network = "ip4:icmp"
		conn, err = icmp.ListenPacket(network, "0.0.0.0")
		if err != nil {
			return 0, fmt.Errorf("open icmp socket: %w", err)
		}
	}
	defer func() { _ = conn.Close() }()

	seq := int(p.seq.Add(1) & 0xffff)
	msg := icmp.Message{
		Type: ipv4.ICMPTypeEcho,
		Body: &icmp.Echo{ID: os.Getpid() & 0xffff, Seq: seq, Data: []byte("peersync")},
	}
	wire, err := msg.Marshal(nil)
	if err != nil {
		return 0, fmt.Errorf("marshal echo: %w", err)
	}

	var dst net.Addr = &net.IPAddr{IP: ip}
	if network == "udp4" {
		dst = &net.UDPAddr{IP: ip}
	}

	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return 0, fmt.Errorf("set deadline: %w", err)
	}

	start := time.Now()
	if _, err := conn.WriteTo(wire, dst); err != nil {
		return 0, failure.New(failure.KindNetworkUnreachable, "ping", err)
	}

	buf := make([]byte, 1500)
	for {
		n, peer, err := conn.ReadFrom(buf)
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				return 0, failure.New(failure.KindTimeout, "ping", err)
			}
			return 0, failure.New(failure.KindNetworkUnreachable, "ping", err)
		}
		if !sameHost(peer, ip) {
			continue
		}
		reply, err := icmp.ParseMessage(protocolICMP, buf[:n])
		if err != nil || reply.Type != ipv4.ICMPTypeEchoReply {
			continue
		}
		// Datagram sockets rewrite the echo ID, so only the sequence is matched.
		if echo, ok := reply.Body.(*icmp.Echo); ok && echo.Seq == seq {
			return time.Since(start), nil
		}
	}
}

func sameHost(addr net.Addr, ip net.IP) bool {
	switch a := addr.(type) {
	case *net.UDPAddr:
		return a.IP.Equal(ip)
	case *net.IPAddr:
		return a.IP.Equal(ip)
	default:
		return false
	}
}

func resolveIPv4(ctx context.Context, addr string) (net.IP, error) {
	if ip := net.ParseIP(addr); ip != nil {
		if v4 := ip.To4(); v4 != nil {
			return v4, nil
		}
		return nil, errNoIPv4
	}
	ips, err := net.DefaultResolver.LookupIP(ctx, "ip4", addr)
	if err != nil {
		return nil, err
	}
	if len(ips) == 0 {
		return nil, errNoIPv4
	}
	return ips[0].To4(), nil
}

// CommandPinger shells out to the system ping tool. It is the fallback
// when the process may not open ICMP sockets.
type CommandPinger struct{}

// Ping implements Pinger.
func (CommandPinger) Ping(ctx context.Context, addr string, timeout time.Duration) (time.Duration, error) {
	var args []string
	if runtime.GOOS == "windows" {
		args = []string{"-n", "1", "-w", strconv.Itoa(int(timeout.Milliseconds())), addr}
	} else {
		secs := int(timeout.Round(time.Second).Seconds())
		if secs < 1 {
			secs = 1
		}
		args = []string{"-c", "1", "-W", strconv.Itoa(secs), addr}
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout+time.Second)
	defer cancel()

	res, err := procgroup.Run(runCtx, "ping", args, procgroup.Options{Grace: 200 * time.Millisecond})
	if err != nil {
		if runCtx.Err() != nil {
			return 0, failure.New(failure.KindTimeout, "ping", err)
		}
		return 0, failure.New(failure.KindNetworkUnreachable, "ping", err)
	}
	return res.Duration, nil
}

// fallbackPinger tries ICMP first and remembers when sockets are denied.
type fallbackPinger struct {
	icmp   *ICMPPinger
	cmd    CommandPinger
	useCmd atomic.Bool
}

// NewPinger returns the default Pinger.
func NewPinger() Pinger {
	return &fallbackPinger{icmp: &ICMPPinger{}}
}

func (f *fallbackPinger) Ping(ctx context.Context, addr string, timeout time.Duration) (time.Duration, error) {
	if f.useCmd.Load() {
		return f.cmd.Ping(ctx, addr, timeout)
	}
	rtt, err := f.icmp.Ping(ctx, addr, timeout)
	if err != nil && errors.Is(err, os.ErrPermission) {
		f.useCmd.Store(true)
		return f.cmd.Ping(ctx, addr, timeout)
	}
	return rtt, err
}
