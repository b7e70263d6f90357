// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package target describes the Peer machine the synchronizer wakes and
// powers off.
package target

import (
	"encoding/hex"
	"fmt"
	"net"
	"strings"

	"github.com/ManuGH/peersync/internal/validate"
)

// Descriptor is the immutable identity of the Peer. Construct it with New;
// the zero value is not usable.
type Descriptor struct {
	name     string
	address  string
	mac      net.HardwareAddr
	username string
	secret   string
}

// Params carries the raw fields New validates.
type Params struct {
	Name     string
	Address  string
	MAC      string
	Username string
	Secret   string // may be empty for passwordless accounts
}

// New validates and normalizes p into a Descriptor.
func New(p Params) (Descriptor, error) {
	v := validate.New()
	v.IPv4("address", p.Address)
	v.MAC("mac", p.MAC)
	v.Username("username", p.Username)
	if err := v.Err(); err != nil {
		return Descriptor{}, err
	}

	mac, err := ParseMAC(p.MAC)
	if err != nil {
		return Descriptor{}, err
	}

	name := strings.TrimSpace(p.Name)
	if name == "" {
		name = p.Address
	}

	return Descriptor{
		name:     name,
		address:  p.Address,
		mac:      mac,
		username: p.Username,
		secret:   p.Secret,
	}, nil
}

// ParseMAC accepts XX:XX:.., XX-XX-.. and bare 12-digit hex forms.
func ParseMAC(s string) (net.HardwareAddr, error) {
	s = strings.TrimSpace(s)
	if !validate.IsMAC(s) {
		return nil, fmt.Errorf("invalid MAC address %q", s)
	}
	clean := strings.NewReplacer(":", "", "-", "").Replace(s)
	b, err := hex.DecodeString(clean)
	if err != nil {
		return nil, fmt.Errorf("invalid MAC address %q: %w", s, err)
	}
	return net.HardwareAddr(b), nil
}

// NormalizeMAC formats a MAC as upper-case hyphen separated pairs
// (AA-BB-CC-DD-EE-FF), the form the Windows tooling prints.
func NormalizeMAC(s string) (string, error) {
	mac, err := ParseMAC(s)
	if err != nil {
		return "", err
	}
	return formatMAC(mac), nil
}

func formatMAC(mac net.HardwareAddr) string {
	return strings.ToUpper(strings.ReplaceAll(mac.String(), ":", "-"))
}

func (d Descriptor) Name() string    { return d.name }
func (d Descriptor) Address() string { return d.address }
func (d Descriptor) Username() string {
	return d.username
}

// Secret returns the optional password. An empty string means the account
// has no password.
func (d Descriptor) Secret() string { return d.secret }

// MAC returns a copy of the link-layer address.
func (d Descriptor) MAC() net.HardwareAddr {
	out := make(net.HardwareAddr, len(d.mac))
	copy(out, d.mac)
	return out
}

// MACString returns the normalized link-layer address.
func (d Descriptor) MACString() string { return formatMAC(d.mac) }

// IsZero reports whether d was never initialised through New.
func (d Descriptor) IsZero() bool { return d.address == "" }

// String is safe for logging: it never includes the secret.
func (d Descriptor) String() string {
	return fmt.Sprintf("%s (%s, %s)", d.name, d.address, d.MACString())
}

// SubnetBroadcast derives the directed broadcast address of the Peer's
// subnet for the given prefix length.
func (d Descriptor) SubnetBroadcast(prefixLen int) (net.IP, error) {
	ip := net.ParseIP(d.address).To4()
	if ip == nil {
		return nil, fmt.Errorf("address %q is not IPv4", d.address)
	}
	if prefixLen < 0 || prefixLen > 32 {
		return nil, fmt.Errorf("invalid prefix length %d", prefixLen)
	}
	mask := net.CIDRMask(prefixLen, 32)
	out := make(net.IP, 4)
	for i := range ip {
		out[i] = ip[i] | ^mask[i]
	}
	return out, nil
}
