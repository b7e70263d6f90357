// SPDX-License-Identifier: MIT

package validate

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestIPv4(t *testing.T) {
	tests := []struct {
		value   string
		wantErr bool
	}{
		{"192.168.1.100", false},
		{"10.0.0.1", false},
		{"", true},
		{"256.1.1.1", true},
		{"192.168.1", true},
		{"::1", true},
		{"pc-audio", true},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			v := New()
			v.IPv4("peer.address", tt.value)
			if got := !v.IsValid(); got != tt.wantErr {
				t.Errorf("IPv4(%q) error = %v, want %v (%v)", tt.value, got, tt.wantErr, v.Err())
			}
		})
	}
}

func TestMAC(t *testing.T) {
	valid := []string{"AA:BB:CC:DD:EE:FF", "aa-bb-cc-dd-ee-ff", "AABBCCDDEEFF", " aa:bb:cc:dd:ee:ff "}
	invalid := []string{"", "AA:BB:CC:DD:EE", "GG:BB:CC:DD:EE:FF", "AABBCCDDEEF", "AA:BB-CC:DD:EE:FF:00"}

	for _, mac := range valid {
		if !IsMAC(mac) {
			t.Errorf("IsMAC(%q) = false, want true", mac)
		}
	}
	for _, mac := range invalid {
		v := New()
		v.MAC("peer.mac", mac)
		if v.IsValid() {
			t.Errorf("MAC(%q) accepted, want error", mac)
		}
	}
}

func TestUsername(t *testing.T) {
	tests := []struct {
		value   string
		wantErr bool
	}{
		{"audio", false},
		{`WORKGROUP\audio`, false},
		{"", true},
		{"   ", true},
		{"averyveryverylongusername", true},
		{"bad:name", true},
		{"who?", true},
	}

	for _, tt := range tests {
		v := New()
		v.Username("peer.username", tt.value)
		if got := !v.IsValid(); got != tt.wantErr {
			t.Errorf("Username(%q) error = %v, want %v", tt.value, got, tt.wantErr)
		}
	}
}

func TestValidatorAccumulatesErrors(t *testing.T) {
	v := New()
	v.Port("api.port", 0)
	v.Positive("wake.max_attempts", 0)
	v.PositiveDuration("wake.retry_interval", 0)
	v.NonNegativeDuration("wake.settle_delay", -time.Second)
	v.OneOf("shutdown.strategies[0]", "telnet", []string{"winrm", "cim"})

	err := v.Err()
	if err == nil {
		t.Fatal("expected validation error")
	}

	var verr ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %T", err)
	}
	if len(verr.Errors()) != 5 {
		t.Fatalf("expected 5 errors, got %d: %v", len(verr.Errors()), err)
	}
	if !strings.Contains(err.Error(), "wake.max_attempts") {
		t.Errorf("error message missing field name: %v", err)
	}
}

func TestValidatorNoErrors(t *testing.T) {
	v := New()
	v.Range("probe.min_open_ports", 2, 0, 3)
	v.NonNegative("wake.resend_every", 0)
	if err := v.Err(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
