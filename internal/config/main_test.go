// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestMain(m *testing.M) {
	// Unset all PEERSYNC vars so the developer environment cannot leak in.
	for _, e := range os.Environ() {
		if strings.HasPrefix(e, EnvPrefix) {
			k, _, _ := strings.Cut(e, "=")
			if err := os.Unsetenv(k); err != nil {
				panic("failed to unset env: " + err.Error())
			}
		}
	}
	os.Exit(m.Run())
}

const minimalYAML = `peer:
  address: 192.168.1.50
  mac: aa-bb-cc-dd-ee-ff
  username: admin
  password: hunter2
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "peersync.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}
