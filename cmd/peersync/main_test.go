// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/peersync/internal/config"
	"github.com/ManuGH/peersync/internal/session"
	"github.com/ManuGH/peersync/internal/syncer"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	configPath, apiAddr = "", ""
	statusJSON, historyKind, historyLimit = false, "", 20
	initForce, dumpFormat = false, "yaml"
	healthMode, healthTimeout = "ready", 5*time.Second

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestConfigInitValidateDump(t *testing.T) {
	path := filepath.Join(t.TempDir(), "peersync.yaml")

	out, err := execute(t, "config", "init", path)
	require.NoError(t, err)
	assert.Contains(t, out, "wrote "+path)
	if runtime.GOOS != "windows" {
		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
	}

	_, err = execute(t, "config", "init", path)
	require.ErrorIs(t, err, config.ErrExists)
	_, err = execute(t, "config", "init", "--force", path)
	require.NoError(t, err)

	out, err = execute(t, "--config", path, "config", "validate")
	require.NoError(t, err)
	assert.Contains(t, out, path+" is valid")

	out, err = execute(t, "--config", path, "config", "dump", "--format", "json")
	require.NoError(t, err)
	var dumped map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &dumped))
	peer, ok := dumped["peer"].(map[string]any)
	require.True(t, ok, "peer section missing: %s", out)
	assert.Equal(t, "192.168.1.50", peer["address"])

	_, err = execute(t, "--config", path, "config", "dump", "--format", "toml")
	require.Error(t, err)
}

func TestConfigValidateReportsErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("peer:\n  address: 999.1.1.1\n"), 0o600))

	_, err := execute(t, "--config", path, "config", "validate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "configuration error")
}

func TestStatusAndHistoryAgainstDaemon(t *testing.T) {
	started := time.Date(2025, 3, 1, 22, 0, 0, 0, time.UTC)
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/status", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(syncer.Status{
			Peer:       syncer.PeerInfo{Name: "gaming-pc", Address: "192.168.1.50", MAC: "AA:BB:CC:DD:EE:FF"},
			Strategies: []string{"winrm", "net"},
			Shutdown: &session.Snapshot{
				ID: "s-1", Kind: session.KindShutdown, State: session.StateSucceeded,
				Result: session.ResultSucceeded, Reason: "confirmed_offline", Progress: 1,
			},
		})
	})
	mux.HandleFunc("/api/v1/sessions/history", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "shutdown", r.URL.Query().Get("kind"))
		_ = json.NewEncoder(w).Encode([]session.Snapshot{{
			ID: "s-1", Kind: session.KindShutdown, Result: session.ResultSucceeded,
			StartedAt: started, EndedAt: started.Add(12 * time.Second),
		}})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	out, err := execute(t, "--api", srv.URL, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "gaming-pc (192.168.1.50, AA:BB:CC:DD:EE:FF)")
	assert.Contains(t, out, "wake:       none")
	assert.Contains(t, out, "succeeded (confirmed_offline)")

	out, err = execute(t, "--api", srv.URL, "history", "--kind", "shutdown")
	require.NoError(t, err)
	assert.Contains(t, out, "RESULT")
	assert.Contains(t, out, "12s")
}

func TestStatusSurfacesAPIErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"journal_disabled","detail":"session journal is disabled"}`))
	}))
	defer srv.Close()

	_, err := execute(t, "--api", srv.URL, "history")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "journal_disabled")
}

func TestHealthcheck(t *testing.T) {
	code := http.StatusOK
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/readyz" {
			w.WriteHeader(code)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	out, err := execute(t, "--api", srv.URL, "healthcheck")
	require.NoError(t, err)
	assert.Contains(t, out, "successful (ready)")

	code = http.StatusServiceUnavailable
	_, err = execute(t, "--api", srv.URL, "healthcheck")
	require.Error(t, err)

	_, err = execute(t, "--api", srv.URL, "healthcheck", "--mode", "live")
	require.NoError(t, err)

	_, err = execute(t, "--api", srv.URL, "healthcheck", "--mode", "bogus")
	require.Error(t, err)
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "peersync dev")
}

func TestResolveAPIAddr(t *testing.T) {
	configPath, apiAddr = "", "127.0.0.1:9999/"
	assert.Equal(t, "http://127.0.0.1:9999", resolveAPIAddr())

	apiAddr = ""
	t.Setenv(config.ConfigPathEnv, "")
	assert.Equal(t, "http://"+config.Default().API.ListenAddr, resolveAPIAddr())
}
