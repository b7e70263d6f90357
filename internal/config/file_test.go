// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteFileLoadsBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "peersync.yaml")
	want := Sample()
	want.Peer.Password = "pw"
	want.Wake.MaxAttempts = 7

	require.NoError(t, WriteFile(path, want, false))

	got, err := NewLoader(path, "").Load()
	require.NoError(t, err)
	assert.Equal(t, want.Peer, got.Peer)
	assert.Equal(t, 7, got.Wake.MaxAttempts)
	assert.Equal(t, want.Shutdown.Strategies, got.Shutdown.Strategies)

	if runtime.GOOS != "windows" {
		fi, err := os.Stat(path)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0o600), fi.Mode().Perm())
	}
}

func TestWriteFileRefusesOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "peersync.yaml")
	require.NoError(t, WriteFile(path, Sample(), false))
	require.ErrorIs(t, WriteFile(path, Sample(), false), ErrExists)
	require.NoError(t, WriteFile(path, Sample(), true))
}
