// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/peersync/internal/log"
)

func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, log.Configure(log.Config{Level: "debug", Output: &buf}))
	t.Cleanup(func() { _ = log.Configure(log.Config{}) })
	return &buf
}

func TestParseInvalidValuesWarnAndFallBack(t *testing.T) {
	buf := captureLogs(t)
	t.Setenv(EnvPrefix+"WAKE_MAX_ATTEMPTS", "many")
	t.Setenv(EnvPrefix+"WAKE_RETRY_INTERVAL", "soon")

	assert.Equal(t, 10, ParseInt(EnvPrefix+"WAKE_MAX_ATTEMPTS", 10))
	assert.Equal(t, 15*time.Second, ParseDuration(EnvPrefix+"WAKE_RETRY_INTERVAL", 15*time.Second))

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 2)
	for _, line := range lines {
		var entry map[string]any
		require.NoError(t, json.Unmarshal(line, &entry))
		assert.Equal(t, "warn", entry["level"])
		assert.Equal(t, "config", entry[log.FieldComponent])
	}
}

func TestParseValidValueLogsSource(t *testing.T) {
	buf := captureLogs(t)
	t.Setenv(EnvPrefix+"WAKE_MAX_ATTEMPTS", "4")

	assert.Equal(t, 4, ParseInt(EnvPrefix+"WAKE_MAX_ATTEMPTS", 10))
	assert.Contains(t, buf.String(), `"source":"environment"`)
}
