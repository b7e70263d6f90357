// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package clock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestVirtualSleep(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	v := NewVirtual(start)

	require.NoError(t, Sleep(context.Background(), v, time.Second))
	require.NoError(t, Sleep(context.Background(), v, 0))
	v.Advance(time.Minute)

	require.Equal(t, start.Add(time.Minute+time.Second), v.Now())
	require.Equal(t, []time.Duration{time.Second}, v.Sleeps())
}

func TestSleepCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, Sleep(ctx, Real{}, time.Hour), context.Canceled)
}
