// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildKeepsOrder(t *testing.T) {
	list, err := Build([]string{NamePsExec, NameWinRM, NameSSH}, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{NamePsExec, NameWinRM, NameSSH}, Names(list))
}

func TestBuildDefaultOrder(t *testing.T) {
	list, err := Build(DefaultOrder, Options{})
	require.NoError(t, err)
	assert.Equal(t, DefaultOrder, Names(list))
}

func TestBuildRejectsUnknownAndDuplicates(t *testing.T) {
	_, err := Build([]string{NameNet, "rdp"}, Options{})
	require.ErrorIs(t, err, ErrUnknownStrategy)

	_, err = Build([]string{NameNet, NameNet}, Options{})
	require.ErrorContains(t, err, "duplicate")
}

func TestKnown(t *testing.T) {
	for _, n := range DefaultOrder {
		assert.True(t, Known(n), n)
	}
	assert.False(t, Known("telnet"))
}

func TestTools(t *testing.T) {
	assert.Equal(t, []string{"powershell.exe"}, Tools(NameCIM, Options{}))
	assert.Equal(t, []string{"net", "shutdown"}, Tools(NameNet, Options{}))
	assert.Equal(t, []string{"psexec"}, Tools(NamePsExec, Options{}))
	assert.Equal(t, []string{`C:\tools\PsExec64.exe`}, Tools(NamePsExec, Options{PsExecPath: `C:\tools\PsExec64.exe`}))
	assert.Empty(t, Tools(NameSSH, Options{}))
}
