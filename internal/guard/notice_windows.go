// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

//go:build windows

package guard

import (
	"golang.org/x/sys/windows"

	"github.com/ManuGH/peersync/internal/log"
)

// shutdownLevelFirst asks Windows to notify this process among the first
// applications, before the rest of the session is torn down.
const shutdownLevelFirst = 0x3FF

var procSetProcessShutdownParameters = windows.NewLazySystemDLL("kernel32.dll").NewProc("SetProcessShutdownParameters")

func requestEarlyNotice() {
	logger := log.WithComponent("guard")
	if err := procSetProcessShutdownParameters.Find(); err != nil {
		logger.Debug().Err(err).Msg("SetProcessShutdownParameters unavailable")
		return
	}
	r, _, err := procSetProcessShutdownParameters.Call(uintptr(shutdownLevelFirst), 0)
	if r == 0 {
		logger.Warn().Err(err).Msg("could not raise shutdown priority")
	}
}
