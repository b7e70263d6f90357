// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package api serves the local control and status surface used by the tray
// and other observers: session status, a Server-Sent Events stream of the
// status bus, manual wake and shutdown, presence and the session journal.
package api
