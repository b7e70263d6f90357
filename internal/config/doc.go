// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package config loads the peersync configuration with the precedence
// ENV > file > defaults, validates it and converts it into the policies
// and descriptors the synchronizer runs with.
package config
