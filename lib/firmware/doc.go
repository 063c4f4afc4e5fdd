// Copyright 2026 The Ignition Authors
// SPDX-License-Identifier: Apache-2.0

// Package firmware defines the abstract service surface the lifecycle
// core uses to reach pre-boot firmware: pool and page allocation,
// memory map snapshots, console text output, protocol lookup, and the
// irreversible ExitBootServices call.
//
// Production code accepts the Services interface instead of touching a
// call table directly. A concrete adapter over the real firmware call
// table lives outside this module; tests and the simulator inject
// Fake(), a deterministic in-memory firmware that tracks allocation
// state, derives memory map keys from that state, and detects unsafe
// frees (double frees and frees issued after boot services exited).
//
// # Wiring Pattern
//
// Add a Services field to structs that call firmware:
//
//	type Allocator struct {
//	    services firmware.Services
//	    // ...
//	}
//
// In tests:
//
//	fx := firmware.Fake()
//	fx.Disturb(2) // stale the map key after the next two snapshots
//
// Every Services method can fail, and ExitBootServices is never
// idempotent: once firmware accepts it, all further boot service calls
// are invalid.
package firmware
