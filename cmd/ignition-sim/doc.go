// Copyright 2026 The Ignition Authors
// SPDX-License-Identifier: Apache-2.0

// ignition-sim drives a complete boot-to-runtime lifecycle against
// the in-memory fake firmware: pool allocations, a reserved runtime
// arena, console output, and the ExitBootServices transition with its
// bounded stale-key retry. It exists to demonstrate the wiring and to
// poke the transition protocol from the command line:
//
//	ignition-sim --disturb 1            # one stale key, then success
//	ignition-sim --disturb 9 --retry-cap 2   # retry exhaustion
//	ignition-sim --report /tmp/transition.ignr
//
// The transition report can be inspected with ignition-report.
package main
