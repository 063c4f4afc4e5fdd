// Copyright 2026 The Ignition Authors
// SPDX-License-Identifier: Apache-2.0

// ignition-report inspects transition reports written by ignition-sim.
//
// By default it prints a human-readable summary of the report frame
// and its payload. --json emits the decoded payload as JSON, --diag
// prints the raw CBOR in diagnostic notation.
//
// Usage:
//
//	ignition-report [flags] <report-file>
package main
