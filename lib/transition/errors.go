// Copyright 2026 The Ignition Authors
// SPDX-License-Identifier: Apache-2.0

package transition

import "fmt"

// RetryExhaustedError is returned when every permitted attempt saw a
// stale memory map key. Remaining in Boot phase is a valid caller
// choice; the coordinator never retries beyond the policy cap because
// an unbounded loop risks livelock if some external actor keeps
// allocating.
type RetryExhaustedError struct {
	// Attempts is the total number of snapshot-and-exit attempts
	// made (the retry cap plus one).
	Attempts int
}

// Error implements the error interface.
func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("transition: memory map key stale after %d attempts", e.Attempts)
}

// RejectedError is returned when the firmware fails the transition
// for any reason other than a stale map key. No partial state is
// introduced: the Boot token and every guard remain exactly as they
// were.
type RejectedError struct {
	Cause error
}

// Error implements the error interface.
func (e *RejectedError) Error() string {
	return fmt.Sprintf("transition: firmware rejected: %v", e.Cause)
}

// Unwrap returns the firmware error.
func (e *RejectedError) Unwrap() error { return e.Cause }
