// Copyright 2026 The Ignition Authors
// SPDX-License-Identifier: Apache-2.0

// Package phase models the two-phase lifetime of a pre-boot
// application: Boot, while firmware boot services are callable, and
// Runtime, after the one-way ExitBootServices transition.
//
// The Token is the sole proof of the current phase. Exactly one Boot
// token is created at process start; the transition coordinator
// consumes it and mints the Runtime token. Go has no move semantics,
// so consumption is runtime-checked: any use of a consumed token
// fails with ErrStaleToken. Code holding a live Boot token may call
// boot services; code holding a Runtime token has a checkable
// guarantee that it must not.
package phase

import (
	"errors"
	"fmt"
	"sync/atomic"
)

// Phase is the current lifecycle phase. The progression is monotonic:
// once Runtime, never Boot again.
type Phase int

const (
	// Boot is the initial phase, during which firmware boot services
	// (allocation, console, protocol lookup) are available.
	Boot Phase = iota

	// Runtime is the terminal phase, after boot services have been
	// permanently revoked.
	Runtime
)

// String returns the phase name.
func (p Phase) String() string {
	switch p {
	case Boot:
		return "boot"
	case Runtime:
		return "runtime"
	}
	return fmt.Sprintf("phase %d", int(p))
}

// ErrStaleToken is returned when a consumed token, or a resource tied
// to one, is used.
var ErrStaleToken = errors.New("phase: token already consumed")

// Token is the proof-carrying handle for the current phase. A Boot
// token is live until ConsumeForTransition succeeds, at which point
// every copy of the pointer observes the consumed state. Runtime
// tokens are terminal and never consumed.
type Token struct {
	phase    Phase
	consumed atomic.Bool
}

// NewBootToken creates a live Boot-phase token. The process entry
// contract is that the application driver creates exactly one; tests
// create independent lineages freely.
func NewBootToken() *Token {
	return &Token{phase: Boot}
}

// Phase returns the phase this token proves.
func (t *Token) Phase() Phase { return t.phase }

// Live reports whether the token has not been consumed. A Runtime
// token is always live.
func (t *Token) Live() bool { return !t.consumed.Load() }

// ConsumeForTransition atomically consumes a live Boot token and
// mints the Runtime token. It is called by the transition coordinator
// as the final step of a successful ExitBootServices; consuming a
// token anywhere else strands the process with no usable phase proof.
//
// A second call on the same lineage, or a call on a Runtime token,
// fails with ErrStaleToken. The swap is a single atomic flag flip, so
// re-entrant observers see the token either fully live or fully
// consumed.
func (t *Token) ConsumeForTransition() (*Token, error) {
	if t.phase != Boot {
		return nil, ErrStaleToken
	}
	if !t.consumed.CompareAndSwap(false, true) {
		return nil, ErrStaleToken
	}
	return &Token{phase: Runtime}, nil
}
