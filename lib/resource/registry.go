// Copyright 2026 The Ignition Authors
// SPDX-License-Identifier: Apache-2.0

package resource

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ignition-foundation/ignition/lib/phase"
)

// ErrAlreadyInvalidated is returned when a guard is used or released
// after the registry was sealed, or after its own release.
var ErrAlreadyInvalidated = errors.New("resource: guard invalidated")

// Kind classifies the resource behind a guard.
type Kind int

const (
	// KindAllocation is a pool allocation.
	KindAllocation Kind = iota
	// KindConsole is the firmware console handle.
	KindConsole
	// KindProtocol is a located protocol handle.
	KindProtocol
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindAllocation:
		return "allocation"
	case KindConsole:
		return "console"
	case KindProtocol:
		return "protocol"
	}
	return fmt.Sprintf("kind %d", int(k))
}

// control is the kind- and type-erased view of a guard the registry
// keeps for accounting.
type control interface {
	isReleased() bool
}

// Registry is the append-only set of guards issued during Boot phase.
// It is bound to the phase token at construction; guards check both
// the seal and the token, in that order, so a sealed registry is
// observed before the token swap that follows it.
type Registry struct {
	token  *phase.Token
	sealed atomic.Bool

	mu     sync.Mutex
	guards []control
}

// NewRegistry creates an open registry bound to a live Boot token.
func NewRegistry(token *phase.Token) (*Registry, error) {
	if token == nil {
		return nil, fmt.Errorf("resource: nil token")
	}
	if token.Phase() != phase.Boot || !token.Live() {
		return nil, phase.ErrStaleToken
	}
	return &Registry{token: token}, nil
}

// Seal invalidates every outstanding guard with a single atomic flag
// flip and returns the number of guards that were still live. Sealing
// issues no firmware call for swept guards. A second Seal is a no-op
// returning zero.
//
// The flag flip is the invalidation; the live count afterwards is
// read-only accounting of the already-sealed state.
func (r *Registry) Seal() int {
	if !r.sealed.CompareAndSwap(false, true) {
		return 0
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	swept := 0
	for _, guard := range r.guards {
		if !guard.isReleased() {
			swept++
		}
	}
	return swept
}

// Sealed reports whether the registry has been sealed.
func (r *Registry) Sealed() bool { return r.sealed.Load() }

// LiveCount returns the number of guards that are neither released
// nor swept. After Seal it is zero.
func (r *Registry) LiveCount() int {
	if r.sealed.Load() {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	live := 0
	for _, guard := range r.guards {
		if !guard.isReleased() {
			live++
		}
	}
	return live
}

// Len returns the total number of guards ever registered. The
// registry is append-only; released guards still count.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.guards)
}

// validity returns the error a guard operation should fail with, or
// nil while the registry is open and the token live.
func (r *Registry) validity() error {
	if r.sealed.Load() {
		return ErrAlreadyInvalidated
	}
	if !r.token.Live() {
		// Token consumed without a seal: defense in depth, the
		// coordinator always seals first.
		return phase.ErrStaleToken
	}
	return nil
}
