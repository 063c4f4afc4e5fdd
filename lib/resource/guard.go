// Copyright 2026 The Ignition Authors
// SPDX-License-Identifier: Apache-2.0

package resource

import "sync"

// Guard pairs a boot-service-backed resource with the registry that
// vouches for it. A guard is valid until it is released or the
// registry is sealed, whichever comes first. After either, the
// resource is unreachable: Use and Release fail rather than touch a
// handle the firmware may have reclaimed.
type Guard[R any] struct {
	registry *Registry
	kind     Kind
	resource R

	mu       sync.Mutex
	released bool
}

// Add registers a new resource and returns its guard. It fails with
// ErrAlreadyInvalidated once the registry is sealed and with
// phase.ErrStaleToken if the bound token is no longer live, so no
// guard can be constructed without proof of Boot phase.
func Add[R any](registry *Registry, kind Kind, resource R) (*Guard[R], error) {
	if err := registry.validity(); err != nil {
		return nil, err
	}

	guard := &Guard[R]{registry: registry, kind: kind, resource: resource}
	registry.mu.Lock()
	registry.guards = append(registry.guards, guard)
	registry.mu.Unlock()
	return guard, nil
}

// Use returns the wrapped resource while the guard is valid.
func (g *Guard[R]) Use() (R, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	var zero R
	if err := g.registry.validity(); err != nil {
		return zero, err
	}
	if g.released {
		return zero, ErrAlreadyInvalidated
	}
	return g.resource, nil
}

// Release runs free on the resource and marks the guard released.
// The guard must still be valid: releasing an invalidated guard fails
// with ErrAlreadyInvalidated without calling free, which is what
// prevents use-after-exit frees. If free returns an error the guard
// stays valid so the caller may retry.
func (g *Guard[R]) Release(free func(R) error) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.registry.validity(); err != nil {
		return err
	}
	if g.released {
		return ErrAlreadyInvalidated
	}
	if free != nil {
		if err := free(g.resource); err != nil {
			return err
		}
	}
	g.released = true
	return nil
}

// Valid reports whether Use would currently succeed.
func (g *Guard[R]) Valid() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.registry.validity() == nil && !g.released
}

// Kind returns the resource classification.
func (g *Guard[R]) Kind() Kind { return g.kind }

// isReleased implements control for registry accounting.
func (g *Guard[R]) isReleased() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.released
}
