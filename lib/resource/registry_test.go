// Copyright 2026 The Ignition Authors
// SPDX-License-Identifier: Apache-2.0

package resource_test

import (
	"errors"
	"testing"

	"github.com/ignition-foundation/ignition/lib/phase"
	"github.com/ignition-foundation/ignition/lib/resource"
)

func newRegistry(t *testing.T) (*phase.Token, *resource.Registry) {
	t.Helper()
	token := phase.NewBootToken()
	registry, err := resource.NewRegistry(token)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	return token, registry
}

func TestNewRegistryRejectsConsumedToken(t *testing.T) {
	token := phase.NewBootToken()
	if _, err := token.ConsumeForTransition(); err != nil {
		t.Fatalf("ConsumeForTransition: %v", err)
	}
	if _, err := resource.NewRegistry(token); !errors.Is(err, phase.ErrStaleToken) {
		t.Fatalf("NewRegistry(consumed token) = %v, want ErrStaleToken", err)
	}
}

func TestNewRegistryRejectsRuntimeToken(t *testing.T) {
	boot := phase.NewBootToken()
	runtime, err := boot.ConsumeForTransition()
	if err != nil {
		t.Fatalf("ConsumeForTransition: %v", err)
	}
	if _, err := resource.NewRegistry(runtime); !errors.Is(err, phase.ErrStaleToken) {
		t.Fatalf("NewRegistry(runtime token) = %v, want ErrStaleToken", err)
	}
}

func TestGuardUseAndRelease(t *testing.T) {
	_, registry := newRegistry(t)

	guard, err := resource.Add(registry, resource.KindAllocation, 42)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	value, err := guard.Use()
	if err != nil {
		t.Fatalf("Use: %v", err)
	}
	if value != 42 {
		t.Errorf("Use = %d, want 42", value)
	}

	freed := false
	if err := guard.Release(func(int) error { freed = true; return nil }); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if !freed {
		t.Error("free function not called")
	}
	if _, err := guard.Use(); !errors.Is(err, resource.ErrAlreadyInvalidated) {
		t.Errorf("Use after Release = %v, want ErrAlreadyInvalidated", err)
	}
	if err := guard.Release(nil); !errors.Is(err, resource.ErrAlreadyInvalidated) {
		t.Errorf("double Release = %v, want ErrAlreadyInvalidated", err)
	}
}

func TestReleaseKeepsGuardValidOnFreeError(t *testing.T) {
	_, registry := newRegistry(t)

	guard, err := resource.Add(registry, resource.KindAllocation, "block")
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	freeErr := errors.New("firmware busy")
	if err := guard.Release(func(string) error { return freeErr }); !errors.Is(err, freeErr) {
		t.Fatalf("Release = %v, want %v", err, freeErr)
	}
	if !guard.Valid() {
		t.Error("guard invalid after failed free, want still valid")
	}
	if err := guard.Release(nil); err != nil {
		t.Fatalf("retried Release: %v", err)
	}
}

func TestSealInvalidatesLiveGuards(t *testing.T) {
	_, registry := newRegistry(t)

	first, err := resource.Add(registry, resource.KindAllocation, 1)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	second, err := resource.Add(registry, resource.KindConsole, 2)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := first.Release(nil); err != nil {
		t.Fatalf("Release: %v", err)
	}

	swept := registry.Seal()
	if swept != 1 {
		t.Errorf("Seal = %d, want 1", swept)
	}
	if !registry.Sealed() {
		t.Error("Sealed = false after Seal")
	}
	if _, err := second.Use(); !errors.Is(err, resource.ErrAlreadyInvalidated) {
		t.Errorf("Use after seal = %v, want ErrAlreadyInvalidated", err)
	}

	// Releasing a swept guard must not run the free function.
	err = second.Release(func(int) error {
		t.Error("free called on a swept guard")
		return nil
	})
	if !errors.Is(err, resource.ErrAlreadyInvalidated) {
		t.Errorf("Release after seal = %v, want ErrAlreadyInvalidated", err)
	}
}

func TestSealIsIdempotent(t *testing.T) {
	_, registry := newRegistry(t)

	if _, err := resource.Add(registry, resource.KindAllocation, 1); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if swept := registry.Seal(); swept != 1 {
		t.Errorf("first Seal = %d, want 1", swept)
	}
	if swept := registry.Seal(); swept != 0 {
		t.Errorf("second Seal = %d, want 0", swept)
	}
}

func TestAddAfterSealFails(t *testing.T) {
	_, registry := newRegistry(t)
	registry.Seal()

	if _, err := resource.Add(registry, resource.KindAllocation, 1); !errors.Is(err, resource.ErrAlreadyInvalidated) {
		t.Fatalf("Add after seal = %v, want ErrAlreadyInvalidated", err)
	}
}

func TestGuardObservesConsumedToken(t *testing.T) {
	token, registry := newRegistry(t)

	guard, err := resource.Add(registry, resource.KindProtocol, 7)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := token.ConsumeForTransition(); err != nil {
		t.Fatalf("ConsumeForTransition: %v", err)
	}
	if _, err := guard.Use(); !errors.Is(err, phase.ErrStaleToken) {
		t.Errorf("Use after token consumed = %v, want ErrStaleToken", err)
	}
}

func TestCounts(t *testing.T) {
	_, registry := newRegistry(t)

	guards := make([]*resource.Guard[int], 3)
	for i := range guards {
		guard, err := resource.Add(registry, resource.KindAllocation, i)
		if err != nil {
			t.Fatalf("Add: %v", err)
		}
		guards[i] = guard
	}
	if err := guards[1].Release(nil); err != nil {
		t.Fatalf("Release: %v", err)
	}

	if got := registry.Len(); got != 3 {
		t.Errorf("Len = %d, want 3", got)
	}
	if got := registry.LiveCount(); got != 2 {
		t.Errorf("LiveCount = %d, want 2", got)
	}

	registry.Seal()
	if got := registry.LiveCount(); got != 0 {
		t.Errorf("LiveCount after seal = %d, want 0", got)
	}
	if got := registry.Len(); got != 3 {
		t.Errorf("Len after seal = %d, want 3", got)
	}
}
