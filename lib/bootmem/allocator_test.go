// Copyright 2026 The Ignition Authors
// SPDX-License-Identifier: Apache-2.0

package bootmem_test

import (
	"errors"
	"math"
	"testing"

	"github.com/ignition-foundation/ignition/lib/bootmem"
	"github.com/ignition-foundation/ignition/lib/firmware"
	"github.com/ignition-foundation/ignition/lib/phase"
	"github.com/ignition-foundation/ignition/lib/resource"
)

func newAllocator(t *testing.T) (*firmware.FakeFirmware, *resource.Registry, *bootmem.Allocator) {
	t.Helper()
	fake := firmware.Fake()
	registry, err := resource.NewRegistry(phase.NewBootToken())
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	return fake, registry, bootmem.NewAllocator(fake, registry)
}

func TestAllocAndFree(t *testing.T) {
	fake, _, allocator := newAllocator(t)

	guard, err := allocator.Alloc(64, 0)
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}
	block, err := guard.Use()
	if err != nil {
		t.Fatalf("Use: %v", err)
	}
	if block.Size() != 64 {
		t.Errorf("Size = %d, want 64", block.Size())
	}
	if len(block.Bytes()) != 64 {
		t.Errorf("len(Bytes) = %d, want 64", len(block.Bytes()))
	}
	if block.Address()%bootmem.PoolAlignment != 0 {
		t.Errorf("Address %#x not pool aligned", block.Address())
	}

	if err := allocator.Free(guard); err != nil {
		t.Fatalf("Free: %v", err)
	}
	if fake.LivePoolAllocations() != 0 {
		t.Errorf("LivePoolAllocations = %d, want 0", fake.LivePoolAllocations())
	}
	if err := allocator.Free(guard); !errors.Is(err, resource.ErrAlreadyInvalidated) {
		t.Errorf("double Free = %v, want ErrAlreadyInvalidated", err)
	}
}

func TestAllocZeroSize(t *testing.T) {
	fake, _, allocator := newAllocator(t)

	guard, err := allocator.Alloc(0, 0)
	if err != nil {
		t.Fatalf("Alloc(0): %v", err)
	}
	block, err := guard.Use()
	if err != nil {
		t.Fatalf("Use: %v", err)
	}
	if block.Size() != 0 {
		t.Errorf("Size = %d, want 0", block.Size())
	}
	if fake.PoolAllocationCount() != 0 {
		t.Errorf("zero-size Alloc reached the firmware pool (%d calls)", fake.PoolAllocationCount())
	}

	// Freeing a zero-size block must not call the firmware either.
	if err := allocator.Free(guard); err != nil {
		t.Fatalf("Free: %v", err)
	}
	if fake.UnsafeFreeCount() != 0 {
		t.Errorf("UnsafeFreeCount = %d, want 0", fake.UnsafeFreeCount())
	}
}

func TestAllocOverAligned(t *testing.T) {
	_, _, allocator := newAllocator(t)

	guard, err := allocator.Alloc(100, 64)
	if err != nil {
		t.Fatalf("Alloc(100, 64): %v", err)
	}
	block, err := guard.Use()
	if err != nil {
		t.Fatalf("Use: %v", err)
	}
	if block.Address()%64 != 0 {
		t.Errorf("Address %#x not 64-byte aligned", block.Address())
	}
	if block.Size() != 100 {
		t.Errorf("Size = %d, want 100", block.Size())
	}
	if len(block.Bytes()) != 100 {
		t.Errorf("len(Bytes) = %d, want 100", len(block.Bytes()))
	}

	if err := allocator.Free(guard); err != nil {
		t.Fatalf("Free: %v", err)
	}
}

func TestAllocOverAlignedHugeSize(t *testing.T) {
	fake, _, allocator := newAllocator(t)

	// The over-alignment padding must not wrap the request around and
	// reach the firmware with a tiny size.
	for _, size := range []uint64{math.MaxUint64, math.MaxUint64 - 8} {
		_, err := allocator.Alloc(size, 16)
		if !errors.Is(err, bootmem.ErrOutOfResources) {
			t.Errorf("Alloc(%d, 16) = %v, want ErrOutOfResources", size, err)
		}
	}
	if fake.PoolAllocationCount() != 0 {
		t.Errorf("overflowing request reached the firmware pool (%d calls)", fake.PoolAllocationCount())
	}
}

func TestAllocRejectsBadAlignment(t *testing.T) {
	_, _, allocator := newAllocator(t)

	for _, align := range []uint64{3, 6, 12, 100} {
		if _, err := allocator.Alloc(16, align); err == nil {
			t.Errorf("Alloc(16, %d) succeeded, want error", align)
		}
	}
}

func TestAllocOutOfResources(t *testing.T) {
	fake, _, allocator := newAllocator(t)
	fake.FailNext(firmware.OpAllocatePool, firmware.StatusOutOfResources)

	_, err := allocator.Alloc(16, 0)
	if !errors.Is(err, bootmem.ErrOutOfResources) {
		t.Fatalf("Alloc = %v, want ErrOutOfResources", err)
	}
	if !firmware.IsStatus(err, firmware.StatusOutOfResources) {
		t.Errorf("Alloc error does not wrap the firmware status: %v", err)
	}
}

func TestFreeAfterSealIssuesNoFirmwareCall(t *testing.T) {
	fake, registry, allocator := newAllocator(t)

	guard, err := allocator.Alloc(32, 0)
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}
	registry.Seal()

	if err := allocator.Free(guard); !errors.Is(err, resource.ErrAlreadyInvalidated) {
		t.Fatalf("Free after seal = %v, want ErrAlreadyInvalidated", err)
	}
	if fake.UnsafeFreeCount() != 0 {
		t.Errorf("UnsafeFreeCount = %d, want 0", fake.UnsafeFreeCount())
	}
	if fake.LivePoolAllocations() != 1 {
		t.Errorf("LivePoolAllocations = %d, want 1 (seal frees nothing)", fake.LivePoolAllocations())
	}
}

func TestAllocAfterSealFails(t *testing.T) {
	_, registry, allocator := newAllocator(t)
	registry.Seal()

	if _, err := allocator.Alloc(16, 0); !errors.Is(err, resource.ErrAlreadyInvalidated) {
		t.Fatalf("Alloc after seal = %v, want ErrAlreadyInvalidated", err)
	}
}
