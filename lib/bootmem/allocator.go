// Copyright 2026 The Ignition Authors
// SPDX-License-Identifier: Apache-2.0

// Package bootmem provides the Boot-phase pool allocator and the
// runtime bridge arena.
//
// The allocator hands out registry-guarded pool blocks that become
// permanently unusable the instant the transition coordinator seals
// the registry. The arena is the opposite: page-backed loader-data
// memory reserved during Boot that deliberately survives
// ExitBootServices, providing the minimal allocation primitive needed
// on the far side of the transition.
package bootmem

import (
	"errors"
	"fmt"
	"math"
	"math/bits"

	"github.com/ignition-foundation/ignition/lib/firmware"
	"github.com/ignition-foundation/ignition/lib/resource"
)

// PoolAlignment is the alignment the firmware pool guarantees.
const PoolAlignment = 8

// ErrOutOfResources is returned when the firmware pool cannot satisfy
// an allocation. It wraps the underlying firmware error.
var ErrOutOfResources = errors.New("bootmem: out of resources")

// Block is a guarded pool allocation. When the requested alignment
// exceeds the pool granularity the usable region is an interior,
// aligned view of a larger underlying allocation; the full allocation
// stays tracked so Free returns exactly what the firmware issued.
type Block struct {
	full     firmware.Block
	address  uint64
	size     uint64
	data     []byte
	zeroSize bool
}

// Address returns the aligned start address of the usable region.
func (b Block) Address() uint64 { return b.address }

// Size returns the usable size in bytes. Zero for zero-size blocks,
// which are valid but non-dereferenceable.
func (b Block) Size() uint64 { return b.size }

// Bytes returns the usable byte view when the backend exposes one.
func (b Block) Bytes() []byte { return b.data }

// Allocator allocates guarded blocks from the firmware pool. All
// blocks it issues are registered, so the transition coordinator can
// invalidate them in one sweep.
type Allocator struct {
	services firmware.Services
	registry *resource.Registry
}

// NewAllocator returns an allocator issuing guards into registry.
func NewAllocator(services firmware.Services, registry *resource.Registry) *Allocator {
	return &Allocator{services: services, registry: registry}
}

// Alloc allocates size bytes aligned to align (a power of two; zero
// means the pool granularity). Zero-size requests succeed with a
// valid, non-dereferenceable block whose free is a no-op — firmware
// pool semantics permit them. Alignment beyond the pool granularity
// is satisfied by over-allocating and returning an interior view.
func (a *Allocator) Alloc(size, align uint64) (*resource.Guard[Block], error) {
	if align == 0 {
		align = PoolAlignment
	}
	if bits.OnesCount64(align) != 1 {
		return nil, fmt.Errorf("bootmem: alignment %d is not a power of two", align)
	}

	if size == 0 {
		return resource.Add(a.registry, resource.KindAllocation, Block{zeroSize: true})
	}

	request := size
	if align > PoolAlignment {
		if size > math.MaxUint64-(align-1) {
			return nil, fmt.Errorf("allocating %d bytes: %w", size, ErrOutOfResources)
		}
		request = size + align - 1
	}

	full, err := a.services.AllocatePool(request)
	if err != nil {
		if firmware.IsStatus(err, firmware.StatusOutOfResources) {
			return nil, fmt.Errorf("allocating %d bytes: %w: %w", size, ErrOutOfResources, err)
		}
		return nil, fmt.Errorf("allocating %d bytes: %w", size, err)
	}

	offset := (align - full.Address%align) % align
	block := Block{
		full:    full,
		address: full.Address + offset,
		size:    size,
	}
	if full.Data != nil {
		block.data = full.Data[offset : offset+size]
	}

	guard, err := resource.Add(a.registry, resource.KindAllocation, block)
	if err != nil {
		// The registry sealed between the pool call and
		// registration. Single-threaded callers never see this; do
		// not free, the block was allocated pre-seal and freeing
		// now would race the transition.
		return nil, err
	}
	return guard, nil
}

// Free releases the block behind guard back to the firmware pool.
// Freeing an invalidated guard fails with
// resource.ErrAlreadyInvalidated without issuing a firmware call;
// freeing a zero-size block is a no-op beyond marking the guard
// released.
func (a *Allocator) Free(guard *resource.Guard[Block]) error {
	return guard.Release(func(block Block) error {
		if block.zeroSize {
			return nil
		}
		if err := a.services.FreePool(block.full); err != nil {
			return fmt.Errorf("freeing block at %#x: %w", block.address, err)
		}
		return nil
	})
}
