// Copyright 2026 The Ignition Authors
// SPDX-License-Identifier: Apache-2.0

package bootmem

import (
	"errors"
	"fmt"
	"math/bits"
	"sync"

	"github.com/ignition-foundation/ignition/lib/firmware"
)

// ErrArenaExhausted is returned when the arena has no room left for a
// request.
var ErrArenaExhausted = errors.New("bootmem: arena exhausted")

// Arena is a bump allocator over loader-data pages reserved during
// Boot phase. Loader data survives ExitBootServices, so the arena is
// deliberately not registered for invalidation: it is the one
// allocation primitive that remains safe in Runtime phase. It is
// never returned to the firmware after the transition.
type Arena struct {
	mu     sync.Mutex
	base   uint64
	memory []byte
	offset uint64
}

// ReserveArena allocates pages of loader data for use across the
// transition. Call it during Boot phase; the firmware rejects it
// afterwards.
func ReserveArena(services firmware.Services, pages uint64) (*Arena, error) {
	block, err := services.AllocatePages(pages)
	if err != nil {
		return nil, fmt.Errorf("reserving %d arena pages: %w", pages, err)
	}
	return &Arena{base: block.Address, memory: block.Data}, nil
}

// Alloc returns an aligned slice of size bytes from the arena, valid
// in either phase. align zero means the pool granularity.
func (a *Arena) Alloc(size, align uint64) ([]byte, error) {
	if align == 0 {
		align = PoolAlignment
	}
	if bits.OnesCount64(align) != 1 {
		return nil, fmt.Errorf("bootmem: alignment %d is not a power of two", align)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	start := a.offset
	if misalignment := (a.base + start) % align; misalignment != 0 {
		start += align - misalignment
	}
	if start+size > uint64(len(a.memory)) || start+size < start {
		return nil, fmt.Errorf("%w: %d bytes requested, %d remaining",
			ErrArenaExhausted, size, uint64(len(a.memory))-a.offset)
	}

	a.offset = start + size
	return a.memory[start : start+size : start+size], nil
}

// Remaining returns the bytes left before exhaustion, ignoring
// alignment padding future requests may need.
func (a *Arena) Remaining() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return uint64(len(a.memory)) - a.offset
}

// Size returns the total arena capacity in bytes.
func (a *Arena) Size() uint64 { return uint64(len(a.memory)) }
