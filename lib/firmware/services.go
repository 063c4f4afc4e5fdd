// Copyright 2026 The Ignition Authors
// SPDX-License-Identifier: Apache-2.0

package firmware

// Handle is an opaque firmware handle. The application image handle
// passed to ExitBootServices is a Handle.
type Handle uint64

// ProtocolHandle is an opaque handle to a located protocol interface.
type ProtocolHandle uint64

// Block is a firmware pool or page allocation as returned by the
// backend.
type Block struct {
	// Address is the physical address of the block.
	Address uint64

	// Size is the usable size in bytes.
	Size uint64

	// Data is a byte view of the block when the backend can expose
	// one. The fake firmware always does; an adapter over a real call
	// table maps Address instead and leaves Data nil. Zero-size
	// blocks have an empty, non-nil Data from backends that expose
	// views.
	Data []byte
}

// Services is the narrow interface over the firmware call surface.
// Every method can fail with a *Error. None of the lifecycle core
// depends on a concrete implementation.
//
// Every method is a boot service, the frees included: after a
// successful ExitBootServices none of them may be called again, and
// the lifecycle core exists to enforce exactly that.
type Services interface {
	// AllocatePool allocates size bytes from the firmware pool. The
	// pool guarantees 8-byte alignment. Zero-size allocations are
	// permitted and return a valid, non-dereferenceable block.
	AllocatePool(size uint64) (Block, error)

	// FreePool returns a pool block to the firmware. The block must
	// be exactly as returned by AllocatePool.
	FreePool(block Block) error

	// AllocatePages allocates count contiguous pages of loader data.
	// Loader data survives ExitBootServices.
	AllocatePages(count uint64) (Block, error)

	// FreePages returns a page allocation to the firmware.
	FreePages(block Block) error

	// MemoryMap returns a snapshot of the current memory map and its
	// single-use key.
	MemoryMap() (MemoryMap, error)

	// ExitBootServices requests the boot-to-runtime transition. The
	// key must be the one from a memory map snapshot taken after the
	// last allocation or free; otherwise the firmware rejects the
	// call with StatusInvalidParameter and the caller must snapshot
	// again. On success the transition is irreversible.
	ExitBootServices(image Handle, key MapKey) error

	// ConsoleWrite writes text to the firmware console. The text must
	// already use the text protocol's CRLF line endings.
	ConsoleWrite(text string) error

	// LocateProtocol returns a handle to the protocol identified by
	// guid, or StatusNotFound.
	LocateProtocol(guid GUID) (ProtocolHandle, error)
}
