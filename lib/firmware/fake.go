// Copyright 2026 The Ignition Authors
// SPDX-License-Identifier: Apache-2.0

package firmware

import (
	"encoding/binary"
	"sort"
	"strings"
	"sync"

	"github.com/zeebo/blake3"
)

// Op names a Services method for failure scripting.
type Op string

// Operation names accepted by FailNext.
const (
	OpAllocatePool     Op = "AllocatePool"
	OpFreePool         Op = "FreePool"
	OpAllocatePages    Op = "AllocatePages"
	OpFreePages        Op = "FreePages"
	OpMemoryMap        Op = "MemoryMap"
	OpExitBootServices Op = "ExitBootServices"
	OpConsoleWrite     Op = "ConsoleWrite"
	OpLocateProtocol   Op = "LocateProtocol"
)

// mapKeyDomainKey is the 32-byte key for BLAKE3 keyed map key
// derivation. The byte values are the ASCII encoding of the domain
// name, zero-padded to 32 bytes, so the key is inspectable in hex
// dumps without sacrificing any property of the keyed mode.
var mapKeyDomainKey = [32]byte{
	'i', 'g', 'n', 'i', 't', 'i', 'o', 'n', '.', 'f', 'i', 'r', 'm', 'w', 'a', 'r',
	'e', '.', 'm', 'a', 'p', 'k', 'e', 'y', 0, 0, 0, 0, 0, 0, 0, 0,
}

// maxFakeAllocation bounds a single fake allocation. Requests beyond
// it fail with StatusOutOfResources like a real pool under pressure,
// never with a Go runtime panic, so hostile sizes stay inside the
// error contract of Services.
const maxFakeAllocation = 1 << 30

// Fake returns a deterministic in-memory firmware for tests and the
// simulator. It honors the contract documented on Services: the map
// key is a pure function of allocation history, every allocation or
// free stales the outstanding key, and no boot service works after a
// successful ExitBootServices.
//
// FakeFirmware is safe for concurrent use by multiple goroutines.
func Fake() *FakeFirmware {
	fake := &FakeFirmware{
		nextAddress: 0x40000000,
		pool:        make(map[uint64]Block),
		pages:       make(map[uint64]Block),
		scripted:    make(map[Op][]Status),
		protocols:   make(map[GUID]ProtocolHandle),
	}
	fake.protocols[SimpleTextOutputGUID] = ProtocolHandle(1)
	return fake
}

// FakeFirmware implements Services in memory. Beyond the interface it
// exposes inspection hooks (console transcript, live allocation and
// unsafe free counters) and fault injection (scripted per-operation
// failures, map key disturbance).
type FakeFirmware struct {
	mu sync.Mutex

	// epoch counts allocation-state changes. The map key is a keyed
	// BLAKE3 digest of the epoch, so any allocation or free yields a
	// fresh, unpredictable key.
	epoch       uint64
	nextAddress uint64

	pool  map[uint64]Block
	pages map[uint64]Block

	exited  bool
	console strings.Builder

	// disturbRemaining makes that many future MemoryMap calls return
	// an already-stale key, simulating an external actor allocating
	// right after the snapshot.
	disturbRemaining int

	scripted  map[Op][]Status
	protocols map[GUID]ProtocolHandle

	poolAllocations int
	unsafeFrees     int
}

var _ Services = (*FakeFirmware)(nil)

// AllocatePool implements Services.
func (f *FakeFirmware) AllocatePool(size uint64) (Block, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.gateLocked(OpAllocatePool); err != nil {
		return Block{}, err
	}
	if size > maxFakeAllocation {
		return Block{}, NewError(string(OpAllocatePool), StatusOutOfResources)
	}

	block := Block{
		Address: f.nextAddress,
		Size:    size,
		Data:    make([]byte, size),
	}
	// Advance past the block plus a gap so released addresses are
	// never reissued; stale guards must not alias fresh blocks.
	f.nextAddress += (size + 15) &^ 7
	f.pool[block.Address] = block
	f.epoch++
	f.poolAllocations++
	return block, nil
}

// FreePool implements Services. Freeing an address the pool does not
// consider live (double free, or a block from a previous phase)
// counts as an unsafe free and fails with StatusInvalidParameter.
func (f *FakeFirmware) FreePool(block Block) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.exited {
		// Real firmware behavior here is undefined. Count it so
		// tests can assert the core never reaches this path.
		f.unsafeFrees++
		return NewError(string(OpFreePool), StatusUnsupported)
	}
	if err := f.gateLocked(OpFreePool); err != nil {
		return err
	}
	if _, live := f.pool[block.Address]; !live {
		f.unsafeFrees++
		return NewError(string(OpFreePool), StatusInvalidParameter)
	}
	delete(f.pool, block.Address)
	f.epoch++
	return nil
}

// AllocatePages implements Services.
func (f *FakeFirmware) AllocatePages(count uint64) (Block, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.gateLocked(OpAllocatePages); err != nil {
		return Block{}, err
	}
	if count == 0 {
		return Block{}, NewError(string(OpAllocatePages), StatusInvalidParameter)
	}
	if count > maxFakeAllocation/PageSize {
		return Block{}, NewError(string(OpAllocatePages), StatusOutOfResources)
	}

	size := count * PageSize
	block := Block{
		Address: f.nextAddress,
		Size:    size,
		Data:    make([]byte, size),
	}
	f.nextAddress += size + PageSize
	f.pages[block.Address] = block
	f.epoch++
	return block, nil
}

// FreePages implements Services.
func (f *FakeFirmware) FreePages(block Block) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.exited {
		f.unsafeFrees++
		return NewError(string(OpFreePages), StatusUnsupported)
	}
	if err := f.gateLocked(OpFreePages); err != nil {
		return err
	}
	if _, live := f.pages[block.Address]; !live {
		f.unsafeFrees++
		return NewError(string(OpFreePages), StatusInvalidParameter)
	}
	delete(f.pages, block.Address)
	f.epoch++
	return nil
}

// MemoryMap implements Services. The snapshot contains a synthetic
// conventional region, a boot-services region, and one loader-data
// descriptor per live allocation, ordered by physical start.
func (f *FakeFirmware) MemoryMap() (MemoryMap, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.gateLocked(OpMemoryMap); err != nil {
		return MemoryMap{}, err
	}

	descriptors := []MemoryDescriptor{
		{Type: ConventionalMemory, PhysicalStart: 0x100000, PageCount: 0x8000},
		{Type: BootServicesCode, PhysicalStart: 0x20000000, PageCount: 0x400},
	}
	for _, allocations := range []map[uint64]Block{f.pool, f.pages} {
		for address, block := range allocations {
			pageCount := (block.Size + PageSize - 1) / PageSize
			if pageCount == 0 {
				pageCount = 1
			}
			descriptors = append(descriptors, MemoryDescriptor{
				Type:          LoaderData,
				PhysicalStart: address,
				PageCount:     pageCount,
			})
		}
	}
	sort.Slice(descriptors, func(i, j int) bool {
		return descriptors[i].PhysicalStart < descriptors[j].PhysicalStart
	})

	snapshot := MemoryMap{Key: f.mapKeyLocked(), Descriptors: descriptors}

	if f.disturbRemaining > 0 {
		f.disturbRemaining--
		f.epoch++
	}
	return snapshot, nil
}

// ExitBootServices implements Services. A key that does not match the
// current allocation state is rejected with StatusInvalidParameter.
func (f *FakeFirmware) ExitBootServices(image Handle, key MapKey) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.gateLocked(OpExitBootServices); err != nil {
		return err
	}
	if key != f.mapKeyLocked() {
		return NewError(string(OpExitBootServices), StatusInvalidParameter)
	}
	f.exited = true
	return nil
}

// ConsoleWrite implements Services.
func (f *FakeFirmware) ConsoleWrite(text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.gateLocked(OpConsoleWrite); err != nil {
		return err
	}
	f.console.WriteString(text)
	return nil
}

// LocateProtocol implements Services. Fake preregisters the simple
// text output protocol; tests add others with RegisterProtocol.
func (f *FakeFirmware) LocateProtocol(guid GUID) (ProtocolHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.gateLocked(OpLocateProtocol); err != nil {
		return 0, err
	}
	handle, found := f.protocols[guid]
	if !found {
		return 0, NewError(string(OpLocateProtocol), StatusNotFound)
	}
	return handle, nil
}

// gateLocked applies the exited flag and any scripted failure for op.
// Must be called with f.mu held.
func (f *FakeFirmware) gateLocked(op Op) error {
	if f.exited {
		return NewError(string(op), StatusUnsupported)
	}
	if queue := f.scripted[op]; len(queue) > 0 {
		status := queue[0]
		f.scripted[op] = queue[1:]
		return NewError(string(op), status)
	}
	return nil
}

// mapKeyLocked derives the current map key from the allocation epoch.
// Must be called with f.mu held.
func (f *FakeFirmware) mapKeyLocked() MapKey {
	hasher, err := blake3.NewKeyed(mapKeyDomainKey[:])
	if err != nil {
		panic("firmware: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	var epochBytes [8]byte
	binary.LittleEndian.PutUint64(epochBytes[:], f.epoch)
	hasher.Write(epochBytes[:])
	return MapKey(binary.LittleEndian.Uint64(hasher.Sum(nil)[:8]))
}

// FailNext scripts the next call to op to fail with the given status.
// Repeated calls queue failures in order.
func (f *FakeFirmware) FailNext(op Op, status Status) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scripted[op] = append(f.scripted[op], status)
}

// Disturb makes the next n MemoryMap snapshots return an
// already-stale key, as if an external actor allocated immediately
// after each snapshot was taken.
func (f *FakeFirmware) Disturb(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disturbRemaining = n
}

// RegisterProtocol installs a protocol handle for LocateProtocol.
func (f *FakeFirmware) RegisterProtocol(guid GUID, handle ProtocolHandle) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.protocols[guid] = handle
}

// ConsoleOutput returns everything written to the firmware console.
func (f *FakeFirmware) ConsoleOutput() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.console.String()
}

// Exited reports whether ExitBootServices succeeded.
func (f *FakeFirmware) Exited() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.exited
}

// LivePoolAllocations returns the number of pool blocks currently
// live.
func (f *FakeFirmware) LivePoolAllocations() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pool)
}

// PoolAllocationCount returns the total number of successful
// AllocatePool calls. Tests use it to assert that the transition
// protocol performs no pool allocation between retry attempts.
func (f *FakeFirmware) PoolAllocationCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.poolAllocations
}

// UnsafeFreeCount returns the number of frees the firmware saw that
// were invalid: double frees, frees of unknown blocks, or frees
// issued after ExitBootServices. The lifecycle core exists to keep
// this at zero.
func (f *FakeFirmware) UnsafeFreeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.unsafeFrees
}

// CurrentMapKey returns the key a snapshot taken now would carry.
func (f *FakeFirmware) CurrentMapKey() MapKey {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.mapKeyLocked()
}
