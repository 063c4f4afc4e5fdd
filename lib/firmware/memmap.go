// Copyright 2026 The Ignition Authors
// SPDX-License-Identifier: Apache-2.0

package firmware

import "fmt"

// PageSize is the firmware page granularity in bytes.
const PageSize = 4096

// MemoryType classifies a memory map region. Values follow the EFI
// memory type table — changing them breaks adapters over real call
// tables.
type MemoryType uint32

const (
	ReservedMemory MemoryType = iota
	LoaderCode
	LoaderData
	BootServicesCode
	BootServicesData
	RuntimeServicesCode
	RuntimeServicesData
	ConventionalMemory
	UnusableMemory
	ACPIReclaimMemory
	ACPIMemoryNVS
	MemoryMappedIO
	MemoryMappedIOPortSpace
	PalCode
	PersistentMemory
)

// String returns the conventional short name for a memory type.
func (t MemoryType) String() string {
	names := [...]string{
		"reserved", "loader code", "loader data",
		"boot services code", "boot services data",
		"runtime services code", "runtime services data",
		"conventional", "unusable", "acpi reclaim", "acpi nvs",
		"mmio", "mmio port space", "pal code", "persistent",
	}
	if int(t) < len(names) {
		return names[t]
	}
	return fmt.Sprintf("memory type %d", uint32(t))
}

// SurvivesExit reports whether regions of this type remain usable
// after ExitBootServices. Loader and runtime-services regions survive;
// boot-services regions are reclaimed by the firmware handoff.
func (t MemoryType) SurvivesExit() bool {
	switch t {
	case LoaderCode, LoaderData, RuntimeServicesCode, RuntimeServicesData:
		return true
	}
	return false
}

// MapKey is the opaque single-use key issued with a memory map
// snapshot. It becomes stale the moment any firmware allocation or
// free occurs after the snapshot, and ExitBootServices rejects stale
// keys.
type MapKey uint64

// MemoryDescriptor describes one region of the memory map.
type MemoryDescriptor struct {
	Type          MemoryType
	PhysicalStart uint64
	VirtualStart  uint64
	PageCount     uint64
	Attribute     uint64
}

// MemoryMap is a point-in-time snapshot of the firmware memory map.
// The descriptor slice lives in ordinary Go memory, not firmware pool
// memory, so taking a snapshot does not itself invalidate Key.
type MemoryMap struct {
	// Key must match the firmware's current key when ExitBootServices
	// is called.
	Key MapKey

	// Descriptors is ordered by physical start address.
	Descriptors []MemoryDescriptor
}

// ConventionalPages returns the total page count of conventional
// (allocatable) memory in the snapshot.
func (m MemoryMap) ConventionalPages() uint64 {
	var pages uint64
	for _, descriptor := range m.Descriptors {
		if descriptor.Type == ConventionalMemory {
			pages += descriptor.PageCount
		}
	}
	return pages
}
