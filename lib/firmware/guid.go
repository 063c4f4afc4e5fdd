// Copyright 2026 The Ignition Authors
// SPDX-License-Identifier: Apache-2.0

package firmware

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// GUID identifies a firmware protocol. The first three fields are
// little-endian on the wire (EFI convention), which is why this is not
// an RFC 4122 UUID: a UUID library would serialize the same 16 bytes
// in a different order.
type GUID struct {
	Data1 uint32
	Data2 uint16
	Data3 uint16
	Data4 [8]byte
}

// SimpleTextOutputGUID identifies the firmware text output protocol.
var SimpleTextOutputGUID = GUID{
	0x387477c2, 0x69c7, 0x11d2,
	[8]byte{0x8e, 0x39, 0x00, 0xa0, 0xc9, 0x69, 0x72, 0x3b},
}

// String formats the GUID in the canonical 8-4-4-4-12 registry form,
// for example "387477c2-69c7-11d2-8e39-00a0c969723b".
func (g GUID) String() string {
	return fmt.Sprintf("%08x-%04x-%04x-%02x%02x-%s",
		g.Data1, g.Data2, g.Data3,
		g.Data4[0], g.Data4[1],
		hex.EncodeToString(g.Data4[2:]))
}

// ParseGUID parses the canonical 8-4-4-4-12 registry form.
func ParseGUID(s string) (GUID, error) {
	parts := strings.Split(s, "-")
	if len(parts) != 5 ||
		len(parts[0]) != 8 || len(parts[1]) != 4 || len(parts[2]) != 4 ||
		len(parts[3]) != 4 || len(parts[4]) != 12 {
		return GUID{}, fmt.Errorf("malformed GUID %q", s)
	}

	data1, err := strconv.ParseUint(parts[0], 16, 32)
	if err != nil {
		return GUID{}, fmt.Errorf("malformed GUID %q: %w", s, err)
	}
	data2, err := strconv.ParseUint(parts[1], 16, 16)
	if err != nil {
		return GUID{}, fmt.Errorf("malformed GUID %q: %w", s, err)
	}
	data3, err := strconv.ParseUint(parts[2], 16, 16)
	if err != nil {
		return GUID{}, fmt.Errorf("malformed GUID %q: %w", s, err)
	}
	tail, err := hex.DecodeString(parts[3] + parts[4])
	if err != nil {
		return GUID{}, fmt.Errorf("malformed GUID %q: %w", s, err)
	}

	guid := GUID{Data1: uint32(data1), Data2: uint16(data2), Data3: uint16(data3)}
	copy(guid.Data4[:], tail)
	return guid, nil
}
