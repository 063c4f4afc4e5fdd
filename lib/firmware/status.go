// Copyright 2026 The Ignition Authors
// SPDX-License-Identifier: Apache-2.0

package firmware

import (
	"errors"
	"fmt"
)

// Status is a firmware status word. The high bit marks an error; the
// remaining bits carry the code. The named constants below are the
// codes the lifecycle core inspects — everything else passes through
// opaquely.
type Status uint64

// errorBit is the EFI error flag. Status words with this bit set are
// failures; words without it are success or warnings.
const errorBit Status = 1 << 63

// Status codes used by the core. Values follow the EFI status code
// table — changing them breaks adapters over real call tables.
const (
	StatusSuccess          Status = 0
	StatusLoadError        Status = errorBit | 1
	StatusInvalidParameter Status = errorBit | 2
	StatusUnsupported      Status = errorBit | 3
	StatusBadBufferSize    Status = errorBit | 4
	StatusBufferTooSmall   Status = errorBit | 5
	StatusNotReady         Status = errorBit | 6
	StatusDeviceError      Status = errorBit | 7
	StatusOutOfResources   Status = errorBit | 9
	StatusNotFound         Status = errorBit | 14
)

// IsError reports whether the status word has the error bit set.
func (s Status) IsError() bool { return s&errorBit != 0 }

// Code returns the status code with the error bit stripped.
func (s Status) Code() uint64 { return uint64(s &^ errorBit) }

// String returns the conventional name for known status words and a
// numeric form for everything else.
func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusLoadError:
		return "load error"
	case StatusInvalidParameter:
		return "invalid parameter"
	case StatusUnsupported:
		return "unsupported"
	case StatusBadBufferSize:
		return "bad buffer size"
	case StatusBufferTooSmall:
		return "buffer too small"
	case StatusNotReady:
		return "not ready"
	case StatusDeviceError:
		return "device error"
	case StatusOutOfResources:
		return "out of resources"
	case StatusNotFound:
		return "not found"
	}
	if s.IsError() {
		return fmt.Sprintf("error %d", s.Code())
	}
	return fmt.Sprintf("status %d", s.Code())
}

// Error is the failure returned by every Services method: the
// operation that failed plus the raw status word. The core treats the
// status as an opaque passthrough except where the transition protocol
// documents otherwise (a stale memory map key surfaces as
// StatusInvalidParameter from ExitBootServices).
type Error struct {
	// Op is the Services method that failed ("AllocatePool",
	// "ExitBootServices", ...).
	Op string

	// Status is the firmware status word.
	Status Status
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("firmware: %s: %s", e.Op, e.Status)
}

// NewError returns a firmware error for the given operation and
// status. Adapters use this to translate raw status words.
func NewError(op string, status Status) *Error {
	return &Error{Op: op, Status: status}
}

// IsStatus reports whether err is (or wraps) a firmware error with the
// given status word.
func IsStatus(err error, status Status) bool {
	var firmwareError *Error
	return errors.As(err, &firmwareError) && firmwareError.Status == status
}
