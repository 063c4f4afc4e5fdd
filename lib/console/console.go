// Copyright 2026 The Ignition Authors
// SPDX-License-Identifier: Apache-2.0

// Package console provides phase-routed text output.
//
// During Boot phase, writes go to the firmware text protocol with the
// line-ending translation it requires. After the transition, writes
// route to whatever runtime sink was registered beforehand — or fail
// with ErrNoRuntimeSink if none was. Silent data loss is treated as
// worse than an explicit error, so silence must be opted into with
// Discard.
package console

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ignition-foundation/ignition/lib/firmware"
	"github.com/ignition-foundation/ignition/lib/phase"
	"github.com/ignition-foundation/ignition/lib/resource"
)

// ErrNoRuntimeSink is returned for writes after the transition when
// no runtime sink was registered. The write has no side effect.
var ErrNoRuntimeSink = errors.New("console: no runtime sink registered")

// WriteError wraps a firmware console failure. Writes are not retried
// automatically; transient console errors are rare and retry is the
// caller's call.
type WriteError struct {
	Cause error
}

// Error implements the error interface.
func (e *WriteError) Error() string {
	return fmt.Sprintf("console: write failed: %v", e.Cause)
}

// Unwrap returns the firmware error.
func (e *WriteError) Unwrap() error { return e.Cause }

// Sink accepts text output. Implementations must be usable after the
// transition (they are the runtime side of the console).
type Sink interface {
	WriteString(text string) error
}

// Console routes text to the firmware console while the guard behind
// it is valid, and to the registered runtime sink afterwards. The
// firmware console handle is registered like any other boot-backed
// resource, so the transition sweep invalidates it together with the
// allocations.
type Console struct {
	services firmware.Services
	guard    *resource.Guard[firmware.ProtocolHandle]
	runtime  Sink
}

// New locates the firmware text output protocol and wraps it in a
// registry-guarded console.
func New(services firmware.Services, registry *resource.Registry) (*Console, error) {
	handle, err := services.LocateProtocol(firmware.SimpleTextOutputGUID)
	if err != nil {
		return nil, fmt.Errorf("locating text output protocol: %w", err)
	}
	guard, err := resource.Add(registry, resource.KindConsole, handle)
	if err != nil {
		return nil, err
	}
	return &Console{services: services, guard: guard}, nil
}

// SetRuntimeSink registers the sink that receives writes after the
// transition. Register it before calling the transition coordinator;
// the coordinator wires it from its own configuration.
func (c *Console) SetRuntimeSink(sink Sink) { c.runtime = sink }

// WriteString writes text to whichever side of the transition is
// current. Boot-phase writes translate line endings for the firmware
// text protocol; runtime-phase writes pass text through unmodified.
func (c *Console) WriteString(text string) error {
	if _, err := c.guard.Use(); err != nil {
		if errors.Is(err, resource.ErrAlreadyInvalidated) || errors.Is(err, phase.ErrStaleToken) {
			if c.runtime == nil {
				return ErrNoRuntimeSink
			}
			return c.runtime.WriteString(text)
		}
		return err
	}

	if err := c.services.ConsoleWrite(translateLineEndings(text)); err != nil {
		return &WriteError{Cause: err}
	}
	return nil
}

// translateLineEndings converts bare LF to CRLF. The firmware text
// protocol moves the cursor down on LF and to column zero on CR, so a
// bare "\n" would produce stair-stepped output. Existing CRLF pairs
// pass through untouched.
func translateLineEndings(text string) string {
	if !strings.Contains(text, "\n") {
		return text
	}

	var builder strings.Builder
	builder.Grow(len(text) + strings.Count(text, "\n"))
	previous := byte(0)
	for i := 0; i < len(text); i++ {
		if text[i] == '\n' && previous != '\r' {
			builder.WriteByte('\r')
		}
		builder.WriteByte(text[i])
		previous = text[i]
	}
	return builder.String()
}
