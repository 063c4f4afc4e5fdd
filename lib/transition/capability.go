// Copyright 2026 The Ignition Authors
// SPDX-License-Identifier: Apache-2.0

package transition

import (
	"github.com/ignition-foundation/ignition/lib/bootmem"
	"github.com/ignition-foundation/ignition/lib/console"
	"github.com/ignition-foundation/ignition/lib/phase"
)

// Capability is what a successful transition hands back: the Runtime
// token, the runtime-safe facilities configured before the
// transition, and a report of what the protocol did.
type Capability struct {
	token   *phase.Token
	console *console.Console
	arena   *bootmem.Arena
	report  Report
}

// Token returns the Runtime-phase token.
func (c *Capability) Token() *phase.Token { return c.token }

// Console returns the post-transition text sink. If no console was
// configured, the returned sink fails every write with
// console.ErrNoRuntimeSink.
func (c *Capability) Console() console.Sink {
	if c.console == nil {
		return unavailableSink{}
	}
	return c.console
}

// Arena returns the runtime bridge arena reserved before the
// transition, or nil if none was configured.
func (c *Capability) Arena() *bootmem.Arena { return c.arena }

// Report returns the transition record.
func (c *Capability) Report() Report { return c.report }

type unavailableSink struct{}

func (unavailableSink) WriteString(string) error { return console.ErrNoRuntimeSink }

// Report records what a successful transition did. It is plain data,
// serializable with lib/codec for post-mortem inspection (see
// lib/bootlog for the framed file format).
type Report struct {
	// Attempts is the number of snapshot-and-exit attempts made,
	// counting the accepted one.
	Attempts int `cbor:"attempts" json:"attempts"`

	// MapKey is the accepted memory map key.
	MapKey uint64 `cbor:"map_key" json:"map_key"`

	// DescriptorCount is the size of the accepted snapshot.
	DescriptorCount int `cbor:"descriptor_count" json:"descriptor_count"`

	// SweptGuards is how many live guards the registry seal
	// invalidated.
	SweptGuards int `cbor:"swept_guards" json:"swept_guards"`

	// RuntimeSink names the post-transition console routing
	// ("memory", "writer", "discard", "none", "custom").
	RuntimeSink string `cbor:"runtime_sink" json:"runtime_sink"`
}
