// Copyright 2026 The Ignition Authors
// SPDX-License-Identifier: Apache-2.0

package console_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/ignition-foundation/ignition/lib/console"
	"github.com/ignition-foundation/ignition/lib/firmware"
	"github.com/ignition-foundation/ignition/lib/phase"
	"github.com/ignition-foundation/ignition/lib/resource"
)

func newConsole(t *testing.T) (*firmware.FakeFirmware, *resource.Registry, *console.Console) {
	t.Helper()
	fake := firmware.Fake()
	registry, err := resource.NewRegistry(phase.NewBootToken())
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	c, err := console.New(fake, registry)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return fake, registry, c
}

func TestBootWriteTranslatesLineEndings(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"no newline", "hello", "hello"},
		{"bare lf", "hello\n", "hello\r\n"},
		{"interior lf", "a\nb\nc", "a\r\nb\r\nc"},
		{"existing crlf untouched", "done\r\n", "done\r\n"},
		{"mixed", "a\r\nb\n", "a\r\nb\r\n"},
		{"leading lf", "\nx", "\r\nx"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			fake, _, c := newConsole(t)
			if err := c.WriteString(test.in); err != nil {
				t.Fatalf("WriteString: %v", err)
			}
			if got := fake.ConsoleOutput(); got != test.want {
				t.Errorf("ConsoleOutput = %q, want %q", got, test.want)
			}
		})
	}
}

func TestBootWriteFailureIsNotRetried(t *testing.T) {
	fake, _, c := newConsole(t)
	fake.FailNext(firmware.OpConsoleWrite, firmware.StatusDeviceError)

	err := c.WriteString("hello")
	var writeErr *console.WriteError
	if !errors.As(err, &writeErr) {
		t.Fatalf("WriteString = %v, want *WriteError", err)
	}
	if !firmware.IsStatus(err, firmware.StatusDeviceError) {
		t.Errorf("WriteError does not wrap the firmware status: %v", err)
	}
	if fake.ConsoleOutput() != "" {
		t.Errorf("output written despite failure: %q", fake.ConsoleOutput())
	}
}

func TestPostSealWriteWithoutSinkFailsLoud(t *testing.T) {
	fake, registry, c := newConsole(t)
	registry.Seal()

	if err := c.WriteString("lost?"); !errors.Is(err, console.ErrNoRuntimeSink) {
		t.Fatalf("WriteString after seal = %v, want ErrNoRuntimeSink", err)
	}
	if fake.ConsoleOutput() != "" {
		t.Errorf("firmware console touched after seal: %q", fake.ConsoleOutput())
	}
}

func TestPostSealWriteRoutesToRuntimeSink(t *testing.T) {
	fake, registry, c := newConsole(t)
	sink := console.Memory(1024)
	c.SetRuntimeSink(sink)
	registry.Seal()

	if err := c.WriteString("runtime line\n"); err != nil {
		t.Fatalf("WriteString: %v", err)
	}
	// Runtime sinks get the text verbatim, no CRLF translation.
	if got := sink.Contents(); got != "runtime line\n" {
		t.Errorf("Contents = %q, want %q", got, "runtime line\n")
	}
	if fake.ConsoleOutput() != "" {
		t.Errorf("firmware console touched after seal: %q", fake.ConsoleOutput())
	}
}

func TestMemorySinkKeepsMostRecent(t *testing.T) {
	sink := console.Memory(8)
	for _, chunk := range []string{"aaaa", "bbbb", "cccc"} {
		if err := sink.WriteString(chunk); err != nil {
			t.Fatalf("WriteString: %v", err)
		}
	}
	if got := sink.Contents(); got != "bbbbcccc" {
		t.Errorf("Contents = %q, want %q", got, "bbbbcccc")
	}
}

func TestWriterSink(t *testing.T) {
	var buffer strings.Builder
	sink := console.Writer(&buffer)
	if err := sink.WriteString("to writer"); err != nil {
		t.Fatalf("WriteString: %v", err)
	}
	if buffer.String() != "to writer" {
		t.Errorf("buffer = %q, want %q", buffer.String(), "to writer")
	}
}

func TestDescribe(t *testing.T) {
	tests := []struct {
		sink console.Sink
		want string
	}{
		{nil, "none"},
		{console.Memory(16), "memory"},
		{console.Writer(&strings.Builder{}), "writer"},
		{console.Discard(), "discard"},
	}
	for _, test := range tests {
		if got := console.Describe(test.sink); got != test.want {
			t.Errorf("Describe(%T) = %q, want %q", test.sink, got, test.want)
		}
	}
}

func TestNewFailsWithoutProtocol(t *testing.T) {
	fake := firmware.Fake()
	registry, err := resource.NewRegistry(phase.NewBootToken())
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	snapshot, err := fake.MemoryMap()
	if err != nil {
		t.Fatalf("MemoryMap: %v", err)
	}
	if err := fake.ExitBootServices(firmware.Handle(1), snapshot.Key); err != nil {
		t.Fatalf("ExitBootServices: %v", err)
	}

	if _, err := console.New(fake, registry); !firmware.IsStatus(err, firmware.StatusUnsupported) {
		t.Fatalf("New after exit = %v, want EFI_UNSUPPORTED", err)
	}
}
