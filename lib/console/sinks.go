// Copyright 2026 The Ignition Authors
// SPDX-License-Identifier: Apache-2.0

package console

import (
	"io"
	"sync"
)

// MemorySink buffers runtime-phase output in memory, keeping the most
// recent limit bytes. It is the usual choice when the post-transition
// environment has nowhere better to send text yet.
type MemorySink struct {
	mu      sync.Mutex
	limit   int
	content []byte
}

// Memory returns a MemorySink that retains at most limit bytes,
// discarding the oldest output first.
func Memory(limit int) *MemorySink {
	return &MemorySink{limit: limit}
}

// WriteString implements Sink.
func (s *MemorySink) WriteString(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.content = append(s.content, text...)
	if len(s.content) > s.limit {
		s.content = s.content[len(s.content)-s.limit:]
	}
	return nil
}

// Contents returns the buffered output.
func (s *MemorySink) Contents() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return string(s.content)
}

// Writer adapts an io.Writer (a serial port, a file, a test buffer)
// into a Sink. Write failures surface as *WriteError.
func Writer(w io.Writer) Sink {
	return &writerSink{writer: w}
}

type writerSink struct {
	writer io.Writer
}

func (s *writerSink) WriteString(text string) error {
	if _, err := io.WriteString(s.writer, text); err != nil {
		return &WriteError{Cause: err}
	}
	return nil
}

// Discard returns a sink that accepts and drops all output. Using it
// is the explicit opt-in to post-transition silence.
func Discard() Sink { return discardSink{} }

type discardSink struct{}

func (discardSink) WriteString(string) error { return nil }

// Describe returns a short name for a sink, for reports and logs.
func Describe(sink Sink) string {
	switch sink.(type) {
	case nil:
		return "none"
	case *MemorySink:
		return "memory"
	case *writerSink:
		return "writer"
	case discardSink:
		return "discard"
	}
	return "custom"
}
