// Copyright 2026 The Ignition Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/ignition-foundation/ignition/lib/bootlog"
	"github.com/ignition-foundation/ignition/lib/codec"
	"github.com/ignition-foundation/ignition/lib/transition"
	"github.com/ignition-foundation/ignition/lib/version"
)

func main() {
	os.Exit(run())
}

func run() int {
	asJSON := pflag.Bool("json", false, "print the decoded payload as JSON")
	asDiag := pflag.Bool("diag", false, "print the raw payload in CBOR diagnostic notation")
	showVersion := pflag.Bool("version", false, "print version and exit")
	pflag.Parse()

	if *showVersion {
		fmt.Printf("ignition-report %s\n", version.Info())
		return 0
	}

	if pflag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: ignition-report [flags] <report-file>")
		return 2
	}

	if err := inspect(pflag.Arg(0), *asJSON, *asDiag); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	return 0
}

func inspect(path string, asJSON, asDiag bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	payload, compression, err := bootlog.ReadRaw(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	if asDiag {
		notation, err := codec.Diagnose(payload)
		if err != nil {
			return fmt.Errorf("diagnosing payload: %w", err)
		}
		fmt.Println(notation)
		return nil
	}

	var report transition.Report
	if err := codec.Unmarshal(payload, &report); err != nil {
		return fmt.Errorf("decoding report: %w", err)
	}

	if asJSON {
		encoded, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(encoded))
		return nil
	}

	fmt.Printf("%s\n", path)
	fmt.Printf("  compression:    %s\n", compression)
	fmt.Printf("  payload bytes:  %d\n", len(payload))
	fmt.Printf("  attempts:       %d\n", report.Attempts)
	fmt.Printf("  map key:        %#x\n", report.MapKey)
	fmt.Printf("  descriptors:    %d\n", report.DescriptorCount)
	fmt.Printf("  swept guards:   %d\n", report.SweptGuards)
	fmt.Printf("  runtime sink:   %s\n", report.RuntimeSink)
	return nil
}
