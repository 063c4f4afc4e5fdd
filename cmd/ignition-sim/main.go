// Copyright 2026 The Ignition Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/pflag"

	"github.com/ignition-foundation/ignition/lib/bootlog"
	"github.com/ignition-foundation/ignition/lib/bootmem"
	"github.com/ignition-foundation/ignition/lib/config"
	"github.com/ignition-foundation/ignition/lib/console"
	"github.com/ignition-foundation/ignition/lib/firmware"
	"github.com/ignition-foundation/ignition/lib/phase"
	"github.com/ignition-foundation/ignition/lib/resource"
	"github.com/ignition-foundation/ignition/lib/transition"
	"github.com/ignition-foundation/ignition/lib/version"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := pflag.String("config", "", "path to ignition.yaml (default: IGNITION_CONFIG, else built-in defaults)")
	retryCap := pflag.Int("retry-cap", -1, "override transition.map_key_retries (-1 keeps the config value)")
	disturb := pflag.Int("disturb", 0, "stale the map key after this many snapshots")
	reportPath := pflag.String("report", "", "override report.path")
	fallback := pflag.String("fallback", "", "override console.fallback (none, memory, discard)")
	verbose := pflag.Bool("verbose", false, "enable debug logging")
	showVersion := pflag.Bool("version", false, "print version and exit")
	pflag.Parse()

	if *showVersion {
		fmt.Printf("ignition-sim %s\n", version.Info())
		return 0
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	configuration, err := loadConfiguration(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 2
	}
	if *retryCap >= 0 {
		configuration.Transition.MapKeyRetries = *retryCap
	}
	if *reportPath != "" {
		configuration.Report.Path = *reportPath
	}
	if *fallback != "" {
		configuration.Console.Fallback = *fallback
	}
	if err := configuration.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "error: invalid configuration: %v\n", err)
		return 2
	}

	if err := simulate(logger, configuration, *disturb); err != nil {
		logger.Error("simulation failed", "error", err)
		return 1
	}
	return 0
}

func loadConfiguration(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

// simulate runs one full lifecycle: allocate, print, transition,
// verify the post-transition world.
func simulate(logger *slog.Logger, configuration *config.Config, disturb int) error {
	fake := firmware.Fake()
	fake.Disturb(disturb)

	token := phase.NewBootToken()
	registry, err := resource.NewRegistry(token)
	if err != nil {
		return err
	}

	// The classic shakedown: three pool blocks, release the middle
	// one, let the transition sweep the rest.
	allocator := bootmem.NewAllocator(fake, registry)
	var guards []*resource.Guard[bootmem.Block]
	for _, size := range []uint64{16, 256, 4096} {
		guard, err := allocator.Alloc(size, 0)
		if err != nil {
			return fmt.Errorf("allocating %d bytes: %w", size, err)
		}
		guards = append(guards, guard)
	}
	if err := allocator.Free(guards[1]); err != nil {
		return fmt.Errorf("freeing middle block: %w", err)
	}

	arena, err := bootmem.ReserveArena(fake, 4)
	if err != nil {
		return err
	}

	bootConsole, err := console.New(fake, registry)
	if err != nil {
		return err
	}
	if err := bootConsole.WriteString("ignition: boot phase\n"); err != nil {
		return err
	}

	var runtimeSink console.Sink
	switch configuration.Console.Fallback {
	case "memory":
		runtimeSink = console.Memory(configuration.Console.MemoryLimit)
	case "discard":
		runtimeSink = console.Discard()
	}

	policy := transition.Policy{MapKeyRetries: configuration.Transition.MapKeyRetries}
	coordinator, err := transition.NewCoordinator(transition.Config{
		Services:    fake,
		Registry:    registry,
		Console:     bootConsole,
		RuntimeSink: runtimeSink,
		Arena:       arena,
		Policy:      &policy,
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	capability, err := coordinator.EnterRuntime(token, firmware.Handle(1))
	if err != nil {
		return fmt.Errorf("entering runtime: %w", err)
	}

	// Boot-backed resources must now be unreachable.
	if _, err := guards[0].Use(); !errors.Is(err, resource.ErrAlreadyInvalidated) {
		return fmt.Errorf("swept guard still reachable: %v", err)
	}

	writeErr := capability.Console().WriteString("ignition: runtime phase\n")
	switch {
	case writeErr == nil:
	case errors.Is(writeErr, console.ErrNoRuntimeSink):
		logger.Info("runtime console write failed loud, as configured")
	default:
		return writeErr
	}

	// The arena is the one allocation primitive that still works.
	if _, err := capability.Arena().Alloc(128, 16); err != nil {
		return fmt.Errorf("arena allocation after transition: %w", err)
	}

	report := capability.Report()
	fmt.Printf("transition complete\n")
	fmt.Printf("  attempts:       %d\n", report.Attempts)
	fmt.Printf("  map key:        %#x\n", report.MapKey)
	fmt.Printf("  descriptors:    %d\n", report.DescriptorCount)
	fmt.Printf("  swept guards:   %d\n", report.SweptGuards)
	fmt.Printf("  runtime sink:   %s\n", report.RuntimeSink)
	fmt.Printf("  unsafe frees:   %d\n", fake.UnsafeFreeCount())
	if sink, ok := runtimeSink.(*console.MemorySink); ok {
		fmt.Printf("  runtime output: %q\n", sink.Contents())
	}

	if configuration.Report.Path != "" {
		if err := writeReport(configuration, report); err != nil {
			return err
		}
		logger.Info("report written", "path", configuration.Report.Path)
	}
	return nil
}

func writeReport(configuration *config.Config, report transition.Report) error {
	compression, err := bootlog.ParseCompression(configuration.Report.Compression)
	if err != nil {
		return err
	}
	file, err := os.Create(configuration.Report.Path)
	if err != nil {
		return fmt.Errorf("creating report file: %w", err)
	}
	if err := bootlog.Write(file, report, compression); err != nil {
		file.Close()
		return fmt.Errorf("writing report: %w", err)
	}
	return file.Close()
}
