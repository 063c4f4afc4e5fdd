// Copyright 2026 The Ignition Authors
// SPDX-License-Identifier: Apache-2.0

package transition

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/ignition-foundation/ignition/lib/bootmem"
	"github.com/ignition-foundation/ignition/lib/console"
	"github.com/ignition-foundation/ignition/lib/firmware"
	"github.com/ignition-foundation/ignition/lib/phase"
	"github.com/ignition-foundation/ignition/lib/resource"
)

// DefaultMapKeyRetries is the retry cap applied when no policy is
// configured. There is no universally correct value; two extra
// attempts tolerate a pair of interleaved allocations without
// risking livelock.
const DefaultMapKeyRetries = 2

// Policy holds the tunable parts of the transition protocol.
type Policy struct {
	// MapKeyRetries is how many additional snapshot-and-exit
	// attempts follow a stale-key rejection. Zero means a single
	// attempt with no retry.
	MapKeyRetries int
}

// DefaultPolicy returns the policy used when Config.Policy is nil.
func DefaultPolicy() Policy {
	return Policy{MapKeyRetries: DefaultMapKeyRetries}
}

// Config assembles a Coordinator. Services and Registry are
// required; everything else is optional.
type Config struct {
	// Services is the firmware facade.
	Services firmware.Services

	// Registry tracks every outstanding boot-backed guard; the
	// coordinator seals it on success.
	Registry *resource.Registry

	// Console, if set, is wired with RuntimeSink before any attempt
	// and handed to the capability. Diagnostic writes to it during
	// the transition are best effort and never affect the outcome.
	Console *console.Console

	// RuntimeSink receives console output after the transition. Nil
	// means post-transition writes fail with
	// console.ErrNoRuntimeSink (fail-loud; register
	// console.Discard() to choose silence).
	RuntimeSink console.Sink

	// Arena, if set, is the pre-reserved runtime bridge arena to
	// carry in the capability.
	Arena *bootmem.Arena

	// Policy, nil for DefaultPolicy.
	Policy *Policy

	// Logger, nil for silent operation. Used only for diagnostics.
	Logger *slog.Logger
}

// Coordinator performs the boot-to-runtime transition exactly once.
type Coordinator struct {
	services firmware.Services
	registry *resource.Registry
	console  *console.Console
	runtime  console.Sink
	arena    *bootmem.Arena
	policy   Policy
	logger   *slog.Logger
}

// NewCoordinator validates cfg and returns a coordinator. The runtime
// sink is wired into the console here, before any transition attempt,
// so the success path mutates nothing but the registry seal and the
// token.
func NewCoordinator(cfg Config) (*Coordinator, error) {
	if cfg.Services == nil {
		return nil, fmt.Errorf("transition: Services is required")
	}
	if cfg.Registry == nil {
		return nil, fmt.Errorf("transition: Registry is required")
	}
	if cfg.Policy != nil && cfg.Policy.MapKeyRetries < 0 {
		return nil, fmt.Errorf("transition: MapKeyRetries must not be negative, got %d", cfg.Policy.MapKeyRetries)
	}

	policy := DefaultPolicy()
	if cfg.Policy != nil {
		policy = *cfg.Policy
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.Level(127)}))
	}
	if cfg.Console != nil && cfg.RuntimeSink != nil {
		cfg.Console.SetRuntimeSink(cfg.RuntimeSink)
	}

	return &Coordinator{
		services: cfg.Services,
		registry: cfg.Registry,
		console:  cfg.Console,
		runtime:  cfg.RuntimeSink,
		arena:    cfg.Arena,
		policy:   policy,
		logger:   logger,
	}, nil
}

// EnterRuntime runs the transition protocol:
//
//  1. Snapshot the memory map and record its key.
//  2. Call ExitBootServices with that key.
//  3. On a stale-key rejection (StatusInvalidParameter from
//     ExitBootServices), go back to 1, at most Policy.MapKeyRetries
//     more times. No pool allocation happens between attempts — the
//     snapshot lives in Go memory, so taking it cannot stale its own
//     key.
//  4. On any other firmware error, fail with *RejectedError; the
//     caller keeps token unchanged.
//  5. On success, seal the registry (one flag flip invalidating
//     every outstanding guard, with no firmware-side free), consume
//     the Boot token, mint the Runtime token, and assemble the
//     capability.
//
// A consumed or non-Boot token fails immediately with
// phase.ErrStaleToken: the transition happens once per lineage.
func (c *Coordinator) EnterRuntime(token *phase.Token, image firmware.Handle) (*Capability, error) {
	if token == nil {
		return nil, fmt.Errorf("transition: nil token")
	}
	if token.Phase() != phase.Boot || !token.Live() {
		return nil, phase.ErrStaleToken
	}

	attempts := c.policy.MapKeyRetries + 1
	var snapshot firmware.MemoryMap
	accepted := 0

	for attempt := 1; attempt <= attempts; attempt++ {
		var err error
		snapshot, err = c.services.MemoryMap()
		if err != nil {
			return nil, &RejectedError{Cause: fmt.Errorf("memory map snapshot: %w", err)}
		}

		err = c.services.ExitBootServices(image, snapshot.Key)
		if err == nil {
			accepted = attempt
			break
		}
		if firmware.IsStatus(err, firmware.StatusInvalidParameter) {
			c.logger.Debug("memory map key stale, retrying",
				"attempt", attempt, "key", uint64(snapshot.Key))
			continue
		}
		return nil, &RejectedError{Cause: err}
	}
	if accepted == 0 {
		c.logger.Warn("map key retries exhausted", "attempts", attempts)
		return nil, &RetryExhaustedError{Attempts: attempts}
	}

	// Point of no return. Seal, then swap the token: two atomic flag
	// flips back to back, nothing in between, so a re-entrant
	// callback observes either the full Boot state or the full
	// Runtime state.
	swept := c.registry.Seal()
	runtimeToken, err := token.ConsumeForTransition()
	if err != nil {
		// Only reachable if something else consumed the token while
		// firmware was exiting. The registry is already sealed, so
		// boot resources stay safely unreachable.
		return nil, fmt.Errorf("transition: token consumed mid-flight: %w", err)
	}

	c.logger.Info("entered runtime phase",
		"swept_guards", swept,
		"descriptors", len(snapshot.Descriptors),
		"runtime_sink", console.Describe(c.runtime))

	capability := &Capability{
		token:   runtimeToken,
		console: c.console,
		arena:   c.arena,
		report: Report{
			Attempts:        accepted,
			MapKey:          uint64(snapshot.Key),
			DescriptorCount: len(snapshot.Descriptors),
			SweptGuards:     swept,
			RuntimeSink:     console.Describe(c.runtime),
		},
	}
	return capability, nil
}
