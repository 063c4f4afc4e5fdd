// Copyright 2026 The Ignition Authors
// SPDX-License-Identifier: Apache-2.0

// Package resource tracks boot-service-backed resources so they can
// be invalidated in one sweep at the boot-to-runtime transition.
//
// Every allocation, console handle, and located protocol is wrapped
// in a Guard and registered in the Registry at creation. While the
// registry is open, a guard's resource is reachable through Use and
// releasable exactly once through Release. When the transition
// coordinator seals the registry, every outstanding guard is
// invalidated by a single flag flip: no per-guard bookkeeping, no
// firmware call on swept resources — freeing a boot-services block
// after ExitBootServices is firmware-undefined behavior, so swept
// guards simply become unusable.
package resource
