// Copyright 2026 The Ignition Authors
// SPDX-License-Identifier: Apache-2.0

// Package transition drives the one-way boot-to-runtime handoff.
//
// The coordinator owns the protocol's sharp edges: the memory map key
// that goes stale if anything allocates after the snapshot, the
// bounded retry when the firmware rejects a stale key, and the
// invalidation of every outstanding boot-backed resource before the
// phase token swaps. The ordering is fixed: snapshot, exit call,
// registry seal, token swap — with no allocation or external call
// between the last two, so re-entrant observers see the world either
// fully before or fully after the transition.
//
// On failure the caller keeps the original Boot token unchanged and
// decides for itself whether to retry later, halt, or carry on in
// Boot phase; nothing here aborts the process.
package transition
