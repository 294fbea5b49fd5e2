// Copyright 2026 The Quarry Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for quarry packages.
//
// [RequireReceive] and [RequireClosed] encapsulate the timeout safety
// valve pattern (select with time.After fallback) so that individual
// tests do not need direct time.After calls. These are the only place
// in the test suite where real wall-clock timeouts are used; tests
// that exercise backoff or scheduling inject a clock.FakeClock
// instead.
//
// [UniqueID] generates monotonically increasing identifiers for test
// disambiguation. Use it instead of time.Now() when tests need unique
// package names or stage identifiers.
//
// [WriteTree] materializes a file tree from a map, for tests that
// stage archives or apply patches against real directories.
//
// All helpers call t.Fatalf on failure rather than returning errors,
// since test setup failures are not recoverable.
//
// This package has no quarry-internal dependencies.
package testutil
