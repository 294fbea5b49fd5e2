// Copyright 2026 The Quarry Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time abstraction for testability.
//
// Production code accepts a Clock parameter instead of calling time.Now,
// time.After, or time.Sleep directly. In production, Real() provides the
// standard library behavior. In tests, Fake() provides a deterministic
// clock that advances only when Advance is called.
//
// The download client is the main consumer: its retry loop waits on
// clock.After between attempts, so tests drive exponential backoff
// without real delays:
//
//	fakeClock := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	client := &fetch.Client{Clock: fakeClock, ...}
//	go func() { done <- client.Fetch(ctx, resource, destination) }()
//	fakeClock.WaitForTimers(1)        // first backoff registered
//	fakeClock.Advance(time.Second)    // fire it
//
// When a goroutine calls Sleep or After on a FakeClock, it registers a
// pending waiter. WaitForTimers blocks until a given number of waiters
// are registered, which removes the race between waiter registration
// and time advancement.
package clock
