// Copyright 2026 The Quarry Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import "time"

// Clock abstracts the time operations quarry uses. Production code
// injects Real(); tests inject Fake() with deterministic time control.
//
// Functions that would call time.Now, time.After, or time.Sleep accept
// a Clock parameter (or live on a struct with a Clock field) instead of
// reaching for the time package directly. Download retry backoff and
// database timestamps both flow through this interface.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// After returns a channel that receives the current time after
	// duration d elapses. Equivalent to time.After. If d <= 0, the
	// channel receives immediately.
	After(d time.Duration) <-chan time.Time

	// Sleep pauses the current goroutine for at least duration d.
	// Equivalent to time.Sleep.
	Sleep(d time.Duration)
}
