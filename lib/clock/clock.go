// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import "time"

// Clock is the broker's view of time: uptime is measured with Now and
// every fixed-interval wait (bind retries, lock polling) goes through
// After.
type Clock interface {
	Now() time.Time

	// After delivers the time on the returned channel once d has
	// passed. Non-positive durations deliver immediately.
	After(d time.Duration) <-chan time.Time
}

// Real returns the wall clock.
func Real() Clock { return wallClock{} }

type wallClock struct{}

func (wallClock) Now() time.Time                         { return time.Now() }
func (wallClock) After(d time.Duration) <-chan time.Time { return time.After(d) }
