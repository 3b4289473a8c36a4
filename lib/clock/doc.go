// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock lets the broker's timed waits run on a fake clock in
// tests.
//
//	fake := clock.Fake(start)
//	go ingest.Serve(ctx)     // bind fails, waits in fake.After(15s)
//	fake.WaitForTimers(1)
//	fake.Advance(15 * time.Second)
//
// Socket deadlines do not go through a Clock: the runtime poller
// interprets them against the wall clock.
package clock
