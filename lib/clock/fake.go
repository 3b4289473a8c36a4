// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"slices"
	"sync"
	"time"
)

// FakeClock is a Clock that only moves when told to. It is safe for
// concurrent use.
type FakeClock struct {
	mu      sync.Mutex
	now     time.Time
	timers  []timer
	changed *sync.Cond
}

type timer struct {
	fireAt time.Time
	fire   chan time.Time
}

// Fake returns a FakeClock reading start.
func Fake(start time.Time) *FakeClock {
	fake := &FakeClock{now: start}
	fake.changed = sync.NewCond(&fake.mu)
	return fake
}

func (f *FakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *FakeClock) After(d time.Duration) <-chan time.Time {
	fire := make(chan time.Time, 1)

	f.mu.Lock()
	defer f.mu.Unlock()
	if d <= 0 {
		fire <- f.now
		return fire
	}
	f.timers = append(f.timers, timer{fireAt: f.now.Add(d), fire: fire})
	f.changed.Broadcast()
	return fire
}

// Advance moves the clock forward by d and fires, earliest first,
// every timer that is now due.
func (f *FakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	now := f.now
	var due []timer
	f.timers = slices.DeleteFunc(f.timers, func(t timer) bool {
		if t.fireAt.After(now) {
			return false
		}
		due = append(due, t)
		return true
	})
	f.mu.Unlock()

	slices.SortStableFunc(due, func(a, b timer) int { return a.fireAt.Compare(b.fireAt) })
	for _, t := range due {
		t.fire <- now
	}
}

// WaitForTimers blocks until at least n timers are pending, so a test
// can be sure the goroutine it is driving has started waiting before
// it calls Advance.
func (f *FakeClock) WaitForTimers(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for len(f.timers) < n {
		f.changed.Wait()
	}
}

// Pending returns the number of timers that have not fired.
func (f *FakeClock) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.timers)
}
