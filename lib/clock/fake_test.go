// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"testing"
	"time"
)

var start = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestFakeMovesOnlyOnAdvance(t *testing.T) {
	t.Parallel()
	fake := Fake(start)
	if got := fake.Now(); !got.Equal(start) {
		t.Fatalf("Now() = %v, want %v", got, start)
	}
	fake.Advance(3 * time.Second)
	if got, want := fake.Now(), start.Add(3*time.Second); !got.Equal(want) {
		t.Fatalf("Now() = %v, want %v", got, want)
	}
}

func TestFakeAfter(t *testing.T) {
	t.Parallel()
	fake := Fake(start)
	fired := fake.After(10 * time.Second)

	fake.Advance(9 * time.Second)
	select {
	case <-fired:
		t.Fatal("fired early")
	default:
	}

	fake.Advance(time.Second)
	select {
	case at := <-fired:
		if want := start.Add(10 * time.Second); !at.Equal(want) {
			t.Errorf("fired at %v, want %v", at, want)
		}
	default:
		t.Fatal("did not fire at deadline")
	}
	if fake.Pending() != 0 {
		t.Errorf("Pending() = %d, want 0", fake.Pending())
	}
}

func TestFakeAfterFiresDueTimersOnly(t *testing.T) {
	t.Parallel()
	fake := Fake(start)
	short := fake.After(time.Second)
	long := fake.After(time.Hour)

	fake.Advance(time.Minute)
	select {
	case <-short:
	default:
		t.Error("short timer did not fire")
	}
	select {
	case <-long:
		t.Error("long timer fired")
	default:
	}
	if fake.Pending() != 1 {
		t.Errorf("Pending() = %d, want 1", fake.Pending())
	}
}

func TestFakeAfterNonPositive(t *testing.T) {
	t.Parallel()
	fake := Fake(start)
	select {
	case <-fake.After(0):
	default:
		t.Fatal("After(0) did not fire immediately")
	}
	if fake.Pending() != 0 {
		t.Errorf("Pending() = %d, want 0", fake.Pending())
	}
}

func TestWaitForTimers(t *testing.T) {
	t.Parallel()
	fake := Fake(start)
	done := make(chan struct{})
	go func() {
		<-fake.After(5 * time.Second)
		close(done)
	}()

	fake.WaitForTimers(1)
	fake.Advance(5 * time.Second)
	select {
	case <-done:
	case <-time.After(5 * time.Second): //nolint:realclock test hang prevention
		t.Fatal("waiter not released by Advance")
	}
}
