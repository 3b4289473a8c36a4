// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package broker

import (
	"slices"
	"sync"
)

// WaitingSubscriber is a subscriber that named an image before any
// producer announced it.
type WaitingSubscriber struct {
	ImageName  string
	Subscriber *Subscriber
}

// WaitingQueue holds waiting subscribers in arrival order. A
// subscriber may appear more than once, under the same or different
// names. All methods are safe for concurrent use.
type WaitingQueue struct {
	mu      sync.Mutex
	entries []WaitingSubscriber
}

// NewWaitingQueue returns an empty queue.
func NewWaitingQueue() *WaitingQueue {
	return &WaitingQueue{}
}

// Enqueue appends a waiting entry and returns it.
func (q *WaitingQueue) Enqueue(imageName string, subscriber *Subscriber) WaitingSubscriber {
	entry := WaitingSubscriber{ImageName: imageName, Subscriber: subscriber}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.entries = append(q.entries, entry)
	return entry
}

// Dequeue removes every entry for subscriber and returns how many were
// removed.
func (q *WaitingQueue) Dequeue(subscriber *Subscriber) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	before := len(q.entries)
	q.entries = slices.DeleteFunc(q.entries, func(entry WaitingSubscriber) bool {
		return entry.Subscriber == subscriber
	})
	return before - len(q.entries)
}

// FindByName returns the most recently enqueued entry for imageName.
// It does not remove the entry.
func (q *WaitingQueue) FindByName(imageName string) (WaitingSubscriber, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i := len(q.entries) - 1; i >= 0; i-- {
		if q.entries[i].ImageName == imageName {
			return q.entries[i], true
		}
	}
	return WaitingSubscriber{}, false
}

// Snapshot returns a copy of the queue in arrival order.
func (q *WaitingQueue) Snapshot() []WaitingSubscriber {
	q.mu.Lock()
	defer q.mu.Unlock()
	return slices.Clone(q.entries)
}

// Len returns the number of waiting entries.
func (q *WaitingQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}
