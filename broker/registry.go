// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package broker

import (
	"errors"
	"io"
	"slices"
	"sync"
	"time"
)

// VMID identifies one producer connection. IDs start at 1 and are
// never reused within a process.
type VMID uint64

var (
	// ErrNotFound is returned for a VMID that is not registered,
	// including one whose producer has since disconnected.
	ErrNotFound = errors.New("vm not registered")

	// ErrMetadataAlreadySet is returned when a registration's image
	// name and sector size are set a second time.
	ErrMetadataAlreadySet = errors.New("vm metadata already set")
)

// Registration is a point-in-time copy of one registry entry.
type Registration struct {
	ID VMID

	// ImageName and SectorSize come from the producer's metadata
	// record. Both are zero until HasMetadata.
	ImageName   string
	SectorSize  int32
	HasMetadata bool

	// Delivery is the bound subscriber, or nil.
	Delivery *Subscriber

	ConnectedAt time.Time
}

type registration struct {
	Registration
	producer io.Closer
}

// Registry holds one entry per connected producer, in registration
// order. All methods are safe for concurrent use. A VMID held by a
// caller may be deregistered at any time; later calls with it report
// not-found rather than failing.
type Registry struct {
	mu      sync.Mutex
	nextID  VMID
	entries []*registration
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds an entry for a newly accepted producer and returns its
// ID. The producer is closed when the entry is deregistered.
func (r *Registry) Register(producer io.Closer, connectedAt time.Time) VMID {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	r.entries = append(r.entries, &registration{
		Registration: Registration{ID: r.nextID, ConnectedAt: connectedAt},
		producer:     producer,
	})
	return r.nextID
}

// Deregister removes the entry for id, closes its producer, and
// returns the entry as it was at removal.
func (r *Registry) Deregister(id VMID) (Registration, bool) {
	r.mu.Lock()
	index := r.indexLocked(id)
	if index < 0 {
		r.mu.Unlock()
		return Registration{}, false
	}
	entry := r.entries[index]
	r.entries = slices.Delete(r.entries, index, index+1)
	r.mu.Unlock()

	if entry.producer != nil {
		entry.producer.Close()
	}
	return entry.Registration, true
}

// SetMetadata records the image name and sector size for id. Metadata
// is set exactly once per registration.
func (r *Registry) SetMetadata(id VMID, imageName string, sectorSize int32) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry := r.findLocked(id)
	if entry == nil {
		return ErrNotFound
	}
	if entry.HasMetadata {
		return ErrMetadataAlreadySet
	}
	entry.ImageName = imageName
	entry.SectorSize = sectorSize
	entry.HasMetadata = true
	return nil
}

// SetDelivery binds subscriber to id, replacing any previous binding.
// A nil subscriber clears the binding. Returns false if id is not
// registered.
func (r *Registry) SetDelivery(id VMID, subscriber *Subscriber) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry := r.findLocked(id)
	if entry == nil {
		return false
	}
	entry.Delivery = subscriber
	return true
}

// ClearDeliveryIf clears the binding for id only if it is still
// subscriber. Returns whether a binding was cleared.
func (r *Registry) ClearDeliveryIf(id VMID, subscriber *Subscriber) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry := r.findLocked(id)
	if entry == nil || entry.Delivery != subscriber {
		return false
	}
	entry.Delivery = nil
	return true
}

// ClearDeliveryFor clears every binding to subscriber and returns the
// IDs that were unbound.
func (r *Registry) ClearDeliveryFor(subscriber *Subscriber) []VMID {
	r.mu.Lock()
	defer r.mu.Unlock()
	var cleared []VMID
	for _, entry := range r.entries {
		if entry.Delivery == subscriber {
			entry.Delivery = nil
			cleared = append(cleared, entry.ID)
		}
	}
	return cleared
}

// Delivery returns the subscriber bound to id, or nil.
func (r *Registry) Delivery(id VMID) *Subscriber {
	r.mu.Lock()
	defer r.mu.Unlock()
	if entry := r.findLocked(id); entry != nil {
		return entry.Delivery
	}
	return nil
}

// LookupIDByName returns the oldest registration whose metadata names
// imageName. Registrations with the same name are not deduplicated;
// later ones are only reachable by ID.
func (r *Registry) LookupIDByName(imageName string) (VMID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, entry := range r.entries {
		if entry.HasMetadata && entry.ImageName == imageName {
			return entry.ID, true
		}
	}
	return 0, false
}

// Get returns a copy of the entry for id.
func (r *Registry) Get(id VMID) (Registration, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if entry := r.findLocked(id); entry != nil {
		return entry.Registration, true
	}
	return Registration{}, false
}

// Snapshot returns copies of all entries in registration order.
func (r *Registry) Snapshot() []Registration {
	r.mu.Lock()
	defer r.mu.Unlock()
	snapshot := make([]Registration, len(r.entries))
	for i, entry := range r.entries {
		snapshot[i] = entry.Registration
	}
	return snapshot
}

// Len returns the number of registered producers.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

func (r *Registry) indexLocked(id VMID) int {
	// Entries are appended in ID order.
	index, found := slices.BinarySearchFunc(r.entries, id, func(entry *registration, target VMID) int {
		switch {
		case entry.ID < target:
			return -1
		case entry.ID > target:
			return 1
		}
		return 0
	})
	if !found {
		return -1
	}
	return index
}

func (r *Registry) findLocked(id VMID) *registration {
	if index := r.indexLocked(id); index >= 0 {
		return r.entries[index]
	}
	return nil
}
