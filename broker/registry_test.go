// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package broker

import (
	"errors"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

var compareSubscribers = cmp.Comparer(func(a, b *Subscriber) bool { return a == b })

func TestRegistryAssignsIncreasingIDs(t *testing.T) {
	t.Parallel()
	registry := NewRegistry()

	first := registry.Register(nil, epoch)
	second := registry.Register(nil, epoch)
	if first != 1 || second != 2 {
		t.Fatalf("ids = %d, %d; want 1, 2", first, second)
	}

	registry.Deregister(second)
	if third := registry.Register(nil, epoch); third != 3 {
		t.Errorf("id after deregister = %d, want 3 (ids are never reused)", third)
	}
}

func TestRegistryConcurrentRegisterUniqueIDs(t *testing.T) {
	t.Parallel()
	registry := NewRegistry()

	const workers, perWorker = 8, 50
	ids := make(chan VMID, workers*perWorker)
	var group sync.WaitGroup
	for range workers {
		group.Add(1)
		go func() {
			defer group.Done()
			for range perWorker {
				ids <- registry.Register(nil, epoch)
			}
		}()
	}
	group.Wait()
	close(ids)

	seen := make(map[VMID]bool)
	for id := range ids {
		if seen[id] {
			t.Fatalf("duplicate id %d", id)
		}
		seen[id] = true
	}
	if registry.Len() != workers*perWorker {
		t.Errorf("Len = %d, want %d", registry.Len(), workers*perWorker)
	}

	// Snapshot order must match ID order even under concurrent appends.
	snapshot := registry.Snapshot()
	for i := 1; i < len(snapshot); i++ {
		if snapshot[i-1].ID >= snapshot[i].ID {
			t.Fatalf("snapshot out of order at %d: %d then %d", i, snapshot[i-1].ID, snapshot[i].ID)
		}
	}
}

func TestRegistryDeregisterClosesProducer(t *testing.T) {
	t.Parallel()
	registry := NewRegistry()
	producer := &closeRecorder{}

	id := registry.Register(producer, epoch)
	if err := registry.SetMetadata(id, "disk0", 512); err != nil {
		t.Fatal(err)
	}

	removed, found := registry.Deregister(id)
	if !found {
		t.Fatal("Deregister did not find entry")
	}
	if !producer.closed {
		t.Error("producer not closed")
	}
	if removed.ImageName != "disk0" || !removed.HasMetadata {
		t.Errorf("removed = %+v, want disk0 with metadata", removed)
	}
	if _, found := registry.Deregister(id); found {
		t.Error("second Deregister found the entry")
	}
}

func TestRegistryStaleIDReportsNotFound(t *testing.T) {
	t.Parallel()
	registry := NewRegistry()
	id := registry.Register(nil, epoch)
	registry.Deregister(id)

	if err := registry.SetMetadata(id, "disk0", 512); !errors.Is(err, ErrNotFound) {
		t.Errorf("SetMetadata = %v, want ErrNotFound", err)
	}
	if registry.SetDelivery(id, &Subscriber{}) {
		t.Error("SetDelivery succeeded on removed id")
	}
	if registry.ClearDeliveryIf(id, nil) {
		t.Error("ClearDeliveryIf succeeded on removed id")
	}
	if registry.Delivery(id) != nil {
		t.Error("Delivery returned a subscriber for removed id")
	}
	if _, found := registry.Get(id); found {
		t.Error("Get found removed id")
	}
}

func TestRegistryMetadataSetOnce(t *testing.T) {
	t.Parallel()
	registry := NewRegistry()
	id := registry.Register(nil, epoch)

	if err := registry.SetMetadata(id, "disk0", 512); err != nil {
		t.Fatal(err)
	}
	if err := registry.SetMetadata(id, "disk1", 4096); !errors.Is(err, ErrMetadataAlreadySet) {
		t.Fatalf("second SetMetadata = %v, want ErrMetadataAlreadySet", err)
	}
	got, _ := registry.Get(id)
	if got.ImageName != "disk0" || got.SectorSize != 512 {
		t.Errorf("metadata = %q/%d, want unchanged disk0/512", got.ImageName, got.SectorSize)
	}
}

func TestRegistryLookupIDByName(t *testing.T) {
	t.Parallel()
	registry := NewRegistry()

	registry.Register(nil, epoch) // never sends metadata
	first := registry.Register(nil, epoch)
	second := registry.Register(nil, epoch)
	other := registry.Register(nil, epoch)
	for id, name := range map[VMID]string{first: "disk0", second: "disk0", other: "disk1"} {
		if err := registry.SetMetadata(id, name, 512); err != nil {
			t.Fatal(err)
		}
	}

	tests := []struct {
		name   string
		image  string
		wantID VMID
		found  bool
	}{
		{"oldest of duplicates", "disk0", first, true},
		{"unique", "disk1", other, true},
		{"unknown", "disk9", 0, false},
		{"empty name never matches a pending producer", "", 0, false},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			id, found := registry.LookupIDByName(test.image)
			if id != test.wantID || found != test.found {
				t.Errorf("LookupIDByName(%q) = %d, %v; want %d, %v", test.image, id, found, test.wantID, test.found)
			}
		})
	}

	registry.Deregister(first)
	if id, _ := registry.LookupIDByName("disk0"); id != second {
		t.Errorf("after removing %d, lookup = %d, want %d", first, id, second)
	}
}

func TestRegistryDeliveryBindings(t *testing.T) {
	t.Parallel()
	registry := NewRegistry()
	alpha, beta := &Subscriber{id: 1}, &Subscriber{id: 2}

	one := registry.Register(nil, epoch)
	two := registry.Register(nil, epoch)
	three := registry.Register(nil, epoch)
	registry.SetDelivery(one, alpha)
	registry.SetDelivery(two, alpha)
	registry.SetDelivery(three, beta)

	if registry.ClearDeliveryIf(three, alpha) {
		t.Error("ClearDeliveryIf cleared a binding held by another subscriber")
	}
	if registry.Delivery(three) != beta {
		t.Error("binding for three changed")
	}

	cleared := registry.ClearDeliveryFor(alpha)
	if diff := cmp.Diff([]VMID{one, two}, cleared); diff != "" {
		t.Errorf("ClearDeliveryFor (-want +got):\n%s", diff)
	}

	want := []Registration{
		{ID: one, ConnectedAt: epoch},
		{ID: two, ConnectedAt: epoch},
		{ID: three, ConnectedAt: epoch, Delivery: beta},
	}
	if diff := cmp.Diff(want, registry.Snapshot(), compareSubscribers); diff != "" {
		t.Errorf("snapshot (-want +got):\n%s", diff)
	}

	if !registry.SetDelivery(three, nil) {
		t.Fatal("SetDelivery(nil) failed")
	}
	if registry.Delivery(three) != nil {
		t.Error("nil SetDelivery did not clear binding")
	}
}

func TestRegistrySnapshotIsCopy(t *testing.T) {
	t.Parallel()
	registry := NewRegistry()
	if diff := cmp.Diff([]Registration{}, registry.Snapshot(), cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("empty snapshot (-want +got):\n%s", diff)
	}

	id := registry.Register(nil, epoch)
	snapshot := registry.Snapshot()
	snapshot[0].ImageName = "mutated"
	if got, _ := registry.Get(id); got.ImageName != "" {
		t.Errorf("mutating snapshot changed registry: %q", got.ImageName)
	}
}
