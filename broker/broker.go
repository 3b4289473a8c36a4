// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package broker

import (
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/bureau-foundation/diskstream/lib/clock"
	"github.com/bureau-foundation/diskstream/wire"
)

// Config configures a Broker.
type Config struct {
	// MaxPayloadBytes is the largest record payload a producer may
	// send. Defaults to wire.MaxPayloadBytes.
	MaxPayloadBytes int

	// MaxChunkBytes bounds each write of a forwarded record.
	// Defaults to MaxPayloadBytes.
	MaxChunkBytes int

	// SendTimeout is the write deadline for one forwarded record or
	// command reply. Zero means no deadline.
	SendTimeout time.Duration

	// Clock defaults to clock.Real().
	Clock clock.Clock

	// Logger is required.
	Logger *slog.Logger
}

// Broker owns the producer registry and the waiting-subscriber queue
// and implements matching and forwarding between them. Create one per
// process with New and hand it to the ingest and command servers.
type Broker struct {
	registry *Registry
	waiting  *WaitingQueue

	// matchMu makes every decision that reads one collection and
	// writes the other atomic. It is taken before either collection
	// lock, and never while blocked on a socket.
	matchMu sync.Mutex

	maxPayload  int
	maxChunk    int
	sendTimeout time.Duration
	clock       clock.Clock
	logger      *slog.Logger
	startedAt   time.Time

	nextSubscriberID atomic.Uint64
	counters         counters

	// dropLog throttles the per-record "no subscriber" debug line.
	dropLog rate.Sometimes
}

type counters struct {
	recordsForwarded      atomic.Uint64
	bytesForwarded        atomic.Uint64
	droppedNoSubscriber   atomic.Uint64
	droppedDeliveryFailed atomic.Uint64

	// violations is keyed by wire.ViolationReason label; the map is
	// fixed at construction so only the counters are mutated.
	violations map[string]*atomic.Uint64
}

// New creates a Broker with empty collections.
func New(config Config) *Broker {
	if config.Logger == nil {
		panic("broker.New: Logger is required")
	}
	if config.MaxPayloadBytes <= 0 {
		config.MaxPayloadBytes = wire.MaxPayloadBytes
	}
	if config.MaxChunkBytes <= 0 {
		config.MaxChunkBytes = config.MaxPayloadBytes
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}

	broker := &Broker{
		registry:    NewRegistry(),
		waiting:     NewWaitingQueue(),
		maxPayload:  config.MaxPayloadBytes,
		maxChunk:    config.MaxChunkBytes,
		sendTimeout: config.SendTimeout,
		clock:       config.Clock,
		logger:      config.Logger,
		startedAt:   config.Clock.Now(),
		dropLog:     rate.Sometimes{Interval: 10 * time.Second},
	}
	broker.counters.violations = make(map[string]*atomic.Uint64, len(wire.ViolationReasons)+1)
	for _, reason := range wire.ViolationReasons {
		broker.counters.violations[reason] = new(atomic.Uint64)
	}
	broker.counters.violations[otherViolation] = new(atomic.Uint64)
	return broker
}

// otherViolation labels producer failures that are not wire rule
// violations, such as metadata arriving twice.
const otherViolation = "other"

// Registry returns the producer registry.
func (b *Broker) Registry() *Registry { return b.registry }

// Waiting returns the waiting-subscriber queue.
func (b *Broker) Waiting() *WaitingQueue { return b.waiting }

// MaxPayloadBytes is the configured payload limit.
func (b *Broker) MaxPayloadBytes() int { return b.maxPayload }

// NewSubscriber wraps an accepted command connection.
func (b *Broker) NewSubscriber(conn net.Conn) *Subscriber {
	return newSubscriber(b.nextSubscriberID.Add(1), conn, b.sendTimeout)
}

// RegisterProducer adds a registry entry for an accepted producer.
func (b *Broker) RegisterProducer(producer net.Conn) VMID {
	return b.registry.Register(producer, b.clock.Now())
}

// AttachProducer records the producer's metadata and, in the same
// step, binds the most recent subscriber waiting for that image, if
// any. The bound subscriber is returned (nil if none was waiting).
func (b *Broker) AttachProducer(id VMID, metadata wire.Metadata) (*Subscriber, error) {
	b.matchMu.Lock()
	defer b.matchMu.Unlock()

	if err := b.registry.SetMetadata(id, metadata.ImageName, metadata.SectorSize); err != nil {
		return nil, fmt.Errorf("vm %d: %w", id, err)
	}
	waiting, found := b.waiting.FindByName(metadata.ImageName)
	if !found {
		return nil, nil
	}
	b.waiting.Dequeue(waiting.Subscriber)
	if !b.registry.SetDelivery(id, waiting.Subscriber) {
		return nil, fmt.Errorf("vm %d: %w", id, ErrNotFound)
	}
	return waiting.Subscriber, nil
}

// DetachProducer removes the registry entry for a disconnected
// producer and closes its connection. A subscriber that was bound to
// it goes back into the waiting queue under the same image name,
// unless that subscriber has itself disconnected.
func (b *Broker) DetachProducer(id VMID) (Registration, bool) {
	b.matchMu.Lock()
	defer b.matchMu.Unlock()

	removed, found := b.registry.Deregister(id)
	if !found {
		return Registration{}, false
	}
	if removed.Delivery != nil && removed.HasMetadata && !removed.Delivery.Closed() {
		b.waiting.Enqueue(removed.ImageName, removed.Delivery)
	}
	return removed, true
}

// SubscribeByName binds subscriber to the producer announcing
// imageName, or queues it until one does. Returns the bound ID and
// true on an immediate match.
func (b *Broker) SubscribeByName(subscriber *Subscriber, imageName string) (VMID, bool) {
	b.matchMu.Lock()
	defer b.matchMu.Unlock()

	if id, found := b.registry.LookupIDByName(imageName); found {
		if b.registry.SetDelivery(id, subscriber) {
			return id, true
		}
	}
	b.waiting.Enqueue(imageName, subscriber)
	return 0, false
}

// SubscribeByID binds subscriber to registration id. Returns false if
// no such producer is connected.
func (b *Broker) SubscribeByID(subscriber *Subscriber, id VMID) bool {
	b.matchMu.Lock()
	defer b.matchMu.Unlock()
	return b.registry.SetDelivery(id, subscriber)
}

// DisconnectSubscriber removes every trace of a closed subscriber:
// its bindings in the registry and its waiting entries. Close the
// subscriber first so a concurrent DetachProducer does not re-queue
// it.
func (b *Broker) DisconnectSubscriber(subscriber *Subscriber) {
	subscriber.Close()

	b.matchMu.Lock()
	defer b.matchMu.Unlock()

	cleared := b.registry.ClearDeliveryFor(subscriber)
	dequeued := b.waiting.Dequeue(subscriber)
	if len(cleared) > 0 || dequeued > 0 {
		b.logger.Debug("subscriber cleanup",
			"subscriber_id", subscriber.ID(),
			"unbound_vms", cleared,
			"waiting_removed", dequeued,
		)
	}
}

// RecordViolation counts a producer stream rejected for reason (a
// wire.ViolationReason label; unknown labels count as "other").
func (b *Broker) RecordViolation(reason string) {
	counter, ok := b.counters.violations[reason]
	if !ok {
		counter = b.counters.violations[otherViolation]
	}
	counter.Add(1)
}

// Stats is a point-in-time summary of broker activity.
type Stats struct {
	Uptime                time.Duration
	ProducersConnected    int
	SubscribersWaiting    int
	RecordsForwarded      uint64
	BytesForwarded        uint64
	DroppedNoSubscriber   uint64
	DroppedDeliveryFailed uint64
	ProtocolViolations    map[string]uint64
}

// Stats returns current counters.
func (b *Broker) Stats() Stats {
	stats := Stats{
		Uptime:                b.clock.Now().Sub(b.startedAt),
		ProducersConnected:    b.registry.Len(),
		SubscribersWaiting:    b.waiting.Len(),
		RecordsForwarded:      b.counters.recordsForwarded.Load(),
		BytesForwarded:        b.counters.bytesForwarded.Load(),
		DroppedNoSubscriber:   b.counters.droppedNoSubscriber.Load(),
		DroppedDeliveryFailed: b.counters.droppedDeliveryFailed.Load(),
		ProtocolViolations:    make(map[string]uint64, len(b.counters.violations)),
	}
	for reason, counter := range b.counters.violations {
		stats.ProtocolViolations[reason] = counter.Load()
	}
	return stats
}
