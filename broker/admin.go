// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package broker

import (
	"context"

	"github.com/bureau-foundation/diskstream/lib/service"
)

// StatusResponse is the data of the admin "status" action.
type StatusResponse struct {
	UptimeSeconds      float64           `cbor:"uptime_seconds"`
	ProducersConnected int               `cbor:"producers_connected"`
	SubscribersWaiting int               `cbor:"subscribers_waiting"`
	RecordsForwarded   uint64            `cbor:"records_forwarded"`
	BytesForwarded     uint64            `cbor:"bytes_forwarded"`
	RecordsDropped     map[string]uint64 `cbor:"records_dropped"`
	ProtocolViolations map[string]uint64 `cbor:"protocol_violations"`
}

// VMEntry is one row of the admin "list" action.
type VMEntry struct {
	ID              uint64 `cbor:"id"`
	Image           string `cbor:"image"`
	SectorSize      int32  `cbor:"sector_size"`
	Subscribed      bool   `cbor:"subscribed"`
	DeliveryAddress string `cbor:"delivery_address,omitempty"`
}

// WaitingEntry is one row of the admin "waiting" action.
type WaitingEntry struct {
	SubscriberID    uint64 `cbor:"subscriber_id"`
	Image           string `cbor:"image"`
	DeliveryAddress string `cbor:"delivery_address"`
}

// RegisterActions adds the broker's read-only admin actions to server:
// "status", "list", and "waiting".
func (b *Broker) RegisterActions(server *service.SocketServer) {
	server.Handle("status", b.handleStatus)
	server.Handle("list", b.handleList)
	server.Handle("waiting", b.handleWaiting)
}

func (b *Broker) handleStatus(ctx context.Context, raw []byte) (any, error) {
	stats := b.Stats()
	return StatusResponse{
		UptimeSeconds:      stats.Uptime.Seconds(),
		ProducersConnected: stats.ProducersConnected,
		SubscribersWaiting: stats.SubscribersWaiting,
		RecordsForwarded:   stats.RecordsForwarded,
		BytesForwarded:     stats.BytesForwarded,
		RecordsDropped: map[string]uint64{
			"no_subscriber":   stats.DroppedNoSubscriber,
			"delivery_failed": stats.DroppedDeliveryFailed,
		},
		ProtocolViolations: stats.ProtocolViolations,
	}, nil
}

func (b *Broker) handleList(ctx context.Context, raw []byte) (any, error) {
	entries := []VMEntry{}
	for _, registration := range b.registry.Snapshot() {
		if !registration.HasMetadata {
			continue
		}
		entry := VMEntry{
			ID:         uint64(registration.ID),
			Image:      registration.ImageName,
			SectorSize: registration.SectorSize,
		}
		if registration.Delivery != nil {
			entry.Subscribed = true
			entry.DeliveryAddress = registration.Delivery.Address()
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (b *Broker) handleWaiting(ctx context.Context, raw []byte) (any, error) {
	entries := []WaitingEntry{}
	for _, waiting := range b.waiting.Snapshot() {
		entries = append(entries, WaitingEntry{
			SubscriberID:    waiting.Subscriber.ID(),
			Image:           waiting.ImageName,
			DeliveryAddress: waiting.Subscriber.Address(),
		})
	}
	return entries, nil
}
