// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package broker

import (
	"context"
	"log/slog"

	"github.com/bureau-foundation/diskstream/lib/netutil"
)

// Forward delivers one complete record (header followed by payload) to
// the subscriber bound to id. With no subscriber bound the record is
// dropped. If the write fails or times out the record is dropped, the
// subscriber's connection is closed, and the binding is cleared so
// later records from the same producer are dropped until a new
// subscriber attaches. The producer is unaffected either way.
//
// Forward reports whether the record was delivered.
func (b *Broker) Forward(id VMID, record []byte) bool {
	subscriber := b.registry.Delivery(id)
	if subscriber == nil {
		b.counters.droppedNoSubscriber.Add(1)
		b.dropLog.Do(func() {
			b.logger.Debug("dropping records with no subscriber", "vm_id", id)
		})
		return false
	}

	if err := subscriber.Send(record, b.maxChunk); err != nil {
		b.counters.droppedDeliveryFailed.Add(1)
		// A subscriber that hangs up races its own disconnect cleanup.
		level := slog.LevelWarn
		if netutil.IsExpectedCloseError(err) {
			level = slog.LevelDebug
		}
		b.logger.Log(context.Background(), level, "delivery failed, dropping subscriber",
			"vm_id", id,
			"subscriber_id", subscriber.ID(),
			"remote_addr", subscriber.Address(),
			"record_bytes", len(record),
			"error", err,
		)
		subscriber.Close()
		b.registry.ClearDeliveryIf(id, subscriber)
		return false
	}

	b.counters.recordsForwarded.Add(1)
	b.counters.bytesForwarded.Add(uint64(len(record)))
	return true
}
