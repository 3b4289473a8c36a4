// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package broker relays disk-I/O telemetry from hypervisor producers to
// introspection subscribers.
//
// A producer connects to the ingest socket (a Unix socket), sends one
// [wire.Metadata] record naming its disk image, and then streams
// [wire.Header]-framed records for as long as the VM runs. A
// subscriber connects to the command port (TCP) and asks for an image
// by name ("n disk0") or by registration ID ("i 3"). Once a subscriber
// is bound to a producer, every validated record the producer sends is
// written verbatim to the subscriber's connection.
//
// Producers and subscribers may arrive in either order. A subscriber
// naming an image with no producer is parked in the [WaitingQueue];
// the producer that later announces that image consumes the entry.
// When a bound producer disconnects, its subscriber goes back into the
// queue so a reconnecting VM resumes delivery without the client
// subscribing again.
//
// The [Broker] owns both collections and serializes every decision
// that reads one and writes the other under a single match lock. The
// [Registry] and [WaitingQueue] each also have their own lock, held
// only for in-memory mutation. Lock order is always match lock first;
// the two collection locks are never held at the same time.
//
// Records are never buffered. A record arriving while its producer
// has no subscriber is dropped, and a record whose delivery fails is
// dropped and the subscriber is disconnected.
package broker
