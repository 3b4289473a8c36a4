// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package wire defines the binary records exchanged with hypervisor
// producers and relayed verbatim to subscribers.
//
// A producer connection carries one [Metadata] record followed by an
// unbounded sequence of stream records. Each stream record is a
// [Header] immediately followed by Header.PayloadSize bytes of raw
// sector data. Both records are packed with no padding:
//
//	Metadata (1028 bytes)
//	  [0:1024]    image name, NUL-padded (or truncated) to 1024 bytes
//	  [1024:1028] sector size, int32
//
//	Header (20 bytes)
//	  [0:8]   sector offset, int64
//	  [8:12]  sector count, int32
//	  [12:16] operation, uint32 (0 read, 1 write, 2 invalid)
//	  [16:20] payload size in bytes, int32
//
// The producer writes these records from in-memory structs, so the
// byte order is that of the machine running the hypervisor. Integers
// are decoded as little-endian ([ByteOrder]); producer and broker are
// deployed on the same x86-64 or arm64 host.
//
// Decoding works on caller-provided slices. The ingest loop reuses a
// single buffer of [HeaderSize] + max payload bytes per connection and
// forwards header and payload from it without copying.
package wire
