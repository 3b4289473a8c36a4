// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package capture records producer streams to disk and reads them
// back.
//
// A capture file holds one producer connection's stream exactly as it
// arrived on the producer socket: the metadata record followed by
// every accepted stream record, optionally compressed as a whole
// with zstd or LZ4 (frame format, not block). Rejected records are
// never written, so every capture replays cleanly through a broker.
//
// File names encode the VM ID and image name so a directory of
// captures sorts by connection:
//
//	20260301T120000Z-vm003-disk0.dscap.zst
//
// [Writer] is used by the broker's ingest server; [Reader] by
// diskstream-replay and tests.
package capture
