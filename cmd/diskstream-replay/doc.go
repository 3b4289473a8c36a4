// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Diskstream-replay plays a capture file into a broker's producer
// socket, acting as the hypervisor that recorded it.
//
//	diskstream-replay [--socket PATH] [--rate N] [--image NAME] [--max-payload BYTES] CAPTURE
//
// The capture's metadata record is sent first (with --image replacing
// the recorded name), then every record in order. --rate limits
// records per second; the default replays as fast as the broker reads.
// --max-payload must be at least the recording broker's
// limits.max_payload_bytes when that was raised above the default.
// Replay is how introspection clients are exercised without a running
// VM.
package main
