// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package netutil provides socket helpers shared by the broker's
// servers.
//
// [IsExpectedCloseError] separates ordinary disconnects from faults so
// read loops can log the former at Debug. [SetReceiveBuffer] raises
// SO_RCVBUF on a connection and reports what the kernel granted; the
// ingest server uses it so a producer can have a full record in flight
// without stalling.
package netutil
