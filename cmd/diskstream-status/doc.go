// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Diskstream-status prints what a running diskstream-broker is doing.
//
// It connects to the broker's command port like any subscriber, sends
// the "l" and "w" commands, and prints the connected VMs and the
// subscribers waiting for one. With --admin-socket it also queries the
// broker's admin socket for traffic counters.
//
//	diskstream-status [--address 127.0.0.1:31337] [--admin-socket PATH]
package main
