// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Diskstream-broker relays disk-I/O telemetry from hypervisor
// instrumentation to introspection clients.
//
// Hypervisors connect to a Unix socket (default /tmp/lophi_disk_socket)
// and stream framed disk read/write records. Clients connect to a TCP
// port (default 31337), name the disk image they want, and receive the
// records on the same connection. See package broker for the protocol.
//
// Commands:
//
//	diskstream-broker [run]   run in the foreground (default)
//	diskstream-broker stop    signal the running broker to exit
//	diskstream-broker restart stop the running broker, then run
//
// Only one broker runs per lock file; a second "run" fails with the
// PID of the first. SIGINT, SIGTERM, and SIGHUP shut the broker down:
// every connection is closed, the producer socket file is removed, and
// the lock is released.
package main
