// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package netutil

import (
	"fmt"
	"syscall"

	"golang.org/x/sys/unix"
)

// SetReceiveBuffer sets SO_RCVBUF on conn and returns the size the
// kernel actually granted. Linux doubles the requested value for
// bookkeeping overhead and clamps it to net.core.rmem_max, so the
// effective size is read back rather than assumed.
func SetReceiveBuffer(conn syscall.Conn, size int) (int, error) {
	rawConn, err := conn.SyscallConn()
	if err != nil {
		return 0, fmt.Errorf("getting raw connection: %w", err)
	}

	var effective int
	var sockoptErr error
	controlErr := rawConn.Control(func(fd uintptr) {
		if sockoptErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_RCVBUF, size); sockoptErr != nil {
			return
		}
		effective, sockoptErr = unix.GetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_RCVBUF)
	})
	if controlErr != nil {
		return 0, fmt.Errorf("accessing socket descriptor: %w", controlErr)
	}
	if sockoptErr != nil {
		return 0, fmt.Errorf("setting SO_RCVBUF to %d: %w", size, sockoptErr)
	}
	return effective, nil
}
