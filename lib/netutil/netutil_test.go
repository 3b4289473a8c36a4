// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package netutil

import (
	"errors"
	"fmt"
	"io"
	"net"
	"path/filepath"
	"syscall"
	"testing"

	"github.com/bureau-foundation/diskstream/lib/testutil"
)

func TestIsExpectedCloseError(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"eof", io.EOF, true},
		{"short record", io.ErrUnexpectedEOF, true},
		{"wrapped eof", fmt.Errorf("reading header: %w", io.EOF), true},
		{"closed", net.ErrClosed, true},
		{"broken pipe", syscall.EPIPE, true},
		{"reset", &net.OpError{Op: "read", Err: syscall.ECONNRESET}, true},
		{"refused", syscall.ECONNREFUSED, false},
		{"other", errors.New("boom"), false},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			if got := IsExpectedCloseError(test.err); got != test.want {
				t.Errorf("IsExpectedCloseError(%v) = %v, want %v", test.err, got, test.want)
			}
		})
	}
}

func TestSetReceiveBuffer(t *testing.T) {
	t.Parallel()
	socketPath := filepath.Join(testutil.SocketDir(t), "rcvbuf.sock")
	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer listener.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, acceptErr := listener.Accept()
		if acceptErr != nil {
			close(accepted)
			return
		}
		accepted <- conn
	}()

	client, err := net.Dial("unix", socketPath)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()

	server := testutil.RequireReceive(t, accepted, testutil.Timeout, "accepting connection")
	defer server.Close()

	effective, err := SetReceiveBuffer(server.(*net.UnixConn), 64*1024)
	if err != nil {
		t.Fatalf("SetReceiveBuffer: %v", err)
	}
	if effective <= 0 {
		t.Errorf("effective receive buffer = %d, want positive", effective)
	}
}
