// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package broker

import (
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// Subscriber is one client connection on the command port. The same
// connection carries the client's text commands in, and the text
// replies and forwarded records out.
//
// Writes are serialized so a status table can never land in the
// middle of a forwarded record.
type Subscriber struct {
	id          uint64
	conn        net.Conn
	address     string
	sendTimeout time.Duration

	writeMu   sync.Mutex
	closeOnce sync.Once
	closed    atomic.Bool
}

func newSubscriber(id uint64, conn net.Conn, sendTimeout time.Duration) *Subscriber {
	address := ""
	if remote := conn.RemoteAddr(); remote != nil {
		address = remote.String()
	}
	return &Subscriber{
		id:          id,
		conn:        conn,
		address:     address,
		sendTimeout: sendTimeout,
	}
}

// ID is the broker-assigned subscriber number, unique for the life of
// the process.
func (s *Subscriber) ID() uint64 { return s.id }

// Address is the subscriber's remote endpoint.
func (s *Subscriber) Address() string { return s.address }

// Send writes record to the subscriber in chunks of at most chunkSize
// bytes. The whole record shares one write deadline of the configured
// send timeout. An error means the record was not (fully) delivered;
// the caller decides whether to drop the subscriber.
func (s *Subscriber) Send(record []byte, chunkSize int) error {
	if chunkSize <= 0 {
		chunkSize = len(record)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.closed.Load() {
		return net.ErrClosed
	}
	if s.sendTimeout > 0 {
		s.conn.SetWriteDeadline(time.Now().Add(s.sendTimeout))
		defer s.conn.SetWriteDeadline(time.Time{})
	}

	for offset := 0; offset < len(record); {
		end := min(offset+chunkSize, len(record))
		written, err := s.conn.Write(record[offset:end])
		if err != nil {
			return fmt.Errorf("sending bytes %d-%d of %d: %w", offset, end, len(record), err)
		}
		if written == 0 {
			return fmt.Errorf("sending bytes %d-%d of %d: %w", offset, end, len(record), io.ErrShortWrite)
		}
		offset += written
	}
	return nil
}

// WriteText writes a command reply.
func (s *Subscriber) WriteText(text string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.closed.Load() {
		return net.ErrClosed
	}
	if s.sendTimeout > 0 {
		s.conn.SetWriteDeadline(time.Now().Add(s.sendTimeout))
		defer s.conn.SetWriteDeadline(time.Time{})
	}
	_, err := io.WriteString(s.conn, text)
	return err
}

// Close closes the connection. It is safe to call more than once and
// from any goroutine; the command reader sees the close as an error
// and runs disconnect cleanup.
func (s *Subscriber) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		err = s.conn.Close()
	})
	return err
}

// Closed reports whether Close has been called.
func (s *Subscriber) Closed() bool { return s.closed.Load() }
