// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package broker

import (
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/bureau-foundation/diskstream/lib/clock"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func newTestBroker(t *testing.T, configure ...func(*Config)) *Broker {
	t.Helper()
	config := Config{
		SendTimeout: time.Second,
		Clock:       clock.Fake(epoch),
		Logger:      discardLogger(),
	}
	for _, apply := range configure {
		apply(&config)
	}
	return New(config)
}

// pipeSubscriber returns a subscriber backed by an in-memory pipe and
// the client end of that pipe.
func pipeSubscriber(t *testing.T, b *Broker) (*Subscriber, net.Conn) {
	t.Helper()
	server, client := net.Pipe()
	t.Cleanup(func() {
		server.Close()
		client.Close()
	})
	return b.NewSubscriber(server), client
}

// closeRecorder is an io.Closer that records whether it was closed.
type closeRecorder struct {
	closed bool
}

func (c *closeRecorder) Close() error {
	c.closed = true
	return nil
}
