// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package broker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/bureau-foundation/diskstream/capture"
	"github.com/bureau-foundation/diskstream/lib/clock"
	"github.com/bureau-foundation/diskstream/lib/netutil"
	"github.com/bureau-foundation/diskstream/wire"
)

// IngestConfig configures an IngestServer.
type IngestConfig struct {
	// SocketPath is the Unix socket producers connect to. Required.
	SocketPath string

	// BindRetryInterval is the wait between failed attempts to bind
	// SocketPath. Defaults to 15 seconds.
	BindRetryInterval time.Duration

	// ReceiveBufferBytes, if positive, is requested as SO_RCVBUF on
	// every accepted producer connection.
	ReceiveBufferBytes int

	// CaptureDirectory, if set, receives a capture file per producer
	// holding its accepted stream.
	CaptureDirectory string

	// CaptureCompression applies to new capture files.
	CaptureCompression capture.Compression

	// Clock defaults to clock.Real().
	Clock clock.Clock

	// Logger is required.
	Logger *slog.Logger
}

// IngestServer accepts producer connections and feeds their records to
// the broker, one goroutine per producer.
type IngestServer struct {
	broker        *Broker
	socketPath    string
	retryInterval time.Duration
	receiveBuffer int
	captureDir    string
	compression   capture.Compression
	clock         clock.Clock
	logger        *slog.Logger

	ready       chan struct{}
	conns       connSet
	connections sync.WaitGroup
}

// NewIngestServer creates a server that will listen on
// config.SocketPath. Call Serve to start it.
func NewIngestServer(broker *Broker, config IngestConfig) *IngestServer {
	if config.SocketPath == "" {
		panic("broker.IngestServer: SocketPath is required")
	}
	if config.Logger == nil {
		panic("broker.IngestServer: Logger is required")
	}
	if config.BindRetryInterval <= 0 {
		config.BindRetryInterval = 15 * time.Second
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	return &IngestServer{
		broker:        broker,
		socketPath:    config.SocketPath,
		retryInterval: config.BindRetryInterval,
		receiveBuffer: config.ReceiveBufferBytes,
		captureDir:    config.CaptureDirectory,
		compression:   config.CaptureCompression,
		clock:         config.Clock,
		logger:        config.Logger,
		ready:         make(chan struct{}),
	}
}

// Ready returns a channel that is closed once the socket is bound.
func (s *IngestServer) Ready() <-chan struct{} {
	return s.ready
}

// SocketPath returns the producer socket path.
func (s *IngestServer) SocketPath() string {
	return s.socketPath
}

// Serve binds the producer socket, retrying at the configured interval
// until it succeeds, and accepts producers until ctx is cancelled. On
// return every producer connection has been closed and deregistered
// and the socket file has been removed.
func (s *IngestServer) Serve(ctx context.Context) error {
	listener, err := s.listen(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	defer func() {
		listener.Close()
		os.Remove(s.socketPath)
	}()
	close(s.ready)

	stop := context.AfterFunc(ctx, func() {
		listener.Close()
		s.conns.closeAll()
	})
	defer stop()

	s.logger.Info("producer socket listening", "path", s.socketPath)

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			s.logger.Error("accept failed", "error", err)
			continue
		}
		if !s.conns.add(conn) {
			conn.Close()
			continue
		}

		s.connections.Add(1)
		go func() {
			defer s.connections.Done()
			defer s.conns.remove(conn)
			s.handleProducer(conn)
		}()
	}

	s.conns.closeAll()
	s.connections.Wait()
	s.logger.Info("producer socket closed", "path", s.socketPath)
	return nil
}

// listen binds the socket, removing a stale socket file first. A
// failed bind is logged and retried after retryInterval.
func (s *IngestServer) listen(ctx context.Context) (net.Listener, error) {
	for attempt := 1; ; attempt++ {
		if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("removing stale socket %s: %w", s.socketPath, err)
		}
		listener, err := net.Listen("unix", s.socketPath)
		if err == nil {
			return listener, nil
		}
		s.logger.Error("binding producer socket failed",
			"path", s.socketPath,
			"attempt", attempt,
			"retry_in", s.retryInterval,
			"error", err,
		)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-s.clock.After(s.retryInterval):
		}
	}
}

// handleProducer runs one producer connection from metadata to
// disconnect.
func (s *IngestServer) handleProducer(conn net.Conn) {
	broker := s.broker
	id := broker.RegisterProducer(conn)
	logger := s.logger.With("vm_id", id)

	defer func() {
		removed, _ := broker.DetachProducer(id)
		requeued := removed.Delivery != nil && !removed.Delivery.Closed()
		logger.Info("producer disconnected",
			"image", removed.ImageName,
			"subscriber_requeued", requeued,
		)
	}()

	if s.receiveBuffer > 0 {
		if tunable, ok := conn.(*net.UnixConn); ok {
			effective, err := netutil.SetReceiveBuffer(tunable, s.receiveBuffer)
			if err != nil {
				logger.Warn("setting producer receive buffer", "error", err)
			} else {
				logger.Debug("producer receive buffer", "requested_bytes", s.receiveBuffer, "effective_bytes", effective)
			}
		}
	}

	// One buffer per connection, reused for every record.
	buffer := make([]byte, max(wire.HeaderSize+broker.MaxPayloadBytes(), wire.MetadataSize))

	metadata, err := wire.ReadMetadata(conn, buffer)
	if err != nil {
		s.endStream(logger, err)
		return
	}
	subscriber, err := broker.AttachProducer(id, metadata)
	if err != nil {
		broker.RecordViolation(otherViolation)
		logger.Warn("rejecting producer metadata", "image", metadata.ImageName, "error", err)
		return
	}
	logger = logger.With("image", metadata.ImageName)
	if subscriber != nil {
		logger.Info("producer connected, waiting subscriber bound",
			"sector_size", metadata.SectorSize,
			"subscriber_id", subscriber.ID(),
			"remote_addr", subscriber.Address(),
		)
	} else {
		logger.Info("producer connected", "sector_size", metadata.SectorSize)
	}

	recorder := s.startCapture(logger, id, metadata)
	defer recorder.finish()

	for {
		header, err := wire.ReadHeader(conn, buffer)
		if err != nil {
			s.endStream(logger, err)
			return
		}
		if err := header.Validate(metadata.SectorSize, broker.MaxPayloadBytes()); err != nil {
			s.endStream(logger, err)
			return
		}
		record := buffer[:header.RecordSize()]
		if _, err := io.ReadFull(conn, record[wire.HeaderSize:]); err != nil {
			s.endStream(logger, err)
			return
		}
		broker.Forward(id, record)
		recorder.write(record)
	}
}

// producerCapture is the optional capture of one producer's stream.
// A failed write ends the capture; the producer keeps streaming.
type producerCapture struct {
	writer *capture.Writer
	logger *slog.Logger
}

func (s *IngestServer) startCapture(logger *slog.Logger, id VMID, metadata wire.Metadata) *producerCapture {
	recorder := &producerCapture{logger: logger}
	if s.captureDir == "" {
		return recorder
	}
	writer, err := capture.Create(s.captureDir, s.clock.Now(), uint64(id), metadata, s.compression)
	if err != nil {
		logger.Warn("not capturing producer stream", "error", err)
		return recorder
	}
	logger.Info("capturing producer stream", "path", writer.Path(), "compression", s.compression.String())
	recorder.writer = writer
	return recorder
}

func (c *producerCapture) write(record []byte) {
	if c.writer == nil {
		return
	}
	if err := c.writer.WriteRecord(record); err != nil {
		c.logger.Warn("capture write failed, stopping capture", "path", c.writer.Path(), "error", err)
		c.finish()
	}
}

func (c *producerCapture) finish() {
	if c.writer == nil {
		return
	}
	writer := c.writer
	c.writer = nil
	if err := writer.Close(); err != nil {
		c.logger.Warn("closing capture", "path", writer.Path(), "error", err)
		return
	}
	c.logger.Info("capture closed",
		"path", writer.Path(),
		"records", writer.Records(),
		"bytes", writer.Bytes(),
	)
}

// endStream logs why a producer's stream ended and counts protocol
// violations.
func (s *IngestServer) endStream(logger *slog.Logger, err error) {
	var protocolErr *wire.ProtocolError
	switch {
	case errors.As(err, &protocolErr):
		s.broker.RecordViolation(wire.ViolationReason(err))
		logger.Warn("protocol violation, closing producer",
			"sector", protocolErr.Header.Sector,
			"sector_count", protocolErr.Header.SectorCount,
			"operation", protocolErr.Header.Operation.String(),
			"payload_size", protocolErr.Header.PayloadSize,
			"error", err,
		)
	case netutil.IsExpectedCloseError(err):
		logger.Debug("producer stream ended", "error", err)
	default:
		logger.Warn("producer read failed", "error", err)
	}
}
