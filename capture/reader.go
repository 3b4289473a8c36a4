// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package capture

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/bureau-foundation/diskstream/wire"
)

// Reader reads a capture file back one record at a time.
type Reader struct {
	file       *os.File
	stream     io.Reader
	release    func()
	metadata   wire.Metadata
	buffer     []byte
	maxPayload int
}

// Open opens the capture at path, inferring the compression from its
// name, and reads the metadata record. maxPayload is the largest
// payload a record may carry; it must be at least the limit of the
// broker that wrote the capture.
func Open(path string, maxPayload int) (*Reader, error) {
	if maxPayload <= 0 {
		return nil, fmt.Errorf("maximum payload must be positive, got %d", maxPayload)
	}
	compression, err := compressionForPath(path)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening capture: %w", err)
	}
	stream, release, err := compression.decompressor(bufio.NewReaderSize(file, 64*1024))
	if err != nil {
		file.Close()
		return nil, err
	}

	reader := &Reader{
		file:       file,
		stream:     stream,
		release:    release,
		buffer:     make([]byte, max(wire.HeaderSize+maxPayload, wire.MetadataSize)),
		maxPayload: maxPayload,
	}
	reader.metadata, err = wire.ReadMetadata(stream, reader.buffer)
	if err != nil {
		reader.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return reader, nil
}

// Metadata is the producer's metadata record.
func (r *Reader) Metadata() wire.Metadata { return r.metadata }

// Next returns the next record and its decoded header. The record
// aliases an internal buffer that the following call overwrites.
// Next returns io.EOF after the last record; a file that ends inside
// a record returns io.ErrUnexpectedEOF.
func (r *Reader) Next() (wire.Header, []byte, error) {
	header, err := wire.ReadHeader(r.stream, r.buffer)
	if err != nil {
		return wire.Header{}, nil, err
	}
	if err := header.Validate(r.metadata.SectorSize, r.maxPayload); err != nil {
		return wire.Header{}, nil, err
	}
	record := r.buffer[:header.RecordSize()]
	if _, err := io.ReadFull(r.stream, record[wire.HeaderSize:]); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return wire.Header{}, nil, err
	}
	return header, record, nil
}

// Close releases the decompressor and closes the file.
func (r *Reader) Close() error {
	r.release()
	return r.file.Close()
}
