// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package capture

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bureau-foundation/diskstream/wire"
)

// Writer appends one producer's stream to a capture file. It is not
// safe for concurrent use; each producer goroutine owns its Writer.
type Writer struct {
	path       string
	file       *os.File
	buffered   *bufio.Writer
	compressor io.WriteCloser
	records    int
	bytes      int64
}

// FileName returns the capture file name for a producer. The start
// time keeps nanoseconds because VM ids restart at 1 with every broker
// process. Characters outside [A-Za-z0-9._-] in the image name become
// underscores.
func FileName(startedAt time.Time, vmID uint64, imageName string, compression Compression) string {
	return fmt.Sprintf("%s-vm%03d-%s%s",
		startedAt.UTC().Format("20060102T150405.000000000Z"),
		vmID,
		sanitize(imageName),
		compression.Extension(),
	)
}

func sanitize(name string) string {
	name = strings.TrimLeft(name, "/")
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			return r
		}
		return '_'
	}, name)
}

// Create creates a capture file in directory and writes the metadata
// record to it. The directory is created if needed. An existing file
// of the same name is an error.
func Create(directory string, startedAt time.Time, vmID uint64, metadata wire.Metadata, compression Compression) (*Writer, error) {
	if err := os.MkdirAll(directory, 0o755); err != nil {
		return nil, fmt.Errorf("creating capture directory: %w", err)
	}
	path := filepath.Join(directory, FileName(startedAt, vmID, metadata.ImageName, compression))
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("creating capture file: %w", err)
	}

	buffered := bufio.NewWriterSize(file, 64*1024)
	compressor, err := compression.compressor(buffered)
	if err != nil {
		file.Close()
		os.Remove(path)
		return nil, err
	}

	writer := &Writer{path: path, file: file, buffered: buffered, compressor: compressor}
	if _, err := compressor.Write(wire.AppendMetadata(nil, metadata)); err != nil {
		writer.Close()
		return nil, fmt.Errorf("writing capture metadata: %w", err)
	}
	return writer, nil
}

// Path is the capture file's path.
func (w *Writer) Path() string { return w.path }

// WriteRecord appends one complete record (header and payload).
func (w *Writer) WriteRecord(record []byte) error {
	if _, err := w.compressor.Write(record); err != nil {
		return fmt.Errorf("writing capture record: %w", err)
	}
	w.records++
	w.bytes += int64(len(record))
	return nil
}

// Records returns how many records have been written.
func (w *Writer) Records() int { return w.records }

// Bytes returns the uncompressed size of the records written.
func (w *Writer) Bytes() int64 { return w.bytes }

// Close flushes the compressor and closes the file. Every step runs
// even if an earlier one fails.
func (w *Writer) Close() error {
	return errors.Join(
		w.compressor.Close(),
		w.buffered.Flush(),
		w.file.Close(),
	)
}
