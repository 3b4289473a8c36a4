// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package capture

import (
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression selects how a capture file is compressed.
type Compression uint8

const (
	// CompressionNone writes the raw stream.
	CompressionNone Compression = iota

	// CompressionZstd writes a zstd frame at the default level. Disk
	// payloads are mostly sector images of filesystem metadata and
	// zero pages, which zstd shrinks well.
	CompressionZstd

	// CompressionLZ4 writes an LZ4 frame. Lower ratio than zstd at a
	// fraction of the CPU, for brokers relaying many busy disks.
	CompressionLZ4
)

const baseExtension = ".dscap"

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionZstd:
		return "zstd"
	case CompressionLZ4:
		return "lz4"
	default:
		return fmt.Sprintf("compression(%d)", uint8(c))
	}
}

// ParseCompression parses the config spelling of a compression.
func ParseCompression(name string) (Compression, error) {
	switch name {
	case "none":
		return CompressionNone, nil
	case "zstd":
		return CompressionZstd, nil
	case "lz4":
		return CompressionLZ4, nil
	default:
		return 0, fmt.Errorf("unknown capture compression %q (want none, zstd, or lz4)", name)
	}
}

// Extension is the file name suffix for captures using c.
func (c Compression) Extension() string {
	switch c {
	case CompressionZstd:
		return baseExtension + ".zst"
	case CompressionLZ4:
		return baseExtension + ".lz4"
	default:
		return baseExtension
	}
}

// compressionForPath infers the compression from a capture file name.
func compressionForPath(path string) (Compression, error) {
	for _, candidate := range []Compression{CompressionZstd, CompressionLZ4, CompressionNone} {
		if strings.HasSuffix(path, candidate.Extension()) {
			return candidate, nil
		}
	}
	return 0, fmt.Errorf("%s: not a capture file (want a %s, %s, or %s suffix)", path,
		CompressionNone.Extension(), CompressionZstd.Extension(), CompressionLZ4.Extension())
}

// compressor wraps w. Closing the compressor flushes it but does not
// close w.
func (c Compression) compressor(w io.Writer) (io.WriteCloser, error) {
	switch c {
	case CompressionNone:
		return nopWriteCloser{w}, nil
	case CompressionZstd:
		encoder, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return nil, fmt.Errorf("creating zstd encoder: %w", err)
		}
		return encoder, nil
	case CompressionLZ4:
		return lz4.NewWriter(w), nil
	default:
		return nil, fmt.Errorf("unsupported capture compression: %v", c)
	}
}

// decompressor wraps r. The returned closer releases decoder state
// but does not close r.
func (c Compression) decompressor(r io.Reader) (io.Reader, func(), error) {
	switch c {
	case CompressionNone:
		return r, func() {}, nil
	case CompressionZstd:
		decoder, err := zstd.NewReader(r)
		if err != nil {
			return nil, nil, fmt.Errorf("creating zstd decoder: %w", err)
		}
		return decoder, decoder.Close, nil
	case CompressionLZ4:
		return lz4.NewReader(r), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unsupported capture compression: %v", c)
	}
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }
