// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"fmt"
	"io"
)

// Header precedes each stream record's payload.
type Header struct {
	Sector      int64
	SectorCount int32
	Operation   Operation
	PayloadSize int32
}

// IsZero reports whether every field is zero. Producers emit an
// all-zero header when their instrumentation has lost sync with the
// stream; it is never a legitimate record.
func (h Header) IsZero() bool {
	return h == Header{}
}

// PutHeader encodes h into the first HeaderSize bytes of dst.
func PutHeader(dst []byte, h Header) {
	_ = dst[HeaderSize-1]
	ByteOrder.PutUint64(dst[0:8], uint64(h.Sector))
	ByteOrder.PutUint32(dst[8:12], uint32(h.SectorCount))
	ByteOrder.PutUint32(dst[12:16], uint32(h.Operation))
	ByteOrder.PutUint32(dst[16:20], uint32(h.PayloadSize))
}

// AppendHeader appends the encoded form of h to dst.
func AppendHeader(dst []byte, h Header) []byte {
	var encoded [HeaderSize]byte
	PutHeader(encoded[:], h)
	return append(dst, encoded[:]...)
}

// DecodeHeader decodes a Header from the first HeaderSize bytes of
// src. It does not validate; call Validate before trusting
// PayloadSize.
func DecodeHeader(src []byte) (Header, error) {
	if len(src) < HeaderSize {
		return Header{}, fmt.Errorf("stream header needs %d bytes, got %d", HeaderSize, len(src))
	}
	return Header{
		Sector:      int64(ByteOrder.Uint64(src[0:8])),
		SectorCount: int32(ByteOrder.Uint32(src[8:12])),
		Operation:   Operation(ByteOrder.Uint32(src[12:16])),
		PayloadSize: int32(ByteOrder.Uint32(src[16:20])),
	}, nil
}

// ReadHeader reads exactly HeaderSize bytes from r into buffer and
// decodes them. Short reads are retried until the header is complete
// or the stream ends; a stream that ends mid-header returns
// io.ErrUnexpectedEOF.
func ReadHeader(r io.Reader, buffer []byte) (Header, error) {
	if len(buffer) < HeaderSize {
		return Header{}, fmt.Errorf("header buffer needs %d bytes, got %d", HeaderSize, len(buffer))
	}
	if _, err := io.ReadFull(r, buffer[:HeaderSize]); err != nil {
		return Header{}, err
	}
	return DecodeHeader(buffer)
}

// Validate applies the stream rules to h for a producer with the given
// sector size. maxPayload is the largest payload the receiver accepts.
// A non-nil result is always a *ProtocolError and is fatal to the
// producer connection.
func (h Header) Validate(sectorSize int32, maxPayload int) error {
	switch {
	case h.IsZero():
		return &ProtocolError{Reason: ErrAllZeroHeader, Header: h}
	case int64(h.PayloadSize) > int64(maxPayload):
		return &ProtocolError{Reason: ErrPayloadTooLarge, Header: h,
			Detail: fmt.Sprintf("%d > %d", h.PayloadSize, maxPayload)}
	case !h.Operation.Valid():
		return &ProtocolError{Reason: ErrBadOperation, Header: h}
	case h.PayloadSize <= 0:
		return &ProtocolError{Reason: ErrNonPositivePayload, Header: h}
	case sectorSize <= 0:
		return &ProtocolError{Reason: ErrBadSectorSize, Header: h,
			Detail: fmt.Sprintf("sector size %d", sectorSize)}
	case h.PayloadSize%sectorSize != 0:
		return &ProtocolError{Reason: ErrNotSectorMultiple, Header: h,
			Detail: fmt.Sprintf("%d %% %d = %d", h.PayloadSize, sectorSize, h.PayloadSize%sectorSize)}
	}
	return nil
}

// RecordSize is the total number of bytes of the record h introduces.
func (h Header) RecordSize() int {
	return HeaderSize + int(h.PayloadSize)
}
