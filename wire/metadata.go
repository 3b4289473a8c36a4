// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"bytes"
	"fmt"
	"io"
)

// Metadata is the one-time record a producer sends after connecting.
type Metadata struct {
	// ImageName identifies the virtual disk image. Subscribers name
	// it in "n <image>" commands.
	ImageName string

	// SectorSize is the disk's sector size in bytes. Every payload on
	// the connection must be a multiple of it.
	SectorSize int32
}

// AppendMetadata appends the encoded form of m to dst. Names longer
// than NameLength are truncated; shorter names are NUL-padded.
func AppendMetadata(dst []byte, m Metadata) []byte {
	var name [NameLength]byte
	copy(name[:], m.ImageName)
	dst = append(dst, name[:]...)
	return ByteOrder.AppendUint32(dst, uint32(m.SectorSize))
}

// DecodeMetadata decodes a Metadata record from the first MetadataSize
// bytes of src. The name ends at the first NUL byte. The record is
// rejected if the name is empty or the sector size is not positive;
// either makes the connection unusable for matching or validation.
func DecodeMetadata(src []byte) (Metadata, error) {
	if len(src) < MetadataSize {
		return Metadata{}, fmt.Errorf("metadata record needs %d bytes, got %d", MetadataSize, len(src))
	}
	name := src[:NameLength]
	if end := bytes.IndexByte(name, 0); end >= 0 {
		name = name[:end]
	}
	m := Metadata{
		ImageName:  string(name),
		SectorSize: int32(ByteOrder.Uint32(src[NameLength:MetadataSize])),
	}
	if m.ImageName == "" {
		return Metadata{}, &ProtocolError{Reason: ErrEmptyImageName}
	}
	if m.SectorSize <= 0 {
		return Metadata{}, &ProtocolError{Reason: ErrBadSectorSize, Detail: fmt.Sprintf("sector size %d", m.SectorSize)}
	}
	return m, nil
}

// ReadMetadata reads exactly one Metadata record from r, using buffer
// (at least MetadataSize bytes) as scratch space.
func ReadMetadata(r io.Reader, buffer []byte) (Metadata, error) {
	if len(buffer) < MetadataSize {
		return Metadata{}, fmt.Errorf("metadata buffer needs %d bytes, got %d", MetadataSize, len(buffer))
	}
	if _, err := io.ReadFull(r, buffer[:MetadataSize]); err != nil {
		return Metadata{}, fmt.Errorf("reading metadata record: %w", err)
	}
	return DecodeMetadata(buffer)
}
