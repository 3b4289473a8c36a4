// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"encoding/binary"
	"fmt"
)

// ByteOrder is the byte order of every integer in both records.
var ByteOrder = binary.LittleEndian

const (
	// NameLength is the fixed size of the image name field.
	NameLength = 1024

	// MetadataSize is the encoded size of a Metadata record.
	MetadataSize = NameLength + 4

	// HeaderSize is the encoded size of a stream Header.
	HeaderSize = 8 + 4 + 4 + 4

	// DefaultSectorSize is the sector size of every disk the
	// hypervisor instrumentation has been observed to report.
	DefaultSectorSize = 512

	// MaxSectorsPerRecord bounds how many sectors one stream record
	// may carry.
	MaxSectorsPerRecord = 1024

	// MaxPayloadBytes is the largest payload a producer may send in
	// one record.
	MaxPayloadBytes = DefaultSectorSize * MaxSectorsPerRecord
)

// Operation is the kind of disk access a stream record describes.
type Operation uint32

const (
	OperationRead    Operation = 0
	OperationWrite   Operation = 1
	OperationInvalid Operation = 2
)

// Valid reports whether o is one of the three defined operations.
func (o Operation) Valid() bool {
	return o <= OperationInvalid
}

func (o Operation) String() string {
	switch o {
	case OperationRead:
		return "read"
	case OperationWrite:
		return "write"
	case OperationInvalid:
		return "invalid"
	default:
		return fmt.Sprintf("operation(%d)", uint32(o))
	}
}
