// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"errors"
	"fmt"
)

// Reasons a producer stream is rejected. Each is wrapped in a
// *ProtocolError; match with errors.Is.
var (
	ErrAllZeroHeader      = errors.New("all-zero stream header")
	ErrPayloadTooLarge    = errors.New("payload exceeds maximum record size")
	ErrBadOperation       = errors.New("unknown disk operation")
	ErrNonPositivePayload = errors.New("payload size is not positive")
	ErrNotSectorMultiple  = errors.New("payload size is not a multiple of the sector size")
	ErrBadSectorSize      = errors.New("sector size is not positive")
	ErrEmptyImageName     = errors.New("metadata carries an empty image name")
)

// ProtocolError is a violation of the producer stream rules.
type ProtocolError struct {
	// Reason is one of the Err* sentinels above.
	Reason error

	// Header is the offending header, zero for metadata violations.
	Header Header

	// Detail adds the values involved, for logs.
	Detail string
}

func (e *ProtocolError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("protocol violation: %v (%s)", e.Reason, e.Detail)
	}
	return fmt.Sprintf("protocol violation: %v", e.Reason)
}

func (e *ProtocolError) Unwrap() error { return e.Reason }

// ViolationReasons lists the label values ViolationReason can return,
// in a stable order, so metrics can be registered up front.
var ViolationReasons = []string{
	"all_zero",
	"payload_too_large",
	"bad_operation",
	"non_positive_payload",
	"not_sector_multiple",
	"bad_sector_size",
	"empty_image_name",
}

// ViolationReason maps a protocol error to a short label for metrics.
// Errors that are not protocol violations map to "".
func ViolationReason(err error) string {
	switch {
	case errors.Is(err, ErrAllZeroHeader):
		return "all_zero"
	case errors.Is(err, ErrPayloadTooLarge):
		return "payload_too_large"
	case errors.Is(err, ErrBadOperation):
		return "bad_operation"
	case errors.Is(err, ErrNonPositivePayload):
		return "non_positive_payload"
	case errors.Is(err, ErrNotSectorMultiple):
		return "not_sector_multiple"
	case errors.Is(err, ErrBadSectorSize):
		return "bad_sector_size"
	case errors.Is(err, ErrEmptyImageName):
		return "empty_image_name"
	}
	return ""
}
