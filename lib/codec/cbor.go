// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"io"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// Admin requests arrive from any local user that can open the socket,
// so decoding is bounded well below the library defaults. Responses
// are small tables; the largest is one entry per connected producer.
const (
	maxNesting    = 8
	maxArrayItems = 65536
	maxMapPairs   = 65536
)

var (
	// Responses use Core Deterministic Encoding (RFC 8949 §4.2):
	// sorted map keys, so two status replies for the same state are
	// byte-identical.
	encoding cbor.EncMode

	// Unknown fields are ignored so an older diskstream-status keeps
	// working against a newer broker.
	decoding cbor.DecMode
)

func init() {
	var err error
	if encoding, err = cbor.CoreDetEncOptions().EncMode(); err != nil {
		panic("codec: building CBOR encode mode: " + err.Error())
	}

	decoding, err = cbor.DecOptions{
		MaxNestedLevels:  maxNesting,
		MaxArrayElements: maxArrayItems,
		MaxMapPairs:      maxMapPairs,
		// Decoding into `any` yields map[string]any, which the status
		// CLI can print, rather than map[any]any.
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("codec: building CBOR decode mode: " + err.Error())
	}
}

// Marshal encodes v.
func Marshal(v any) ([]byte, error) { return encoding.Marshal(v) }

// Unmarshal decodes data into v.
func Unmarshal(data []byte, v any) error { return decoding.Unmarshal(data, v) }

// RawMessage holds an undecoded CBOR value, such as the data field of
// an admin response before the caller picks its type.
type RawMessage = cbor.RawMessage

// NewEncoder writes a stream of CBOR values to w.
func NewEncoder(w io.Writer) *cbor.Encoder { return encoding.NewEncoder(w) }

// NewDecoder reads a stream of CBOR values from r.
func NewDecoder(r io.Reader) *cbor.Decoder { return decoding.NewDecoder(r) }
