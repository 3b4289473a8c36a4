// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec holds the CBOR configuration shared by the broker's
// admin socket server and the clients that query it.
//
// The disk event stream itself is not CBOR: producers and subscribers
// speak the fixed binary layout defined in package wire. CBOR is used
// only for the request/response envelope on the admin socket, where
// self-delimiting values remove the need for a framing layer:
//
//	encoder := codec.NewEncoder(conn)
//	decoder := codec.NewDecoder(conn)
//
// Types that cross the admin socket use `cbor` struct tags.
package codec
