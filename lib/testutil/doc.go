// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers.
//
// [SocketDir] creates a short /tmp directory for Unix domain sockets,
// whose paths are limited to 108 bytes.
//
// [RequireReceive], [RequireClosed], and [Eventually] wrap the
// select-with-timeout pattern so individual tests never call time.After
// directly. [Timeout] is the shared bound.
//
// All helpers call t.Fatalf on failure.
//
// This package has no dependencies on other packages in this module.
package testutil
