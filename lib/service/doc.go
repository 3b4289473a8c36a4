// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package service provides the listener scaffolding shared by the
// broker's auxiliary endpoints.
//
//   - [SocketServer]: a CBOR request-response protocol on a Unix
//     socket. Each connection carries exactly one request,
//     {action: "...", ...fields}, and one response,
//     {ok, error, data}. The broker registers its read-only admin
//     actions on it.
//   - [Client]: the matching client, one connection per Call.
//   - [HTTPServer]: an HTTP listener with graceful shutdown, used for
//     the Prometheus /metrics endpoint.
//
// All three follow the same lifecycle: construct, then Serve(ctx)
// blocks until ctx is cancelled and in-flight work drains. Servers
// expose Ready() so callers and tests can wait for the bind without
// polling.
//
// The admin socket has no authentication. Filesystem permissions on
// the socket path decide who can reach it.
package service
