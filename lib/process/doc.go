// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package process provides entrypoint helpers for the diskstream
// binaries. Errors that surface before the structured logger exists
// (flag parsing, config loading, lock acquisition) are reported here.
package process
