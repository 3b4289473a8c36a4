// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package version reports build version information, injected with
// -ldflags:
//
//	go build -ldflags "-X github.com/bureau-foundation/diskstream/lib/version.GitCommit=$(git rev-parse --short HEAD)"
package version
