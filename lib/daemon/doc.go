// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package daemon enforces a single running broker per host and lets a
// second invocation find and stop the first.
//
// The running broker holds a lock file containing its PID ([Acquire]).
// A lock whose recorded process is gone is stale and is taken over
// silently. [Owner] reports the live holder, [Stop] sends it SIGTERM,
// and [WaitReleased] waits for it to let go, which together implement
// the broker's "stop" and "restart" commands.
package daemon
