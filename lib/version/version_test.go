// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"strings"
	"testing"
)

func TestInfoIncludesVersionAndCommit(t *testing.T) {
	info := Info()
	if !strings.HasPrefix(info, Version) {
		t.Errorf("Info() = %q, want prefix %q", info, Version)
	}
	if !strings.Contains(info, GitCommit) {
		t.Errorf("Info() = %q, want it to contain commit %q", info, GitCommit)
	}
}

func TestFprint(t *testing.T) {
	var buffer strings.Builder
	Fprint(&buffer, "diskstream-broker")
	want := "diskstream-broker " + Info() + "\n"
	if buffer.String() != want {
		t.Errorf("Fprint wrote %q, want %q", buffer.String(), want)
	}
}
