// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Fatal reports err on stderr, prefixed with the program name, and
// exits with status 1.
func Fatal(err error) {
	report(os.Stderr, os.Args[0], err)
	os.Exit(1)
}

func report(w io.Writer, program string, err error) {
	fmt.Fprintf(w, "%s: error: %v\n", filepath.Base(program), err)
}
