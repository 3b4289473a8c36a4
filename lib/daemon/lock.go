// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package daemon

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/nightlyone/lockfile"
	"golang.org/x/sys/unix"

	"github.com/bureau-foundation/diskstream/lib/clock"
)

// ErrNotRunning is returned when no live process holds the lock.
var ErrNotRunning = errors.New("no running broker holds the lock")

// AlreadyRunningError is returned by Acquire when another live process
// holds the lock.
type AlreadyRunningError struct {
	Path string
	PID  int
}

func (e *AlreadyRunningError) Error() string {
	return fmt.Sprintf("broker already running (PID: %d, lock %s)", e.PID, e.Path)
}

// Lock is a held lock file.
type Lock struct {
	file lockfile.Lockfile
	path string
}

// Acquire takes the lock at path for this process. A lock left behind
// by a dead process is replaced. If a live process holds it, the error
// is an *AlreadyRunningError.
func Acquire(path string) (*Lock, error) {
	file, absolutePath, err := open(path)
	if err != nil {
		return nil, err
	}
	if err := file.TryLock(); err != nil {
		if errors.Is(err, lockfile.ErrBusy) {
			if owner, ownerErr := file.GetOwner(); ownerErr == nil {
				return nil, &AlreadyRunningError{Path: absolutePath, PID: owner.Pid}
			}
		}
		return nil, fmt.Errorf("locking %s: %w", absolutePath, err)
	}
	return &Lock{file: file, path: absolutePath}, nil
}

// Path is the absolute path of the lock file.
func (l *Lock) Path() string { return l.path }

// Release removes the lock file.
func (l *Lock) Release() error {
	if err := l.file.Unlock(); err != nil {
		return fmt.Errorf("releasing %s: %w", l.path, err)
	}
	return nil
}

// Owner returns the PID of the live process holding the lock at path,
// or ErrNotRunning.
func Owner(path string) (int, error) {
	file, absolutePath, err := open(path)
	if err != nil {
		return 0, err
	}
	owner, err := file.GetOwner()
	switch {
	case err == nil:
		return owner.Pid, nil
	case errors.Is(err, fs.ErrNotExist),
		errors.Is(err, lockfile.ErrDeadOwner),
		errors.Is(err, lockfile.ErrInvalidPid):
		return 0, ErrNotRunning
	default:
		return 0, fmt.Errorf("reading owner of %s: %w", absolutePath, err)
	}
}

// Stop sends SIGTERM to the process holding the lock at path and
// returns its PID. It refuses to signal the calling process.
func Stop(path string) (int, error) {
	pid, err := Owner(path)
	if err != nil {
		return 0, err
	}
	if pid == os.Getpid() {
		return 0, fmt.Errorf("lock %s is held by this process", path)
	}
	if err := unix.Kill(pid, unix.SIGTERM); err != nil {
		if errors.Is(err, unix.ESRCH) {
			return 0, ErrNotRunning
		}
		return 0, fmt.Errorf("signaling PID %d: %w", pid, err)
	}
	return pid, nil
}

// WaitReleased polls the lock at path every interval until no live
// process holds it or ctx is done.
func WaitReleased(ctx context.Context, path string, clk clock.Clock, interval time.Duration) error {
	for {
		_, err := Owner(path)
		if errors.Is(err, ErrNotRunning) {
			return nil
		}
		if err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for %s to be released: %w", path, ctx.Err())
		case <-clk.After(interval):
		}
	}
}

// open resolves path and wraps it. lockfile requires absolute paths.
func open(path string) (lockfile.Lockfile, string, error) {
	absolutePath, err := filepath.Abs(path)
	if err != nil {
		return "", "", fmt.Errorf("computing absolute path for %s: %w", path, err)
	}
	file, err := lockfile.New(absolutePath)
	if err != nil {
		return "", "", fmt.Errorf("creating lock %s: %w", absolutePath, err)
	}
	return file, absolutePath, nil
}
