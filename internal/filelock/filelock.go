// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

// Package filelock provides the cross-process advisory lock backing a
// Rustwide workspace's "<root>/.lock".
package filelock

import (
	"log"

	"github.com/pkg/errors"
	"go.podman.io/storage/pkg/lockfile"
)

// Lock is a held or unheld cross-process exclusive lock on a single file.
// Acquire blocks until the lock is available; Release can be deferred, so a
// lock acquired at workspace initialization is released even if the
// caller's goroutine later panics. Release must only be called while the
// lock is held: the underlying lockfile package panics when an unheld lock
// is unlocked.
type Lock struct {
	inner *lockfile.LockFile
	path  string
}

// New opens (creating if necessary) the lock file at path without acquiring
// it.
func New(path string) (*Lock, error) {
	lf, err := lockfile.GetLockFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening lock file %q", path)
	}
	return &Lock{inner: lf, path: path}, nil
}

// Acquire blocks until the exclusive lock is held. If the lock is already
// held, by this process or another, contention is logged once before
// blocking.
func (l *Lock) Acquire() {
	if err := l.inner.TryLock(); err == nil {
		return
	}
	log.Printf("waiting for workspace lock at %s", l.path)
	l.inner.Lock()
}

// Release releases the lock. Callers defer this immediately after a
// successful Acquire, so the lock is always released on panic too.
func (l *Lock) Release() {
	l.inner.Unlock()
}
