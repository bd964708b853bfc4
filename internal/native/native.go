// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

// Package native wraps the handful of OS-level primitives Rustwide needs
// that aren't already part of os/exec: killing a child process group,
// reading the caller's effective identity, and testing or marking a file's
// executable bit.
package native

import (
	"os"
	"os/exec"

	"github.com/jesseduffield/kill"
	"github.com/pkg/errors"
)

// KillFailedError reports that sending a kill signal to a process failed.
// Errno holds the error returned by the underlying kill call; Kill always
// sets it.
type KillFailedError struct {
	PID   int
	Errno error
}

func (e *KillFailedError) Error() string {
	if e.Errno != nil {
		return errors.Wrapf(e.Errno, "failed to kill process %d", e.PID).Error()
	}
	return errors.Errorf("failed to kill process %d", e.PID).Error()
}

func (e *KillFailedError) Unwrap() error { return e.Errno }

// Kill sends SIGKILL to cmd's process group. cmd must have been started
// (Process must be non-nil) and should have been prepared with
// PrepareForChildren beforehand so that any children it spawned die with it.
func Kill(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return errors.New("native: cannot kill a command that has not been started")
	}
	if err := kill.Kill(cmd); err != nil {
		return &KillFailedError{PID: cmd.Process.Pid, Errno: err}
	}
	return nil
}

// PrepareForChildren configures cmd so that Kill can later reap its entire
// process group rather than only the immediate child, which matters for
// commands like `docker` CLI wrappers that may themselves fork helpers.
func PrepareForChildren(cmd *exec.Cmd) {
	kill.PrepareForChildren(cmd)
}

// CurrentUser is the effective uid/gid of the running process.
type CurrentUser struct {
	UID int
	GID int
}

// Effective returns the effective user and group id of the current process.
//
// The original implementation queries these directly from the OS (no
// id-mapping layer is involved, since the library never runs inside a user
// namespace it doesn't control) so this mirrors that with a direct syscall
// wrapper rather than a container-identity library.
func Effective() CurrentUser {
	return CurrentUser{UID: os.Geteuid(), GID: os.Getegid()}
}

const executableBits = 0o5 // r-x, tested against whichever of owner/group/other applies

// expectedMode returns the permission bits that must be set on path for it
// to count as executable by the current process: the owner triad if the
// caller owns the file, the group triad if the caller is a member of its
// group, and the world triad otherwise.
func expectedMode(path string) (os.FileMode, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	owner, group, ok := ownerGroup(info)
	if !ok {
		return os.FileMode(executableBits), nil
	}
	self := Effective()
	switch {
	case owner == self.UID:
		return os.FileMode(executableBits << 6), nil
	case group == self.GID:
		return os.FileMode(executableBits << 3), nil
	default:
		return os.FileMode(executableBits), nil
	}
}

// IsExecutable reports whether path is executable by the current process,
// i.e. whether the permission bits relevant to the caller's relationship to
// the file (owner/group/other) include the executable bit.
func IsExecutable(path string) (bool, error) {
	mode, err := expectedMode(path)
	if err != nil {
		return false, errors.Wrapf(err, "stat %q", path)
	}
	info, err := os.Stat(path)
	if err != nil {
		return false, errors.Wrapf(err, "stat %q", path)
	}
	return info.Mode()&mode == mode, nil
}

// MakeExecutable sets the executable bit relevant to the caller on path,
// leaving other permission bits untouched.
func MakeExecutable(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return errors.Wrapf(err, "stat %q", path)
	}
	mode, err := expectedMode(path)
	if err != nil {
		return err
	}
	if err := os.Chmod(path, info.Mode()|mode); err != nil {
		return errors.Wrapf(err, "chmod %q", path)
	}
	return nil
}
