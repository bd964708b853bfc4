// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

//go:build unix


package native

import (
	"os"
	"syscall"
)

// ownerGroup extracts the owning uid/gid from a Unix FileInfo.
func ownerGroup(info os.FileInfo) (uid, gid int, ok bool) {
	stat, isStatT := info.Sys().(*syscall.Stat_t)
	if !isStatT {
		return 0, 0, false
	}
	return int(stat.Uid), int(stat.Gid), true
}
