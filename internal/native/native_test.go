// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

package native

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"
)

func TestEffective(t *testing.T) {
	self := Effective()
	if self.UID != os.Geteuid() || self.GID != os.Getegid() {
		t.Fatalf("Effective() = %+v, want {%d %d}", self, os.Geteuid(), os.Getegid())
	}
}

func TestMakeExecutableAndIsExecutable(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	isExec, err := IsExecutable(path)
	if err != nil {
		t.Fatal(err)
	}
	if isExec {
		t.Fatal("freshly created file should not be executable")
	}
	if err := MakeExecutable(path); err != nil {
		t.Fatal(err)
	}
	isExec, err = IsExecutable(path)
	if err != nil {
		t.Fatal(err)
	}
	if !isExec {
		t.Fatal("file should be executable after MakeExecutable")
	}
}

func TestKillProcess(t *testing.T) {
	cmd := exec.Command("sleep", "5")
	PrepareForChildren(cmd)
	if err := cmd.Start(); err != nil {
		t.Skipf("sleep not available: %v", err)
	}
	if err := Kill(cmd); err != nil {
		t.Fatalf("Kill() = %v", err)
	}
	err := cmd.Wait()
	if err == nil {
		t.Fatal("expected killed process to return an error from Wait")
	}
}

func TestKillUnstarted(t *testing.T) {
	cmd := exec.Command("sleep", "5")
	if err := Kill(cmd); err == nil {
		t.Fatal("expected error killing an unstarted command")
	}
}
