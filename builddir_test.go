// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

package rustwide

import (
	"os"
	"path/filepath"
	"testing"
)

func TestBuildDirectoryPaths(t *testing.T) {
	ws := &Workspace{root: "/ws"}
	bd := NewBuildDirectory(ws, "serde-1.0.0")

	if got, want := bd.Path(), "/ws/builds/serde-1.0.0"; got != want {
		t.Errorf("Path() = %q, want %q", got, want)
	}
	if got, want := bd.sourceDir(), "/ws/builds/serde-1.0.0/source"; got != want {
		t.Errorf("sourceDir() = %q, want %q", got, want)
	}
	if got, want := bd.targetDir(), "/ws/builds/serde-1.0.0/target"; got != want {
		t.Errorf("targetDir() = %q, want %q", got, want)
	}
}

func TestBuildDirectoryCloseNoPurgeKeepsFiles(t *testing.T) {
	ws := &Workspace{root: t.TempDir()}
	bd := NewBuildDirectory(ws, "crate")
	if err := os.MkdirAll(bd.Path(), 0o755); err != nil {
		t.Fatal(err)
	}

	bd.Close(false)

	if _, err := os.Stat(bd.Path()); err != nil {
		t.Errorf("expected the build directory to survive Close(false): %v", err)
	}
}

func TestBuildDirectoryClosePurgeRemoves(t *testing.T) {
	ws := &Workspace{root: t.TempDir()}
	bd := NewBuildDirectory(ws, "crate")
	if err := os.MkdirAll(bd.Path(), 0o755); err != nil {
		t.Fatal(err)
	}

	bd.Close(true)

	if _, err := os.Stat(bd.Path()); !os.IsNotExist(err) {
		t.Errorf("expected the build directory to be removed, stat err = %v", err)
	}
}

func TestBuildBuilderAccumulatesPatchesAndTargets(t *testing.T) {
	ws := &Workspace{root: t.TempDir()}
	bd := NewBuildDirectory(ws, "crate")
	builder := bd.Build(DistToolchain("stable"), LocalPackage("/src"), NewSandboxSpec()).
		PatchWithGit("quux", "https://git.example.com/quux", "dev").
		PatchWithPath("baz", "/path/to/baz").
		BuildStd("wasm32-unknown-unknown")

	if len(builder.patches) != 2 {
		t.Fatalf("expected 2 patches, got %d", len(builder.patches))
	}
	if len(builder.buildStdTargets) != 1 || builder.buildStdTargets[0] != "wasm32-unknown-unknown" {
		t.Errorf("buildStdTargets = %v", builder.buildStdTargets)
	}
}

func TestBuildCmdMountsSourceAndTarget(t *testing.T) {
	ws := &Workspace{root: t.TempDir()}
	ws.SetSandboxImage(&SandboxImage{name: "rustops/crates-build-env"})
	bd := NewBuildDirectory(ws, "crate")
	if err := os.MkdirAll(bd.sourceDir(), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(bd.targetDir(), 0o755); err != nil {
		t.Fatal(err)
	}

	build := &Build{dir: bd, toolchain: DistToolchain("stable"), sandbox: NewSandboxSpec()}
	cmd := build.Cmd(build.Cargo())

	if cmd.sandbox == nil {
		t.Fatal("expected the command to carry a sandbox spec")
	}
	if len(cmd.sandbox.mounts) != 2 {
		t.Fatalf("expected 2 mounts, got %d: %v", len(cmd.sandbox.mounts), cmd.sandbox.mounts)
	}
	if cmd.dir != canonicalWorkdir {
		t.Errorf("Dir = %q, want %q", cmd.dir, canonicalWorkdir)
	}
	if cmd.env["CARGO_TARGET_DIR"] != canonicalTarget {
		t.Errorf("CARGO_TARGET_DIR = %q, want %q", cmd.env["CARGO_TARGET_DIR"], canonicalTarget)
	}

	found := map[string]bool{}
	for _, m := range cmd.sandbox.mounts {
		found[m.sandboxPath] = true
		if m.kind != MountReadWrite {
			t.Errorf("expected %s mount to be read-write", m.sandboxPath)
		}
	}
	if !found[canonicalWorkdir] || !found[canonicalTarget] {
		t.Errorf("expected mounts for both canonical paths, got %v", found)
	}
}

func TestBuildHostDirAccessors(t *testing.T) {
	ws := &Workspace{root: "/ws"}
	bd := NewBuildDirectory(ws, "crate")
	build := &Build{dir: bd, toolchain: DistToolchain("stable"), sandbox: NewSandboxSpec()}

	if got, want := build.HostSourceDir(), filepath.Join(bd.Path(), "source"); got != want {
		t.Errorf("HostSourceDir() = %q, want %q", got, want)
	}
	if got, want := build.HostTargetDir(), filepath.Join(bd.Path(), "target"); got != want {
		t.Errorf("HostTargetDir() = %q, want %q", got, want)
	}
}
