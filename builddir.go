// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

package rustwide

import (
	"os"
	"path/filepath"
)

// BuildDirectory is a named scratch area under the workspace's BuildsDir,
// holding a recreated-per-run source/ tree and a target/ directory that
// persists across runs.
type BuildDirectory struct {
	ws   *Workspace
	name string
}

// NewBuildDirectory references builds/<name> inside ws, without touching
// the filesystem yet.
func NewBuildDirectory(ws *Workspace, name string) *BuildDirectory {
	return &BuildDirectory{ws: ws, name: name}
}

// Path returns the build directory's root.
func (bd *BuildDirectory) Path() string { return filepath.Join(bd.ws.BuildsDir(), bd.name) }

func (bd *BuildDirectory) sourceDir() string { return filepath.Join(bd.Path(), "source") }
func (bd *BuildDirectory) targetDir() string { return filepath.Join(bd.Path(), "target") }

// Build returns a builder for a single preparation-and-build run against
// pkg on toolchain, sandboxed per spec.
func (bd *BuildDirectory) Build(toolchain Toolchain, pkg Package, spec *SandboxSpec) *BuildBuilder {
	return &BuildBuilder{dir: bd, toolchain: toolchain, pkg: pkg, sandbox: spec}
}

// Close removes the build directory entirely when purge is true. Removal
// failures are logged, not propagated: a leftover scratch directory is not
// worth failing an otherwise-complete operation over.
func (bd *BuildDirectory) Close(purge bool) {
	if !purge {
		return
	}
	if err := os.RemoveAll(bd.Path()); err != nil {
		logf("failed to purge build directory %s: %v", bd.Path(), err)
	}
}

// BuildBuilder accumulates patches and build-std targets before Run
// executes the preparation pipeline and hands control to the caller.
type BuildBuilder struct {
	dir       *BuildDirectory
	toolchain Toolchain
	pkg       Package
	sandbox   *SandboxSpec

	patches         []CratePatch
	buildStdTargets []string
}

// PatchWithGit patches name to be sourced from branch of the git repository
// at uri during this build.
func (b *BuildBuilder) PatchWithGit(name, uri, branch string) *BuildBuilder {
	b.patches = append(b.patches, GitPatch(name, uri, branch))
	return b
}

// PatchWithPath patches name to be sourced from a local path during this
// build.
func (b *BuildBuilder) PatchWithPath(name, path string) *BuildBuilder {
	b.patches = append(b.patches, PathPatch(name, path))
	return b
}

// BuildStd requests that dependency fetching also pull the sources
// build-std needs for the given target triples.
func (b *BuildBuilder) BuildStd(targets ...string) *BuildBuilder {
	b.buildStdTargets = append(b.buildStdTargets, targets...)
	return b
}

// Run executes the preparation pipeline against a fresh source/ tree,
// ensures target/ exists, and invokes f with a Build handle. On success,
// source/ is removed; target/ always persists.
func (b *BuildBuilder) Run(f func(*Build) error) error {
	ws := b.dir.ws

	if err := os.RemoveAll(b.dir.sourceDir()); err != nil {
		return err
	}
	if err := os.MkdirAll(b.dir.sourceDir(), 0o755); err != nil {
		return err
	}
	if err := os.MkdirAll(b.dir.targetDir(), 0o755); err != nil {
		return err
	}

	if err := prepare(ws, b.toolchain, b.pkg, b.dir.sourceDir(), b.patches); err != nil {
		return err
	}
	if len(b.buildStdTargets) > 0 {
		if err := fetchDeps(ws, b.toolchain, b.dir.sourceDir(), b.buildStdTargets, false); err != nil {
			return err
		}
	}

	build := &Build{dir: b.dir, toolchain: b.toolchain, sandbox: b.sandbox}
	if err := f(build); err != nil {
		return err
	}

	if err := os.RemoveAll(b.dir.sourceDir()); err != nil {
		logf("failed to remove source directory after successful build: %v", err)
	}
	return nil
}

// Build is the handle a BuildBuilder.Run closure receives: it constructs
// sandboxed Commands bound to this build's source/target directories and
// toolchain.
type Build struct {
	dir       *BuildDirectory
	toolchain Toolchain
	sandbox   *SandboxSpec
}

// HostSourceDir returns the host-side path of this build's source tree.
func (bld *Build) HostSourceDir() string { return bld.dir.sourceDir() }

// HostTargetDir returns the host-side path of this build's target
// directory.
func (bld *Build) HostTargetDir() string { return bld.dir.targetDir() }

// Cmd constructs a sandboxed Command bound to this build: source/ is
// mounted read-write at the canonical workdir, target/ is mounted
// read-write at the canonical target dir, CARGO_TARGET_DIR points at the
// latter, and the working directory is the former.
func (bld *Build) Cmd(binary Binary) *Command {
	spec := bld.sandbox.
		Mount(bld.HostSourceDir(), canonicalWorkdir, MountReadWrite).
		Mount(bld.HostTargetDir(), canonicalTarget, MountReadWrite)

	return bld.dir.ws.Cmd(binary).
		Sandbox(spec).
		Dir(canonicalWorkdir).
		Env("CARGO_TARGET_DIR", canonicalTarget)
}

// Cargo is the rustup-proxied cargo bound to this build's toolchain.
func (bld *Build) Cargo() Binary { return bld.toolchain.Cargo() }
