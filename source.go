// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

package rustwide

import (
	"os"

	"github.com/pkg/errors"
)

// packageSource is the closed set of behaviors every Package variant
// implements.
type packageSource interface {
	fetch(ws *Workspace) error
	purgeFromCache(ws *Workspace) error
	copySourceTo(ws *Workspace, dest string) error
	String() string
}

// Package is a tagged reference to a Rust package's source: a registry
// entry, a git repository, or a local directory.
type Package struct {
	inner packageSource
}

// RegistryPackage references name at version in the crates.io registry.
func RegistryPackage(name, version string) Package {
	return Package{inner: newRegistryPackage(publicRegistry(), name, version)}
}

// AlternativeRegistryPackage references name at version in a
// non-crates.io registry identified by its index URL.
func AlternativeRegistryPackage(indexURL, name, version string) Package {
	return Package{inner: newRegistryPackage(alternativeRegistry(indexURL), name, version)}
}

// GitPackage references the default branch of the git repository at url.
func GitPackage(url string) Package {
	return Package{inner: newGitPackage(url)}
}

// LocalPackage references a directory already present on the local
// filesystem.
func LocalPackage(path string) Package {
	return Package{inner: newLocalPackage(path)}
}

// Fetch populates the workspace's cache for this package, reaching the
// network for registry and git packages. It is a no-op for local packages.
// Concurrent Fetch calls for the same package are coalesced into one
// download.
func (p Package) Fetch(ws *Workspace) error {
	return ws.coalesceFetch(p.inner.String(), func() error { return p.inner.fetch(ws) })
}

// PurgeFromCache removes this package's cached copy, if any.
func (p Package) PurgeFromCache(ws *Workspace) error { return p.inner.purgeFromCache(ws) }

// GitCommit returns the resolved HEAD commit hash of a git package's
// cached mirror, or "" for any other package kind or if it can't be
// resolved.
func (p Package) GitCommit(ws *Workspace) string {
	git, ok := p.inner.(*gitPackage)
	if !ok {
		return ""
	}
	return git.commit(ws)
}

// String describes the package for logging.
func (p Package) String() string { return p.inner.String() }

func (p Package) copySourceTo(ws *Workspace, dest string) error {
	if _, err := os.Stat(dest); err == nil {
		logf("package source directory %s already exists, cleaning it up", dest)
		if err := os.RemoveAll(dest); err != nil {
			return errors.Wrapf(err, "removing existing source directory %q", dest)
		}
	}
	return p.inner.copySourceTo(ws, dest)
}

// CratePatch is a patch directive applied to a build's manifest under
// patch.crates-io.<name>: either a git reference or a local path.
type CratePatch struct {
	name string

	git    string
	branch string

	path string

	isPath bool
}

// GitPatch patches name to be sourced from branch of the git repository at
// uri.
func GitPatch(name, uri, branch string) CratePatch {
	return CratePatch{name: name, git: uri, branch: branch}
}

// PathPatch patches name to be sourced from a local path, typically one
// bind-mounted into the sandbox via SandboxSpec.Mount.
func PathPatch(name, path string) CratePatch {
	return CratePatch{name: name, path: path, isPath: true}
}
