// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

package rustwide

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rust-lang/rustwide/internal/lineio"
	"github.com/rust-lang/rustwide/internal/semver"
)

// Toolchain is a tagged reference to a Rust toolchain: either a dist
// release recognized by rustup (e.g. "stable", "1.60.0") or a CI build
// identified by a commit hash and whether it was built with the "-alt"
// suffix. CI toolchains support only Install/Uninstall/Cargo/Rustc;
// AddComponent/AddTarget return ToolchainError{UnsupportedOperation}.
type Toolchain struct {
	dist bool
	name string // dist name, or the CI sha

	alt bool // CI only
}

// DistToolchain references a toolchain recognized by rustup by name.
func DistToolchain(name string) Toolchain {
	return Toolchain{dist: true, name: name}
}

// CIToolchain references a toolchain built from a specific commit by
// rustup-toolchain-install-master.
func CIToolchain(sha string, alt bool) Toolchain {
	return Toolchain{name: sha, alt: alt}
}

// rustupName is the identity rustup itself uses to select this toolchain.
func (t Toolchain) rustupName() string {
	if t.dist {
		return t.name
	}
	if t.alt {
		return t.name + "-alt"
	}
	return t.name
}

// IsDist reports whether this is a dist toolchain.
func (t Toolchain) IsDist() bool { return t.dist }

// Install installs the toolchain into the workspace's rustup-home.
func (t Toolchain) Install(ws *Workspace) error {
	if t.dist {
		return ws.Cmd(ManagedBinary("rustup"), "toolchain", "install", t.name, "--profile", ws.rustupProfile).Run()
	}
	args := []string{t.name, "-c", "cargo"}
	if t.alt {
		args = append(args, "--alt")
	}
	return ws.Cmd(ManagedBinary("rustup-toolchain-install-master"), args...).Run()
}

// Uninstall removes the toolchain from the workspace's rustup-home.
func (t Toolchain) Uninstall(ws *Workspace) error {
	return ws.Cmd(ManagedBinary("rustup"), "toolchain", "uninstall", t.rustupName()).Run()
}

// AddComponent installs an additional rustup component (e.g. "rust-src")
// for this toolchain. Disallowed for CI toolchains.
func (t Toolchain) AddComponent(ws *Workspace, name string) error {
	if !t.dist {
		return &ToolchainError{Kind: UnsupportedOperation}
	}
	return ws.Cmd(ManagedBinary("rustup"), "component", "add", "--toolchain", t.rustupName(), name).Run()
}

// RemoveComponent uninstalls a rustup component for this toolchain.
// Disallowed for CI toolchains.
func (t Toolchain) RemoveComponent(ws *Workspace, name string) error {
	if !t.dist {
		return &ToolchainError{Kind: UnsupportedOperation}
	}
	return ws.Cmd(ManagedBinary("rustup"), "component", "remove", "--toolchain", t.rustupName(), name).Run()
}

// AddTarget installs an additional compilation target for this toolchain.
// Disallowed for CI toolchains.
func (t Toolchain) AddTarget(ws *Workspace, target string) error {
	if !t.dist {
		return &ToolchainError{Kind: UnsupportedOperation}
	}
	return ws.Cmd(ManagedBinary("rustup"), "target", "add", "--toolchain", t.rustupName(), target).Run()
}

// RemoveTarget uninstalls a compilation target for this toolchain.
// Disallowed for CI toolchains.
func (t Toolchain) RemoveTarget(ws *Workspace, target string) error {
	if !t.dist {
		return &ToolchainError{Kind: UnsupportedOperation}
	}
	return ws.Cmd(ManagedBinary("rustup"), "target", "remove", "--toolchain", t.rustupName(), target).Run()
}

// InstalledTargets lists the compilation targets installed for this
// toolchain, by scanning `rustup target list --installed`.
func (t Toolchain) InstalledTargets(ws *Workspace) ([]string, error) {
	var notInstalled bool
	out, err := ws.Cmd(ManagedBinary("rustup"), "target", "list", "--installed", "--toolchain", t.rustupName()).
		Transform(func(line lineio.Line, actions *lineio.Actions) {
			if strings.Contains(line.Text, "is not installed") {
				notInstalled = true
			}
		}).RunCapture()
	if notInstalled {
		return nil, &ToolchainError{Kind: NotInstalled}
	}
	if err != nil {
		return nil, err
	}
	return out.Stdout, nil
}

// Cargo is a ManagedByRustwide binary that, when run, proxies through
// rustup to this toolchain's cargo.
func (t Toolchain) Cargo() Binary { return t.rustupProxied("cargo") }

// Rustc is a ManagedByRustwide binary that proxies through rustup to this
// toolchain's rustc.
func (t Toolchain) Rustc() Binary { return t.rustupProxied("rustc") }

// RustupBinary is a ManagedByRustwide binary that proxies through rustup to
// this toolchain's copy of name.
func (t Toolchain) RustupBinary(name string) Binary { return t.rustupProxied(name) }

func (t Toolchain) rustupProxied(name string) Binary {
	return Binary{name: name, rustupToolchain: t.rustupName()}
}

// InstalledToolchain is one entry from ListInstalledToolchains.
type InstalledToolchain struct {
	Toolchain Toolchain
}

// ListInstalledToolchains scans <rustup-home>/toolchains for installed
// toolchains, classifying each directory entry as dist (a symlink, or a
// regular entry with a same-named file under update-hashes/) or CI
// (anything else, with an "-alt" suffix stripped into the alt flag).
func ListInstalledToolchains(ws *Workspace) ([]InstalledToolchain, error) {
	toolchainsDir := filepath.Join(ws.RustupHome(), "toolchains")
	entries, err := os.ReadDir(toolchainsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var out []InstalledToolchain
	for _, entry := range entries {
		name := entry.Name()
		if isDistToolchainEntry(ws, entry) {
			out = append(out, InstalledToolchain{Toolchain: DistToolchain(name)})
			continue
		}
		sha := name
		alt := false
		if rest, ok := strings.CutSuffix(name, "-alt"); ok {
			sha = rest
			alt = true
		}
		out = append(out, InstalledToolchain{Toolchain: CIToolchain(sha, alt)})
	}
	sortInstalledToolchains(out)
	return out, nil
}

// sortInstalledToolchains orders pinned dist releases ("1.60.0") by
// semver, ahead of channel names ("stable", "beta", "nightly") and CI
// toolchains, which sort lexically among themselves. Listing order has no
// semantic meaning to rustup; this only makes output stable and readable.
func sortInstalledToolchains(toolchains []InstalledToolchain) {
	sort.SliceStable(toolchains, func(i, j int) bool {
		a, b := toolchains[i].Toolchain, toolchains[j].Toolchain
		va, aIsVersion := a.distVersion()
		vb, bIsVersion := b.distVersion()
		if aIsVersion && bIsVersion {
			return semverLess(va, vb)
		}
		if aIsVersion != bIsVersion {
			return aIsVersion
		}
		return a.rustupName() < b.rustupName()
	})
}

// distVersion parses a dist toolchain's name as a semver, for toolchains
// pinned to an exact release rather than named by channel.
func (t Toolchain) distVersion() (semver.Semver, bool) {
	if !t.dist {
		return semver.Semver{}, false
	}
	v, err := semver.New(t.name)
	return v, err == nil
}

func semverLess(a, b semver.Semver) bool {
	if a.Major != b.Major {
		return a.Major < b.Major
	}
	if a.Minor != b.Minor {
		return a.Minor < b.Minor
	}
	return a.Patch < b.Patch
}

func isDistToolchainEntry(ws *Workspace, entry os.DirEntry) bool {
	if entry.Type()&os.ModeSymlink != 0 {
		return true
	}
	updateHash := filepath.Join(ws.RustupHome(), "update-hashes", entry.Name())
	_, err := os.Stat(updateHash)
	return err == nil
}
