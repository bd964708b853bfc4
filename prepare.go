// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

package rustwide

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/rust-lang/rustwide/internal/lineio"
)

// overrideFiles are removed from a package's source tree before a build:
// they would otherwise let the package pin its own cargo config or
// toolchain, bypassing the one the build was asked to use.
var overrideFiles = []string{
	filepath.Join(".cargo", "config"),
	filepath.Join(".cargo", "config.toml"),
	"rust-toolchain",
	"rust-toolchain.toml",
}

// prepare runs the Preparation Pipeline against sourceDir: copy the
// package's source, strip override files, rewrite the manifest, validate
// it, ensure a lockfile exists, and fetch dependencies.
func prepare(ws *Workspace, toolchain Toolchain, pkg Package, sourceDir string, patches []CratePatch) error {
	if err := pkg.copySourceTo(ws, sourceDir); err != nil {
		return err
	}
	if err := removeOverrideFiles(sourceDir); err != nil {
		return err
	}
	if err := tweakManifest(pkg.String(), filepath.Join(sourceDir, "Cargo.toml"), patches); err != nil {
		return err
	}
	if err := validateManifest(ws, toolchain, pkg, sourceDir); err != nil {
		return err
	}
	generated, err := captureLockfile(ws, toolchain, pkg, sourceDir)
	if err != nil {
		return err
	}
	return fetchDeps(ws, toolchain, sourceDir, nil, generated)
}

func removeOverrideFiles(sourceDir string) error {
	for _, rel := range overrideFiles {
		path := filepath.Join(sourceDir, rel)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := os.Remove(path); err != nil {
			return err
		}
		logf("removed %s", path)
	}
	return nil
}

func validateManifest(ws *Workspace, toolchain Toolchain, pkg Package, sourceDir string) error {
	logf("validating manifest of %s on toolchain %s", pkg, toolchain.rustupName())

	if _, err := os.Stat(filepath.Join(sourceDir, "Cargo.toml")); err != nil {
		return &PrepareError{Kind: MissingCargoToml}
	}

	err := ws.Cmd(toolchain.Cargo(), "metadata", "--manifest-path", "Cargo.toml", "--no-deps").
		Dir(sourceDir).LogOutput(false).Run()
	if err != nil {
		return &PrepareError{Kind: InvalidCargoTomlSyntax}
	}
	return nil
}

// captureLockfile ensures sourceDir has a Cargo.lock, generating one if
// absent, and reports whether this call is the one that generated it. A
// freshly generated lockfile is assumed consistent with the manifest that
// just produced it, so fetchDeps only attempts its regenerate-and-retry
// fallback when generated is false.
func captureLockfile(ws *Workspace, toolchain Toolchain, pkg Package, sourceDir string) (generated bool, err error) {
	if _, statErr := os.Stat(filepath.Join(sourceDir, "Cargo.lock")); statErr == nil {
		logf("crate %s already has a lockfile, it will not be regenerated", pkg)
		return false, nil
	}
	if err := generateLockfile(ws, toolchain, sourceDir); err != nil {
		return false, err
	}
	return true, nil
}

func generateLockfile(ws *Workspace, toolchain Toolchain, sourceDir string) error {
	cmd := ws.Cmd(toolchain.Cargo(), "generate-lockfile", "--manifest-path", "Cargo.toml").Dir(sourceDir)
	if !ws.FetchRegistryIndexUpdates() {
		cmd = cmd.Args("-Zno-index-update").Env("__CARGO_TEST_CHANNEL_OVERRIDE_DO_NOT_USE_THIS", "nightly")
	}
	return runClassified(cmd)
}

// fetchDeps runs `cargo fetch`, requesting the build-std components and
// sources for buildStdTargets when non-empty. generated reports whether
// the lockfile was just written by captureLockfile in this same pipeline
// run: when it wasn't (an existing lockfile may be stale relative to a
// rewritten manifest or a changed registry) and the fetch fails, the
// lockfile is regenerated and the fetch retried exactly once before the
// error is propagated.
func fetchDeps(ws *Workspace, toolchain Toolchain, sourceDir string, buildStdTargets []string, generated bool) error {
	if len(buildStdTargets) > 0 {
		if err := toolchain.AddComponent(ws, "rust-src"); err != nil {
			return err
		}
	}

	newFetchCmd := func() *Command {
		cmd := ws.Cmd(toolchain.Cargo(), "fetch", "--manifest-path", "Cargo.toml").Dir(sourceDir)
		if len(buildStdTargets) > 0 {
			cmd = cmd.Args("-Zbuild-std").Env("__CARGO_TEST_CHANNEL_OVERRIDE_DO_NOT_USE_THIS", "nightly")
			for _, target := range buildStdTargets {
				cmd = cmd.Args("--target", target)
			}
		}
		return cmd
	}

	err := runClassified(newFetchCmd())
	if err == nil || generated {
		return err
	}

	logf("cargo fetch failed in %s, regenerating the lockfile and retrying once", sourceDir)
	if regenErr := generateLockfile(ws, toolchain, sourceDir); regenErr != nil {
		return err
	}
	return runClassified(newFetchCmd())
}

// runClassified runs cmd, watching its output for the substrings cargo
// emits for each recognized dependency failure mode, and maps an
// ExecutionFailed CommandError to the matching PrepareError.
func runClassified(cmd *Command) error {
	var yanked, missing, broken, brokenLockfile bool
	cmd = cmd.Transform(func(line lineio.Line, _ *lineio.Actions) {
		switch {
		case strings.Contains(line.Text, "failed to select a version for the requirement"):
			yanked = true
		case strings.Contains(line.Text, "failed to load source for dependency"),
			strings.Contains(line.Text, "no matching package named"):
			missing = true
		case strings.Contains(line.Text, "failed to parse manifest at"),
			strings.Contains(line.Text, "error: invalid table header"):
			broken = true
		case strings.Contains(line.Text, "error: failed to parse lock file at"):
			brokenLockfile = true
		}
	})

	_, err := cmd.RunCapture()
	return classifyDependencyFailure(err, yanked, missing, broken, brokenLockfile)
}

// classifyDependencyFailure maps an ExecutionFailed CommandError to the
// PrepareError variant matching whichever output-scan flag is set, checked
// in priority order. Any other error, or a nil error, passes through
// unchanged.
func classifyDependencyFailure(err error, yanked, missing, broken, brokenLockfile bool) error {
	if err == nil {
		return nil
	}

	cmdErr, ok := err.(*CommandError)
	if !ok || cmdErr.Kind != ExecutionFailed {
		return err
	}

	switch {
	case yanked:
		return &PrepareError{Kind: YankedDependencies, Stderr: cmdErr.Stderr}
	case missing:
		return &PrepareError{Kind: MissingDependencies, Stderr: cmdErr.Stderr}
	case broken:
		return &PrepareError{Kind: BrokenDependencies, Stderr: cmdErr.Stderr}
	case brokenLockfile:
		return &PrepareError{Kind: InvalidCargoLock, Stderr: cmdErr.Stderr}
	default:
		return err
	}
}
