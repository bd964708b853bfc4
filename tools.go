// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

package rustwide

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"

	"github.com/pkg/errors"
	"github.com/rust-lang/rustwide/internal/native"
)

// rustupVersion pins the rustup-init bootstrapper to a known-good release.
// 1.28 regressed in a way that breaks Rustwide's usage; see
// https://github.com/rust-lang/rustup/issues/4224.
const rustupVersion = "1.27.1"

// mainToolchainName is the dist toolchain rustup itself is bootstrapped
// with, and the one Update keeps current.
const mainToolchainName = "stable"

// hostTarget is the platform triple used to select the rustup-init
// download. Only the pairs Rustwide's sandboxing story actually runs on
// are covered, in a fixed table rather than a probe; on any other platform
// rustupTool.install returns an error naming the platform.
var hostTarget = map[string]map[string]string{
	"linux": {
		"amd64": "x86_64-unknown-linux-gnu",
		"arm64": "aarch64-unknown-linux-gnu",
	},
	"darwin": {
		"amd64": "x86_64-apple-darwin",
		"arm64": "aarch64-apple-darwin",
	},
}[runtime.GOOS]

// tool is the Tool Registry's uniform shape for a required external binary.
type tool interface {
	toolName() string
	isInstalled(ws *Workspace) (bool, error)
	install(ws *Workspace) error
	update(ws *Workspace) error
}

// installToolRegistry ensures every required tool is present and current,
// installing missing tools and updating present ones.
func installToolRegistry(ws *Workspace) error {
	for _, t := range installableTools {
		installed, err := t.isInstalled(ws)
		if err != nil {
			return errors.Wrapf(err, "checking whether %s is installed", t.toolName())
		}
		if installed {
			logf("tool %s is installed, updating it", t.toolName())
			if err := t.update(ws); err != nil {
				return errors.Wrapf(err, "updating %s", t.toolName())
			}
			continue
		}
		logf("tool %s is missing, installing it", t.toolName())
		if err := t.install(ws); err != nil {
			return errors.Wrapf(err, "installing %s", t.toolName())
		}
		installed, err = t.isInstalled(ws)
		if err != nil {
			return err
		}
		if !installed {
			return errors.Errorf("tool %s is still missing after install", t.toolName())
		}
	}
	return nil
}

var installableTools = []tool{
	rustupTool{},
	binaryCrateTool{crateName: "cargo-update", binary: "cargo-install-update", cargoSubcommand: "install-update"},
	binaryCrateTool{crateName: "rustup-toolchain-install-master", binary: "rustup-toolchain-install-master"},
	binaryCrateTool{crateName: "git-credential-null", binary: "git-credential-null"},
}

func toolBinaryPath(ws *Workspace, name string) string {
	exeSuffix := ""
	if runtime.GOOS == "windows" {
		exeSuffix = ".exe"
	}
	return filepath.Join(ws.CargoHome(), "bin", name+exeSuffix)
}

// rustupTool bootstraps rustup itself via a pinned rustup-init download,
// since cargo isn't available yet to install it any other way.
type rustupTool struct{}

func (rustupTool) toolName() string { return "rustup" }

func (rustupTool) isInstalled(ws *Workspace) (bool, error) {
	path := toolBinaryPath(ws, "rustup")
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return native.IsExecutable(path)
}

func (rustupTool) install(ws *Workspace) error {
	if err := os.MkdirAll(ws.CargoHome(), 0o755); err != nil {
		return err
	}
	if err := os.MkdirAll(ws.RustupHome(), 0o755); err != nil {
		return err
	}

	exeSuffix := ""
	if runtime.GOOS == "windows" {
		exeSuffix = ".exe"
	}
	target, ok := hostTarget[runtime.GOARCH]
	if !ok {
		return errors.Errorf("no known rustup-init target triple for %s/%s", runtime.GOOS, runtime.GOARCH)
	}
	url := fmt.Sprintf("https://static.rust-lang.org/rustup/archive/%s/%s/rustup-init%s", rustupVersion, target, exeSuffix)

	req, err := ws.HTTPClient().Get(url)
	if err != nil {
		return errors.Wrap(err, "downloading rustup-init")
	}
	defer req.Body.Close()
	if req.StatusCode >= 400 {
		return errors.Errorf("downloading rustup-init: unexpected status %s", req.Status)
	}

	tmpDir, err := os.MkdirTemp("", "rustwide-rustup-init")
	if err != nil {
		return err
	}
	defer os.RemoveAll(tmpDir)

	installerPath := filepath.Join(tmpDir, "rustup-init"+exeSuffix)
	f, err := os.Create(installerPath)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, req.Body); err != nil {
		f.Close()
		return errors.Wrap(err, "writing rustup-init")
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := native.MakeExecutable(installerPath); err != nil {
		return err
	}

	return ws.Cmd(GlobalBinary(installerPath),
		"-y", "--no-modify-path",
		"--default-toolchain", mainToolchainName,
		"--profile", ws.rustupProfile,
	).Env("RUSTUP_HOME", ws.RustupHome()).Env("CARGO_HOME", ws.CargoHome()).Run()
}

func (rustupTool) update(ws *Workspace) error {
	return ws.Cmd(ManagedBinary("rustup"), "update", mainToolchainName, "--no-self-update").Run()
}

// binaryCrateTool installs/updates a tool distributed as a crate containing
// a single binary of the same (or a related) name, via `cargo install`.
type binaryCrateTool struct {
	crateName       string
	binary          string
	cargoSubcommand string
}

func (t binaryCrateTool) toolName() string { return t.binary }

func (t binaryCrateTool) isInstalled(ws *Workspace) (bool, error) {
	path := toolBinaryPath(ws, t.binary)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return native.IsExecutable(path)
}

func (t binaryCrateTool) install(ws *Workspace) error {
	return ws.Cmd(ManagedBinary("cargo"), "install", t.crateName).Run()
}

func (t binaryCrateTool) update(ws *Workspace) error {
	if t.cargoSubcommand == "" {
		// No update mechanism beyond reinstalling is available for this
		// crate; idempotent `cargo install` is the update.
		return ws.Cmd(ManagedBinary("cargo"), "install", t.crateName, "--force").Run()
	}
	return ws.Cmd(ManagedBinary("cargo"), t.cargoSubcommand, t.crateName).Run()
}
