// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

package rustwide

import (
	"os"
	"strings"
	"testing"
	"time"
)

func TestTimeResolve(t *testing.T) {
	fallback := 10 * time.Second

	if got := (Time{}).resolve(fallback); got != fallback {
		t.Errorf("zero Time should resolve to fallback, got %v", got)
	}
	if got := Bounded(5 * time.Second).resolve(fallback); got != 5*time.Second {
		t.Errorf("Bounded should resolve to its own duration, got %v", got)
	}
	if got := Unbounded().resolve(fallback); got != 0 {
		t.Errorf("Unbounded should resolve to 0, got %v", got)
	}
}

func TestMergeOSEnvOverridesWin(t *testing.T) {
	key := "RUSTWIDE_TEST_MERGE_ENV"
	if err := os.Setenv(key, "original"); err != nil {
		t.Fatal(err)
	}
	defer os.Unsetenv(key)

	merged := mergeOSEnv(map[string]string{key: "overridden", "RUSTWIDE_TEST_NEW": "fresh"})

	var sawOverride, sawNew bool
	for _, kv := range merged {
		switch kv {
		case key + "=overridden":
			sawOverride = true
		case "RUSTWIDE_TEST_NEW=fresh":
			sawNew = true
		case key + "=original":
			t.Errorf("original value leaked through: %q", kv)
		}
	}
	if !sawOverride {
		t.Error("override was not applied")
	}
	if !sawNew {
		t.Error("new key was not appended")
	}
}

func TestNewCommandPrependsRustupToolchain(t *testing.T) {
	bin := Binary{name: "cargo", rustupToolchain: "nightly-2024-01-01"}
	cmd := newCommand(&Workspace{}, bin, "build", "--release")

	if len(cmd.args) < 2 || cmd.args[0] != "+nightly-2024-01-01" {
		t.Fatalf("expected +toolchain to be prepended, got %v", cmd.args)
	}
	if !strings.Contains(strings.Join(cmd.args, " "), "build --release") {
		t.Errorf("original args lost: %v", cmd.args)
	}
}

func TestResolvedProgramGlobalIgnoresSandbox(t *testing.T) {
	ws := &Workspace{root: "/ws"}
	c := newCommand(ws, GlobalBinary("docker"))
	c.sandbox = NewSandboxSpec()

	if got := c.resolvedProgram(); got != "docker" {
		t.Errorf("global binary should resolve to its bare name, got %q", got)
	}
}

func TestResolvedProgramManagedSandboxedUsesCanonicalPath(t *testing.T) {
	ws := &Workspace{root: "/ws"}
	c := newCommand(ws, ManagedBinary("cargo"))
	c.sandbox = NewSandboxSpec()

	want := canonicalCargoHome + "/bin/cargo"
	if got := c.resolvedProgram(); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestResolvedProgramManagedNativeUsesHostCargoHome(t *testing.T) {
	ws := &Workspace{root: "/ws"}
	c := newCommand(ws, ManagedBinary("cargo"))

	got := c.resolvedProgram()
	if !strings.HasPrefix(got, ws.CargoHome()) {
		t.Errorf("expected a host cargo-home path, got %q", got)
	}
}

func TestResolvedEnvSandboxedUsesCanonicalPaths(t *testing.T) {
	ws := &Workspace{root: "/ws"}
	c := newCommand(ws, ManagedBinary("cargo"))
	c.sandbox = NewSandboxSpec()

	env := c.resolvedEnv()
	if env["CARGO_HOME"] != canonicalCargoHome {
		t.Errorf("CARGO_HOME = %q, want %q", env["CARGO_HOME"], canonicalCargoHome)
	}
	if env["RUSTUP_HOME"] != canonicalRustupHome {
		t.Errorf("RUSTUP_HOME = %q, want %q", env["RUSTUP_HOME"], canonicalRustupHome)
	}
}

func TestResolvedEnvNativeUsesHostPaths(t *testing.T) {
	ws := &Workspace{root: "/ws"}
	c := newCommand(ws, ManagedBinary("cargo"))

	env := c.resolvedEnv()
	if env["CARGO_HOME"] != ws.CargoHome() {
		t.Errorf("CARGO_HOME = %q, want %q", env["CARGO_HOME"], ws.CargoHome())
	}
}

func TestResolvedEnvGlobalBinaryOmitsCargoEnv(t *testing.T) {
	ws := &Workspace{root: "/ws"}
	c := newCommand(ws, GlobalBinary("git"))

	env := c.resolvedEnv()
	if _, ok := env["CARGO_HOME"]; ok {
		t.Errorf("global binaries should not get CARGO_HOME set implicitly")
	}
}

func TestResolvedEnvCallerOverlayWins(t *testing.T) {
	ws := &Workspace{root: "/ws"}
	c := newCommand(ws, ManagedBinary("cargo")).Env("CARGO_HOME", "/custom")

	if got := c.resolvedEnv()["CARGO_HOME"]; got != "/custom" {
		t.Errorf("caller overlay should win, got %q", got)
	}
}

func TestJoinLines(t *testing.T) {
	if got := joinLines(nil); got != "" {
		t.Errorf("joinLines(nil) = %q, want empty", got)
	}
	if got := joinLines([]string{"a", "b"}); got != "a\nb" {
		t.Errorf("joinLines = %q", got)
	}
}
