// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

package rustwide

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestGitPackageCachedPath(t *testing.T) {
	ws := &Workspace{root: "/ws"}
	pkg := newGitPackage("https://github.com/rust-lang/log")
	got := pkg.cachedPath(ws)

	if !strings.HasPrefix(got, filepath.Join(ws.CacheDir(), "git-repos")+string(filepath.Separator)) {
		t.Errorf("cachedPath = %q, expected it under cache/git-repos", got)
	}
	if strings.Contains(filepath.Base(got), "/") {
		t.Errorf("cachedPath leaf should be escaped, got %q", filepath.Base(got))
	}
}

func TestGitPackageString(t *testing.T) {
	pkg := newGitPackage("https://github.com/rust-lang/log")
	if got := pkg.String(); got != "git repo https://github.com/rust-lang/log" {
		t.Errorf("String() = %q", got)
	}
}

func TestSuppressPasswordPromptArgsDisablesThenSetsNullHelper(t *testing.T) {
	ws := &Workspace{root: "/ws"}
	args := suppressPasswordPromptArgs(ws)

	if len(args) != 4 {
		t.Fatalf("expected 4 args, got %v", args)
	}
	if args[1] != "credential.helper=" {
		t.Errorf("first override should clear existing helpers, got %q", args[1])
	}
	if !strings.HasPrefix(args[3], "credential.helper=") || !strings.Contains(args[3], "git-credential-null") {
		t.Errorf("second override should point at git-credential-null, got %q", args[3])
	}
}

func TestGitPackageCommitReturnsEmptyOnMissingCache(t *testing.T) {
	ws := &Workspace{root: t.TempDir()}
	pkg := newGitPackage("https://example.com/does-not-exist.git")
	if got := pkg.commit(ws); got != "" {
		t.Errorf("expected empty commit for an unclonable repo, got %q", got)
	}
}
