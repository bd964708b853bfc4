// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

package rustwide

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/rust-lang/rustwide/internal/lineio"
	"github.com/rust-lang/rustwide/internal/pathutil"
	"github.com/rust-lang/rustwide/internal/uri"
)

type gitPackage struct {
	url string
}

// newGitPackage canonicalizes well-known repo hosts (github.com, gitlab.com,
// bitbucket.org) to a lowercase https URL, so "git@github.com:a/b.git" and
// "https://github.com/a/b" cache under the same path. URLs that don't match
// a known host, including self-hosted and scp-style ones with embedded
// userinfo, are kept verbatim.
func newGitPackage(url string) *gitPackage {
	if uri.SmellsLikeARepo(url) {
		if canonical, err := uri.CanonicalizeRepoURI(url); err == nil {
			url = canonical
		}
	}
	return &gitPackage{url: url}
}

func (p *gitPackage) String() string { return fmt.Sprintf("git repo %s", p.url) }

func (p *gitPackage) cachedPath(ws *Workspace) string {
	return filepath.Join(ws.CacheDir(), "git-repos", pathutil.Escape(p.url))
}

// suppressPasswordPromptArgs disables every credential helper and
// installs a null one, so an authentication prompt never blocks; git
// reports "told us to quit" instead, which fetch/clone use to classify
// private repositories.
func suppressPasswordPromptArgs(ws *Workspace) []string {
	return []string{
		"-c", "credential.helper=",
		"-c", "credential.helper=" + toolBinaryPath(ws, "git-credential-null"),
	}
}

func (p *gitPackage) fetch(ws *Workspace) error {
	path := p.cachedPath(ws)

	var privateRepo bool
	detect := func(line lineio.Line, _ *lineio.Actions) {
		if strings.HasPrefix(line.Text, "fatal: credential helper") && strings.HasSuffix(line.Text, "told us to quit") {
			privateRepo = true
		}
	}

	var err error
	if _, statErr := os.Stat(filepath.Join(path, "HEAD")); statErr == nil {
		logf("updating cached repository %s", p.url)
		args := append(suppressPasswordPromptArgs(ws), "-c", "remote.origin.fetch=refs/heads/*:refs/heads/*", "fetch", "origin", "--force", "--prune")
		err = ws.Cmd(GlobalBinary("git"), args...).Dir(path).Transform(detect).Run()
	} else {
		logf("cloning repository %s", p.url)
		args := append(suppressPasswordPromptArgs(ws), "clone", "--bare", p.url, path)
		err = ws.Cmd(GlobalBinary("git"), args...).Transform(detect).Run()
	}

	if privateRepo && err != nil {
		return &PrepareError{Kind: PrivateGitRepository}
	}
	return err
}

func (p *gitPackage) purgeFromCache(ws *Workspace) error {
	path := p.cachedPath(ws)
	if _, err := os.Stat(path); err == nil {
		return os.RemoveAll(path)
	}
	return nil
}

func (p *gitPackage) copySourceTo(ws *Workspace, dest string) error {
	return ws.Cmd(GlobalBinary("git"), "clone", p.cachedPath(ws), dest).Run()
}

// commit resolves the cached mirror's HEAD to a commit hash via go-git,
// returning "" on any failure (this is a best-effort lookup the original
// crate makes no promise about beyond "some commits").
func (p *gitPackage) commit(ws *Workspace) string {
	repo, err := git.PlainOpen(p.cachedPath(ws))
	if err != nil {
		logf("unable to open cached repository for %s: %v", p.url, err)
		return ""
	}
	head, err := repo.Head()
	if err != nil {
		logf("unable to resolve HEAD for %s: %v", p.url, err)
		return ""
	}
	return head.Hash().String()
}
