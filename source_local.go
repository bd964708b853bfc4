// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

package rustwide

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// localPackage references a directory already present on the local
// filesystem. fetch and purgeFromCache are no-ops: there is no cache to
// populate or clear.
type localPackage struct {
	path string
}

func newLocalPackage(path string) *localPackage {
	return &localPackage{path: path}
}

func (p *localPackage) String() string { return fmt.Sprintf("local crate %s", p.path) }

func (p *localPackage) fetch(ws *Workspace) error { return nil }

func (p *localPackage) purgeFromCache(ws *Workspace) error { return nil }

func (p *localPackage) copySourceTo(ws *Workspace, dest string) error {
	logf("copying local crate from %s to %s", p.path, dest)
	return copyTree(p.path, dest)
}

// copyTree reproduces src's structure under dest, following symlinks and
// skipping a top-level target/ directory. A broken or cyclic symlink
// surfaces as an error naming the offending path.
func copyTree(src, dest string) error {
	return copyTreeEntries(src, dest, 0)
}

func copyTreeEntries(srcDir, destDir string, depth int) error {
	entries, err := os.ReadDir(srcDir)
	if err != nil {
		return errors.Wrapf(err, "reading directory %q", srcDir)
	}

	for _, entry := range entries {
		name := entry.Name()
		srcPath := filepath.Join(srcDir, name)
		destPath := filepath.Join(destDir, name)

		if depth == 0 && name == "target" {
			if info, statErr := os.Stat(srcPath); statErr == nil && info.IsDir() {
				logf("ignoring top-level target directory %s", srcPath)
				continue
			}
		}

		// Stat follows symlinks; a broken or cyclic link surfaces here as
		// a stat error naming srcPath.
		info, err := os.Stat(srcPath)
		if err != nil {
			return errors.Wrapf(err, "resolving %q", srcPath)
		}

		if info.IsDir() {
			if err := os.MkdirAll(destPath, 0o755); err != nil {
				return errors.Wrapf(err, "creating directory %q", destPath)
			}
			if err := copyTreeEntries(srcPath, destPath, depth+1); err != nil {
				return err
			}
			continue
		}

		if err := copyFile(srcPath, destPath, info.Mode()); err != nil {
			return errors.Wrapf(err, "copying %q", srcPath)
		}
	}
	return nil
}

func copyFile(src, dest string, mode os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}
