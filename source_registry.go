// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

package rustwide

import (
	"archive/tar"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-git/v5"
	"github.com/pkg/errors"
	"github.com/rust-lang/rustwide/internal/pathutil"
)

const cratesRoot = "https://static.crates.io/crates"

// registryRef identifies which registry a registryPackage's crate belongs
// to: crates.io, or an alternative registry keyed by its index URL.
type registryRef struct {
	cratesIO bool
	indexURL string
}

func publicRegistry() registryRef { return registryRef{cratesIO: true} }

func alternativeRegistry(indexURL string) registryRef {
	return registryRef{indexURL: indexURL}
}

func (r registryRef) cacheFolder() string {
	if r.cratesIO {
		return "cratesio-sources"
	}
	return pathutil.Escape(r.indexURL) + "-sources"
}

func (r registryRef) name() string {
	if r.cratesIO {
		return "crates.io"
	}
	return r.indexURL
}

type registryPackage struct {
	registry registryRef
	name     string
	version  string
}

func newRegistryPackage(registry registryRef, name, version string) *registryPackage {
	return &registryPackage{registry: registry, name: name, version: version}
}

func (p *registryPackage) String() string {
	return fmt.Sprintf("%s crate %s %s", p.registry.name(), p.name, p.version)
}

func (p *registryPackage) cachePath(ws *Workspace) string {
	return filepath.Join(ws.CacheDir(), p.registry.cacheFolder(), p.name, fmt.Sprintf("%s-%s.crate", p.name, p.version))
}

type registryIndexConfig struct {
	DL string `json:"dl"`
}

func (p *registryPackage) fetchURL(ws *Workspace) (string, error) {
	if p.registry.cratesIO {
		return fmt.Sprintf("%s/%s/%s-%s.crate", cratesRoot, p.name, p.name, p.version), nil
	}

	indexPath := filepath.Join(ws.CacheDir(), "registry-index", pathutil.Escape(p.registry.indexURL))
	if _, err := os.Stat(indexPath); os.IsNotExist(err) {
		if err := os.MkdirAll(filepath.Dir(indexPath), 0o755); err != nil {
			return "", err
		}
		if _, err := git.PlainClone(indexPath, false, &git.CloneOptions{URL: p.registry.indexURL}); err != nil {
			return "", errors.Wrapf(err, "unable to update index at %s", p.registry.indexURL)
		}
		logf("cloned registry index %s", p.registry.indexURL)
	}

	configBytes, err := os.ReadFile(filepath.Join(indexPath, "config.json"))
	if err != nil {
		return "", errors.Wrap(err, "reading registry index config.json")
	}
	var config registryIndexConfig
	if err := json.Unmarshal(configBytes, &config); err != nil {
		return "", errors.Wrap(err, "registry has invalid config.json")
	}

	if strings.Contains(config.DL, "{crate}") || strings.Contains(config.DL, "{version}") {
		url := strings.ReplaceAll(config.DL, "{crate}", p.name)
		url = strings.ReplaceAll(url, "{version}", p.version)
		return url, nil
	}
	return fmt.Sprintf("%s/%s/%s/download", config.DL, p.name, p.version), nil
}

func (p *registryPackage) fetch(ws *Workspace) error {
	local := p.cachePath(ws)
	if _, err := os.Stat(local); err == nil {
		logf("crate %s %s is already in cache", p.name, p.version)
		return nil
	}

	logf("fetching crate %s %s...", p.name, p.version)
	if err := os.MkdirAll(filepath.Dir(local), 0o755); err != nil {
		return err
	}

	fetchURL, err := p.fetchURL(ws)
	if err != nil {
		return err
	}
	httpReq, err := http.NewRequest(http.MethodGet, fetchURL, nil)
	if err != nil {
		return err
	}
	resp, err := ws.BasicHTTPClient().Do(httpReq)
	if err != nil {
		return errors.Wrapf(err, "fetching %s", fetchURL)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return errors.Errorf("fetching %s: unexpected status %s", fetchURL, resp.Status)
	}

	f, err := os.Create(local)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := io.Copy(f, resp.Body); err != nil {
		return errors.Wrapf(err, "writing %q", local)
	}
	return nil
}

func (p *registryPackage) purgeFromCache(ws *Workspace) error {
	path := p.cachePath(ws)
	if _, err := os.Stat(path); err == nil {
		return os.Remove(path)
	}
	return nil
}

func (p *registryPackage) copySourceTo(ws *Workspace, dest string) error {
	cached := p.cachePath(ws)
	f, err := os.Open(cached)
	if err != nil {
		return err
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return err
	}
	defer gz.Close()

	logf("extracting crate %s %s into %s", p.name, p.version, dest)
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return err
	}
	if err := unpackWithoutFirstDir(tar.NewReader(gz), osfs.New(dest)); err != nil {
		_ = os.RemoveAll(dest)
		return errors.Wrapf(err, "unable to download %s version %s", p.name, p.version)
	}
	return nil
}

// unpackWithoutFirstDir extracts a tar stream into fs, dropping the
// leading path component every entry carries (crates.io archives wrap
// their contents in a "<name>-<version>/" directory).
func unpackWithoutFirstDir(r *tar.Reader, fs billy.Filesystem) error {
	for {
		hdr, err := r.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		rel := stripFirstComponent(hdr.Name)
		if rel == "" {
			continue
		}
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := fs.MkdirAll(rel, hdr.FileInfo().Mode()); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := fs.MkdirAll(filepath.Dir(rel), 0o755); err != nil {
				return err
			}
			out, err := fs.OpenFile(rel, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, hdr.FileInfo().Mode())
			if err != nil {
				return err
			}
			if _, err := io.Copy(out, r); err != nil {
				out.Close()
				return err
			}
			out.Close()
		}
	}
}

func stripFirstComponent(name string) string {
	name = strings.TrimPrefix(name, "/")
	idx := strings.IndexByte(name, '/')
	if idx < 0 {
		return ""
	}
	return name[idx+1:]
}
