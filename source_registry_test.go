// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

package rustwide

import (
	"archive/tar"
	"bytes"
	"io"
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
)

func TestStripFirstComponent(t *testing.T) {
	cases := map[string]string{
		"serde-1.0.0/Cargo.toml":        "Cargo.toml",
		"serde-1.0.0/src/lib.rs":        "src/lib.rs",
		"serde-1.0.0/":                  "",
		"serde-1.0.0":                   "",
		"/serde-1.0.0/Cargo.toml":       "Cargo.toml",
	}
	for in, want := range cases {
		if got := stripFirstComponent(in); got != want {
			t.Errorf("stripFirstComponent(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRegistryRefCacheFolderAndName(t *testing.T) {
	pub := publicRegistry()
	if pub.cacheFolder() != "cratesio-sources" {
		t.Errorf("cacheFolder() = %q", pub.cacheFolder())
	}
	if pub.name() != "crates.io" {
		t.Errorf("name() = %q", pub.name())
	}

	alt := alternativeRegistry("https://my-registry.example.com/index")
	if alt.cacheFolder() == pub.cacheFolder() {
		t.Error("alternative registry should not share crates.io's cache folder")
	}
	if alt.name() != "https://my-registry.example.com/index" {
		t.Errorf("name() = %q", alt.name())
	}
}

func TestRegistryPackageFetchURLCratesIO(t *testing.T) {
	pkg := newRegistryPackage(publicRegistry(), "serde", "1.0.219")
	url, err := pkg.fetchURL(nil)
	if err != nil {
		t.Fatalf("fetchURL: %v", err)
	}
	want := "https://static.crates.io/crates/serde/serde-1.0.219.crate"
	if url != want {
		t.Errorf("got %q, want %q", url, want)
	}
}

func TestRegistryPackageCachePath(t *testing.T) {
	ws := &Workspace{root: "/ws"}
	pkg := newRegistryPackage(publicRegistry(), "serde", "1.0.0")
	got := pkg.cachePath(ws)
	want := "/ws/cache/cratesio-sources/serde/serde-1.0.0.crate"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func buildTar(t *testing.T, entries map[string]string) *tar.Reader {
	t.Helper()
	var buf bytes.Buffer
	w := tar.NewWriter(&buf)
	for name, content := range entries {
		hdr := &tar.Header{Name: name, Mode: 0o644, Size: int64(len(content)), Typeflag: tar.TypeReg}
		if err := w.WriteHeader(hdr); err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return tar.NewReader(&buf)
}

func TestUnpackWithoutFirstDir(t *testing.T) {
	tr := buildTar(t, map[string]string{
		"serde-1.0.0/Cargo.toml": "[package]\nname = \"serde\"",
		"serde-1.0.0/src/lib.rs": "pub fn noop() {}",
	})

	fs := memfs.New()
	if err := unpackWithoutFirstDir(tr, fs); err != nil {
		t.Fatalf("unpackWithoutFirstDir: %v", err)
	}

	f, err := fs.Open("Cargo.toml")
	if err != nil {
		t.Fatalf("opening Cargo.toml: %v", err)
	}
	content, err := io.ReadAll(f)
	if err != nil {
		t.Fatal(err)
	}
	if string(content) != "[package]\nname = \"serde\"" {
		t.Errorf("Cargo.toml content = %q", content)
	}

	f2, err := fs.Open("src/lib.rs")
	if err != nil {
		t.Fatalf("opening src/lib.rs: %v", err)
	}
	content2, err := io.ReadAll(f2)
	if err != nil {
		t.Fatal(err)
	}
	if string(content2) != "pub fn noop() {}" {
		t.Errorf("src/lib.rs content = %q", content2)
	}
}
