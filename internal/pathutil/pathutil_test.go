// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

package pathutil

import "testing"

func TestEscapeUnescapeRoundTrip(t *testing.T) {
	cases := []string{
		"https://github.com/rust-lang/rustwide.git",
		"simple-crate-name",
		"name with spaces/and:colons",
		"control\x01byte",
		"percent%sign",
	}
	for _, s := range cases {
		t.Run(s, func(t *testing.T) {
			escaped := Escape(s)
			got, err := Unescape(escaped)
			if err != nil {
				t.Fatalf("Unescape(%q) = %v", escaped, err)
			}
			if got != s {
				t.Fatalf("round-trip mismatch: got %q, want %q", got, s)
			}
		})
	}
}

func TestEscapeNoReservedBytes(t *testing.T) {
	escaped := Escape(`a/b\c<d>e:f"g|h?i*j k`)
	for _, c := range escaped {
		if c == '%' {
			continue
		}
		for _, r := range escapeSet {
			if c == r {
				t.Fatalf("escaped output %q still contains reserved byte %q", escaped, string(r))
			}
		}
	}
}

func TestUnescapeTruncated(t *testing.T) {
	if _, err := Unescape("abc%2"); err == nil {
		t.Fatal("expected error for truncated escape sequence")
	}
}

func TestHasPrefixDir(t *testing.T) {
	rem, ok := HasPrefixDir("/a/b/c", "/a/b")
	if !ok || rem != "c" {
		t.Fatalf("got (%q, %v), want (\"c\", true)", rem, ok)
	}
	if _, ok := HasPrefixDir("/a/bc", "/a/b"); ok {
		t.Fatal("expected no match for sibling directory with shared prefix")
	}
	rem, ok = HasPrefixDir("/a/b", "/a/b")
	if !ok || rem != "" {
		t.Fatalf("got (%q, %v), want (\"\", true)", rem, ok)
	}
}
