// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

// Package pathutil canonicalizes filesystem paths and percent-escapes
// arbitrary byte sequences so they are safe to use as path components.
package pathutil

import (
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// escapeSet is the alphabet of characters percent-escaped when turning an
// arbitrary string (a crate name, a git URL) into a filesystem-safe
// directory name. It mirrors the characters forbidden or reserved by common
// filesystems plus the separator itself, so escaped names never introduce a
// path boundary.
const escapeSet = `/\<>:"|?* `

// Escape percent-encodes every byte in s that appears in escapeSet, plus any
// ASCII control byte and the '%' character itself (so the encoding is
// reversible). The result contains only characters that are safe in a single
// path component on every supported filesystem.
func Escape(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '%' || c < 0x20 || c == 0x7f || strings.IndexByte(escapeSet, c) >= 0 {
			b.WriteByte('%')
			b.WriteByte(hexDigit(c >> 4))
			b.WriteByte(hexDigit(c & 0xf))
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

func hexDigit(n byte) byte {
	switch {
	case n < 10:
		return '0' + n
	default:
		return 'a' + (n - 10)
	}
}

// Unescape reverses Escape. It returns an error if a '%' is not followed by
// two valid hex digits.
func Unescape(s string) (string, error) {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] != '%' {
			b.WriteByte(s[i])
			continue
		}
		if i+2 >= len(s) {
			return "", errors.Errorf("truncated escape sequence at offset %d", i)
		}
		hi, err := unhex(s[i+1])
		if err != nil {
			return "", err
		}
		lo, err := unhex(s[i+2])
		if err != nil {
			return "", err
		}
		b.WriteByte(hi<<4 | lo)
		i += 2
	}
	return b.String(), nil
}

func unhex(c byte) (byte, error) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', nil
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, nil
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, nil
	default:
		return 0, errors.Errorf("invalid hex digit %q", c)
	}
}

// Canonicalize resolves a path to its absolute, cleaned form. Unlike a raw
// filepath.Abs, it never leaves a trailing separator. Separators are the
// host OS's own (filepath semantics); all paths that pass through here end
// up either as container mount arguments or as map keys compared for prefix
// equality.
func Canonicalize(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", errors.Wrapf(err, "canonicalizing %q", path)
	}
	return filepath.Clean(abs), nil
}

// HasPrefixDir reports whether child is equal to or nested inside dir, and
// if so returns the remainder path (possibly empty). Both arguments must
// already be canonicalized.
func HasPrefixDir(child, dir string) (remainder string, ok bool) {
	if child == dir {
		return "", true
	}
	prefix := dir
	if !strings.HasSuffix(prefix, string(filepath.Separator)) {
		prefix += string(filepath.Separator)
	}
	if !strings.HasPrefix(child, prefix) {
		return "", false
	}
	return strings.TrimPrefix(child, prefix), true
}
