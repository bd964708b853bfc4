// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

// Package rustwide orchestrates reproducible, sandboxed compilation of
// third-party Rust source packages: fetching a package's source from a
// registry, git repository, or local path, rewriting its manifest into a
// buildable form, and running cargo/rustc against it either natively or
// inside an OCI-compatible container with CPU, memory, and network
// constraints.
//
// A Workspace is the root of everything this package manages: its toolchain
// installations, its registry/git source caches, and the scratch
// directories individual builds run in. Construct one with Init, name
// toolchains with DistToolchain/CIToolchain and packages with
// RegistryPackage/GitPackage/LocalPackage, and run builds through
// NewBuildDirectory.
package rustwide

import "log"

func logf(format string, args ...interface{}) {
	log.Printf(format, args...)
}
