// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

package rustwide

import "fmt"

// CommandError is the closed set of failure kinds surfaced by the Command
// Executor and Sandbox Controller.
type CommandError struct {
	Kind CommandErrorKind

	Status int    // ExecutionFailed
	Stderr string // ExecutionFailed

	Seconds int // NoOutputFor, Timeout

	PID   int   // KillAfterTimeoutFailed
	Errno error // KillAfterTimeoutFailed

	Bytes int64 // SandboxImageTooLarge

	Inner error // the various wrapped variants
}

// CommandErrorKind discriminates the CommandError variants named in the
// error taxonomy.
type CommandErrorKind int

const (
	_ CommandErrorKind = iota
	NoOutputFor
	Timeout
	ExecutionFailed
	KillAfterTimeoutFailed
	SandboxOOM
	SandboxImagePullFailed
	SandboxImageMissing
	SandboxImageTooLarge
	SandboxContainerCreate
	WorkspaceNotMountedCorrectly
	InvalidDockerInspectOutput
	InvalidDockerManifestInspectOutput
	IOError
)

func (e *CommandError) Error() string {
	switch e.Kind {
	case NoOutputFor:
		return fmt.Sprintf("no output received for %ds", e.Seconds)
	case Timeout:
		return fmt.Sprintf("command timed out after %ds", e.Seconds)
	case ExecutionFailed:
		return fmt.Sprintf("command failed with exit status %d: %s", e.Status, e.Stderr)
	case KillAfterTimeoutFailed:
		if e.Errno != nil {
			return fmt.Sprintf("failed to kill process %d after timeout: %v", e.PID, e.Errno)
		}
		return fmt.Sprintf("failed to kill process %d after timeout", e.PID)
	case SandboxOOM:
		return "sandboxed command was killed by the out-of-memory killer"
	case SandboxImagePullFailed:
		return fmt.Sprintf("failed to pull sandbox image: %v", e.Inner)
	case SandboxImageMissing:
		return fmt.Sprintf("sandbox image is missing: %v", e.Inner)
	case SandboxImageTooLarge:
		return fmt.Sprintf("sandbox image is too large: %d bytes", e.Bytes)
	case SandboxContainerCreate:
		return fmt.Sprintf("failed to create sandbox container: %v", e.Inner)
	case WorkspaceNotMountedCorrectly:
		return "the workspace is not mounted from outside the container"
	case InvalidDockerInspectOutput:
		return fmt.Sprintf("invalid output returned by docker inspect: %v", e.Inner)
	case InvalidDockerManifestInspectOutput:
		return fmt.Sprintf("invalid output returned by docker manifest inspect: %v", e.Inner)
	case IOError:
		return fmt.Sprintf("io error: %v", e.Inner)
	default:
		return "unknown command error"
	}
}

func (e *CommandError) Unwrap() error { return e.Inner }

// PrepareError is the closed set of failure kinds surfaced by the
// Preparation Pipeline.
type PrepareError struct {
	Kind   PrepareErrorKind
	Stderr string
}

// PrepareErrorKind discriminates the PrepareError variants.
type PrepareErrorKind int

const (
	_ PrepareErrorKind = iota
	PrivateGitRepository
	MissingCargoToml
	InvalidCargoTomlSyntax
	BrokenDependencies
	YankedDependencies
	MissingDependencies
	InvalidCargoLock
)

func (e *PrepareError) Error() string {
	switch e.Kind {
	case PrivateGitRepository:
		return "the git repository requires authentication"
	case MissingCargoToml:
		return "the package is missing a Cargo.toml manifest"
	case InvalidCargoTomlSyntax:
		return "the package's Cargo.toml could not be parsed"
	case BrokenDependencies:
		return fmt.Sprintf("the package's dependencies are broken: %s", e.Stderr)
	case YankedDependencies:
		return fmt.Sprintf("the package depends on a yanked version: %s", e.Stderr)
	case MissingDependencies:
		return fmt.Sprintf("the package depends on a missing package: %s", e.Stderr)
	case InvalidCargoLock:
		return fmt.Sprintf("the package's Cargo.lock could not be parsed: %s", e.Stderr)
	default:
		return "unknown prepare error"
	}
}

// ToolchainError is the closed set of failure kinds surfaced by the
// Toolchain Model.
type ToolchainError struct {
	Kind ToolchainErrorKind
}

// ToolchainErrorKind discriminates the ToolchainError variants.
type ToolchainErrorKind int

const (
	_ ToolchainErrorKind = iota
	NotInstalled
	UnsupportedOperation
)

func (e *ToolchainError) Error() string {
	switch e.Kind {
	case NotInstalled:
		return "toolchain is not installed"
	case UnsupportedOperation:
		return "operation is not supported for this toolchain kind"
	default:
		return "unknown toolchain error"
	}
}
