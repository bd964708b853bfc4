// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

package rustwide

import (
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/rust-lang/rustwide/internal/cache"
	"github.com/rust-lang/rustwide/internal/filelock"
	"github.com/rust-lang/rustwide/internal/httpx"
	"github.com/rust-lang/rustwide/internal/syncx"
)

const defaultUserAgent = "rustwide"

// WorkspaceOpt configures a Workspace at construction time. Rustwide has no
// config file or CLI flag surface; every tunable is set this way, mirroring
// the original builder API.
type WorkspaceOpt func(*Workspace)

// WithUserAgent overrides the User-Agent header the Workspace's shared HTTP
// client sends.
func WithUserAgent(ua string) WorkspaceOpt {
	return func(ws *Workspace) { ws.userAgent = ua }
}

// WithCommandTimeout sets the default wall-clock timeout applied to
// Commands that don't set their own.
func WithCommandTimeout(d time.Duration) WorkspaceOpt {
	return func(ws *Workspace) { ws.defaultTimeout = d }
}

// WithCommandNoOutputTimeout sets the default idle timeout applied to
// Commands that don't set their own.
func WithCommandNoOutputTimeout(d time.Duration) WorkspaceOpt {
	return func(ws *Workspace) { ws.defaultNoOutputTimeout = d }
}

// WithRustupProfile sets the rustup profile (e.g. "minimal") used when
// installing dist toolchains.
func WithRustupProfile(profile string) WorkspaceOpt {
	return func(ws *Workspace) { ws.rustupProfile = profile }
}

// WithFetchRegistryIndexUpdates toggles whether the Preparation Pipeline
// refreshes the registry index before generating lockfiles.
func WithFetchRegistryIndexUpdates(enabled bool) WorkspaceOpt {
	return func(ws *Workspace) { ws.fetchIndexUpdates = enabled }
}

// Workspace is the persistent, on-disk root of everything Rustwide manages:
// toolchain installations, registry/git source caches, and build
// directories. A Workspace is safe to share between goroutines in the same
// process; cross-process coordination is handled by an advisory file lock
// on its root.
type Workspace struct {
	root string

	userAgent              string
	defaultTimeout         time.Duration
	defaultNoOutputTimeout time.Duration
	rustupProfile          string
	fetchIndexUpdates      bool

	httpClient  *http.Client
	basicClient httpx.BasicClient

	sandboxImage *SandboxImage
	container    *currentContainer

	lock *filelock.Lock

	inFlightFetches syncx.Map[string, *fetchCall]
}

// fetchCall tracks a single in-flight Package.Fetch so concurrent builds
// referencing the same package don't race on the same download.
type fetchCall struct {
	done chan struct{}
	err  error
}

// coalesceFetch runs fn for key, or waits for an already-running call for
// the same key to finish and returns its result. The key is forgotten once
// the call completes, so a later Fetch (e.g. after PurgeFromCache) always
// re-runs fn rather than replaying a stale result.
func (ws *Workspace) coalesceFetch(key string, fn func() error) error {
	call := &fetchCall{done: make(chan struct{})}
	actual, loaded := ws.inFlightFetches.LoadOrStore(key, call)
	if loaded {
		<-actual.done
		return actual.err
	}
	call.err = fn()
	ws.inFlightFetches.Delete(key)
	close(call.done)
	return call.err
}

// Init creates (if necessary) and initializes the workspace rooted at root:
// it acquires the workspace lock, creates the standard subdirectories, and
// installs the tool registry. The returned Workspace must eventually be
// released with Close.
func Init(root string, opts ...WorkspaceOpt) (*Workspace, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, errors.Wrapf(err, "resolving workspace root %q", root)
	}
	if err := os.MkdirAll(absRoot, 0o755); err != nil {
		return nil, errors.Wrapf(err, "creating workspace root %q", absRoot)
	}

	ws := &Workspace{
		root:                   absRoot,
		userAgent:              defaultUserAgent,
		defaultTimeout:         15 * time.Minute,
		defaultNoOutputTimeout: 5 * time.Minute,
		rustupProfile:          "minimal",
		fetchIndexUpdates:      true,
		httpClient:             &http.Client{},
	}
	for _, opt := range opts {
		opt(ws)
	}
	ws.basicClient = httpx.NewCachedClient(
		&httpx.WithUserAgent{BasicClient: ws.httpClient, UserAgent: ws.userAgent},
		&cache.CoalescingMemoryCache{},
	)

	lock, err := filelock.New(filepath.Join(absRoot, ".lock"))
	if err != nil {
		return nil, err
	}
	ws.lock = lock
	ws.lock.Acquire()
	defer func() {
		if err != nil {
			ws.lock.Release()
		}
	}()

	for _, dir := range []string{ws.CargoHome(), ws.RustupHome(), ws.CacheDir(), ws.BuildsDir()} {
		if mkErr := os.MkdirAll(dir, 0o755); mkErr != nil {
			err = errors.Wrapf(mkErr, "creating workspace subdirectory %q", dir)
			return nil, err
		}
	}

	container, detErr := detectCurrentContainer(ws)
	if detErr != nil {
		logf("failed to detect current container, assuming native host: %v", detErr)
	} else {
		ws.container = container
	}

	if instErr := installToolRegistry(ws); instErr != nil {
		err = instErr
		return nil, err
	}

	return ws, nil
}

// Close releases the workspace lock. It is safe to call more than once.
func (ws *Workspace) Close() error {
	if ws.lock != nil {
		ws.lock.Release()
		ws.lock = nil
	}
	return nil
}

// Root returns the workspace's root directory.
func (ws *Workspace) Root() string { return ws.root }

// CargoHome returns "<root>/cargo-home".
func (ws *Workspace) CargoHome() string { return filepath.Join(ws.root, "cargo-home") }

// RustupHome returns "<root>/rustup-home".
func (ws *Workspace) RustupHome() string { return filepath.Join(ws.root, "rustup-home") }

// CacheDir returns "<root>/cache".
func (ws *Workspace) CacheDir() string { return filepath.Join(ws.root, "cache") }

// BuildsDir returns "<root>/builds".
func (ws *Workspace) BuildsDir() string { return filepath.Join(ws.root, "builds") }

// UserAgent returns the User-Agent header used by the workspace's shared
// HTTP client.
func (ws *Workspace) UserAgent() string { return ws.userAgent }

// FetchRegistryIndexUpdates reports whether the Preparation Pipeline should
// refresh the registry index before generating a lockfile.
func (ws *Workspace) FetchRegistryIndexUpdates() bool { return ws.fetchIndexUpdates }

// HTTPClient returns the workspace's shared HTTP client.
func (ws *Workspace) HTTPClient() *http.Client { return ws.httpClient }

// BasicHTTPClient returns the workspace's User-Agent-tagged, GET-caching
// HTTP client. Registry .crate downloads use this instead of HTTPClient
// directly so repeated requests for the same URL within a process are
// coalesced; the rustup-init download uses HTTPClient.
func (ws *Workspace) BasicHTTPClient() httpx.BasicClient { return ws.basicClient }

// SetSandboxImage assigns the Docker image sandboxed Commands run from.
func (ws *Workspace) SetSandboxImage(image *SandboxImage) { ws.sandboxImage = image }

// SandboxImage returns the currently configured sandbox image, or nil if
// none was set.
func (ws *Workspace) SandboxImage() *SandboxImage { return ws.sandboxImage }

// CurrentContainerMounts returns the bind mounts of the container hosting
// this process, or nil if it isn't running inside one.
func (ws *Workspace) CurrentContainerMounts() []containerMount {
	if ws.container == nil {
		return nil
	}
	return ws.container.mounts
}

// Cmd starts building a Command bound to this workspace.
func (ws *Workspace) Cmd(binary Binary, args ...string) *Command {
	return newCommand(ws, binary, args...)
}

// dockerCmd is a convenience for the many internal docker-CLI invocations
// the Sandbox Controller and Host-Container Detector make.
func (ws *Workspace) dockerCmd(args ...string) *Command {
	return newCommand(ws, GlobalBinary("docker"), args...)
}

// PurgeAllBuildDirs recursively removes every build directory under
// BuildsDir, under the workspace lock that the Workspace holds from Init
// until Close.
func (ws *Workspace) PurgeAllBuildDirs() error {
	return purgeDirContents(ws.BuildsDir())
}

// PurgeAllCaches recursively removes every cache subdirectory under
// CacheDir, including the registry index cache, under the workspace lock
// that the Workspace holds from Init until Close.
func (ws *Workspace) PurgeAllCaches() error {
	return purgeDirContents(ws.CacheDir())
}

func purgeDirContents(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrapf(err, "reading directory %q", dir)
	}
	for _, entry := range entries {
		path := filepath.Join(dir, entry.Name())
		if err := os.RemoveAll(path); err != nil {
			return errors.Wrapf(err, "removing %q", path)
		}
	}
	return nil
}
