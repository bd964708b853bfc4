// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

package rustwide

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/pkg/errors"
	"github.com/rust-lang/rustwide/internal/lineio"
	"github.com/rust-lang/rustwide/internal/native"
)

// MountKind selects whether a sandbox bind mount allows the sandboxed
// process to modify the mounted data.
type MountKind int

const (
	MountReadOnly MountKind = iota
	MountReadWrite
)

type sandboxMount struct {
	hostPath    string
	sandboxPath string
	kind        MountKind
}

// SandboxSpec configures an OCI-compatible container a Command can be run
// inside of, via Command.Sandbox. Construct with NewSandboxSpec and chain
// the builder methods; SandboxSpec is immutable once built, each method
// returns a modified copy.
type SandboxSpec struct {
	mounts      []sandboxMount
	env         map[string]string
	memoryLimit int64 // bytes, 0 means unset
	cpuLimit    float64
	workdir     string
	cmd         []string
	networking  bool
	image       *SandboxImage // nil means fall back to the workspace default
}

// NewSandboxSpec returns a SandboxSpec with networking enabled and no
// resource limits, matching the Sandbox Controller's defaults.
func NewSandboxSpec() *SandboxSpec {
	return &SandboxSpec{env: map[string]string{}, networking: true}
}

func (s *SandboxSpec) clone() *SandboxSpec {
	c := *s
	c.mounts = append([]sandboxMount(nil), s.mounts...)
	c.env = make(map[string]string, len(s.env))
	for k, v := range s.env {
		c.env[k] = v
	}
	c.cmd = append([]string(nil), s.cmd...)
	return &c
}

// Mount binds hostPath at sandboxPath inside the container.
func (s *SandboxSpec) Mount(hostPath, sandboxPath string, kind MountKind) *SandboxSpec {
	c := s.clone()
	c.mounts = append(c.mounts, sandboxMount{hostPath: hostPath, sandboxPath: sandboxPath, kind: kind})
	return c
}

// MemoryLimit caps the container's memory usage in bytes. A limit of 0
// removes any cap.
func (s *SandboxSpec) MemoryLimit(bytes int64) *SandboxSpec {
	c := s.clone()
	c.memoryLimit = bytes
	return c
}

// CPULimit caps the fraction of CPU cores the container may use.
func (s *SandboxSpec) CPULimit(cores float64) *SandboxSpec {
	c := s.clone()
	c.cpuLimit = cores
	return c
}

// EnableNetworking toggles whether the container can reach the network.
func (s *SandboxSpec) EnableNetworking(enabled bool) *SandboxSpec {
	c := s.clone()
	c.networking = enabled
	return c
}

// Image overrides the Docker image this spec's container is created from,
// in place of the workspace's default SandboxImage.
func (s *SandboxSpec) Image(image *SandboxImage) *SandboxSpec {
	c := s.clone()
	c.image = image
	return c
}

func (s *SandboxSpec) withEnv(key, value string) *SandboxSpec {
	c := s.clone()
	c.env[key] = value
	return c
}

func (s *SandboxSpec) withWorkdir(dir string) *SandboxSpec {
	c := s.clone()
	c.workdir = dir
	return c
}

func (s *SandboxSpec) withCmd(cmd []string) *SandboxSpec {
	c := s.clone()
	c.cmd = cmd
	return c
}

func (m sandboxMount) resolvedHostPath(ws *Workspace) (string, error) {
	if ws.container != nil {
		return ws.container.hostPath(m.hostPath)
	}
	return filepath.Clean(m.hostPath), nil
}

// volumeArg formats the mount as a `docker run -v` argument, appending the
// :Z SELinux relabeling flag used on Linux hosts.
func (m sandboxMount) volumeArg(ws *Workspace) (string, error) {
	host, err := m.resolvedHostPath(ws)
	if err != nil {
		return "", err
	}
	perm := "ro"
	if m.kind == MountReadWrite {
		perm = "rw"
	}
	arg := fmt.Sprintf("%s:%s:%s", host, m.sandboxPath, perm)
	if runtime.GOOS == "linux" {
		arg += ",Z"
	}
	return arg, nil
}

// dockerArgs builds the `docker create` argument list for this spec.
func (s *SandboxSpec) dockerArgs(ws *Workspace) ([]string, error) {
	args := []string{"create"}
	for _, m := range s.mounts {
		if err := os.MkdirAll(m.hostPath, 0o755); err != nil {
			return nil, errors.Wrapf(err, "creating mount source %q", m.hostPath)
		}
		arg, err := m.volumeArg(ws)
		if err != nil {
			return nil, err
		}
		args = append(args, "-v", arg)
	}
	for k, v := range s.env {
		args = append(args, "-e", k+"="+v)
	}
	if s.workdir != "" {
		args = append(args, "-w", s.workdir)
	}
	if s.memoryLimit > 0 {
		args = append(args, "-m", fmt.Sprintf("%d", s.memoryLimit))
	}
	if s.cpuLimit > 0 {
		args = append(args, "--cpus", fmt.Sprintf("%g", s.cpuLimit))
	}
	if runtime.GOOS != "windows" {
		self := native.Effective()
		args = append(args, "--user", fmt.Sprintf("%d:%d", self.UID, self.GID))
	}
	if !s.networking {
		args = append(args, "--network", "none")
	}
	image := s.image
	if image == nil {
		image = ws.sandboxImage
	}
	if image == nil {
		return nil, errors.New("no sandbox image: set one with SandboxSpec.Image or Workspace.SetSandboxImage")
	}
	args = append(args, image.name)
	args = append(args, s.cmd...)
	return args, nil
}

// SandboxImage is a reference to the Docker image the Sandbox Controller
// runs containers from, resolved either from a locally present image or
// pulled from a registry.
type SandboxImage struct {
	name string
}

// LocalSandboxImage resolves name against images already present on the
// host, without touching the network.
func LocalSandboxImage(ws *Workspace, name string) (*SandboxImage, error) {
	image := &SandboxImage{name: name}
	if err := image.ensureExistsLocally(ws); err != nil {
		return nil, err
	}
	return image, nil
}

// RemoteSandboxImage pulls name from its registry, then pins the image
// reference to the pulled digest when one is available. If sizeLimit is
// positive, the remote manifest's summed layer size is checked before
// pulling and the pull is skipped entirely if it would be exceeded.
func RemoteSandboxImage(ws *Workspace, name string, sizeLimit int64) (*SandboxImage, error) {
	if sizeLimit > 0 {
		size, err := remoteManifestSize(ws, name)
		if err != nil {
			return nil, err
		}
		if size > sizeLimit {
			return nil, &CommandError{Kind: SandboxImageTooLarge, Bytes: size}
		}
	}

	image := &SandboxImage{name: name}
	if _, err := ws.dockerCmd("pull", name).RunCapture(); err != nil {
		return nil, &CommandError{Kind: SandboxImagePullFailed, Inner: err}
	}
	if digest := image.nameWithDigest(ws); digest != "" {
		image.name = digest
	}
	if err := image.ensureExistsLocally(ws); err != nil {
		return nil, err
	}
	return image, nil
}

type manifestLayer struct {
	Size int64 `json:"size"`
}

type manifestInspectEntry struct {
	SchemaV2Manifest struct {
		Layers []manifestLayer `json:"layers"`
	} `json:"SchemaV2Manifest"`
}

// remoteManifestSize sums the per-layer size field reported by `docker
// manifest inspect --verbose`, without pulling the image. For a
// multi-platform list, the layers of every listed platform are counted.
func remoteManifestSize(ws *Workspace, name string) (int64, error) {
	out, err := ws.dockerCmd("manifest", "inspect", "--verbose", name).LogOutput(false).RunCapture()
	if err != nil {
		return 0, &CommandError{Kind: InvalidDockerManifestInspectOutput, Inner: err}
	}
	var entries []manifestInspectEntry
	joined := strings.Join(out.Stdout, "\n")
	if err := json.Unmarshal([]byte(joined), &entries); err != nil {
		// A single-platform manifest is a bare object, not an array.
		var single manifestInspectEntry
		if err2 := json.Unmarshal([]byte(joined), &single); err2 != nil {
			return 0, &CommandError{Kind: InvalidDockerManifestInspectOutput, Inner: err}
		}
		entries = []manifestInspectEntry{single}
	}
	var total int64
	for _, e := range entries {
		for _, l := range e.SchemaV2Manifest.Layers {
			total += l.Size
		}
	}
	return total, nil
}

func (i *SandboxImage) ensureExistsLocally(ws *Workspace) error {
	if _, err := ws.dockerCmd("image", "inspect", i.name).LogOutput(false).RunCapture(); err != nil {
		return &CommandError{Kind: SandboxImageMissing, Inner: err}
	}
	return nil
}

func (i *SandboxImage) nameWithDigest(ws *Workspace) string {
	out, err := ws.dockerCmd("inspect", i.name, "--format", "{{index .RepoDigests 0}}").LogOutput(false).RunCapture()
	if err != nil || len(out.Stdout) == 0 {
		return ""
	}
	return out.Stdout[0]
}

type inspectContainer struct {
	State inspectState `json:"State"`
}

type inspectState struct {
	OOMKilled bool `json:"OOMKilled"`
}

// container is a created, not-yet-deleted sandbox instance.
type container struct {
	id string
	ws *Workspace
}

func createContainer(ws *Workspace, spec *SandboxSpec) (*container, error) {
	args, err := spec.dockerArgs(ws)
	if err != nil {
		return nil, err
	}
	out, err := ws.dockerCmd(args...).RunCapture()
	if err != nil {
		return nil, &CommandError{Kind: SandboxContainerCreate, Inner: err}
	}
	if len(out.Stdout) == 0 {
		return nil, &CommandError{Kind: SandboxContainerCreate, Inner: errors.New("docker create returned no container id")}
	}
	return &container{id: strings.TrimSpace(out.Stdout[0]), ws: ws}, nil
}

func (c *container) inspect() (*inspectContainer, error) {
	out, err := c.ws.dockerCmd("inspect", c.id).LogOutput(false).RunCapture()
	if err != nil {
		return nil, err
	}
	var data []inspectContainer
	if err := json.Unmarshal([]byte(strings.Join(out.Stdout, "\n")), &data); err != nil {
		return nil, &CommandError{Kind: InvalidDockerInspectOutput, Inner: err}
	}
	if len(data) != 1 {
		return nil, &CommandError{Kind: InvalidDockerInspectOutput, Inner: errors.New("expected exactly one container in docker inspect output")}
	}
	return &data[0], nil
}

func (c *container) run(original *Command) (lineio.Result, error) {
	attach := newCommand(c.ws, GlobalBinary("docker"), "start", "-a", c.id)
	attach.wall = original.wall
	attach.idle = original.idle
	attach.transform = original.transform
	attach.logOutput = original.logOutput
	attach.capture = original.capture

	result, runErr := attach.run()

	details, inspectErr := c.inspect()
	if inspectErr != nil {
		if runErr != nil {
			return result, runErr
		}
		return result, inspectErr
	}
	if details.State.OOMKilled {
		return result, &CommandError{Kind: SandboxOOM, Inner: runErr}
	}
	return result, runErr
}

func (c *container) delete() error {
	_, err := c.ws.dockerCmd("rm", "-f", c.id).RunCapture()
	return err
}

// runSandboxed creates a container for c's sandbox spec, attaches to it for
// the duration of the run, and deletes it on every exit path.
func runSandboxed(c *Command) (lineio.Result, error) {
	spec := c.sandbox.withCmd(append([]string{c.resolvedProgram()}, c.args...))
	for k, v := range c.resolvedEnv() {
		spec = spec.withEnv(k, v)
	}
	if c.dir != "" {
		spec = spec.withWorkdir(c.dir)
	}
	if !c.binary.global {
		cargoHomeKind := MountReadOnly
		if c.cargoHomeMount == CargoHomeReadWrite {
			cargoHomeKind = MountReadWrite
		}
		spec = spec.
			Mount(c.ws.CargoHome(), canonicalCargoHome, cargoHomeKind).
			Mount(c.ws.RustupHome(), canonicalRustupHome, MountReadOnly)
	}

	cont, err := createContainer(c.ws, spec)
	if err != nil {
		return lineio.Result{}, err
	}
	defer func() {
		if delErr := cont.delete(); delErr != nil {
			logf("failed to delete sandbox container %s: %v", cont.id, delErr)
		}
	}()

	return cont.run(c)
}

// dockerRunning reports whether the Docker daemon is reachable.
func dockerRunning(ws *Workspace) bool {
	_, err := ws.dockerCmd("info").LogOutput(false).RunCapture()
	return err == nil
}
