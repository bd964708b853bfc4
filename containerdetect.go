// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

package rustwide

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

const probeFilename = "rustwide-probe"

// containerMount describes one bind mount of the container Rustwide itself
// is (or isn't) running inside, as reported by `docker inspect`.
type containerMount struct {
	Source      string `json:"Source"`
	Destination string `json:"Destination"`
}

// currentContainer is the detected identity of the container hosting the
// current process, used to remap sandbox mount sources onto the host
// filesystem when Rustwide is itself running inside Docker.
type currentContainer struct {
	mounts []containerMount
}

type dockerInspectMetadata struct {
	Mounts []containerMount `json:"Mounts"`
}

// detectCurrentContainer reports the container currently hosting this
// process, or nil if it isn't running inside one. There is no portable way
// to read a container's own ID from inside it, so this probes by writing a
// random marker file and asking every running container to cat it back.
func detectCurrentContainer(ws *Workspace) (*currentContainer, error) {
	id, err := probeContainerID(ws)
	if err != nil {
		return nil, err
	}
	if id == "" {
		return nil, nil
	}

	out, err := ws.dockerCmd("inspect", id).LogOutput(false).LogCommand(false).RunCapture()
	if err != nil {
		return nil, err
	}
	var metadata []dockerInspectMetadata
	if err := json.Unmarshal([]byte(strings.Join(out.Stdout, "\n")), &metadata); err != nil {
		return nil, &CommandError{Kind: InvalidDockerInspectOutput, Inner: err}
	}
	if len(metadata) != 1 {
		return nil, &CommandError{Kind: InvalidDockerInspectOutput, Inner: errors.New("expected exactly one container in docker inspect output")}
	}
	return &currentContainer{mounts: metadata[0].Mounts}, nil
}

// probeContainerID returns the ID of the Docker container hosting this
// process, or "" if it isn't running inside one.
func probeContainerID(ws *Workspace) (string, error) {
	probePath := filepath.Join(os.TempDir(), probeFilename)
	content := make([]byte, 64)
	if _, err := rand.Read(content); err != nil {
		return "", errors.Wrap(err, "generating probe content")
	}
	encoded := base64.StdEncoding.EncodeToString(content)
	if err := os.WriteFile(probePath, []byte(encoded), 0o644); err != nil {
		return "", errors.Wrap(err, "writing probe file")
	}

	out, err := ws.dockerCmd("ps", "--format", "{{.ID}}", "--no-trunc").LogOutput(false).LogCommand(false).RunCapture()
	if err != nil {
		return "", err
	}
	for _, id := range out.Stdout {
		if id == "" {
			continue
		}
		res, err := ws.dockerCmd("exec", id, "cat", probePath).LogOutput(false).LogCommand(false).RunCapture()
		if err != nil {
			continue
		}
		if len(res.Stdout) == 1 && res.Stdout[0] == encoded {
			return id, nil
		}
	}
	return "", nil
}

// hostPath resolves a mount source that may be expressed in terms of this
// process's own filesystem view into the equivalent path on the Docker
// host, by finding which of the current container's own mounts it falls
// under and rebasing onto that mount's host-side source.
func (c *currentContainer) hostPath(path string) (string, error) {
	normalized := filepath.Clean(path)
	for _, mount := range c.mounts {
		dest := filepath.Clean(mount.Destination)
		if rel, ok := cutPrefixDir(normalized, dest); ok {
			return filepath.Join(mount.Source, rel), nil
		}
	}
	return "", &CommandError{Kind: WorkspaceNotMountedCorrectly}
}

func cutPrefixDir(path, dir string) (string, bool) {
	if path == dir {
		return "", true
	}
	prefix := dir
	if !strings.HasSuffix(prefix, string(filepath.Separator)) {
		prefix += string(filepath.Separator)
	}
	if strings.HasPrefix(path, prefix) {
		return path[len(prefix):], true
	}
	return "", false
}
