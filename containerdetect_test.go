// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

package rustwide

import "testing"

func TestCutPrefixDir(t *testing.T) {
	tests := []struct {
		path, dir string
		wantRel   string
		wantOK    bool
	}{
		{"/workspace/builds/x/source", "/workspace", "builds/x/source", true},
		{"/workspace", "/workspace", "", true},
		{"/other/dir", "/workspace", "", false},
		{"/workspacefoo/x", "/workspace", "", false},
	}
	for _, tt := range tests {
		rel, ok := cutPrefixDir(tt.path, tt.dir)
		if ok != tt.wantOK || rel != tt.wantRel {
			t.Errorf("cutPrefixDir(%q, %q) = (%q, %v), want (%q, %v)", tt.path, tt.dir, rel, ok, tt.wantRel, tt.wantOK)
		}
	}
}

func TestCurrentContainerHostPath(t *testing.T) {
	c := &currentContainer{mounts: []containerMount{
		{Source: "/var/lib/docker/volumes/ws/_data", Destination: "/workspace"},
	}}

	got, err := c.hostPath("/workspace/builds/x/source")
	if err != nil {
		t.Fatalf("hostPath: %v", err)
	}
	want := "/var/lib/docker/volumes/ws/_data/builds/x/source"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestCurrentContainerHostPathNoMatch(t *testing.T) {
	c := &currentContainer{mounts: []containerMount{
		{Source: "/data", Destination: "/workspace"},
	}}

	_, err := c.hostPath("/unrelated/path")
	cmdErr, ok := err.(*CommandError)
	if !ok || cmdErr.Kind != WorkspaceNotMountedCorrectly {
		t.Errorf("expected WorkspaceNotMountedCorrectly, got %#v", err)
	}
}
