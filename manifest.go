// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

package rustwide

import (
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"
)

// manifestTweaker rewrites a crate's Cargo.toml in place, dropping examples
// and tests whose source file is absent, stripping membership in a parent
// workspace, scrubbing unstable cargo-features the sandbox can't support,
// and layering in patch directives.
type manifestTweaker struct {
	label    string
	dir      string
	table    map[string]interface{}
	patches  []CratePatch
}

func newManifestTweaker(label, manifestPath string, patches []CratePatch) (*manifestTweaker, error) {
	content, err := os.ReadFile(manifestPath)
	if err != nil {
		return nil, &PrepareError{Kind: MissingCargoToml}
	}

	var table map[string]interface{}
	if err := toml.Unmarshal(content, &table); err != nil {
		return nil, &PrepareError{Kind: InvalidCargoTomlSyntax}
	}

	return &manifestTweaker{
		label:   label,
		dir:     filepath.Dir(manifestPath),
		table:   table,
		patches: patches,
	}, nil
}

func (t *manifestTweaker) tweak() {
	logf("started tweaking %s", t.label)

	t.removeMissingItems("example", "examples")
	t.removeMissingItems("test", "tests")
	t.removeParentWorkspace()
	t.removeUnwantedCargoFeatures()
	t.applyPatches()

	logf("finished tweaking %s", t.label)
}

func (t *manifestTweaker) tableField(key string) (map[string]interface{}, bool) {
	v, ok := t.table[key]
	if !ok {
		return nil, false
	}
	m, ok := v.(map[string]interface{})
	return m, ok
}

// removeMissingItems drops entries from table[category] (an array of
// tables, e.g. [[example]]) whose source file doesn't exist on disk: either
// an explicit "path" key, or the default "<folder>/<name>.rs".
func (t *manifestTweaker) removeMissingItems(category, folder string) {
	raw, ok := t.table[category]
	if !ok {
		return
	}
	items, ok := raw.([]interface{})
	if !ok {
		return
	}

	kept := make([]interface{}, 0, len(items))
	removed := 0
	for _, item := range items {
		entry, ok := item.(map[string]interface{})
		if !ok {
			kept = append(kept, item)
			continue
		}
		name, _ := entry["name"].(string)
		path, hasPath := entry["path"].(string)

		var resolved string
		if hasPath {
			resolved = filepath.Join(t.dir, path)
		} else if name != "" {
			resolved = filepath.Join(t.dir, folder, name+".rs")
		} else {
			kept = append(kept, item)
			continue
		}

		if _, err := os.Stat(resolved); err == nil {
			kept = append(kept, item)
		} else {
			removed++
		}
	}

	if removed > 0 {
		logf("removed %d missing %s", removed, folder)
	}
	t.table[category] = kept
}

func (t *manifestTweaker) removeParentWorkspace() {
	if pkg, ok := t.tableField("package"); ok {
		if _, had := pkg["workspace"]; had {
			delete(pkg, "workspace")
			logf("removed parent workspace from %s", t.label)
		}
	}
}

func (t *manifestTweaker) removeUnwantedCargoFeatures() {
	raw, ok := t.table["cargo-features"]
	if !ok {
		return
	}
	features, ok := raw.([]interface{})
	if !ok {
		return
	}

	var hasPublishLockfile, hasDefaultRun bool
	kept := make([]interface{}, 0, len(features))
	for _, f := range features {
		name, _ := f.(string)
		switch name {
		case "publish-lockfile":
			hasPublishLockfile = true
		case "default-run":
			hasDefaultRun = true
		default:
			kept = append(kept, f)
		}
	}
	t.table["cargo-features"] = kept

	pkg, ok := t.tableField("package")
	if !ok {
		return
	}
	if hasPublishLockfile {
		delete(pkg, "publish-lockfile")
		logf("disabled cargo feature 'publish-lockfile' from %s", t.label)
	}
	if hasDefaultRun {
		delete(pkg, "default-run")
		logf("disabled cargo feature 'default-run' from %s", t.label)
	}
}

func (t *manifestTweaker) applyPatches() {
	if len(t.patches) == 0 {
		return
	}

	patchTable, ok := t.tableField("patch")
	if !ok {
		patchTable = map[string]interface{}{}
		t.table["patch"] = patchTable
	}
	cratesIO, ok := patchTable["crates-io"].(map[string]interface{})
	if !ok {
		cratesIO = map[string]interface{}{}
		patchTable["crates-io"] = cratesIO
	}

	for _, p := range t.patches {
		if p.isPath {
			cratesIO[p.name] = map[string]interface{}{"path": p.path}
		} else {
			cratesIO[p.name] = map[string]interface{}{"git": p.git, "branch": p.branch}
		}
	}
}

func (t *manifestTweaker) save(outputPath string) error {
	content, err := toml.Marshal(t.table)
	if err != nil {
		return errors.Wrapf(err, "serializing tweaked manifest for %s", t.label)
	}
	if err := os.WriteFile(outputPath, content, 0o644); err != nil {
		return err
	}
	logf("tweaked toml for %s written to %s", t.label, outputPath)
	return nil
}

// tweakManifest rewrites the Cargo.toml at manifestPath in place.
func tweakManifest(label, manifestPath string, patches []CratePatch) error {
	tweaker, err := newManifestTweaker(label, manifestPath, patches)
	if err != nil {
		return err
	}
	tweaker.tweak()
	return tweaker.save(manifestPath)
}
