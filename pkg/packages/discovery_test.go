// Test Type: Unit Test
// Description: Tests for package discovery, ordering and strategy selection

package packages

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/arthur-debert/ouranosctl/pkg/errors"
	"github.com/arthur-debert/ouranosctl/pkg/paths"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const root = "/srv/ouranos"

func newInstallation(t *testing.T, pkgs ...string) (afero.Fs, *paths.Installation) {
	t.Helper()
	fsys := afero.NewMemMapFs()
	for _, name := range pkgs {
		require.NoError(t, fsys.MkdirAll(filepath.Join(root, "packages", name), 0755))
	}
	require.NoError(t, fsys.MkdirAll(filepath.Join(root, "packages"), 0755))
	inst, err := paths.New(root, ".venv")
	require.NoError(t, err)
	return fsys, inst
}

func writeFile(t *testing.T, fsys afero.Fs, path, content string, mode os.FileMode) {
	t.Helper()
	require.NoError(t, fsys.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, afero.WriteFile(fsys, path, []byte(content), mode))
}

func TestDiscover_Ordering(t *testing.T) {
	fsys, inst := newInstallation(t, "zeta", "alpha", "ouranos-core", "mid")

	pkgs, err := Discover(fsys, inst, "ouranos-core")
	require.NoError(t, err)

	assert.Equal(t, []string{"ouranos-core", "alpha", "mid", "zeta"}, Names(pkgs))
	assert.True(t, pkgs[0].IsCore)
	for _, p := range pkgs[1:] {
		assert.False(t, p.IsCore)
	}
	assert.Equal(t, inst.PackagePath("alpha"), pkgs[1].Path)
}

func TestDiscover_SkipsHiddenAndFiles(t *testing.T) {
	fsys, inst := newInstallation(t, "ouranos-core", ".cache")
	writeFile(t, fsys, filepath.Join(inst.PackagesDir(), "README.md"), "docs", 0644)

	pkgs, err := Discover(fsys, inst, "ouranos-core")
	require.NoError(t, err)
	assert.Equal(t, []string{"ouranos-core"}, Names(pkgs))
}

func TestDiscover_MissingCore(t *testing.T) {
	fsys, inst := newInstallation(t, "alpha")

	_, err := Discover(fsys, inst, "ouranos-core")
	require.Error(t, err)
	assert.True(t, errors.IsErrorCode(err, errors.ErrPackage))
}

func TestDiscover_MissingPackagesDir(t *testing.T) {
	inst, err := paths.New(root, ".venv")
	require.NoError(t, err)

	_, err = Discover(afero.NewMemMapFs(), inst, "ouranos-core")
	require.Error(t, err)
	assert.True(t, errors.IsErrorCode(err, errors.ErrFileAccess))
}

func TestDiscover_Strategies(t *testing.T) {
	fsys, inst := newInstallation(t, "ouranos-core", "plain", "scripted", "declared", "not-exec")

	writeFile(t, fsys, filepath.Join(inst.PackagePath("scripted"), "scripts", "update.sh"), "#!/bin/sh\n", 0755)
	writeFile(t, fsys, filepath.Join(inst.PackagePath("not-exec"), "scripts", "update.sh"), "#!/bin/sh\n", 0644)
	writeFile(t, fsys, filepath.Join(inst.PackagePath("declared"), MetadataFile), "hook = \"bin/upgrade\"\n", 0644)
	// a hook on the core package is never used
	writeFile(t, fsys, filepath.Join(inst.PackagePath("ouranos-core"), "scripts", "update.sh"), "#!/bin/sh\n", 0755)

	pkgs, err := Discover(fsys, inst, "ouranos-core")
	require.NoError(t, err)

	byName := map[string]Package{}
	for _, p := range pkgs {
		byName[p.Name] = p
	}

	assert.Equal(t, Orchestrated(), byName["ouranos-core"].Strategy)
	assert.Equal(t, Orchestrated(), byName["plain"].Strategy)
	assert.Equal(t, Orchestrated(), byName["not-exec"].Strategy)
	assert.Equal(t, WithHook(filepath.Join(inst.PackagePath("scripted"), "scripts", "update.sh")), byName["scripted"].Strategy)
	assert.Equal(t, WithHook(filepath.Join(inst.PackagePath("declared"), "bin", "upgrade")), byName["declared"].Strategy)
}

func TestDiscover_InvalidMetadata(t *testing.T) {
	fsys, inst := newInstallation(t, "ouranos-core", "broken")
	writeFile(t, fsys, filepath.Join(inst.PackagePath("broken"), MetadataFile), "hook = ", 0644)

	_, err := Discover(fsys, inst, "ouranos-core")
	require.Error(t, err)
	assert.True(t, errors.IsErrorCode(err, errors.ErrPackage))
}

func TestSelect(t *testing.T) {
	pkgs := []Package{
		{Name: "ouranos-core", IsCore: true},
		{Name: "alpha"},
	}

	assert.Equal(t, pkgs, Select(pkgs, false))
	assert.Equal(t, []string{"ouranos-core"}, Names(Select(pkgs, true)))
	assert.Nil(t, Select([]Package{{Name: "alpha"}}, true))
}

func TestStrategyString(t *testing.T) {
	assert.Equal(t, "orchestrator-managed", Orchestrated().String())
	assert.Equal(t, "self-managed(/x/update.sh)", WithHook("/x/update.sh").String())
}
