package paths

import (
	"path/filepath"
	"testing"

	"github.com/adrg/xdg"
	"github.com/arthur-debert/ouranosctl/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_EmptyRoot(t *testing.T) {
	for _, root := range []string{"", "   "} {
		_, err := New(root, ".venv")
		require.Error(t, err)
		assert.True(t, errors.IsErrorCode(err, errors.ErrEnvironment))
		assert.Contains(t, err.Error(), EnvRoot)
	}
}

func TestInstallationLayout(t *testing.T) {
	root := t.TempDir()
	inst, err := New(root, ".venv")
	require.NoError(t, err)

	assert.Equal(t, root, inst.Root())
	assert.Equal(t, filepath.Join(root, "packages"), inst.PackagesDir())
	assert.Equal(t, filepath.Join(root, "packages", "ouranos-core"), inst.PackagePath("ouranos-core"))
	assert.Equal(t, filepath.Join(root, "logs"), inst.LogsDir())
	assert.Equal(t, filepath.Join(root, "scripts"), inst.ScriptsDir())
	assert.Equal(t, filepath.Join(root, ".venv"), inst.RuntimeDir())
	assert.Equal(t, filepath.Join(root, ".venv", "bin", "ouranos"), inst.RuntimeBin("ouranos"))
	assert.Equal(t, filepath.Join(root, "ouranos.pid"), inst.PIDFile())
	assert.Equal(t, filepath.Join(root, "logs", "ouranos.out.log"), inst.ProcessLogFile())
	assert.Equal(t, filepath.Join(root, "logs", "ouranosctl.log"), inst.OrchestratorLogFile())
	for _, rel := range LiveLogs() {
		assert.Contains(t, []string{inst.ProcessLogFile(), inst.OrchestratorLogFile()}, filepath.Join(root, rel))
	}
	assert.Len(t, LiveLogs(), 2)
	assert.Equal(t, filepath.Join(root, "pyproject.toml"), inst.ManifestPath("pyproject.toml"))
	assert.Equal(t, "/etc/manifest.toml", inst.ManifestPath("/etc/manifest.toml"))
}

func TestNew_RelativeRootBecomesAbsolute(t *testing.T) {
	inst, err := New("relative/ouranos", "")
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(inst.Root()))
	assert.Equal(t, filepath.Join(inst.Root(), ".venv"), inst.RuntimeDir())
}

func TestContains(t *testing.T) {
	root := t.TempDir()
	inst, err := New(root, ".venv")
	require.NoError(t, err)

	assert.True(t, inst.Contains(root))
	assert.True(t, inst.Contains(filepath.Join(root, "packages", "x")))
	assert.False(t, inst.Contains(filepath.Dir(root)))
	assert.False(t, inst.Contains(root+"-backup"))
}

func TestDefaultsFollowXDG(t *testing.T) {
	dir := t.TempDir()
	// runs after the environment is restored
	t.Cleanup(xdg.Reload)
	t.Setenv("XDG_DATA_HOME", filepath.Join(dir, "data"))
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "config"))
	t.Setenv("XDG_STATE_HOME", filepath.Join(dir, "state"))
	xdg.Reload()

	assert.Equal(t, filepath.Join(dir, "data", "ouranosctl", "backups"), DefaultBackupDir())
	assert.Equal(t, filepath.Join(dir, "config", "systemd", "user"), DefaultSystemdUnitDir())
	assert.Equal(t, filepath.Join(dir, "state", "ouranosctl", "ouranosctl.log"), DefaultFallbackLogFile())
}

func TestExpandHome(t *testing.T) {
	t.Setenv("HOME", "/home/gaia")

	assert.Equal(t, "/home/gaia", ExpandHome("~"))
	assert.Equal(t, "/home/gaia/ouranos", ExpandHome("~/ouranos"))
	assert.Equal(t, "/opt/ouranos", ExpandHome("/opt/ouranos"))
	assert.Equal(t, "~other/x", ExpandHome("~other/x"))
	assert.Equal(t, "", ExpandHome(""))
}
