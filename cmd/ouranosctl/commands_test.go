package ouranosctl

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/adrg/xdg"
	"github.com/arthur-debert/ouranosctl/pkg/errors"
	"github.com/arthur-debert/ouranosctl/pkg/logging"
	"github.com/arthur-debert/ouranosctl/pkg/paths"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

type installation struct {
	root    string
	profile string
	units   string
	backups string
}

// newInstallation lays out a valid root whose config keeps every artifact
// inside the test directory
func newInstallation(t *testing.T, skip ...string) *installation {
	t.Helper()
	base := t.TempDir()

	// cleanups run in reverse: close the log, then reload the restored environment
	t.Cleanup(xdg.Reload)
	t.Setenv("XDG_STATE_HOME", filepath.Join(base, "state"))
	t.Setenv("XDG_DATA_HOME", filepath.Join(base, "data"))
	xdg.Reload()
	t.Cleanup(logging.Close)

	in := &installation{
		root:    filepath.Join(base, "ouranos"),
		profile: filepath.Join(base, "home", ".bashrc"),
		units:   filepath.Join(base, "units"),
		backups: filepath.Join(base, "backups"),
	}

	dirs := []string{"packages/ouranos-core", "packages/gaia", "logs", ".venv/bin", "scripts"}
	for _, d := range dirs {
		if contains(skip, d) {
			continue
		}
		require.NoError(t, os.MkdirAll(filepath.Join(in.root, d), 0755))
	}
	require.NoError(t, os.MkdirAll(filepath.Dir(in.profile), 0755))
	require.NoError(t, os.WriteFile(in.profile, []byte("export EDITOR=vi\n"), 0644))

	conf := fmt.Sprintf(`
[shell]
profile = %q

[service]
manager = "systemd"
unit_dir = %q

[backup]
dir = %q
`, in.profile, in.units, in.backups)
	require.NoError(t, os.WriteFile(filepath.Join(in.root, "ouranosctl.toml"), []byte(conf), 0644))

	t.Setenv(paths.EnvRoot, in.root)
	return in
}

func contains(list []string, s string) bool {
	for _, l := range list {
		if l == s {
			return true
		}
	}
	return false
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func requireProc(t *testing.T) {
	t.Helper()
	if _, err := os.Stat("/proc/self/stat"); err != nil {
		t.Skip("process table not available")
	}
}

func TestRootCmd_NoCommand(t *testing.T) {
	_, err := execute(t)
	require.Error(t, err)
	assert.True(t, errors.IsErrorCode(err, errors.ErrInvalidInput))
}

func TestRootCmd_Commands(t *testing.T) {
	cmd := NewRootCmd()
	var names []string
	for _, c := range cmd.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"update", "start", "stop", "status", "recover", "regenerate", "version", "completion"} {
		assert.Contains(t, names, want)
	}

	update, _, err := cmd.Find([]string{"update"})
	require.NoError(t, err)
	for flag, short := range map[string]string{"dry-run": "d", "force": "f", "core-only": "c"} {
		f := update.Flags().Lookup(flag)
		require.NotNil(t, f, flag)
		assert.Equal(t, short, f.Shorthand)
	}
}

func TestVersionCmd(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "ouranosctl version dev")
}

func TestCompletionCmd(t *testing.T) {
	out, err := execute(t, "completion", "bash")
	require.NoError(t, err)
	assert.Contains(t, out, "ouranosctl")

	_, err = execute(t, "completion", "tcsh")
	assert.Error(t, err)
}

func TestCommands_RootUnset(t *testing.T) {
	newInstallation(t)
	t.Setenv(paths.EnvRoot, "")

	for _, name := range []string{"update", "start", "stop", "status", "regenerate"} {
		_, err := execute(t, name)
		require.Error(t, err, name)
		assert.True(t, errors.IsErrorCode(err, errors.ErrEnvironment), name)
		assert.Equal(t, 1, errors.ExitCode(err), name)
	}
	// the failure is still recorded somewhere
	assert.Equal(t, paths.DefaultFallbackLogFile(), logging.LogFilePath())
}

func TestCommands_InvalidLayout(t *testing.T) {
	in := newInstallation(t, "scripts")

	_, err := execute(t, "update", "--dry-run")
	require.Error(t, err)
	assert.True(t, errors.IsErrorCode(err, errors.ErrEnvironment))

	// nothing was written into the broken root
	_, statErr := os.Stat(filepath.Join(in.root, "logs", paths.OrchestratorLogFileName))
	assert.True(t, os.IsNotExist(statErr))
}

func TestCommands_RootFlagOverridesEnv(t *testing.T) {
	in := newInstallation(t)
	t.Setenv(paths.EnvRoot, filepath.Join(t.TempDir(), "elsewhere"))

	_, err := execute(t, "regenerate", "--dry-run", "--root", in.root)
	require.NoError(t, err)
}

func TestRegenerate_DryRun(t *testing.T) {
	in := newInstallation(t)

	out, err := execute(t, "regenerate", "--dry-run")
	require.NoError(t, err)
	assert.Contains(t, out, "would write "+in.profile)
	assert.Contains(t, out, MsgDryRunNotice)

	profile, err := os.ReadFile(in.profile)
	require.NoError(t, err)
	assert.Equal(t, "export EDITOR=vi\n", string(profile))
	_, err = os.Stat(filepath.Join(in.root, "pyproject.toml"))
	assert.True(t, os.IsNotExist(err))
}

func TestRegenerate_WritesArtifacts(t *testing.T) {
	in := newInstallation(t)

	out, err := execute(t, "regenerate")
	require.NoError(t, err)
	assert.Contains(t, out, "wrote "+in.profile)

	profile, err := os.ReadFile(in.profile)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(profile), "export EDITOR=vi\n"))
	assert.Contains(t, string(profile), "OURANOS_DIR='"+in.root+"'")

	unit, err := os.ReadFile(filepath.Join(in.units, "ouranos.service"))
	require.NoError(t, err)
	assert.Contains(t, string(unit), "start --foreground")

	manifest, err := os.ReadFile(filepath.Join(in.root, "pyproject.toml"))
	require.NoError(t, err)
	assert.Contains(t, string(manifest), "packages/gaia")

	// the run is recorded in the installation log
	assert.Equal(t, filepath.Join(in.root, "logs", paths.OrchestratorLogFileName), logging.LogFilePath())

	// a second run has nothing to do
	out, err = execute(t, "regenerate")
	require.NoError(t, err)
	assert.NotContains(t, out, "wrote ")
}

func TestRecover_NothingToDo(t *testing.T) {
	newInstallation(t)

	out, err := execute(t, "recover")
	require.NoError(t, err)
	assert.Contains(t, out, MsgNothingToRecover)
}

func TestRecover_RestoresLeftoverSnapshot(t *testing.T) {
	in := newInstallation(t)

	// a complete snapshot whose run never finished
	snapshot := filepath.Join(in.backups, "ouranos-20250301T100000.000000000")
	require.NoError(t, os.MkdirAll(filepath.Join(snapshot, "packages", "ouranos-core"), 0755))
	for _, d := range []string{"logs", ".venv/bin", "scripts"} {
		require.NoError(t, os.MkdirAll(filepath.Join(snapshot, d), 0755))
	}
	require.NoError(t, os.WriteFile(filepath.Join(snapshot, "ouranosctl.toml"), mustRead(t, filepath.Join(in.root, "ouranosctl.toml")), 0644))

	// the managed process appends to its output log across the restore
	processLog := filepath.Join(in.root, "logs", paths.ProcessLogFileName)
	require.NoError(t, os.WriteFile(processLog, []byte("serving\n"), 0644))
	before, err := os.Stat(processLog)
	require.NoError(t, err)

	out, err := execute(t, "recover")
	require.NoError(t, err)
	assert.Contains(t, out, "Restored")

	after, err := os.Stat(processLog)
	require.NoError(t, err)
	assert.True(t, os.SameFile(before, after), "process log was replaced")
	assert.Equal(t, "serving\n", string(mustRead(t, processLog)))

	// gaia did not exist when the snapshot was taken
	_, err = os.Stat(filepath.Join(in.root, "packages", "gaia"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(snapshot)
	assert.True(t, os.IsNotExist(err))
}

func mustRead(t *testing.T, path string) []byte {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return data
}

func TestStart_RefusedDuringUpdate(t *testing.T) {
	requireProc(t)
	for _, snapshot := range []string{"ouranos-20250301T100000.000000000", "ouranos-20250301T100000.000000000.partial"} {
		t.Run(snapshot, func(t *testing.T) {
			in := newInstallation(t)
			require.NoError(t, os.MkdirAll(filepath.Join(in.backups, snapshot), 0700))

			_, err := execute(t, "start")
			require.Error(t, err)
			assert.True(t, errors.IsErrorCode(err, errors.ErrUpdateInProgress))
		})
	}
}

func TestStop_NotRunning(t *testing.T) {
	requireProc(t)
	in := newInstallation(t)
	// a marker naming a process that does not exist
	require.NoError(t, os.WriteFile(filepath.Join(in.root, paths.PIDFileName), []byte("999999\n"), 0644))

	out, err := execute(t, "stop")
	require.NoError(t, err)
	assert.Contains(t, out, "ouranos stopped")

	_, err = os.Stat(filepath.Join(in.root, paths.PIDFileName))
	assert.True(t, os.IsNotExist(err))
}

func TestStatus_YAML(t *testing.T) {
	in := newInstallation(t)

	out, err := execute(t, "status", "--output", "yaml")
	require.NoError(t, err)

	var report statusReport
	require.NoError(t, yaml.Unmarshal([]byte(out), &report))
	assert.Equal(t, in.root, report.Root)
	require.Len(t, report.Packages, 2)
	assert.Equal(t, "ouranos-core", report.Packages[0].Name)
	assert.True(t, report.Packages[0].Core)
	assert.Equal(t, "ouranos", report.Process.Name)
	assert.Empty(t, report.UpdateInProgress)
}

func TestStatus_InvalidOutput(t *testing.T) {
	newInstallation(t)
	_, err := execute(t, "status", "--output", "xml")
	assert.Error(t, err)
}
