package process

import (
	"os"
	"os/exec"
	"runtime"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

type staticTable map[int]Info

func (s staticTable) Lookup(pid int) (Info, bool, error) {
	info, ok := s[pid]
	return info, ok, nil
}

func (s staticTable) Find(name, root string) ([]Info, error) { return nil, nil }

func TestInfoMatches(t *testing.T) {
	tests := []struct {
		name   string
		info   Info
		target string
		want   bool
	}{
		{"comm", Info{Comm: "ouranos"}, "ouranos", true},
		{"other", Info{Comm: "ouranosctl", Cmdline: []string{"/usr/bin/ouranosctl", "stop"}}, "ouranos", false},
		{"interpreter script", Info{Comm: "python3", Cmdline: []string{"/srv/.venv/bin/python3", "/srv/.venv/bin/ouranos"}}, "ouranos", true},
		{"argument only", Info{Comm: "vim", Cmdline: []string{"vim", "notes", "ouranos"}}, "ouranos", false},
		{"file argument", Info{Comm: "cat", Cmdline: []string{"cat", "/srv/ouranos/ouranos"}}, "ouranos", false},
		{"argv0", Info{Comm: "python3.12", Cmdline: []string{"/srv/.venv/bin/ouranos", "--port", "8080"}}, "ouranos", true},
		{"env launcher", Info{Comm: "env", Cmdline: []string{"/usr/bin/env", "ouranos"}}, "ouranos", true},
		{"truncated comm", Info{Comm: "ouranos-supervi"}, "ouranos-supervisor", true},
		{"empty name", Info{Comm: ""}, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.info.Matches(tt.target))
		})
	}
}

func TestMarkerRoundTrip(t *testing.T) {
	fsys := afero.NewMemMapFs()
	h, err := WriteMarker(fsys, "/srv/ouranos/ouranos.pid", 4242)
	require.NoError(t, err)
	assert.Equal(t, 4242, h.PID)
	assert.False(t, h.Recorded.IsZero())

	data, err := afero.ReadFile(fsys, "/srv/ouranos/ouranos.pid")
	require.NoError(t, err)
	assert.Equal(t, "4242\n", string(data))

	require.NoError(t, RemoveMarker(fsys, "/srv/ouranos/ouranos.pid"))
	_, ok, err := ReadMarker(fsys, "/srv/ouranos/ouranos.pid")
	require.NoError(t, err)
	assert.False(t, ok)

	// removing twice is fine
	require.NoError(t, RemoveMarker(fsys, "/srv/ouranos/ouranos.pid"))
}

func TestReadMarker_Garbage(t *testing.T) {
	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "/pid", []byte("not a pid\n"), 0644))

	h, ok, err := ReadMarker(fsys, "/pid")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Zero(t, h.PID)

	_, identified, err := h.Identify(staticTable{}, "ouranos")
	require.NoError(t, err)
	assert.False(t, identified)
}

func TestHandleIdentify(t *testing.T) {
	recorded := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	table := staticTable{
		10: {PID: 10, Comm: "ouranos", StartTime: recorded.Add(-time.Minute)},
		11: {PID: 11, Comm: "bash", StartTime: recorded.Add(-time.Minute)},
		12: {PID: 12, Comm: "ouranos", StartTime: recorded.Add(time.Hour)},
		13: {PID: 13, Comm: "ouranos", StartTime: recorded.Add(StartSlack / 2)},
	}

	tests := []struct {
		pid  int
		want bool
	}{
		{10, true},
		{11, false}, // pid reused by another program
		{12, false}, // pid reused after the marker was written
		{13, true},
		{99999, false},
	}
	for _, tt := range tests {
		_, ok, err := Handle{PID: tt.pid, Recorded: recorded}.Identify(table, "ouranos")
		require.NoError(t, err)
		assert.Equal(t, tt.want, ok, "pid %d", tt.pid)
	}
}

func TestUnixSignaler_GoneProcess(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("no kill(2)")
	}
	cmd := exec.Command("true")
	require.NoError(t, cmd.Run())
	// the pid is reaped; signalling it must not fail
	assert.NoError(t, UnixSignaler{}.Signal(cmd.Process.Pid, unix.Signal(0)))
}

func requireProc(t *testing.T) *ProcTable {
	t.Helper()
	if _, err := os.Stat("/proc/self/stat"); err != nil {
		t.Skip("no /proc on this system")
	}
	table, err := NewProcTable()
	require.NoError(t, err)
	return table
}

func TestProcTable_Self(t *testing.T) {
	table := requireProc(t)

	info, ok, err := table.Lookup(os.Getpid())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, os.Getpid(), info.PID)
	assert.NotEmpty(t, info.Comm)
	assert.True(t, info.StartTime.Before(time.Now().Add(time.Second)))

	_, ok, err = table.Lookup(1 << 30)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestInfoBelongsTo(t *testing.T) {
	tests := []struct {
		name string
		info Info
		want bool
	}{
		{"cwd", Info{Cwd: "/srv/ouranos"}, true},
		{"cwd with trailing slash", Info{Cwd: "/srv/ouranos/"}, true},
		{"environment", Info{Cwd: "/", Environ: []string{"PATH=/bin", "OURANOS_DIR=/srv/ouranos"}}, true},
		{"other installation", Info{Cwd: "/srv/other", Environ: []string{"OURANOS_DIR=/srv/other"}}, false},
		{"unreadable", Info{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.info.BelongsTo("/srv/ouranos"))
		})
	}
	assert.False(t, Info{}.BelongsTo(""))
}

func TestSpawnAndFind(t *testing.T) {
	table := requireProc(t)
	if _, err := exec.LookPath("sleep"); err != nil {
		t.Skip("sleep not available")
	}

	dir := t.TempDir()
	child, err := Spawn(SpawnRequest{Command: []string{"sleep", "30"}, Dir: dir, Detach: true})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = child.Signal(unix.SIGKILL)
		<-child.Done()
	})

	found, err := table.Find("sleep", dir)
	require.NoError(t, err)
	var pids []int
	for _, info := range found {
		pids = append(pids, info.PID)
	}
	assert.Equal(t, []int{child.PID()}, pids)

	found, err = table.Find("sleep", t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, found)

	sid, err := unix.Getsid(child.PID())
	require.NoError(t, err)
	assert.Equal(t, child.PID(), sid)

	require.NoError(t, child.Signal(unix.SIGTERM))
	select {
	case <-child.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("child did not exit")
	}
	assert.True(t, child.Terminated())

	_, ok, err := table.Lookup(child.PID())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSpawn_EmptyCommand(t *testing.T) {
	_, err := Spawn(SpawnRequest{})
	assert.Error(t, err)
}
