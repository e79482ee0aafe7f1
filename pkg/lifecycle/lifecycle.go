// Package lifecycle starts and stops the managed process while keeping at
// most one instance running per installation.
package lifecycle

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/arthur-debert/ouranosctl/pkg/config"
	"github.com/arthur-debert/ouranosctl/pkg/errors"
	"github.com/arthur-debert/ouranosctl/pkg/logging"
	"github.com/arthur-debert/ouranosctl/pkg/paths"
	"github.com/arthur-debert/ouranosctl/pkg/process"
	"github.com/spf13/afero"
	"golang.org/x/sys/unix"
)

// State of the managed process as seen by one operation
type State string

const (
	StateStopped  State = "stopped"
	StateStarting State = "starting"
	StateRunning  State = "running"
	StateStopping State = "stopping"
)

// UpdateGuard reports an update that holds the installation
type UpdateGuard interface {
	InProgress() (string, bool)
}

// Deps are the collaborators of a Manager
type Deps struct {
	Fs      afero.Fs
	Table   process.Table
	Signals process.Signaler
	Guard   UpdateGuard

	// Environ is the base environment of the managed process
	Environ []string

	// Terminal streams for foreground mode
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// Manager runs lifecycle operations for one installation
type Manager struct {
	inst *paths.Installation
	cfg  config.ProcessConfig
	deps Deps
}

// New creates a Manager
func New(inst *paths.Installation, cfg config.ProcessConfig, deps Deps) *Manager {
	if deps.Fs == nil {
		deps.Fs = afero.NewOsFs()
	}
	if deps.Signals == nil {
		deps.Signals = process.UnixSignaler{}
	}
	return &Manager{inst: inst, cfg: cfg, deps: deps}
}

// Status describes the managed process
type Status struct {
	State State
	PID   int

	// Stale is set when a marker exists that names no managed process
	Stale     bool
	StartedAt time.Time
	Marker    string
}

// Status inspects the marker without changing anything
func (m *Manager) Status() (Status, error) {
	st := Status{State: StateStopped, Marker: m.inst.PIDFile()}
	h, exists, err := process.ReadMarker(m.deps.Fs, m.inst.PIDFile())
	if err != nil || !exists {
		return st, err
	}
	info, ok, err := h.Identify(m.deps.Table, m.cfg.Name)
	if err != nil {
		return st, err
	}
	if !ok {
		st.Stale = true
		return st, nil
	}
	st.State = StateRunning
	st.PID = info.PID
	st.StartedAt = info.StartTime
	return st, nil
}

// running returns the process the marker names. A marker naming nothing is
// removed.
func (m *Manager) running() (process.Info, bool, error) {
	logger := logging.GetLogger("lifecycle")
	h, exists, err := process.ReadMarker(m.deps.Fs, m.inst.PIDFile())
	if err != nil || !exists {
		return process.Info{}, false, err
	}
	info, ok, err := h.Identify(m.deps.Table, m.cfg.Name)
	if err != nil {
		return process.Info{}, false, err
	}
	if ok {
		return info, true, nil
	}
	logger.Info().Int("pid", h.PID).Str("marker", h.Path).Msg("Discarding stale PID marker")
	return process.Info{}, false, process.RemoveMarker(m.deps.Fs, h.Path)
}

// command returns the argv of the managed process
func (m *Manager) command() []string {
	cmd := append([]string(nil), m.cfg.Command...)
	if len(cmd) == 0 {
		cmd = []string{m.inst.RuntimeBin(m.cfg.Name)}
	}
	return append(cmd, m.cfg.Args...)
}

func (m *Manager) environ() []string {
	env := make([]string, 0, len(m.deps.Environ)+1)
	for _, kv := range m.deps.Environ {
		if !strings.HasPrefix(kv, paths.EnvRoot+"=") {
			env = append(env, kv)
		}
	}
	return append(env, paths.EnvRoot+"="+m.inst.Root())
}

// Start launches the managed process. In foreground mode it returns once the
// process has exited.
func (m *Manager) Start(ctx context.Context, foreground bool) error {
	logger := logging.GetLogger("lifecycle").With().Bool("foreground", foreground).Logger()

	if m.deps.Guard != nil {
		if snapshot, ok := m.deps.Guard.InProgress(); ok {
			return errors.New(errors.ErrUpdateInProgress, "an update is in progress; run recover if it was interrupted").
				WithDetail("snapshot", snapshot)
		}
	}

	info, ok, err := m.running()
	if err != nil {
		return err
	}
	if ok {
		return errors.Newf(errors.ErrAlreadyRunning, "%s is already running", m.cfg.Name).
			WithDetail("pid", info.PID)
	}

	argv := m.command()
	logging.LogCommand(logger, argv[0], argv[1:])
	logger.Debug().Str("state", string(StateStarting)).Msg("Starting managed process")

	if foreground {
		return m.startForeground(ctx, argv)
	}
	return m.startBackground(ctx, argv)
}

func (m *Manager) startBackground(ctx context.Context, argv []string) error {
	logger := logging.GetLogger("lifecycle")
	logPath := m.inst.ProcessLogFile()

	// The child inherits this descriptor, so it must be a real file
	out, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return errors.Wrap(err, errors.ErrStartFailure, "cannot open process log").WithDetail("path", logPath)
	}
	fmt.Fprintf(out, "--- %s starting %s\n", time.Now().Format(time.RFC3339), strings.Join(argv, " "))

	child, err := process.Spawn(process.SpawnRequest{
		Command: argv,
		Dir:     m.inst.Root(),
		Env:     m.environ(),
		Stdout:  out,
		Stderr:  out,
		Detach:  true,
	})
	out.Close()
	if err != nil {
		return err
	}

	if _, err := process.WriteMarker(m.deps.Fs, m.inst.PIDFile(), child.PID()); err != nil {
		_ = child.Signal(unix.SIGKILL)
		return err
	}

	timer := time.NewTimer(m.cfg.StartGrace)
	defer timer.Stop()

	select {
	case <-child.Done():
		_ = process.RemoveMarker(m.deps.Fs, m.inst.PIDFile())
		return m.startFailure(child, "process exited during the start grace period")
	case <-ctx.Done():
		_ = child.Signal(unix.SIGTERM)
		_ = process.RemoveMarker(m.deps.Fs, m.inst.PIDFile())
		return errors.Wrap(ctx.Err(), errors.ErrStartFailure, "start interrupted")
	case <-timer.C:
	}

	logger.Info().Int("pid", child.PID()).Str("log", logPath).Str("state", string(StateRunning)).
		Msg("Managed process started")
	return nil
}

func (m *Manager) startForeground(ctx context.Context, argv []string) error {
	logger := logging.GetLogger("lifecycle")

	child, err := process.Spawn(process.SpawnRequest{
		Command: argv,
		Dir:     m.inst.Root(),
		Env:     m.environ(),
		Stdin:   m.deps.Stdin,
		Stdout:  m.deps.Stdout,
		Stderr:  m.deps.Stderr,
	})
	if err != nil {
		return err
	}

	handle, err := process.WriteMarker(m.deps.Fs, m.inst.PIDFile(), child.PID())
	if err != nil {
		_ = child.Signal(unix.SIGKILL)
		<-child.Done()
		return err
	}
	defer m.clearOwnMarker(handle)

	logger.Info().Int("pid", child.PID()).Str("state", string(StateRunning)).Msg("Managed process running in foreground")

	interrupted := false
	select {
	case <-child.Done():
	case <-ctx.Done():
		interrupted = true
		logger.Info().Int("pid", child.PID()).Msg("Forwarding termination to managed process")
		_ = child.Signal(unix.SIGTERM)
		select {
		case <-child.Done():
		case <-time.After(m.cfg.StopTimeout):
			logger.Warn().Int("pid", child.PID()).Msg("Managed process ignored SIGTERM, killing")
			_ = child.Signal(unix.SIGKILL)
			<-child.Done()
		}
	}

	if child.Err() == nil || interrupted || child.Terminated() {
		logger.Info().Int("pid", child.PID()).Str("state", string(StateStopped)).Msg("Managed process exited")
		return nil
	}
	return errors.Wrap(child.Err(), errors.ErrStartFailure, "managed process failed").
		WithDetail("pid", child.PID())
}

// clearOwnMarker removes the marker only while it still names handle's PID
func (m *Manager) clearOwnMarker(handle process.Handle) {
	current, exists, err := process.ReadMarker(m.deps.Fs, handle.Path)
	if err != nil || !exists || current.PID != handle.PID {
		return
	}
	_ = process.RemoveMarker(m.deps.Fs, handle.Path)
}

func (m *Manager) startFailure(child *process.Child, msg string) error {
	var cause error = fmt.Errorf("exited")
	if child.Err() != nil {
		cause = child.Err()
	}
	tail, _ := Tail(m.deps.Fs, m.inst.ProcessLogFile(), m.cfg.LogTail)
	return errors.Wrap(cause, errors.ErrStartFailure, msg).
		WithDetail("pid", child.PID()).
		WithDetail("log", m.inst.ProcessLogFile()).
		WithDetail("output", strings.Join(tail, "\n"))
}

// Stop terminates the managed process: SIGTERM, then SIGKILL once the stop
// timeout passes. Stopping a stopped installation succeeds.
func (m *Manager) Stop(ctx context.Context) error {
	logger := logging.GetLogger("lifecycle")
	done := logging.LogOperationStart(logger, "stop")
	defer done()

	targets, err := m.resolve()
	if err != nil {
		return err
	}
	if len(targets) == 0 {
		logger.Info().Msg("Managed process is not running")
		return process.RemoveMarker(m.deps.Fs, m.inst.PIDFile())
	}

	logger.Debug().Str("state", string(StateStopping)).Int("count", len(targets)).Msg("Stopping managed process")
	for _, t := range targets {
		logger.Info().Int("pid", t.PID).Msg("Sending SIGTERM")
		if err := m.deps.Signals.Signal(t.PID, unix.SIGTERM); err != nil {
			return errors.Wrapf(err, errors.ErrStopFailure, "cannot signal process %d", t.PID)
		}
	}

	remaining := m.await(ctx, targets, m.cfg.StopTimeout)
	if len(remaining) > 0 {
		for _, t := range remaining {
			logger.Warn().Int("pid", t.PID).Msg("Process did not exit in time, sending SIGKILL")
			if err := m.deps.Signals.Signal(t.PID, unix.SIGKILL); err != nil {
				return errors.Wrapf(err, errors.ErrStopFailure, "cannot kill process %d", t.PID)
			}
		}
		remaining = m.await(context.Background(), remaining, m.cfg.StopTimeout)
	}

	if err := process.RemoveMarker(m.deps.Fs, m.inst.PIDFile()); err != nil {
		return err
	}

	// Nothing of this installation may survive, signalled or not
	if left, err := m.deps.Table.Find(m.cfg.Name, m.inst.Root()); err != nil {
		logger.Warn().Err(err).Msg("Cannot verify that the managed process is gone")
	} else {
		for _, l := range left {
			if !containsProcess(remaining, l) {
				remaining = append(remaining, l)
			}
		}
	}

	if len(remaining) > 0 {
		pids := make([]int, 0, len(remaining))
		for _, t := range remaining {
			pids = append(pids, t.PID)
		}
		return errors.Newf(errors.ErrStopFailure, "%s is still running after stop", m.cfg.Name).
			WithDetail("pids", pids)
	}

	logger.Info().Str("state", string(StateStopped)).Msg("Managed process stopped")
	return nil
}

// resolve finds the processes to stop: the one the marker names, else every
// process running the managed executable
func (m *Manager) resolve() ([]process.Info, error) {
	logger := logging.GetLogger("lifecycle")
	h, exists, err := process.ReadMarker(m.deps.Fs, m.inst.PIDFile())
	if err != nil {
		return nil, err
	}
	if exists {
		info, ok, err := h.Identify(m.deps.Table, m.cfg.Name)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrStopFailure, "cannot inspect process")
		}
		if ok {
			return []process.Info{info}, nil
		}
		logger.Debug().Int("pid", h.PID).Msg("PID marker is stale, searching by name")
	}

	found, err := m.deps.Table.Find(m.cfg.Name, m.inst.Root())
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrStopFailure, "cannot search the process table")
	}
	return found, nil
}

func containsProcess(list []process.Info, p process.Info) bool {
	for _, l := range list {
		if process.Same(l, p) {
			return true
		}
	}
	return false
}

// await polls until every target has exited or timeout passes and returns
// those still alive
func (m *Manager) await(ctx context.Context, targets []process.Info, timeout time.Duration) []process.Info {
	deadline := time.Now().Add(timeout)
	interval := m.cfg.PollInterval
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}

	for {
		var alive []process.Info
		for _, t := range targets {
			info, ok, err := m.deps.Table.Lookup(t.PID)
			if err != nil || (ok && process.Same(info, t)) {
				alive = append(alive, t)
			}
		}
		if len(alive) == 0 || !time.Now().Before(deadline) {
			return alive
		}
		targets = alive

		select {
		case <-ctx.Done():
			return alive
		case <-time.After(interval):
		}
	}
}

// Tail returns the last n lines of the file at path
func Tail(fsys afero.Fs, path string, n int) ([]string, error) {
	data, err := afero.ReadFile(fsys, path)
	if err != nil {
		return nil, err
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if n > 0 && len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines, nil
}
