package process

import (
	stderrors "errors"
	"io"
	"os/exec"
	"syscall"

	"github.com/arthur-debert/ouranosctl/pkg/errors"
	"golang.org/x/sys/unix"
)

// SpawnRequest describes a process to launch
type SpawnRequest struct {
	Command []string
	Dir     string
	Env     []string

	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	// Detach starts the process in its own session so it outlives the
	// caller and its terminal
	Detach bool
}

// Child is a process started by Spawn
type Child struct {
	cmd  *exec.Cmd
	done chan struct{}
	err  error
}

// Spawn starts the process and begins waiting for it in the background
func Spawn(req SpawnRequest) (*Child, error) {
	if len(req.Command) == 0 {
		return nil, errors.New(errors.ErrInvalidInput, "no command to start")
	}

	cmd := exec.Command(req.Command[0], req.Command[1:]...)
	cmd.Dir = req.Dir
	cmd.Env = req.Env
	cmd.Stdin = req.Stdin
	cmd.Stdout = req.Stdout
	cmd.Stderr = req.Stderr
	if req.Detach {
		cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	}

	if err := cmd.Start(); err != nil {
		return nil, errors.Wrap(err, errors.ErrStartFailure, "cannot launch process").
			WithDetail("command", req.Command[0])
	}

	c := &Child{cmd: cmd, done: make(chan struct{})}
	go func() {
		c.err = cmd.Wait()
		close(c.done)
	}()
	return c, nil
}

// PID returns the process id
func (c *Child) PID() int { return c.cmd.Process.Pid }

// Done is closed once the process has exited
func (c *Child) Done() <-chan struct{} { return c.done }

// Err returns the exit error; only valid after Done is closed
func (c *Child) Err() error { return c.err }

// Signal delivers sig to the process
func (c *Child) Signal(sig unix.Signal) error {
	return c.cmd.Process.Signal(sig)
}

// Terminated reports that the process exited because of SIGTERM or SIGINT;
// only valid after Done is closed
func (c *Child) Terminated() bool {
	var exitErr *exec.ExitError
	if !stderrors.As(c.err, &exitErr) {
		return false
	}
	status, ok := exitErr.Sys().(syscall.WaitStatus)
	if !ok || !status.Signaled() {
		return false
	}
	return status.Signal() == unix.SIGTERM || status.Signal() == unix.SIGINT
}
