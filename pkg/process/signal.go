package process

import (
	"golang.org/x/sys/unix"
)

// Signaler delivers signals to processes by PID
type Signaler interface {
	Signal(pid int, sig unix.Signal) error
}

// UnixSignaler signals through kill(2)
type UnixSignaler struct{}

// Signal implements Signaler. Signalling a process that already exited is
// not an error.
func (UnixSignaler) Signal(pid int, sig unix.Signal) error {
	if err := unix.Kill(pid, sig); err != nil && err != unix.ESRCH {
		return err
	}
	return nil
}
