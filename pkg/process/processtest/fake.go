// Package processtest provides an in-memory process table for tests.
package processtest

import (
	"sync"

	"github.com/arthur-debert/ouranosctl/pkg/process"
	"golang.org/x/sys/unix"
)

// Sent is one delivered signal
type Sent struct {
	PID    int
	Signal unix.Signal
}

// Table is a fake process table that also acts as the Signaler. By default
// SIGTERM and SIGKILL remove the process from the table.
type Table struct {
	mu    sync.Mutex
	Procs map[int]process.Info
	Sent  []Sent

	// IgnoreTerm keeps processes alive on SIGTERM
	IgnoreTerm bool

	// Unkillable keeps processes alive on every signal
	Unkillable bool

	// Err is returned by every lookup when set
	Err error
}

// New returns an empty Table
func New() *Table {
	return &Table{Procs: map[int]process.Info{}}
}

// Add registers a live process
func (t *Table) Add(info process.Info) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Procs[info.PID] = info
}

// Lookup implements process.Table
func (t *Table) Lookup(pid int) (process.Info, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.Err != nil {
		return process.Info{}, false, t.Err
	}
	info, ok := t.Procs[pid]
	return info, ok, nil
}

// Find implements process.Table
func (t *Table) Find(name, root string) ([]process.Info, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.Err != nil {
		return nil, t.Err
	}
	var found []process.Info
	for _, info := range t.Procs {
		if info.Matches(name) && info.BelongsTo(root) {
			found = append(found, info)
		}
	}
	return found, nil
}

// Signal implements process.Signaler
func (t *Table) Signal(pid int, sig unix.Signal) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Sent = append(t.Sent, Sent{PID: pid, Signal: sig})
	if t.Unkillable || (sig == unix.SIGTERM && t.IgnoreTerm) {
		return nil
	}
	if sig == unix.SIGTERM || sig == unix.SIGKILL {
		delete(t.Procs, pid)
	}
	return nil
}

// Signals returns the signals delivered so far
func (t *Table) Signals() []Sent {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Sent(nil), t.Sent...)
}
