// Package process identifies, launches and signals the managed process.
//
// A process is identified by its PID together with its name and start time,
// so that a recycled PID belonging to an unrelated program is never mistaken
// for the managed process.
package process

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/arthur-debert/ouranosctl/pkg/paths"
)

// commLen is the kernel's limit on the comm field, excluding the NUL
const commLen = 15

// interpreters may run the managed executable as their first argument
var interpreters = []string{"sh", "bash", "env"}

// Info describes one live process. Cwd and Environ are only filled in for
// processes the caller may inspect.
type Info struct {
	PID       int
	Comm      string
	Cmdline   []string
	StartTime time.Time
	Cwd       string
	Environ   []string
}

// Matches reports whether the process runs the executable name, either
// directly or as the script argument of an interpreter
func (i Info) Matches(name string) bool {
	if name == "" {
		return false
	}
	if i.Comm == name || (len(name) > commLen && i.Comm == name[:commLen]) {
		return true
	}
	if len(i.Cmdline) == 0 {
		return false
	}
	if filepath.Base(i.Cmdline[0]) == name {
		return true
	}
	return len(i.Cmdline) > 1 && isInterpreter(i.Cmdline[0]) && filepath.Base(i.Cmdline[1]) == name
}

func isInterpreter(arg string) bool {
	base := filepath.Base(arg)
	// python3, python3.12
	if strings.HasPrefix(base, "python") {
		return true
	}
	for _, interp := range interpreters {
		if base == interp {
			return true
		}
	}
	return false
}

// BelongsTo reports whether the process was started for the installation at
// root: it runs there or carries the root in its environment. Any of roots
// may match, so callers can pass both the given and the resolved path.
func (i Info) BelongsTo(roots ...string) bool {
	for _, root := range roots {
		if root == "" {
			continue
		}
		root = filepath.Clean(root)
		if i.Cwd != "" && filepath.Clean(i.Cwd) == root {
			return true
		}
		want := paths.EnvRoot + "=" + root
		for _, kv := range i.Environ {
			if kv == want {
				return true
			}
		}
	}
	return false
}

// Table looks up processes
type Table interface {
	// Lookup returns the process with pid. ok is false when no live
	// process has that pid; zombies count as gone.
	Lookup(pid int) (info Info, ok bool, err error)

	// Find lists live processes matching name that belong to the
	// installation at root, excluding the caller
	Find(name, root string) ([]Info, error)
}

// Same reports whether b is the same process instance as a
func Same(a, b Info) bool {
	return a.PID == b.PID && a.StartTime.Equal(b.StartTime)
}
