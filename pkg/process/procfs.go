package process

import (
	stderrors "errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/arthur-debert/ouranosctl/pkg/errors"
	"github.com/prometheus/procfs"
)

// ProcTable reads the process table from /proc
type ProcTable struct {
	fs   procfs.FS
	self int
}

// NewProcTable opens the default /proc mount
func NewProcTable() (*ProcTable, error) {
	pfs, err := procfs.NewDefaultFS()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrInternal, "cannot open the process table")
	}
	return &ProcTable{fs: pfs, self: os.Getpid()}, nil
}

// Lookup implements Table
func (t *ProcTable) Lookup(pid int) (Info, bool, error) {
	if pid <= 0 {
		return Info{}, false, nil
	}
	p, err := t.fs.Proc(pid)
	if err != nil {
		if gone(err) {
			return Info{}, false, nil
		}
		return Info{}, false, errors.Wrapf(err, errors.ErrInternal, "cannot inspect process %d", pid)
	}
	return t.info(p)
}

// Find implements Table. Processes whose working directory and environment
// cannot be read, typically those of other users, never belong to root.
func (t *ProcTable) Find(name, root string) ([]Info, error) {
	procs, err := t.fs.AllProcs()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrInternal, "cannot list processes")
	}
	resolved, err := filepath.EvalSymlinks(root)
	if err != nil {
		resolved = ""
	}

	var found []Info
	for _, p := range procs {
		if p.PID == t.self {
			continue
		}
		info, ok, err := t.info(p)
		if err != nil || !ok {
			// processes exit while the table is walked
			continue
		}
		if !info.Matches(name) {
			continue
		}
		if cwd, err := p.Cwd(); err == nil {
			info.Cwd = cwd
		}
		if environ, err := p.Environ(); err == nil {
			info.Environ = environ
		}
		if info.BelongsTo(root, resolved) {
			found = append(found, info)
		}
	}
	return found, nil
}

func (t *ProcTable) info(p procfs.Proc) (Info, bool, error) {
	stat, err := p.Stat()
	if err != nil {
		if gone(err) {
			return Info{}, false, nil
		}
		return Info{}, false, errors.Wrapf(err, errors.ErrInternal, "cannot read stat of process %d", p.PID)
	}
	if stat.State == "Z" || stat.State == "X" {
		return Info{}, false, nil
	}

	info := Info{PID: p.PID, Comm: stat.Comm}
	if start, err := stat.StartTime(); err == nil {
		info.StartTime = time.Unix(0, int64(start*float64(time.Second)))
	}
	if cmdline, err := p.CmdLine(); err == nil {
		info.Cmdline = cmdline
	}
	return info, true, nil
}

func gone(err error) bool {
	return stderrors.Is(err, fs.ErrNotExist) || os.IsNotExist(err)
}
