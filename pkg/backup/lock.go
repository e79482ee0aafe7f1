package backup

import (
	"os"
	"path/filepath"

	"github.com/arthur-debert/ouranosctl/pkg/errors"
	"golang.org/x/sys/unix"
)

const lockSuffix = ".lock"

// runLock is an advisory lock on "<dir>/<name>.lock" held while a run or a
// recovery touches the installation. The kernel drops it when its holder
// exits, so a crashed run never leaves it behind.
type runLock struct {
	f *os.File
}

func (m *Manager) lockPath() string {
	return filepath.Join(m.dir, m.inst.Name()+lockSuffix)
}

// lock takes the run lock without waiting. A held lock is UPDATE_IN_PROGRESS.
func (m *Manager) lock() (*runLock, error) {
	if err := m.fs.MkdirAll(m.dir, 0700); err != nil {
		return nil, errors.Wrap(err, errors.ErrBackup, "cannot create backup directory").
			WithDetail("dir", m.dir)
	}

	// flock needs a real descriptor
	path := m.lockPath()
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrBackup, "cannot open run lock").WithDetail("path", path)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		_ = f.Close()
		if err == unix.EWOULDBLOCK {
			return nil, errors.New(errors.ErrUpdateInProgress, "another update or recovery of this installation is running").
				WithDetail("lock", path)
		}
		return nil, errors.Wrap(err, errors.ErrBackup, "cannot take run lock").WithDetail("path", path)
	}
	return &runLock{f: f}, nil
}

func (l *runLock) release() {
	_ = unix.Flock(int(l.f.Fd()), unix.LOCK_UN)
	_ = l.f.Close()
}
