// Package backup takes a full copy of an installation before an update and
// either restores or discards it afterwards.
//
// A snapshot is copied into "<dir>/<name>-<timestamp>.partial" and renamed to
// its final name once complete, so an interrupted copy can never be mistaken
// for a usable snapshot. A complete snapshot that is still present means an
// update is running or was interrupted before it could clean up.
package backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/arthur-debert/ouranosctl/pkg/errors"
	"github.com/arthur-debert/ouranosctl/pkg/filesystem"
	"github.com/arthur-debert/ouranosctl/pkg/logging"
	"github.com/arthur-debert/ouranosctl/pkg/paths"
	"github.com/spf13/afero"
)

const (
	// TimeFormat keys snapshot directories
	TimeFormat = "20060102T150405.000000000"

	partialSuffix = ".partial"
)

// Snapshot is one full copy of the installation root
type Snapshot struct {
	Path      string
	Root      string
	CreatedAt time.Time
}

// Manager creates and consumes snapshots of one installation
type Manager struct {
	fs      afero.Fs
	inst    *paths.Installation
	dir     string
	exclude []string
	now     func() time.Time
}

// Option configures a Manager
type Option func(*Manager)

// WithExclude leaves paths relative to the root out of snapshots and keeps
// them in place on restore. Used for the orchestrator's live log file.
func WithExclude(rel ...string) Option {
	return func(m *Manager) { m.exclude = append(m.exclude, rel...) }
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager creates a Manager keeping snapshots under dir, which must lie
// outside the installation root
func NewManager(fs afero.Fs, inst *paths.Installation, dir string, opts ...Option) (*Manager, error) {
	if dir == "" {
		dir = paths.DefaultBackupDir()
	}
	dir = paths.ExpandHome(dir)
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrBackup, "invalid backup directory %s", dir)
	}
	if inst.Contains(abs) {
		return nil, errors.New(errors.ErrBackup, "backup directory must be outside the installation root").
			WithDetail("dir", abs).
			WithDetail("root", inst.Root())
	}

	m := &Manager{fs: fs, inst: inst, dir: abs, now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Dir returns the directory snapshots are kept in
func (m *Manager) Dir() string { return m.dir }

func (m *Manager) prefix() string { return m.inst.Name() + "-" }

// Snapshot copies the installation root to a fresh timestamped directory
func (m *Manager) Snapshot(ctx context.Context) (*Snapshot, error) {
	logger := logging.GetLogger("backup")
	done := logging.LogOperationStart(logger, "snapshot")
	defer done()

	if existing, ok := m.InProgress(); ok {
		return nil, errors.New(errors.ErrBackup, "a snapshot of this installation already exists").
			WithDetail("snapshot", existing)
	}

	if err := m.fs.MkdirAll(m.dir, 0700); err != nil {
		return nil, errors.Wrap(err, errors.ErrBackup, "cannot create backup directory").
			WithDetail("dir", m.dir)
	}

	created := m.now()
	final := filepath.Join(m.dir, m.prefix()+created.UTC().Format(TimeFormat))
	partial := final + partialSuffix

	for _, p := range []string{final, partial} {
		if _, err := filesystem.Lstat(m.fs, p); err == nil {
			return nil, errors.New(errors.ErrBackup, "snapshot destination already exists").
				WithDetail("snapshot", p)
		}
	}

	if err := m.fs.Mkdir(partial, 0700); err != nil {
		return nil, errors.Wrap(err, errors.ErrBackup, "cannot create snapshot directory").
			WithDetail("snapshot", partial)
	}

	logger.Info().Str("root", m.inst.Root()).Str("snapshot", final).Msg("Taking snapshot")

	err := filesystem.CopyTree(m.fs, m.inst.Root(), partial, filesystem.CopyOptions{
		Exclude: m.exclude,
		Check:   ctx.Err,
	})
	if err != nil {
		// A partial copy left on disk means a snapshot is still being taken
		if rerr := m.fs.RemoveAll(partial); rerr != nil {
			logger.Warn().Err(rerr).Str("snapshot", partial).Msg("Cannot remove partial snapshot, run recover")
		}
		return nil, errors.Wrap(err, errors.ErrBackup, "snapshot copy failed").
			WithDetail("snapshot", partial)
	}

	if err := m.fs.Rename(partial, final); err != nil {
		return nil, errors.Wrap(err, errors.ErrBackup, "cannot finalize snapshot").
			WithDetail("snapshot", partial)
	}

	return &Snapshot{Path: final, Root: m.inst.Root(), CreatedAt: created}, nil
}

// Restore replaces the installation root with the snapshot contents and then
// removes the snapshot. It deliberately ignores cancellation: a restore that
// has started must finish.
func (m *Manager) Restore(s *Snapshot) error {
	logger := logging.GetLogger("backup")
	done := logging.LogOperationStart(logger, "restore")
	defer done()

	fail := func(err error, msg string) error {
		logger.Error().Err(err).Str("snapshot", s.Path).Msg(msg)
		return errors.Wrap(err, errors.ErrRollbackFailure, msg).
			WithDetail("snapshot", s.Path).
			WithDetail("root", s.Root)
	}

	if _, err := m.fs.Stat(s.Path); err != nil {
		return fail(err, "snapshot is missing")
	}

	if err := m.fs.MkdirAll(s.Root, 0755); err != nil {
		return fail(err, "cannot recreate installation root")
	}
	if err := filesystem.ClearDir(m.fs, s.Root, m.exclude); err != nil {
		return fail(err, "cannot clear installation root")
	}
	if err := filesystem.CopyTree(m.fs, s.Path, s.Root, filesystem.CopyOptions{}); err != nil {
		return fail(err, "cannot copy snapshot back")
	}

	want, err := filesystem.Fingerprint(m.fs, s.Path, nil)
	if err != nil {
		return fail(err, "cannot verify snapshot")
	}
	got, err := filesystem.Fingerprint(m.fs, s.Root, m.exclude)
	if err != nil {
		return fail(err, "cannot verify restored root")
	}
	if !slices.Equal(want, got) {
		return fail(fmt.Errorf("restored tree differs from snapshot"), "restore verification failed")
	}

	if err := m.fs.RemoveAll(s.Path); err != nil {
		return fail(err, "installation restored but snapshot could not be removed")
	}

	logger.Info().Str("root", s.Root).Msg("Installation restored from snapshot")
	return nil
}

// Discard removes the snapshot
func (m *Manager) Discard(s *Snapshot) error {
	logger := logging.GetLogger("backup")
	if err := m.fs.RemoveAll(s.Path); err != nil {
		return errors.Wrap(err, errors.ErrBackup, "cannot remove snapshot").
			WithDetail("snapshot", s.Path)
	}
	logger.Debug().Str("snapshot", s.Path).Msg("Snapshot discarded")
	return nil
}

// Run takes the run lock and a snapshot, calls fn and then runs exactly one of Discard (fn
// returned nil) or Restore (fn returned an error or panicked). A restored run
// returns fn's error wrapped as ROLLBACK; a failed restore returns
// ROLLBACK_FAILURE.
func (m *Manager) Run(ctx context.Context, fn func(context.Context, *Snapshot) error) (err error) {
	l, err := m.lock()
	if err != nil {
		return err
	}
	defer l.release()

	s, err := m.Snapshot(ctx)
	if err != nil {
		return err
	}

	committed := false
	defer func() {
		if committed {
			return
		}
		rerr := m.Restore(s)
		if p := recover(); p != nil {
			if rerr != nil {
				logger := logging.GetLogger("backup")
				logger.Error().Err(rerr).Msg("Restore after panic failed")
			}
			panic(p)
		}
		if rerr != nil {
			err = errors.Wrap(rerr, errors.ErrRollbackFailure, "rollback failed").
				WithDetail("snapshot", s.Path).
				WithDetail("cause", err.Error())
		}
	}()

	if ferr := fn(ctx, s); ferr != nil {
		return errors.Wrap(ferr, errors.ErrRollback, "installation rolled back").
			WithDetail("snapshot", s.Path)
	}

	committed = true
	return m.Discard(s)
}

// InProgress returns the path of a snapshot of this installation, complete
// or still being copied, if one exists. A complete one is preferred.
func (m *Manager) InProgress() (string, bool) {
	leftovers, err := m.Leftovers()
	if err != nil || len(leftovers) == 0 {
		return "", false
	}
	for _, l := range leftovers {
		if !l.Partial {
			return l.Path, true
		}
	}
	return leftovers[0].Path, true
}

// Leftover is a snapshot directory found on disk
type Leftover struct {
	Path    string
	Partial bool
	Snapshot
}

// Leftovers lists snapshot directories of this installation, oldest first
func (m *Manager) Leftovers() ([]Leftover, error) {
	entries, err := afero.ReadDir(m.fs, m.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, errors.ErrBackup, "cannot read backup directory").
			WithDetail("dir", m.dir)
	}

	var found []Leftover
	for _, entry := range entries {
		name := entry.Name()
		if !entry.IsDir() || !strings.HasPrefix(name, m.prefix()) {
			continue
		}
		stamp := strings.TrimSuffix(strings.TrimPrefix(name, m.prefix()), partialSuffix)
		created, perr := time.Parse(TimeFormat, stamp)
		if perr != nil {
			continue
		}
		path := filepath.Join(m.dir, name)
		found = append(found, Leftover{
			Path:     path,
			Partial:  strings.HasSuffix(name, partialSuffix),
			Snapshot: Snapshot{Path: path, Root: m.inst.Root(), CreatedAt: created},
		})
	}

	sort.Slice(found, func(i, j int) bool { return found[i].CreatedAt.Before(found[j].CreatedAt) })
	return found, nil
}

// Recover restores the newest complete leftover snapshot and discards every
// partial one. It refuses while a Run holds the installation. It returns the restored snapshot, or nil when there was none.
func (m *Manager) Recover() (*Snapshot, error) {
	logger := logging.GetLogger("backup")
	l, err := m.lock()
	if err != nil {
		return nil, err
	}
	defer l.release()

	leftovers, err := m.Leftovers()
	if err != nil {
		return nil, err
	}

	var restore *Leftover
	for i := range leftovers {
		l := &leftovers[i]
		if l.Partial {
			logger.Info().Str("snapshot", l.Path).Msg("Removing partial snapshot")
			if err := m.Discard(&l.Snapshot); err != nil {
				return nil, err
			}
			continue
		}
		restore = l
	}
	if restore == nil {
		return nil, nil
	}

	if err := m.Restore(&restore.Snapshot); err != nil {
		return nil, err
	}

	// Older complete snapshots predate the one just restored
	for _, l := range leftovers {
		if !l.Partial && l.Path != restore.Path {
			if err := m.Discard(&l.Snapshot); err != nil {
				return nil, err
			}
		}
	}
	return &restore.Snapshot, nil
}
