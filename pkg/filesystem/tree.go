package filesystem

import (
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/arthur-debert/ouranosctl/pkg/errors"
	"github.com/arthur-debert/ouranosctl/pkg/internal/hashutil"
	"github.com/spf13/afero"
)

// CopyOptions tune CopyTree
type CopyOptions struct {
	// Exclude lists slash-separated paths relative to the source that are not copied
	Exclude []string

	// Check runs before each entry; a non-nil error aborts the copy
	Check func() error
}

type dirTimes struct {
	path  string
	mode  os.FileMode
	mtime time.Time
}

// CopyTree copies src into dst recursively. Directories, regular files and
// symlinks are reproduced with their permission bits and modification times.
// dst may already exist; existing files are overwritten.
func CopyTree(fsys afero.Fs, src, dst string, opts CopyOptions) error {
	excluded := toSet(opts.Exclude)
	var dirs []dirTimes

	err := afero.Walk(fsys, src, func(path string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if opts.Check != nil {
			if err := opts.Check(); err != nil {
				return err
			}
		}

		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		if excluded[filepath.ToSlash(rel)] {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		target := filepath.Join(dst, rel)

		switch {
		case info.Mode()&os.ModeSymlink != 0:
			return copySymlink(fsys, path, target)
		case info.IsDir():
			if err := fsys.MkdirAll(target, 0700); err != nil {
				return err
			}
			dirs = append(dirs, dirTimes{path: target, mode: info.Mode().Perm(), mtime: info.ModTime()})
			return nil
		case info.Mode().IsRegular():
			return copyFile(fsys, path, target, info)
		default:
			return errors.Newf(errors.ErrFileAccess, "unsupported file type %s", info.Mode().Type()).
				WithDetail("path", path)
		}
	})
	if err != nil {
		return err
	}

	// Deepest first, so setting a parent's mtime is not undone by its children
	for i := len(dirs) - 1; i >= 0; i-- {
		d := dirs[i]
		if err := fsys.Chmod(d.path, d.mode); err != nil {
			return err
		}
		if err := fsys.Chtimes(d.path, d.mtime, d.mtime); err != nil {
			return err
		}
	}
	return nil
}

func copyFile(fsys afero.Fs, src, dst string, info os.FileInfo) error {
	in, err := fsys.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	out, err := fsys.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}

	// OpenFile is subject to the umask
	if err := fsys.Chmod(dst, info.Mode().Perm()); err != nil {
		return err
	}
	return fsys.Chtimes(dst, info.ModTime(), info.ModTime())
}

func copySymlink(fsys afero.Fs, src, dst string) error {
	reader, ok := fsys.(afero.LinkReader)
	if !ok {
		return errors.New(errors.ErrFileAccess, "filesystem cannot read symlinks").WithDetail("path", src)
	}
	linker, ok := fsys.(afero.Linker)
	if !ok {
		return errors.New(errors.ErrFileAccess, "filesystem cannot create symlinks").WithDetail("path", dst)
	}

	link, err := reader.ReadlinkIfPossible(src)
	if err != nil {
		return err
	}
	if _, err := Lstat(fsys, dst); err == nil {
		if err := fsys.Remove(dst); err != nil {
			return err
		}
	}
	return linker.SymlinkIfPossible(link, dst)
}

// Lstat stats name without following a final symlink when fsys supports it
func Lstat(fsys afero.Fs, name string) (os.FileInfo, error) {
	if lfs, ok := fsys.(afero.Lstater); ok {
		info, _, err := lfs.LstatIfPossible(name)
		return info, err
	}
	return fsys.Stat(name)
}

// ClearDir removes everything inside dir except the slash-separated relative
// paths in keep. Parents of kept paths survive; dir itself is never removed.
func ClearDir(fsys afero.Fs, dir string, keep []string) error {
	return clearDir(fsys, dir, "", toSet(keep))
}

func clearDir(fsys afero.Fs, dir, prefix string, keep map[string]bool) error {
	entries, err := afero.ReadDir(fsys, dir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		rel := entry.Name()
		if prefix != "" {
			rel = prefix + "/" + entry.Name()
		}
		path := filepath.Join(dir, entry.Name())

		if keep[rel] {
			continue
		}
		if entry.IsDir() && hasKeptDescendant(keep, rel) {
			if err := clearDir(fsys, path, rel, keep); err != nil {
				return err
			}
			continue
		}
		if err := fsys.RemoveAll(path); err != nil {
			return err
		}
	}
	return nil
}

func hasKeptDescendant(keep map[string]bool, rel string) bool {
	for k := range keep {
		if strings.HasPrefix(k, rel+"/") {
			return true
		}
	}
	return false
}

func toSet(paths []string) map[string]bool {
	set := make(map[string]bool, len(paths))
	for _, p := range paths {
		set[filepath.ToSlash(filepath.Clean(p))] = true
	}
	return set
}

// Fingerprint lists every path under root with its type, mode, mtime and
// content checksum, sorted. Two trees with equal fingerprints are identical for the
// purposes of snapshot verification.
func Fingerprint(fsys afero.Fs, root string, exclude []string) ([]string, error) {
	excluded := toSet(exclude)
	var lines []string

	err := afero.Walk(fsys, root, func(path string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if excluded[rel] {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		line := rel + " " + info.Mode().String()
		switch {
		case info.Mode()&os.ModeSymlink != 0:
			if reader, ok := fsys.(afero.LinkReader); ok {
				link, err := reader.ReadlinkIfPossible(path)
				if err != nil {
					return err
				}
				line += " -> " + link
			}
		case info.Mode().IsRegular():
			sum, err := hashutil.Checksum(fsys, path)
			if err != nil {
				return err
			}
			line += " " + info.ModTime().UTC().Format(time.RFC3339Nano) + " " + sum
		}
		lines = append(lines, line)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(lines)
	return lines, nil
}
