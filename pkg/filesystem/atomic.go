package filesystem

import (
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

// WriteFileAtomic replaces path with data by renaming a sibling temp file
// over it. An existing file keeps its permissions; a new one gets perm.
func WriteFileAtomic(fsys afero.Fs, path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := fsys.MkdirAll(dir, 0755); err != nil {
		return err
	}
	if info, err := fsys.Stat(path); err == nil {
		perm = info.Mode().Perm()
	}

	tmp, err := afero.TempFile(fsys, dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	name := tmp.Name()

	_, err = tmp.Write(data)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = fsys.Chmod(name, perm)
	}
	if err == nil {
		err = fsys.Rename(name, path)
	}
	if err != nil {
		_ = fsys.Remove(name)
		return err
	}
	return nil
}
