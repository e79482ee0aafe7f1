// Package filesystem holds the tree operations ouranosctl performs over an
// afero.Fs: whole-tree copies that keep modes, mtimes and symlinks, and
// in-place clearing of a directory. Production code passes afero.NewOsFs();
// tests use afero.NewMemMapFs() where symlinks are not involved.
package filesystem
