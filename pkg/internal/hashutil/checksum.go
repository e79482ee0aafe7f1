// Package hashutil computes content checksums of files on an afero.Fs.
package hashutil

import (
	"crypto/sha256"
	"fmt"
	"io"

	"github.com/spf13/afero"
)

// Checksum calculates the SHA256 checksum of the file at path
func Checksum(fsys afero.Fs, path string) (string, error) {
	file, err := fsys.Open(path)
	if err != nil {
		return "", err
	}
	defer func() {
		_ = file.Close()
	}()

	hash := sha256.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", err
	}

	return fmt.Sprintf("sha256:%x", hash.Sum(nil)), nil
}
