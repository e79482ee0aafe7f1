package process

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/arthur-debert/ouranosctl/pkg/errors"
	"github.com/arthur-debert/ouranosctl/pkg/filesystem"
	"github.com/spf13/afero"
)

// StartSlack is how much later than its marker a process may appear to have
// started and still be the process the marker was written for. It covers
// clock-tick rounding of process start times.
const StartSlack = time.Second

// Handle is the content of a PID marker file
type Handle struct {
	Path string
	PID  int

	// Recorded is the marker's modification time; the managed process
	// started no later than this
	Recorded time.Time
}

// ReadMarker reads the marker at path. ok is false when there is no marker.
// A marker that does not hold a PID yields a Handle with PID 0, which never
// identifies a process.
func ReadMarker(fsys afero.Fs, path string) (Handle, bool, error) {
	info, err := fsys.Stat(path)
	if err != nil {
		if gone(err) {
			return Handle{}, false, nil
		}
		return Handle{}, false, errors.Wrap(err, errors.ErrFileAccess, "cannot read PID marker").WithDetail("path", path)
	}
	data, err := afero.ReadFile(fsys, path)
	if err != nil {
		return Handle{}, false, errors.Wrap(err, errors.ErrFileAccess, "cannot read PID marker").WithDetail("path", path)
	}

	h := Handle{Path: path, Recorded: info.ModTime()}
	line, _, _ := strings.Cut(string(data), "\n")
	if pid, err := strconv.Atoi(strings.TrimSpace(line)); err == nil && pid > 0 {
		h.PID = pid
	}
	return h, true, nil
}

// WriteMarker records pid at path as a single line
func WriteMarker(fsys afero.Fs, path string, pid int) (Handle, error) {
	if err := filesystem.WriteFileAtomic(fsys, path, []byte(fmt.Sprintf("%d\n", pid)), 0644); err != nil {
		return Handle{}, errors.Wrap(err, errors.ErrFileWrite, "cannot write PID marker").WithDetail("path", path)
	}
	h, _, err := ReadMarker(fsys, path)
	return h, err
}

// RemoveMarker deletes the marker; a missing marker is not an error
func RemoveMarker(fsys afero.Fs, path string) error {
	if err := fsys.Remove(path); err != nil && !gone(err) {
		return errors.Wrap(err, errors.ErrFileWrite, "cannot remove PID marker").WithDetail("path", path)
	}
	return nil
}

// Identify returns the live process the handle names, provided it runs name
// and did not start after the marker was written
func (h Handle) Identify(t Table, name string) (Info, bool, error) {
	if h.PID <= 0 {
		return Info{}, false, nil
	}
	info, ok, err := t.Lookup(h.PID)
	if err != nil || !ok {
		return Info{}, false, err
	}
	if !info.Matches(name) {
		return Info{}, false, nil
	}
	if !info.StartTime.IsZero() && !h.Recorded.IsZero() && info.StartTime.After(h.Recorded.Add(StartSlack)) {
		return Info{}, false, nil
	}
	return info, true, nil
}
