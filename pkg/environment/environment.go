// Package environment checks that an installation root has the layout the
// rest of ouranosctl depends on. It never modifies anything.
package environment

import (
	"os"

	"github.com/arthur-debert/ouranosctl/pkg/errors"
	"github.com/arthur-debert/ouranosctl/pkg/logging"
	"github.com/arthur-debert/ouranosctl/pkg/paths"
)

// requirement is one directory that must exist inside the root
type requirement struct {
	name string
	path string
}

// Validate confirms the root and its required subtrees exist.
// The first problem found is returned as an ENVIRONMENT error.
func Validate(inst *paths.Installation) error {
	logger := logging.GetLogger("environment")

	if inst == nil {
		return errors.Newf(errors.ErrEnvironment, "%s is not set", paths.EnvRoot)
	}

	if err := requireDir("installation root", inst.Root()); err != nil {
		return err
	}

	reqs := []requirement{
		{"packages directory", inst.PackagesDir()},
		{"logs directory", inst.LogsDir()},
		{"runtime environment", inst.RuntimeDir()},
		{"scripts directory", inst.ScriptsDir()},
	}
	for _, r := range reqs {
		if err := requireDir(r.name, r.path); err != nil {
			return err
		}
	}

	logger.Debug().Str("root", inst.Root()).Msg("Installation layout validated")
	return nil
}

func requireDir(name, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return errors.Newf(errors.ErrEnvironment, "%s not found", name).
				WithDetail("path", path)
		}
		return errors.Wrapf(err, errors.ErrEnvironment, "cannot access %s", name).
			WithDetail("path", path)
	}
	if !info.IsDir() {
		return errors.Newf(errors.ErrEnvironment, "%s is not a directory", name).
			WithDetail("path", path)
	}
	return nil
}
