package packages

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/arthur-debert/ouranosctl/pkg/errors"
	"github.com/arthur-debert/ouranosctl/pkg/logging"
	"github.com/arthur-debert/ouranosctl/pkg/paths"
	toml "github.com/pelletier/go-toml/v2"
	"github.com/spf13/afero"
)

const (
	// MetadataFile is the optional per-package metadata file
	MetadataFile = "ouranos-package.toml"

	// DefaultHook is used when the metadata names no hook
	DefaultHook = "scripts/update.sh"
)

// Discover returns every package of the installation, core first and
// dependents in lexical order. coreName must name exactly one directory.
func Discover(fsys afero.Fs, inst *paths.Installation, coreName string) ([]Package, error) {
	logger := logging.GetLogger("packages.discovery")
	root := inst.PackagesDir()
	logger.Trace().Str("root", root).Msg("Discovering packages")

	entries, err := afero.ReadDir(fsys, root)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrFileAccess, "cannot read packages directory").
			WithDetail("path", root)
	}

	var core *Package
	var dependents []Package
	for _, entry := range entries {
		name := entry.Name()

		if strings.HasPrefix(name, ".") {
			logger.Trace().Str("name", name).Msg("Skipping hidden entry")
			continue
		}

		pkgPath := filepath.Join(root, name)
		info, err := fsys.Stat(pkgPath)
		if err != nil || !info.IsDir() {
			logger.Trace().Str("name", name).Msg("Skipping non-directory entry")
			continue
		}

		pkg, err := loadPackage(fsys, name, pkgPath, name == coreName)
		if err != nil {
			return nil, err
		}

		if pkg.IsCore {
			core = &pkg
			continue
		}
		dependents = append(dependents, pkg)
	}

	if core == nil {
		return nil, errors.Newf(errors.ErrPackage, "core package %q not found", coreName).
			WithDetail("path", filepath.Join(root, coreName))
	}

	sort.Slice(dependents, func(i, j int) bool {
		return dependents[i].Name < dependents[j].Name
	})

	pkgs := append([]Package{*core}, dependents...)
	logger.Info().Int("count", len(pkgs)).Msg("Discovered packages")
	return pkgs, nil
}

// loadPackage builds a Package and decides its update strategy
func loadPackage(fsys afero.Fs, name, pkgPath string, isCore bool) (Package, error) {
	logger := logging.GetLogger("packages.discovery").With().Str("package", name).Logger()

	pkg := Package{
		Name:     name,
		Path:     pkgPath,
		IsCore:   isCore,
		Strategy: Orchestrated(),
	}

	meta, err := LoadMetadata(fsys, pkgPath)
	if err != nil {
		return Package{}, err
	}

	hook := resolveHook(fsys, pkgPath, meta)
	if hook == "" {
		return pkg, nil
	}

	if isCore {
		// The core package's update procedure is this orchestrator
		logger.Debug().Str("hook", hook).Msg("Ignoring hook on core package")
		return pkg, nil
	}

	pkg.Strategy = WithHook(hook)
	logger.Trace().Str("strategy", pkg.Strategy.String()).Msg("Loaded package")
	return pkg, nil
}

// LoadMetadata reads ouranos-package.toml from pkgPath. A missing file yields
// empty metadata.
func LoadMetadata(fsys afero.Fs, pkgPath string) (Metadata, error) {
	var meta Metadata

	path := filepath.Join(pkgPath, MetadataFile)
	data, err := afero.ReadFile(fsys, path)
	if err != nil {
		if os.IsNotExist(err) {
			return meta, nil
		}
		return meta, errors.Wrap(err, errors.ErrFileAccess, "cannot read package metadata").
			WithDetail("path", path)
	}

	if err := toml.Unmarshal(data, &meta); err != nil {
		return meta, errors.Wrap(err, errors.ErrPackage, "invalid package metadata").
			WithDetail("path", path)
	}
	return meta, nil
}

// resolveHook returns the absolute hook path, or "" when the package has none.
// An explicit metadata hook wins over the conventional scripts/update.sh.
func resolveHook(fsys afero.Fs, pkgPath string, meta Metadata) string {
	if meta.Hook != "" {
		if filepath.IsAbs(meta.Hook) {
			return meta.Hook
		}
		return filepath.Join(pkgPath, meta.Hook)
	}

	candidate := filepath.Join(pkgPath, DefaultHook)
	info, err := fsys.Stat(candidate)
	if err != nil || info.IsDir() || info.Mode().Perm()&0111 == 0 {
		return ""
	}
	return candidate
}

// Core returns the core package of pkgs
func Core(pkgs []Package) (Package, bool) {
	for _, p := range pkgs {
		if p.IsCore {
			return p, true
		}
	}
	return Package{}, false
}

// Select narrows pkgs to the core package when coreOnly is set
func Select(pkgs []Package, coreOnly bool) []Package {
	if !coreOnly {
		return pkgs
	}
	if core, ok := Core(pkgs); ok {
		return []Package{core}
	}
	return nil
}

// Names returns the package names in order
func Names(pkgs []Package) []string {
	names := make([]string, 0, len(pkgs))
	for _, p := range pkgs {
		names = append(names, p.Name)
	}
	return names
}
