// Package emitter regenerates the artifacts derived from an installation:
// the shell profile block, the service-manager unit and the dependency
// manifest. Every artifact is rendered whole from the current installation
// state and written atomically; nothing is patched in place.
package emitter

import (
	"bytes"
	"runtime"

	"github.com/arthur-debert/ouranosctl/pkg/config"
	"github.com/arthur-debert/ouranosctl/pkg/errors"
	"github.com/arthur-debert/ouranosctl/pkg/filesystem"
	"github.com/arthur-debert/ouranosctl/pkg/logging"
	"github.com/arthur-debert/ouranosctl/pkg/packages"
	"github.com/arthur-debert/ouranosctl/pkg/paths"
	"github.com/spf13/afero"
)

// Kind names an artifact
type Kind string

const (
	KindShellProfile Kind = "shell-profile"
	KindServiceUnit  Kind = "service-unit"
	KindManifest     Kind = "manifest"
)

// Artifact is one rendered file
type Artifact struct {
	Kind    Kind
	Path    string
	Content []byte

	// Changed reports that Content differs from what was on disk
	Changed bool

	// Written is false in dry-run and when the file was already up to date
	Written bool
}

// Options modify one emission
type Options struct {
	DryRun bool
}

// Emitter renders artifacts for one installation
type Emitter struct {
	fs         afero.Fs
	inst       *paths.Installation
	cfg        *config.Config
	executable string
	goos       string
}

// New creates an Emitter. executable is the ouranosctl binary the generated
// artifacts invoke.
func New(fs afero.Fs, inst *paths.Installation, cfg *config.Config, executable string) *Emitter {
	return &Emitter{fs: fs, inst: inst, cfg: cfg, executable: executable, goos: runtime.GOOS}
}

// Emit renders and writes all three artifacts
func (e *Emitter) Emit(pkgs []packages.Package, opts Options) ([]Artifact, error) {
	logger := logging.GetLogger("emitter")
	done := logging.LogOperationStart(logger, "regenerate configuration")
	defer done()

	profilePath := e.profilePath()
	existing, err := e.read(profilePath)
	if err != nil {
		return nil, err
	}
	profile, err := RenderProfile(existing, e.ShellBlock())
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrEmit, "cannot update shell profile").
			WithDetail("path", profilePath)
	}

	unitPath, unit, err := e.ServiceUnit()
	if err != nil {
		return nil, err
	}

	manifest, err := e.Manifest(pkgs)
	if err != nil {
		return nil, err
	}

	artifacts := []Artifact{
		{Kind: KindShellProfile, Path: profilePath, Content: profile},
		{Kind: KindServiceUnit, Path: unitPath, Content: unit},
		{Kind: KindManifest, Path: e.inst.ManifestPath(e.cfg.Manifest.File), Content: manifest},
	}

	for i := range artifacts {
		a := &artifacts[i]
		current, err := e.read(a.Path)
		if err != nil {
			return nil, err
		}
		a.Changed = !bytes.Equal(current, a.Content)

		if opts.DryRun {
			logger.Info().Str("artifact", string(a.Kind)).Str("path", a.Path).Bool("changed", a.Changed).
				Msg("Would write artifact")
			continue
		}
		if !a.Changed {
			logger.Debug().Str("artifact", string(a.Kind)).Msg("Artifact up to date")
			continue
		}
		if err := e.write(a.Path, a.Content); err != nil {
			return nil, err
		}
		a.Written = true
		logger.Info().Str("artifact", string(a.Kind)).Str("path", a.Path).Msg("Wrote artifact")
	}

	return artifacts, nil
}

// ServiceManager returns the manager units are generated for
func (e *Emitter) ServiceManager() string {
	switch e.cfg.Service.Manager {
	case config.ServiceManagerSystemd, config.ServiceManagerLaunchd:
		return e.cfg.Service.Manager
	}
	if e.goos == "darwin" {
		return config.ServiceManagerLaunchd
	}
	return config.ServiceManagerSystemd
}

func (e *Emitter) profilePath() string {
	if e.cfg.Shell.Profile != "" {
		return paths.ExpandHome(e.cfg.Shell.Profile)
	}
	return paths.DefaultShellProfile()
}

func (e *Emitter) unitDir() string {
	if e.cfg.Service.UnitDir != "" {
		return paths.ExpandHome(e.cfg.Service.UnitDir)
	}
	if e.ServiceManager() == config.ServiceManagerLaunchd {
		return paths.DefaultLaunchdAgentDir()
	}
	return paths.DefaultSystemdUnitDir()
}

// read returns the file content, or nil if it does not exist
func (e *Emitter) read(path string) ([]byte, error) {
	data, err := afero.ReadFile(e.fs, path)
	if err != nil {
		if exists, _ := afero.Exists(e.fs, path); !exists {
			return nil, nil
		}
		return nil, errors.Wrap(err, errors.ErrFileAccess, "cannot read artifact").WithDetail("path", path)
	}
	return data, nil
}

// write replaces path atomically
func (e *Emitter) write(path string, content []byte) error {
	if err := filesystem.WriteFileAtomic(e.fs, path, content, 0644); err != nil {
		return errors.Wrap(err, errors.ErrFileWrite, "cannot write artifact").WithDetail("path", path)
	}
	return nil
}
