package ouranosctl

import (
	"os"

	"github.com/arthur-debert/ouranosctl/pkg/backup"
	"github.com/arthur-debert/ouranosctl/pkg/config"
	"github.com/arthur-debert/ouranosctl/pkg/emitter"
	"github.com/arthur-debert/ouranosctl/pkg/environment"
	"github.com/arthur-debert/ouranosctl/pkg/errors"
	"github.com/arthur-debert/ouranosctl/pkg/lifecycle"
	"github.com/arthur-debert/ouranosctl/pkg/logging"
	"github.com/arthur-debert/ouranosctl/pkg/orchestration"
	"github.com/arthur-debert/ouranosctl/pkg/paths"
	"github.com/arthur-debert/ouranosctl/pkg/process"
	"github.com/arthur-debert/ouranosctl/pkg/resolver"
	"github.com/arthur-debert/ouranosctl/pkg/updater"
	"github.com/arthur-debert/ouranosctl/pkg/vcs"
	"github.com/spf13/afero"
)

// globalOptions are the persistent flags
type globalOptions struct {
	verbosity  int
	root       string
	configFile string
}

// app is one loaded installation with its configuration
type app struct {
	inst *paths.Installation
	cfg  *config.Config
	fs   afero.Fs
}

// load reads the root and configuration and, when validate is set, checks
// the installation layout. The log file is attached to the installation's
// log once the layout is known to be valid and to the fallback log before.
func (o *globalOptions) load(validate bool) (*app, error) {
	logger := logging.GetLogger("cli")

	root := o.root
	if root == "" {
		root = os.Getenv(paths.EnvRoot)
	}
	if root == "" {
		attachFallbackLog()
		return nil, errors.New(errors.ErrEnvironment, MsgErrRootUnset)
	}

	cfg, err := config.Load(config.LoadOptions{Root: root, ExtraFile: o.configFile})
	if err != nil {
		attachFallbackLog()
		return nil, err
	}

	inst, err := paths.New(root, cfg.RuntimeDir)
	if err != nil {
		attachFallbackLog()
		return nil, err
	}

	if !validate {
		attachFallbackLog()
	} else {
		if err := environment.Validate(inst); err != nil {
			attachFallbackLog()
			logger.Error().Err(err).Str("root", inst.Root()).Msg("Environment validation failed")
			return nil, err
		}
		if err := logging.AttachLogFile(inst.OrchestratorLogFile()); err != nil {
			logger.Warn().Err(err).Msg("Cannot write the installation log")
			attachFallbackLog()
		}
	}

	logger.Debug().Str("root", inst.Root()).Str("config", cfg.String()).Msg("Installation loaded")
	return &app{inst: inst, cfg: cfg, fs: afero.NewOsFs()}, nil
}

func attachFallbackLog() {
	if logging.LogFilePath() != "" {
		return
	}
	path := paths.DefaultFallbackLogFile()
	if err := logging.AttachLogFile(path); err != nil {
		logger := logging.GetLogger("cli")
		logger.Warn().Err(err).Str("path", path).Msg("Cannot write the fallback log")
	}
}

func (a *app) backups() (*backup.Manager, error) {
	return backup.NewManager(a.fs, a.inst, a.cfg.Backup.Dir, backup.WithExclude(paths.LiveLogs()...))
}

func (a *app) emitter() *emitter.Emitter {
	exe, err := os.Executable()
	if err != nil {
		exe = "ouranosctl"
	}
	return emitter.New(a.fs, a.inst, a.cfg, exe)
}

func (a *app) orchestrator() (*orchestration.Orchestrator, error) {
	backups, err := a.backups()
	if err != nil {
		return nil, err
	}
	git := vcs.NewCLI()
	return orchestration.New(a.inst, a.cfg, orchestration.Deps{
		Resolver: resolver.New(git, a.cfg.Update),
		Updater:  updater.New(git, updater.NewExecHookRunner(), a.inst, a.cfg.Update),
		Backup:   backups,
		Emitter:  a.emitter(),
		Fs:       a.fs,
	}), nil
}

func (a *app) lifecycle() (*lifecycle.Manager, error) {
	table, err := process.NewProcTable()
	if err != nil {
		return nil, err
	}
	backups, err := a.backups()
	if err != nil {
		return nil, err
	}
	return lifecycle.New(a.inst, a.cfg.Process, lifecycle.Deps{
		Fs:      a.fs,
		Table:   table,
		Guard:   backups,
		Environ: os.Environ(),
		Stdin:   os.Stdin,
		Stdout:  os.Stdout,
		Stderr:  os.Stderr,
	}), nil
}
