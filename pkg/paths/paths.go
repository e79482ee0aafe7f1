// Package paths provides centralized path handling for an Ouranos
// installation. Every location the orchestrator touches is derived from the
// single root value handed to New; nothing here reads the process
// environment except the XDG fallbacks used for locations outside the root.
package paths

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/adrg/xdg"
	"github.com/arthur-debert/ouranosctl/pkg/errors"
)

// Environment variable names
const (
	// EnvRoot is the environment variable naming the installation root.
	// Only the CLI reads it; components receive the root explicitly.
	EnvRoot = "OURANOS_DIR"

	// EnvHome is the standard home directory variable
	EnvHome = "HOME"
)

// Fixed installation layout
const (
	PackagesDirName = "packages"
	LogsDirName     = "logs"
	ScriptsDirName  = "scripts"

	// PIDFileName is the Process Handle marker inside the root
	PIDFileName = "ouranos.pid"

	// ProcessLogFileName receives the managed process output in background mode
	ProcessLogFileName = "ouranos.out.log"

	// OrchestratorLogFileName receives ouranosctl's own log
	OrchestratorLogFileName = "ouranosctl.log"

	// AppDirName is used for XDG locations outside the root
	AppDirName = "ouranosctl"
)

// Installation addresses exactly one installation root
type Installation struct {
	root       string
	runtimeDir string
}

// New creates an Installation for root. runtimeDir is relative to root
// (for example ".venv"). An empty root is an environment error.
func New(root, runtimeDir string) (*Installation, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.Newf(errors.ErrEnvironment, "%s is not set", EnvRoot)
	}

	abs, err := filepath.Abs(ExpandHome(root))
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrEnvironment, "failed to get absolute path for %s", root)
	}

	if runtimeDir == "" {
		runtimeDir = ".venv"
	}

	return &Installation{root: abs, runtimeDir: runtimeDir}, nil
}

// Root returns the absolute installation root
func (i *Installation) Root() string { return i.root }

// Name returns the base name of the root, used to key snapshots
func (i *Installation) Name() string { return filepath.Base(i.root) }

// PackagesDir returns <root>/packages
func (i *Installation) PackagesDir() string { return filepath.Join(i.root, PackagesDirName) }

// PackagePath returns the working tree of a package
func (i *Installation) PackagePath(name string) string {
	return filepath.Join(i.PackagesDir(), name)
}

// LogsDir returns <root>/logs
func (i *Installation) LogsDir() string { return filepath.Join(i.root, LogsDirName) }

// ScriptsDir returns <root>/scripts
func (i *Installation) ScriptsDir() string { return filepath.Join(i.root, ScriptsDirName) }

// RuntimeDir returns the runtime environment directory
func (i *Installation) RuntimeDir() string {
	if filepath.IsAbs(i.runtimeDir) {
		return i.runtimeDir
	}
	return filepath.Join(i.root, i.runtimeDir)
}

// RuntimeBin returns the path of an executable inside the runtime environment
func (i *Installation) RuntimeBin(name string) string {
	return filepath.Join(i.RuntimeDir(), "bin", name)
}

// PIDFile returns the Process Handle marker path
func (i *Installation) PIDFile() string { return filepath.Join(i.root, PIDFileName) }

// ProcessLogFile returns the background output log of the managed process
func (i *Installation) ProcessLogFile() string {
	return filepath.Join(i.LogsDir(), ProcessLogFileName)
}

// LiveLogs lists the log files, relative to the root, that stay in place
// across a snapshot restore: ouranosctl's own log keeps the record of the run
// it undid and the managed process may still hold its output log open.
func LiveLogs() []string {
	return []string{
		filepath.Join(LogsDirName, OrchestratorLogFileName),
		filepath.Join(LogsDirName, ProcessLogFileName),
	}
}

// OrchestratorLogFile returns the path ouranosctl logs to
func (i *Installation) OrchestratorLogFile() string {
	return filepath.Join(i.LogsDir(), OrchestratorLogFileName)
}

// ManifestPath returns the dependency manifest path
func (i *Installation) ManifestPath(file string) string {
	if filepath.IsAbs(file) {
		return file
	}
	return filepath.Join(i.root, file)
}

// Contains reports whether path lies inside the root
func (i *Installation) Contains(path string) bool {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(i.root, abs)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

// DefaultBackupDir returns $XDG_DATA_HOME/ouranosctl/backups
func DefaultBackupDir() string {
	return filepath.Join(xdg.DataHome, AppDirName, "backups")
}

// DefaultFallbackLogFile is used when no installation could be validated
func DefaultFallbackLogFile() string {
	return filepath.Join(xdg.StateHome, AppDirName, OrchestratorLogFileName)
}

// DefaultShellProfile returns ~/.bashrc
func DefaultShellProfile() string {
	return filepath.Join(xdg.Home, ".bashrc")
}

// DefaultSystemdUnitDir returns $XDG_CONFIG_HOME/systemd/user
func DefaultSystemdUnitDir() string {
	return filepath.Join(xdg.ConfigHome, "systemd", "user")
}

// DefaultLaunchdAgentDir returns ~/Library/LaunchAgents
func DefaultLaunchdAgentDir() string {
	return filepath.Join(xdg.Home, "Library", "LaunchAgents")
}

// ExpandHome expands a leading ~ to the user's home directory
func ExpandHome(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = os.Getenv(EnvHome)
		if homeDir == "" {
			return path
		}
	}

	if len(path) == 1 {
		return homeDir
	}
	if path[1] == '/' || path[1] == filepath.Separator {
		return filepath.Join(homeDir, path[2:])
	}
	return path
}
