package config

import (
	"time"
)

// Config is the fully merged ouranosctl configuration
type Config struct {
	// CorePackage names the package under packages/ that is the core package
	CorePackage string `koanf:"core_package"`

	// RuntimeDir is the runtime environment directory relative to the root
	RuntimeDir string `koanf:"runtime_dir"`

	Update   UpdateConfig   `koanf:"update"`
	Backup   BackupConfig   `koanf:"backup"`
	Process  ProcessConfig  `koanf:"process"`
	Shell    ShellConfig    `koanf:"shell"`
	Service  ServiceConfig  `koanf:"service"`
	Manifest ManifestConfig `koanf:"manifest"`
}

// UpdateConfig controls how packages are resolved and switched
type UpdateConfig struct {
	Remote        string        `koanf:"remote"`
	DefaultBranch string        `koanf:"default_branch"`
	FetchTimeout  time.Duration `koanf:"fetch_timeout"`
	HookTimeout   time.Duration `koanf:"hook_timeout"`
}

// BackupConfig controls where snapshots are kept
type BackupConfig struct {
	// Dir holds snapshots; it must lie outside the installation root.
	// Empty means $XDG_DATA_HOME/ouranosctl/backups.
	Dir string `koanf:"dir"`
}

// ProcessConfig describes the managed process
type ProcessConfig struct {
	Name         string        `koanf:"name"`
	Command      []string      `koanf:"command"`
	Args         []string      `koanf:"args"`
	StartGrace   time.Duration `koanf:"start_grace"`
	StopTimeout  time.Duration `koanf:"stop_timeout"`
	PollInterval time.Duration `koanf:"poll_interval"`
	LogTail      int           `koanf:"log_tail"`
}

// ShellConfig controls the shell profile block
type ShellConfig struct {
	// Profile is the rc file to edit. Empty means ~/.bashrc.
	Profile  string `koanf:"profile"`
	Function string `koanf:"function"`
}

// ServiceConfig controls the service-manager unit
type ServiceConfig struct {
	// Manager is systemd, launchd or auto
	Manager string `koanf:"manager"`
	UnitDir string `koanf:"unit_dir"`
	Name    string `koanf:"name"`
}

// ManifestConfig controls the dependency manifest
type ManifestConfig struct {
	File string `koanf:"file"`
}

// Service manager identifiers
const (
	ServiceManagerAuto    = "auto"
	ServiceManagerSystemd = "systemd"
	ServiceManagerLaunchd = "launchd"
)
