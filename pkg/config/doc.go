// Package config handles configuration management for ouranosctl.
// It layers embedded defaults, the installation's ouranosctl.toml, an
// optional extra file and OURANOSCTL_* environment variables.
package config
