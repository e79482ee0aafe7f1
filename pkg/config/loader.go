package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/arthur-debert/ouranosctl/pkg/errors"
	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	// RootConfigFile is looked up in the installation root
	RootConfigFile = "ouranosctl.toml"

	// EnvPrefix prefixes configuration environment variables
	EnvPrefix = "OURANOSCTL_"
)

// sections are the nested tables of Config; env keys starting with one of
// them are split into section and key at the first underscore
var sections = map[string]bool{
	"update":   true,
	"backup":   true,
	"process":  true,
	"shell":    true,
	"service":  true,
	"manifest": true,
}

// LoadOptions selects the configuration sources
type LoadOptions struct {
	// Root is the installation root; <Root>/ouranosctl.toml is loaded if present
	Root string

	// ExtraFile is an additional file loaded after the root config
	ExtraFile string

	// Environ overrides os.Environ for the env layer (tests)
	Environ []string
}

// Load merges defaults, root config, extra file and environment into a Config
func Load(opts LoadOptions) (*Config, error) {
	k := koanf.New(".")

	// 1. Embedded defaults
	if err := k.Load(&rawBytesProvider{bytes: defaultConfig}, toml.Parser()); err != nil {
		return nil, errors.Wrap(err, errors.ErrConfigLoad, "failed to load defaults")
	}

	// 2. Root config if it exists
	if opts.Root != "" {
		path := filepath.Join(opts.Root, RootConfigFile)
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
				return nil, errors.Wrapf(err, errors.ErrConfigParse, "failed to load root config from %s", path)
			}
		}
	}

	// 3. Extra config file, which must exist when given
	if opts.ExtraFile != "" {
		if _, err := os.Stat(opts.ExtraFile); err != nil {
			return nil, errors.Wrapf(err, errors.ErrConfigLoad, "config file %s not readable", opts.ExtraFile)
		}
		if err := k.Load(file.Provider(opts.ExtraFile), toml.Parser()); err != nil {
			return nil, errors.Wrapf(err, errors.ErrConfigParse, "failed to load config from %s", opts.ExtraFile)
		}
	}

	// 4. Environment
	if err := loadEnv(k, opts.Environ); err != nil {
		return nil, err
	}

	// 5. Unmarshal
	var cfg Config
	unmarshalConf := koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			Result:           &cfg,
			WeaklyTypedInput: true,
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				mapstructure.StringToSliceHookFunc(","),
			),
		},
	}
	if err := k.UnmarshalWithConf("", &cfg, unmarshalConf); err != nil {
		return nil, errors.Wrap(err, errors.ErrConfigParse, "failed to unmarshal configuration")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func loadEnv(k *koanf.Koanf, environ []string) error {
	if environ == nil {
		err := k.Load(env.Provider(EnvPrefix, ".", EnvKey), nil)
		if err != nil {
			return errors.Wrap(err, errors.ErrConfigLoad, "failed to load env vars")
		}
		return nil
	}

	// Explicit environment: feed the same key mapping through a map provider
	values := make(map[string]interface{})
	for _, kv := range environ {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(key, EnvPrefix) {
			continue
		}
		values[EnvKey(key)] = value
	}
	for key, value := range values {
		if err := k.Set(key, value); err != nil {
			return errors.Wrapf(err, errors.ErrConfigLoad, "failed to set %s", key)
		}
	}
	return nil
}

// EnvKey maps OURANOSCTL_PROCESS_STOP_TIMEOUT to process.stop_timeout and
// OURANOSCTL_CORE_PACKAGE to core_package.
func EnvKey(s string) string {
	key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	section, rest, ok := strings.Cut(key, "_")
	if ok && sections[section] {
		return section + "." + rest
	}
	return key
}

// Validate checks invariants the rest of the code relies on
func (c *Config) Validate() error {
	if c.CorePackage == "" {
		return errors.New(errors.ErrConfigValid, "core_package must not be empty")
	}
	if strings.ContainsAny(c.CorePackage, `/\`) {
		return errors.Newf(errors.ErrConfigValid, "core_package %q must be a plain name", c.CorePackage)
	}
	if c.RuntimeDir == "" {
		return errors.New(errors.ErrConfigValid, "runtime_dir must not be empty")
	}
	if c.Process.Name == "" {
		return errors.New(errors.ErrConfigValid, "process.name must not be empty")
	}
	if c.Process.StopTimeout <= 0 || c.Process.PollInterval <= 0 {
		return errors.New(errors.ErrConfigValid, "process.stop_timeout and process.poll_interval must be positive")
	}
	if c.Process.StartGrace < 0 {
		return errors.New(errors.ErrConfigValid, "process.start_grace must not be negative")
	}
	if c.Update.FetchTimeout <= 0 || c.Update.HookTimeout <= 0 {
		return errors.New(errors.ErrConfigValid, "update timeouts must be positive")
	}
	switch c.Service.Manager {
	case ServiceManagerAuto, ServiceManagerSystemd, ServiceManagerLaunchd:
	default:
		return errors.Newf(errors.ErrConfigValid, "unknown service.manager %q", c.Service.Manager)
	}
	if c.Manifest.File == "" {
		return errors.New(errors.ErrConfigValid, "manifest.file must not be empty")
	}
	return nil
}

// String renders a short summary for debug logging
func (c *Config) String() string {
	return fmt.Sprintf("core=%s runtime=%s remote=%s process=%s",
		c.CorePackage, c.RuntimeDir, c.Update.Remote, c.Process.Name)
}
