package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/afero"
	"github.com/spf13/viper"

	"github.com/frederic-klein/yapp/internal/snapshot"
)

const (
	// AppName is used for the config directory and environment prefix.
	AppName = "yapp"
	// FileName is the default config file name inside the config directory.
	FileName = "config.toml"
)

// Config holds all settings of the tool.
type Config struct {
	HostPackage    string          `mapstructure:"host_package"`
	UnsafePackages []string        `mapstructure:"unsafe_packages"`
	PluginGroups   []string        `mapstructure:"plugin_groups"`
	Home           string          `mapstructure:"home"`
	Python         string          `mapstructure:"python"`
	Env            EnvConfig       `mapstructure:"env"`
	Update         UpdateConfig    `mapstructure:"update"`
	Installer      InstallerConfig `mapstructure:"installer"`
}

// EnvConfig pins the target environment instead of asking the interpreter.
type EnvConfig struct {
	Path string `mapstructure:"path"`
}

// UpdateConfig names the executable that performs the update.
type UpdateConfig struct {
	Command string `mapstructure:"command"`
}

// InstallerConfig is forwarded to the update pipeline.
type InstallerConfig struct {
	Parallel   bool `mapstructure:"parallel"`
	MaxWorkers int  `mapstructure:"max_workers"`
	NoCache    bool `mapstructure:"no_cache"`
}

// LoadOptions controls where configuration is read from.
type LoadOptions struct {
	ConfigFile string // used exclusively when set; must exist
	ConfigDir  string // defaults to the user config dir
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		HostPackage:    "poetry",
		UnsafePackages: snapshot.DefaultUnsafe(),
		PluginGroups:   []string{"poetry.plugin", "poetry.application.plugin"},
		Python:         "python3",
		Update:         UpdateConfig{Command: "poetry"},
		Installer:      InstallerConfig{Parallel: true},
	}
}

// Load reads configuration from defaults, an optional config file and the
// environment, in increasing precedence.
func Load(fs afero.Fs, opts LoadOptions) (*Config, error) {
	v := viper.New()
	v.SetFs(fs)

	defaults := Default()
	v.SetDefault("host_package", defaults.HostPackage)
	v.SetDefault("unsafe_packages", defaults.UnsafePackages)
	v.SetDefault("plugin_groups", defaults.PluginGroups)
	v.SetDefault("home", defaults.Home)
	v.SetDefault("python", defaults.Python)
	v.SetDefault("env.path", defaults.Env.Path)
	v.SetDefault("update.command", defaults.Update.Command)
	v.SetDefault("installer.parallel", defaults.Installer.Parallel)
	v.SetDefault("installer.max_workers", defaults.Installer.MaxWorkers)
	v.SetDefault("installer.no_cache", defaults.Installer.NoCache)

	v.SetEnvPrefix(strings.ToUpper(AppName))
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("home", "POETRY_HOME", "YAPP_HOME"); err != nil {
		return nil, fmt.Errorf("binding environment: %w", err)
	}

	path, err := configFile(fs, opts)
	if err != nil {
		return nil, err
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.expand(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func configFile(fs afero.Fs, opts LoadOptions) (string, error) {
	if opts.ConfigFile != "" {
		path, err := homedir.Expand(opts.ConfigFile)
		if err != nil {
			return "", fmt.Errorf("expanding config path: %w", err)
		}
		if ok, _ := afero.Exists(fs, path); !ok {
			return "", fmt.Errorf("config file not found: %s", path)
		}
		return path, nil
	}

	dir := opts.ConfigDir
	if dir == "" {
		base, err := os.UserConfigDir()
		if err != nil {
			return "", nil
		}
		dir = filepath.Join(base, AppName)
	}

	path := filepath.Join(dir, FileName)
	if ok, _ := afero.Exists(fs, path); ok {
		return path, nil
	}
	return "", nil
}

func (c *Config) expand() error {
	for _, p := range []*string{&c.Home, &c.Env.Path, &c.Python} {
		expanded, err := homedir.Expand(*p)
		if err != nil {
			return fmt.Errorf("expanding %s: %w", *p, err)
		}
		*p = expanded
	}
	return nil
}

// Validate checks settings that cannot be defaulted away.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.HostPackage) == "" {
		return fmt.Errorf("host_package must not be empty")
	}
	if strings.TrimSpace(c.Update.Command) == "" {
		return fmt.Errorf("update.command must not be empty")
	}
	if c.Env.Path == "" && strings.TrimSpace(c.Python) == "" {
		return fmt.Errorf("one of python or env.path must be set")
	}
	if c.Installer.MaxWorkers < 0 {
		return fmt.Errorf("installer.max_workers must not be negative, got %d", c.Installer.MaxWorkers)
	}
	return nil
}
