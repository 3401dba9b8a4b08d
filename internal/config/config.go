package config

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// DefaultConfigFile is where the tool looks for its settings when --config is not given.
const DefaultConfigFile = "/etc/breeze/osupgrade.yaml"

// Step names accepted in enabled_steps.
const (
	StepUpgrade  = "upgrade"
	StepPatches  = "patches"
	StepPackages = "packages"
)

type Config struct {
	LogFormat     string `mapstructure:"log_format" yaml:"log_format"`
	LogLevel      string `mapstructure:"log_level" yaml:"log_level"`
	LogFile       string `mapstructure:"log_file" yaml:"log_file"`
	LogMaxSizeMB  int    `mapstructure:"log_max_size_mb" yaml:"log_max_size_mb"`
	LogMaxBackups int    `mapstructure:"log_max_backups" yaml:"log_max_backups"`

	// AuditFile enables the hash-chained command trail when set.
	AuditFile string `mapstructure:"audit_file" yaml:"audit_file"`

	DryRun    bool   `mapstructure:"dry_run" yaml:"dry_run"`
	Elevation string `mapstructure:"elevation" yaml:"elevation"`

	InstallURLPath string `mapstructure:"installurl_path" yaml:"installurl_path"`
	DefaultMirror  string `mapstructure:"default_mirror" yaml:"default_mirror"`

	ProbeTimeoutSeconds   int `mapstructure:"probe_timeout_seconds" yaml:"probe_timeout_seconds"`
	CommandTimeoutSeconds int `mapstructure:"command_timeout_seconds" yaml:"command_timeout_seconds"`

	EnabledSteps []string `mapstructure:"enabled_steps" yaml:"enabled_steps"`
}

func Default() *Config {
	return &Config{
		LogFormat:             "text",
		LogLevel:              "warn",
		LogMaxSizeMB:          10,
		LogMaxBackups:         5,
		Elevation:             "auto",
		InstallURLPath:        DefaultInstallURLPath,
		DefaultMirror:         DefaultMirror,
		ProbeTimeoutSeconds:   30,
		CommandTimeoutSeconds: 3600,
		EnabledSteps:          []string{StepUpgrade, StepPatches, StepPackages},
	}
}

// Load reads cfgFile (or DefaultConfigFile) over the defaults. A missing
// file is not an error. BREEZE_OSUPGRADE_* environment variables override
// file values.
func Load(cfgFile string) (*Config, error) {
	cfg := Default()
	v := newViper(cfg)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("osupgrade")
		v.SetConfigType("yaml")
		v.AddConfigPath(filepath.Dir(DefaultConfigFile))
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !(cfgFile != "" && errors.Is(err, os.ErrNotExist)) {
			return nil, err
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// SaveTo writes cfg as YAML to cfgFile (or DefaultConfigFile).
func SaveTo(cfg *Config, cfgFile string) error {
	if cfgFile == "" {
		cfgFile = DefaultConfigFile
	}

	v := newViper(cfg)
	if dir := filepath.Dir(cfgFile); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	if err := v.WriteConfigAs(cfgFile); err != nil {
		return err
	}
	return os.Chmod(cfgFile, 0o644)
}

// newViper returns a viper instance seeded with cfg's values so that
// environment overrides and Unmarshal see every key.
func newViper(cfg *Config) *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("BREEZE_OSUPGRADE")
	v.AutomaticEnv()

	v.SetDefault("log_format", cfg.LogFormat)
	v.SetDefault("log_level", cfg.LogLevel)
	v.SetDefault("log_file", cfg.LogFile)
	v.SetDefault("log_max_size_mb", cfg.LogMaxSizeMB)
	v.SetDefault("log_max_backups", cfg.LogMaxBackups)
	v.SetDefault("audit_file", cfg.AuditFile)
	v.SetDefault("dry_run", cfg.DryRun)
	v.SetDefault("elevation", cfg.Elevation)
	v.SetDefault("installurl_path", cfg.InstallURLPath)
	v.SetDefault("default_mirror", cfg.DefaultMirror)
	v.SetDefault("probe_timeout_seconds", cfg.ProbeTimeoutSeconds)
	v.SetDefault("command_timeout_seconds", cfg.CommandTimeoutSeconds)
	v.SetDefault("enabled_steps", cfg.EnabledSteps)
	return v
}
