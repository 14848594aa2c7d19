// internal/config/config.go

// Package config loads and holds the embershell configuration. Values come
// from an optional YAML file (flag, working directory, or home directory)
// overlaid with EMBERSHELL_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Config is the root configuration document.
type Config struct {
	Logger    LoggerConfig    `mapstructure:"logger" yaml:"logger"`
	Engine    EngineConfig    `mapstructure:"engine" yaml:"engine"`
	Scripting ScriptingConfig `mapstructure:"scripting" yaml:"scripting"`
}

// LoggerConfig controls the global zap logger.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"` // "console" or "json"
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`

	// File output, rotated by lumberjack. Empty disables the file core.
	LogFile    string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize    int    `mapstructure:"max_size" yaml:"max_size"` // megabytes
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge     int    `mapstructure:"max_age" yaml:"max_age"` // days
	Compress   bool   `mapstructure:"compress" yaml:"compress"`
}

// EngineConfig controls the network engine.
type EngineConfig struct {
	// StandardSchemes are seeded into the engine's scheme-classification
	// set at startup, before any script runs.
	StandardSchemes []string      `mapstructure:"standard_schemes" yaml:"standard_schemes"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
}

// ScriptingConfig controls the script runtime.
type ScriptingConfig struct {
	// ScriptTimeout bounds how long a control script may take to evaluate.
	ScriptTimeout time.Duration `mapstructure:"script_timeout" yaml:"script_timeout"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Logger: LoggerConfig{
			Level:       "info",
			Format:      "console",
			ServiceName: "embershell",
			MaxSize:     50,
			MaxBackups:  3,
			MaxAge:      14,
		},
		Engine: EngineConfig{
			RequestTimeout: 30 * time.Second,
		},
		Scripting: ScriptingConfig{
			ScriptTimeout: 30 * time.Second,
		},
	}
}

// Load reads configuration from path, or discovers embershell.yaml in the
// working directory and the user's home directory when path is empty. A
// missing file is not an error; defaults and environment apply.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("embershell")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := homedir.Dir(); err == nil {
			v.AddConfigPath(home)
		}
	}

	v.SetEnvPrefix("EMBERSHELL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	cfg := Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("logger.level", d.Logger.Level)
	v.SetDefault("logger.format", d.Logger.Format)
	v.SetDefault("logger.service_name", d.Logger.ServiceName)
	v.SetDefault("logger.max_size", d.Logger.MaxSize)
	v.SetDefault("logger.max_backups", d.Logger.MaxBackups)
	v.SetDefault("logger.max_age", d.Logger.MaxAge)
	v.SetDefault("engine.request_timeout", d.Engine.RequestTimeout)
	v.SetDefault("scripting.script_timeout", d.Scripting.ScriptTimeout)
}
