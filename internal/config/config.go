// Package config loads specguard settings.
//
// Values are layered, lowest precedence first: built-in defaults, an
// optional YAML config file, SPECGUARD_* environment variables, and runtime
// overrides (CLI flags the user actually set).
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for environment overrides, e.g.
// SPECGUARD_SCAN_CONCURRENCY=4.
const EnvPrefix = "SPECGUARD"

// ErrInvalidConfig indicates a value failed validation.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the resolved configuration shared by both tools.
type Config struct {
	Logging LoggingConfig `mapstructure:"logging"`
	Output  OutputConfig  `mapstructure:"output"`
	Scan    ScanConfig    `mapstructure:"scan"`
	S3      S3Config      `mapstructure:"s3"`

	// Timeout bounds a whole run. Zero disables it.
	Timeout time.Duration `mapstructure:"timeout"`

	// File is the config file that was read, if any.
	File string `mapstructure:"-"`
}

// LoggingConfig controls the stderr diagnostic logger.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// OutputConfig controls stdout rendering.
type OutputConfig struct {
	// Format is "text" (default) or "jsonl".
	Format string `mapstructure:"format"`
}

// ScanConfig controls the validator's scan.
type ScanConfig struct {
	Concurrency int      `mapstructure:"concurrency"`
	RateLimit   float64  `mapstructure:"rate_limit"`
	Includes    []string `mapstructure:"includes"`
	Excludes    []string `mapstructure:"excludes"`
}

// S3Config holds connection settings for s3:// sources.
type S3Config struct {
	Region         string `mapstructure:"region"`
	Endpoint       string `mapstructure:"endpoint"`
	Profile        string `mapstructure:"profile"`
	ForcePathStyle bool   `mapstructure:"force_path_style"`
}

// Load resolves configuration.
//
// configFile may be empty. Overrides use dotted keys ("scan.concurrency")
// or nested maps and take precedence over every other layer.
func Load(configFile string, overrides ...map[string]any) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
	}

	for _, o := range overrides {
		for key, val := range flatten("", o) {
			v.Set(key, val)
		}
	}

	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}
	cfg.File = v.ConfigFileUsed()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", "warn")
	v.SetDefault("logging.format", "console")

	v.SetDefault("output.format", "text")

	v.SetDefault("scan.concurrency", 1)
	v.SetDefault("scan.rate_limit", 0)
	v.SetDefault("scan.includes", []string{"**/*.y*ml"})
	v.SetDefault("scan.excludes", []string{})

	v.SetDefault("s3.region", "")
	v.SetDefault("s3.endpoint", "")
	v.SetDefault("s3.profile", "")
	v.SetDefault("s3.force_path_style", false)

	v.SetDefault("timeout", "0s")
}

// flatten turns nested override maps into dotted keys.
func flatten(prefix string, m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, val := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if nested, ok := val.(map[string]any); ok {
			for nk, nv := range flatten(key, nested) {
				out[nk] = nv
			}
			continue
		}
		out[key] = val
	}
	return out
}

// Validate checks value ranges and enumerations.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: logging.level %q (want debug, info, warn or error)", ErrInvalidConfig, c.Logging.Level)
	}

	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("%w: logging.format %q (want console or json)", ErrInvalidConfig, c.Logging.Format)
	}

	switch c.Output.Format {
	case "text", "jsonl":
	default:
		return fmt.Errorf("%w: output.format %q (want text or jsonl)", ErrInvalidConfig, c.Output.Format)
	}

	if c.Scan.Concurrency < 1 {
		return fmt.Errorf("%w: scan.concurrency must be at least 1, got %d", ErrInvalidConfig, c.Scan.Concurrency)
	}
	if c.Scan.RateLimit < 0 {
		return fmt.Errorf("%w: scan.rate_limit must not be negative, got %g", ErrInvalidConfig, c.Scan.RateLimit)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("%w: timeout must not be negative, got %s", ErrInvalidConfig, c.Timeout)
	}

	return nil
}
