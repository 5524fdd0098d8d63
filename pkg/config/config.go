// Package config loads retrofit settings from defaults, an optional config
// file, RETROFIT_* environment variables and command-line flags.
//
// Sources, highest priority first:
//
//  1. Command-line flags bound with Load
//  2. Environment variables (RETROFIT_DATA_PRIMARY, RETROFIT_POLICY_COST_PER_KWH, ...)
//  3. Config file (YAML, JSON or TOML)
//  4. Defaults
//
// Example:
//
//	data:
//	  primary: /srv/retrofit/data
//	  deprecated: ""          # disable the legacy lookup
//	artifacts:
//	  model_a: model_A.json.gz
//	policy:
//	  cost_per_kwh: 145
//	log:
//	  level: debug
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/ja7ad/retrofit/pkg/artifact"
	"github.com/ja7ad/retrofit/pkg/kpi"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "RETROFIT"

// Config is the complete runtime configuration.
type Config struct {
	Data      Data           `mapstructure:"data" json:"data" yaml:"data"`
	Artifacts artifact.Names `mapstructure:"artifacts" json:"artifacts" yaml:"artifacts"`
	Policy    kpi.Policy     `mapstructure:"policy" json:"policy" yaml:"policy"`
	Log       Log            `mapstructure:"log" json:"log" yaml:"log"`
}

// Data names the artifact directories.
type Data struct {
	Primary    string `mapstructure:"primary" json:"primary" yaml:"primary"`
	Deprecated string `mapstructure:"deprecated" json:"deprecated" yaml:"deprecated"`
}

// Log configures the process logger.
type Log struct {
	Level  string `mapstructure:"level" json:"level" yaml:"level"`   // debug, info, warn, error
	Format string `mapstructure:"format" json:"format" yaml:"format"` // text or json
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Data: Data{
			Primary:    artifact.DefaultPrimaryDir,
			Deprecated: artifact.DefaultDeprecatedDir,
		},
		Artifacts: artifact.DefaultNames(),
		Policy:    kpi.DefaultPolicy(),
		Log:       Log{Level: "info", Format: "text"},
	}
}

// FlagKeys maps command-line flag names to config keys. Flags missing from
// the flag set passed to Load are skipped.
var FlagKeys = map[string]string{
	"data-dir":       "data.primary",
	"deprecated-dir": "data.deprecated",
	"log-level":      "log.level",
	"log-format":     "log.format",
}

// Load reads the configuration. An empty path looks for an optional
// retrofit.{yaml,json,toml} in the working directory; a non-empty path must
// exist. flags may be nil.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for name, key := range FlagKeys {
			f := flags.Lookup(name)
			if f == nil {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return nil, fmt.Errorf("bind flag %s: %w", name, err)
			}
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrRead, path, err)
		}
	} else {
		v.SetConfigName("retrofit")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("%w: %w", ErrRead, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("data.primary", d.Data.Primary)
	v.SetDefault("data.deprecated", d.Data.Deprecated)

	v.SetDefault("artifacts.model_a", d.Artifacts.ModelA)
	v.SetDefault("artifacts.model_b", d.Artifacts.ModelB)
	v.SetDefault("artifacts.single", d.Artifacts.Single)
	v.SetDefault("artifacts.manifest", d.Artifacts.Manifest)

	v.SetDefault("policy.cost_per_kwh", d.Policy.CostPerKwh)
	v.SetDefault("policy.capex_per_sqm", d.Policy.CapexPerSqm)
	v.SetDefault("policy.recommend_min_pct", d.Policy.RecommendMinPct)
	v.SetDefault("policy.recommend_max_payback", d.Policy.RecommendMaxPayback)
	v.SetDefault("policy.conditional_max_payback", d.Policy.ConditionalMaxPayback)
	v.SetDefault("policy.never_payback", d.Policy.NeverPayback)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
}

// Validate checks for invalid configuration values.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Data.Primary) == "" {
		return fmt.Errorf("%w: data.primary must not be empty", ErrInvalid)
	}
	if err := c.Policy.Validate(); err != nil {
		return fmt.Errorf("%w: policy: %w", ErrInvalid, err)
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("%w: log.format must be text or json, got %q", ErrInvalid, c.Log.Format)
	}
	return nil
}

// SlogLevel parses Level. An empty level is info.
func (l Log) SlogLevel() (slog.Level, error) {
	var lvl slog.Level
	if l.Level == "" {
		return slog.LevelInfo, nil
	}
	if err := lvl.UnmarshalText([]byte(l.Level)); err != nil {
		return slog.LevelInfo, fmt.Errorf("log.level: %w", err)
	}
	return lvl, nil
}

// NewLogger builds a logger writing to w in the configured format and level.
func (l Log) NewLogger(w io.Writer) *slog.Logger {
	lvl, _ := l.SlogLevel()
	opts := &slog.HandlerOptions{Level: lvl}
	if strings.EqualFold(l.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
