// Package config loads .treehug.yaml (or .toml/.json) with TREEHUG_*
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/jward/treehug/internal/diag"
	"github.com/jward/treehug/internal/lang"
)

// FileName is the base name searched for in the analyzed root.
const FileName = ".treehug"

// Config is the on-disk configuration.
type Config struct {
	Include  []string    `mapstructure:"include"`
	Exclude  []string    `mapstructure:"exclude"`
	Language string      `mapstructure:"language"`
	Workers  int         `mapstructure:"workers"`
	Semantic bool        `mapstructure:"semantic"`
	Cache    string      `mapstructure:"cache"`
	Scripts  []string    `mapstructure:"scripts"`
	Rules    RulesConfig `mapstructure:"rules"`
	Log      LogConfig   `mapstructure:"log"`

	// path of the file that was read, empty when defaults were used
	Source string `mapstructure:"-"`
}

// RulesConfig disables rules or overrides their severity.
type RulesConfig struct {
	Disable  []string          `mapstructure:"disable"`
	Severity map[string]string `mapstructure:"severity"`
}

// LogConfig controls the CLI logger.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Semantic: true,
		Rules:    RulesConfig{Severity: map[string]string{}},
		Log:      LogConfig{Level: "warn", Format: "text"},
	}
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("include", d.Include)
	v.SetDefault("exclude", d.Exclude)
	v.SetDefault("language", d.Language)
	v.SetDefault("workers", d.Workers)
	v.SetDefault("semantic", d.Semantic)
	v.SetDefault("cache", d.Cache)
	v.SetDefault("scripts", d.Scripts)
	v.SetDefault("rules.disable", d.Rules.Disable)
	v.SetDefault("rules.severity", d.Rules.Severity)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
}

// Load reads the configuration for root. When path is non-empty it names
// the file explicitly; otherwise .treehug.{yaml,yml,toml,json} is searched
// in root. A missing file yields defaults.
func Load(root, path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("TREEHUG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(FileName)
		v.AddConfigPath(root)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("treehug: read config: %w", err)
		}
	}

	cfg := Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("treehug: decode config: %w", err)
	}
	cfg.Source = v.ConfigFileUsed()
	if cfg.Source != "" {
		cfg.Scripts = resolvePaths(filepath.Dir(cfg.Source), cfg.Scripts)
		if cfg.Cache != "" && !filepath.IsAbs(cfg.Cache) {
			cfg.Cache = filepath.Join(filepath.Dir(cfg.Source), cfg.Cache)
		}
	}
	return cfg, cfg.Validate()
}

func resolvePaths(base string, paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if !filepath.IsAbs(p) {
			p = filepath.Join(base, p)
		}
		out = append(out, p)
	}
	return out
}

// Validate checks field values that cannot be enforced by decoding.
func (c *Config) Validate() error {
	var errs []error
	if c.Workers < 0 {
		errs = append(errs, fmt.Errorf("workers must be >= 0, got %d", c.Workers))
	}
	if c.Language != "" {
		if _, err := lang.Parse(c.Language); err != nil {
			errs = append(errs, err)
		}
	}
	if _, err := diag.NewRuleSet(c.Rules.Disable, c.Rules.Severity); err != nil {
		errs = append(errs, err)
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be text or json, got %q", c.Log.Format))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("treehug: invalid config: %w", err)
	}
	return nil
}

// RuleSet builds the diagnostic rule set described by the config.
func (c *Config) RuleSet() (*diag.RuleSet, error) {
	return diag.NewRuleSet(c.Rules.Disable, c.Rules.Severity)
}
