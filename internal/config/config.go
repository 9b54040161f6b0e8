// Package config loads the settings of the quarry command line from flags,
// QUARRY_* environment variables and an optional YAML file, in that order of
// precedence.
package config

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/roach88/quarry/internal/querysql"
	"github.com/roach88/quarry/internal/trace"
)

// EnvPrefix prefixes every environment variable: log.level is read from
// QUARRY_LOG_LEVEL.
const EnvPrefix = "QUARRY"

// Output formats.
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// Config is the resolved configuration.
type Config struct {
	Dialect     string `mapstructure:"dialect" yaml:"dialect"`
	Format      string `mapstructure:"format" yaml:"format"`
	Parallelism int    `mapstructure:"parallelism" yaml:"parallelism"`
	Log         Log    `mapstructure:"log" yaml:"log"`
}

// Log configures the diagnostic logger.
type Log struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// flagKeys maps flag names to configuration keys.
var flagKeys = map[string]string{
	"dialect":     "dialect",
	"format":      "format",
	"parallelism": "parallelism",
	"log-level":   "log.level",
	"log-format":  "log.format",
}

// New returns a viper instance holding the defaults.
func New() *viper.Viper {
	v := viper.New()
	v.SetDefault("dialect", querysql.Postgres.Name)
	v.SetDefault("format", FormatText)
	v.SetDefault("parallelism", 0)
	v.SetDefault("log.level", zerolog.LevelWarnValue)
	v.SetDefault("log.format", trace.LogFormatText)
	return v
}

// BindFlags binds the flags of fs that carry a setting. Flags missing from
// fs are skipped.
func BindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	for name, key := range flagKeys {
		f := fs.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("bind flag %s: %w", name, err)
		}
	}
	return nil
}

// Load reads file (when set) and the environment into a validated Config.
func Load(v *viper.Viper, file string) (*Config, error) {
	if file != "" {
		v.SetConfigFile(file)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", file, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every setting names something that exists.
func (c *Config) Validate() error {
	if _, err := querysql.Lookup(c.Dialect); err != nil {
		return fmt.Errorf("dialect: %w", err)
	}
	switch c.Format {
	case FormatText, FormatJSON, FormatYAML:
	default:
		return fmt.Errorf("format %q: want %s, %s or %s", c.Format, FormatText, FormatJSON, FormatYAML)
	}
	if c.Parallelism < 0 {
		return fmt.Errorf("parallelism %d: must not be negative", c.Parallelism)
	}
	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil || c.Log.Level == "" {
		return fmt.Errorf("log level %q: unknown level", c.Log.Level)
	}
	switch c.Log.Format {
	case trace.LogFormatText, trace.LogFormatJSON:
	default:
		return fmt.Errorf("log format %q: want %s or %s", c.Log.Format, trace.LogFormatText, trace.LogFormatJSON)
	}
	return nil
}

// DialectValue returns the configured dialect.
func (c *Config) DialectValue() *querysql.Dialect {
	d, err := querysql.Lookup(c.Dialect)
	if err != nil {
		return querysql.Postgres
	}
	return d
}
