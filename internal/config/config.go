package config

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/ehr/fhirsearch/pkg/expression"
)

type Config struct {
	Port               string `mapstructure:"PORT"`
	Env                string `mapstructure:"ENV"`
	LogLevel           string `mapstructure:"LOG_LEVEL"`
	DatabaseURL        string `mapstructure:"DATABASE_URL"`
	DBMaxConns         int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns         int32  `mapstructure:"DB_MIN_CONNS"`
	MaxExpressionDepth int    `mapstructure:"MAX_EXPRESSION_DEPTH"`
	MaxChainDepth      int    `mapstructure:"MAX_CHAIN_DEPTH"`
	CacheSize          int    `mapstructure:"EXPRESSION_CACHE_SIZE"`
	DefaultPageSize    int    `mapstructure:"DEFAULT_PAGE_SIZE"`

	TelemetryExporter string  `mapstructure:"TELEMETRY_EXPORTER"`
	TraceSampleRate   float64 `mapstructure:"TRACE_SAMPLE_RATE"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("MAX_EXPRESSION_DEPTH", 64)
	v.SetDefault("MAX_CHAIN_DEPTH", 3)
	v.SetDefault("EXPRESSION_CACHE_SIZE", 1024)
	v.SetDefault("DEFAULT_PAGE_SIZE", 20)
	v.SetDefault("TELEMETRY_EXPORTER", "none")
	v.SetDefault("TRACE_SAMPLE_RATE", 1.0)

	// Bind env vars explicitly so Unmarshal picks them up
	for _, key := range []string{
		"PORT", "ENV", "LOG_LEVEL",
		"DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
		"MAX_EXPRESSION_DEPTH", "MAX_CHAIN_DEPTH", "EXPRESSION_CACHE_SIZE", "DEFAULT_PAGE_SIZE",
		"TELEMETRY_EXPORTER", "TRACE_SAMPLE_RATE",
	} {
		_ = v.BindEnv(key)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// HasDatabase reports whether a database is configured. Without one the
// server answers $explain and $format only.
func (c *Config) HasDatabase() bool {
	return c.DatabaseURL != ""
}

// Level returns the parsed LOG_LEVEL.
func (c *Config) Level() (zerolog.Level, error) {
	lvl, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("LOG_LEVEL: %w", err)
	}
	return lvl, nil
}

// Validate checks the numeric ranges and the log level. MAX_CHAIN_DEPTH 0
// disables the chain limit.
func (c *Config) Validate() error {
	if _, err := c.Level(); err != nil {
		return err
	}
	if c.MaxExpressionDepth < 1 || c.MaxExpressionDepth > expression.MaxDepth {
		return fmt.Errorf("MAX_EXPRESSION_DEPTH must be between 1 and %d, got %d", expression.MaxDepth, c.MaxExpressionDepth)
	}
	if c.MaxChainDepth < 0 {
		return fmt.Errorf("MAX_CHAIN_DEPTH must not be negative, got %d", c.MaxChainDepth)
	}
	if c.CacheSize < 1 {
		return fmt.Errorf("EXPRESSION_CACHE_SIZE must be positive, got %d", c.CacheSize)
	}
	if c.DefaultPageSize < 1 || c.DefaultPageSize > 100 {
		return fmt.Errorf("DEFAULT_PAGE_SIZE must be between 1 and 100, got %d", c.DefaultPageSize)
	}
	switch c.TelemetryExporter {
	case "none", "stdout":
	default:
		return fmt.Errorf("TELEMETRY_EXPORTER must be none or stdout, got %q", c.TelemetryExporter)
	}
	if c.TraceSampleRate <= 0 || c.TraceSampleRate > 1 {
		return fmt.Errorf("TRACE_SAMPLE_RATE must be in (0, 1], got %v", c.TraceSampleRate)
	}
	if c.HasDatabase() {
		if c.DBMinConns < 0 || c.DBMaxConns < 1 {
			return fmt.Errorf("DB_MAX_CONNS must be positive and DB_MIN_CONNS not negative")
		}
		if c.DBMinConns > c.DBMaxConns {
			return fmt.Errorf("DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
		}
	}
	return nil
}
