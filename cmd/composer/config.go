package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/artpar/composer/internal/core/diag"
	"github.com/artpar/composer/internal/engine"
)

// =============================================================================
// Config Types
// =============================================================================

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Log      LogConfig      `mapstructure:"log"`
	Analysis AnalysisConfig `mapstructure:"analysis"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Address returns the server address in host:port format.
func (c ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	DSN string `mapstructure:"dsn"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// AnalysisConfig holds the defaults applied to every analysed definition.
type AnalysisConfig struct {
	Workers           int    `mapstructure:"workers"`
	UntaggedFallback  bool   `mapstructure:"untagged_fallback"`
	GenericPrecedence string `mapstructure:"generic_precedence"`
	MaxDepth          int    `mapstructure:"max_depth"`
	// Severity maps diagnostic kinds to error, warning, info or hidden.
	Severity map[string]string `mapstructure:"severity"`
}

// Engine converts the analysis section into analyzer settings.
func (c AnalysisConfig) Engine() (engine.Config, error) {
	out := engine.Config{
		Workers:           c.Workers,
		UntaggedFallback:  c.UntaggedFallback,
		GenericPrecedence: c.GenericPrecedence,
		MaxDepth:          c.MaxDepth,
	}
	switch c.GenericPrecedence {
	case "", "specific", "declaration":
	default:
		return engine.Config{}, fmt.Errorf("analysis.generic_precedence: unknown value %q", c.GenericPrecedence)
	}

	if len(c.Severity) > 0 {
		out.Severity = make(diag.Overrides, len(c.Severity))
		var errs []error
		for k, v := range c.Severity {
			kind, ok := diag.ParseKind(k)
			if !ok {
				errs = append(errs, fmt.Errorf("analysis.severity: unknown kind %q", k))
				continue
			}
			sev, err := diag.ParseSeverity(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("analysis.severity.%s: %w", k, err))
				continue
			}
			out.Severity[kind] = sev
		}
		if err := errors.Join(errs...); err != nil {
			return engine.Config{}, err
		}
	}
	return out, nil
}

// =============================================================================
// Config Loading
// =============================================================================

// LoadConfig loads configuration from file and environment.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("database.dsn", "data/composer.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("analysis.workers", engine.DefaultWorkers)
	v.SetDefault("analysis.untagged_fallback", false)
	v.SetDefault("analysis.generic_precedence", "specific")
	v.SetDefault("analysis.max_depth", 64)

	// Load from file if provided
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			// Only a file that exists but does not parse is fatal
			if _, ok := err.(viper.ConfigParseError); ok {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	// Enable environment variable overrides
	v.SetEnvPrefix("COMPOSER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// =============================================================================
// Logger Setup
// =============================================================================

// SetupLogger creates a logger with the configured level and format.
func SetupLogger(cfg *Config) *slog.Logger {
	return newLogger(cfg, os.Stdout)
}

func newLogger(cfg *Config, out io.Writer) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if strings.ToLower(cfg.Log.Format) == "text" {
		handler = slog.NewTextHandler(out, opts)
	} else {
		handler = slog.NewJSONHandler(out, opts)
	}

	return slog.New(handler)
}
