// Package config loads the service configuration from a YAML file with
// environment-variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/FocuswithJustin/JuniperXref/core/engine"
	"github.com/FocuswithJustin/JuniperXref/core/errors"
	"github.com/FocuswithJustin/JuniperXref/internal/logging"
)

// Config is the top-level application configuration.
type Config struct {
	Data    DataConfig    `yaml:"data"`
	Server  ServerConfig  `yaml:"server"`
	Cache   CacheConfig   `yaml:"cache"`
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// DataConfig names the two datasets and their license.
type DataConfig struct {
	CrossRefs string `yaml:"crossRefs"`
	Parallels string `yaml:"parallels"`
	License   string `yaml:"license"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port              int           `yaml:"port"`
	ReadTimeout       time.Duration `yaml:"readTimeout"`
	WriteTimeout      time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdownTimeout"`
	RateLimitRequests int           `yaml:"rateLimitRequests"` // per minute, 0 disables
	RateLimitBurst    int           `yaml:"rateLimitBurst"`
	AllowedOrigins    []string      `yaml:"allowedOrigins"`

	// TrustProxy keys rate limits on X-Forwarded-For/X-Real-IP. Enable only
	// behind a proxy that overwrites those headers.
	TrustProxy bool `yaml:"trustProxy"`
}

// CacheConfig controls the HTTP response cache.
type CacheConfig struct {
	TTL        time.Duration `yaml:"ttl"`
	MaxEntries int           `yaml:"maxEntries"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig toggles the Prometheus /metrics endpoint.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides on top of the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.NewIO("read", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.NewParse("YAML", path, err)
		}
	}
	applyEnvOverrides(cfg)
	return cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Data: DataConfig{
			CrossRefs: "data/cross_references.txt",
			Parallels: "data/parallels.json",
			License:   "Cross references: OpenBible.info, CC-BY",
		},
		Server: ServerConfig{
			Port:              8080,
			ReadTimeout:       10 * time.Second,
			WriteTimeout:      10 * time.Second,
			ShutdownTimeout:   15 * time.Second,
			RateLimitRequests: 600,
			RateLimitBurst:    60,
		},
		Cache: CacheConfig{
			TTL:        5 * time.Minute,
			MaxEntries: 4096,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// applyEnvOverrides reads XREF_* environment variables and overrides the
// corresponding config fields. Unparsable numbers are ignored.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("XREF_CROSSREFS"); v != "" {
		cfg.Data.CrossRefs = v
	}
	if v := os.Getenv("XREF_PARALLELS"); v != "" {
		cfg.Data.Parallels = v
	}
	if v := os.Getenv("XREF_LICENSE"); v != "" {
		cfg.Data.License = v
	}
	if v := os.Getenv("XREF_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("XREF_SERVER_READ_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.ReadTimeout = d
		}
	}
	if v := os.Getenv("XREF_SERVER_WRITE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.WriteTimeout = d
		}
	}
	if v := os.Getenv("XREF_SERVER_ALLOWED_ORIGINS"); v != "" {
		cfg.Server.AllowedOrigins = strings.Split(v, ",")
	}
	if v := os.Getenv("XREF_SERVER_TRUST_PROXY"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Server.TrustProxy = b
		}
	}
	if v := os.Getenv("XREF_CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Cache.TTL = d
		}
	}
	if v := os.Getenv("XREF_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("XREF_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("XREF_METRICS_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Metrics.Enabled = b
		}
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if err := c.Engine().Validate(); err != nil {
		return err
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return errors.NewValidation("server.port", strconv.Itoa(c.Server.Port), "must be between 0 and 65535")
	}
	if c.Cache.TTL < 0 {
		return errors.NewValidation("cache.ttl", c.Cache.TTL.String(), "must not be negative")
	}
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return errors.NewValidation("logging.level", c.Logging.Level, err.Error())
	}
	if _, err := logging.ParseFormat(c.Logging.Format); err != nil {
		return errors.NewValidation("logging.format", c.Logging.Format, err.Error())
	}
	return nil
}

// Engine returns the engine settings.
func (c *Config) Engine() engine.Config {
	return engine.Config{
		CrossRefPath:  c.Data.CrossRefs,
		ParallelsPath: c.Data.Parallels,
		License:       c.Data.License,
	}
}

// ApplyLogging initializes the global logger from the logging settings.
func (c *Config) ApplyLogging() error {
	level, err := logging.ParseLevel(c.Logging.Level)
	if err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	format, err := logging.ParseFormat(c.Logging.Format)
	if err != nil {
		return fmt.Errorf("logging.format: %w", err)
	}
	logging.InitLogger(level, format)
	return nil
}
