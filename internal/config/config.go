// Package config provides configuration management for CDRForge.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/lvonguyen/cdrforge/internal/analytics"
	"github.com/lvonguyen/cdrforge/internal/api/gateway"
	"github.com/lvonguyen/cdrforge/internal/celllookup"
	"github.com/lvonguyen/cdrforge/internal/ingestion"
	"github.com/lvonguyen/cdrforge/internal/observability"
	"github.com/lvonguyen/cdrforge/internal/storage"
)

// Config holds all CDRForge configuration.
type Config struct {
	Server     ServerConfig            `yaml:"server"`
	Redis      RedisConfig             `yaml:"redis"`
	Storage    storage.Config          `yaml:"storage"`
	Ingest     IngestConfig            `yaml:"ingest"`
	Analytics  analytics.Config        `yaml:"analytics"`
	CellLookup celllookup.Config       `yaml:"cell_lookup"`
	RateLimit  gateway.RateLimitConfig `yaml:"rate_limit"`
	Telemetry  observability.Config    `yaml:"telemetry"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	MaxUploadBytes  int64         `yaml:"max_upload_bytes"`
}

// RedisConfig holds Redis connection settings. Redis is optional: it backs
// the shared cell cache and the rate limiter when Enabled.
type RedisConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Addr        string `yaml:"addr"`
	PasswordEnv string `yaml:"password_env"`
	DB          int    `yaml:"db"`
	PoolSize    int    `yaml:"pool_size"`
}

// Password returns the password from the configured environment variable.
func (r RedisConfig) Password() string {
	if r.PasswordEnv == "" {
		return ""
	}
	return os.Getenv(r.PasswordEnv)
}

// IngestConfig holds reader and profile settings.
type IngestConfig struct {
	// ProfilesPath is an optional YAML file replacing the built-in vendor
	// profiles; CountriesPath likewise for the country table.
	ProfilesPath  string `yaml:"profiles_path"`
	CountriesPath string `yaml:"countries_path"`
	MaxBannerRows int    `yaml:"max_banner_rows"`
	MaxRows       int    `yaml:"max_rows"`
	SampleRows    int    `yaml:"sample_rows"`
}

// ReaderOptions converts the settings into reader options.
func (i IngestConfig) ReaderOptions() ingestion.Options {
	opts := ingestion.DefaultOptions()
	if i.MaxBannerRows > 0 {
		opts.MaxBannerRows = i.MaxBannerRows
	}
	opts.MaxRows = i.MaxRows
	return opts
}

// Load reads configuration from a YAML file over the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML over the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			RequestTimeout:  60 * time.Second,
			MaxUploadBytes:  64 << 20,
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
		},
		Storage: storage.DefaultConfig(),
		Ingest: IngestConfig{
			MaxBannerRows: ingestion.DefaultOptions().MaxBannerRows,
			SampleRows:    5,
		},
		Analytics:  analytics.DefaultConfig(),
		CellLookup: celllookup.DefaultConfig(),
		RateLimit:  gateway.DefaultRateLimitConfig(),
		Telemetry: observability.Config{
			ServiceName:    "cdrforge",
			Environment:    "development",
			LogLevel:       "info",
			LogFormat:      "json",
			OTLPEndpoint:   "localhost:4317",
			SamplingRate:   1.0,
			MetricsEnabled: true,
		},
	}
}

// Validate checks the configuration for values the services cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server port out of range: %d", c.Server.Port))
	}
	if c.Server.MaxUploadBytes <= 0 {
		errs = append(errs, fmt.Errorf("server max_upload_bytes must be positive"))
	}
	if c.Storage.Path == "" {
		errs = append(errs, fmt.Errorf("storage path is required"))
	}
	if err := c.Analytics.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.CellLookup.CacheTTL < 0 || c.CellLookup.NegativeTTL < 0 {
		errs = append(errs, fmt.Errorf("cell_lookup cache TTLs must not be negative"))
	}
	if c.RateLimit.Enabled && !c.Redis.Enabled {
		errs = append(errs, fmt.Errorf("rate_limit requires redis to be enabled"))
	}
	if c.CellLookup.Redis.Enabled && !c.Redis.Enabled {
		errs = append(errs, fmt.Errorf("cell_lookup redis cache requires redis to be enabled"))
	}
	switch c.Telemetry.LogFormat {
	case "", "json", "console":
	default:
		errs = append(errs, fmt.Errorf("unknown log format %q", c.Telemetry.LogFormat))
	}
	return errors.Join(errs...)
}

// EnabledLookupSources returns the coordinate sources the configuration
// turns on, in lookup order.
func (c *Config) EnabledLookupSources() []string {
	if !c.CellLookup.Enabled {
		return nil
	}
	var sources []string
	if c.CellLookup.TablePath != "" {
		sources = append(sources, "table")
	}
	if c.CellLookup.UseStore {
		sources = append(sources, "store")
	}
	if c.CellLookup.OpenCellID.Enabled {
		sources = append(sources, "opencellid")
	}
	return sources
}
