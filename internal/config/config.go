// Package config loads the service configuration from TOML files and
// AURA_* environment variables.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/JaimeStill/aura/pkg/auth"
	"github.com/JaimeStill/aura/pkg/cache"
	"github.com/JaimeStill/aura/pkg/database"
	"github.com/JaimeStill/aura/pkg/storage"
	"github.com/JaimeStill/aura/pkg/telemetry"
)

const (
	BaseConfigFile       = "config.toml"
	OverlayConfigPattern = "config.%s.toml"

	EnvAuraEnv             = "AURA_ENV"
	EnvAuraShutdownTimeout = "AURA_SHUTDOWN_TIMEOUT"
	EnvAuraVersion         = "AURA_VERSION"
)

var databaseEnv = &database.Env{
	Host:            "AURA_DB_HOST",
	Port:            "AURA_DB_PORT",
	Name:            "AURA_DB_NAME",
	User:            "AURA_DB_USER",
	Password:        "AURA_DB_PASSWORD",
	SSLMode:         "AURA_DB_SSL_MODE",
	ApplicationName: "AURA_DB_APPLICATION_NAME",
	MaxOpenConns:    "AURA_DB_MAX_OPEN_CONNS",
	MaxIdleConns:    "AURA_DB_MAX_IDLE_CONNS",
	ConnMaxLifetime: "AURA_DB_CONN_MAX_LIFETIME",
	ConnTimeout:     "AURA_DB_CONN_TIMEOUT",
}

var storageEnv = &storage.Env{
	Provider:         "AURA_STORAGE_PROVIDER",
	ContainerName:    "AURA_STORAGE_CONTAINER_NAME",
	ConnectionString: "AURA_STORAGE_CONNECTION_STRING",
	ServiceURL:       "AURA_STORAGE_SERVICE_URL",
	Endpoint:         "AURA_STORAGE_ENDPOINT",
}

var cacheEnv = &cache.Env{
	Addr:        "AURA_REDIS_ADDR",
	Password:    "AURA_REDIS_PASSWORD",
	DB:          "AURA_REDIS_DB",
	DialTimeout: "AURA_REDIS_DIAL_TIMEOUT",
	KeyPrefix:   "AURA_REDIS_KEY_PREFIX",
}

var telemetryEnv = &telemetry.Env{
	Endpoint:       "AURA_OTEL_ENDPOINT",
	ServiceName:    "AURA_OTEL_SERVICE_NAME",
	Insecure:       "AURA_OTEL_INSECURE",
	SampleRatio:    "AURA_OTEL_SAMPLE_RATIO",
	MetricInterval: "AURA_OTEL_METRIC_INTERVAL",
}

var authEnv = &auth.Env{
	Secret: "AURA_AUTH_SECRET",
}

// Config is the root configuration for an Aura stage process.
type Config struct {
	Server          ServerConfig      `toml:"server"`
	Log             LogConfig         `toml:"log"`
	Database        database.Config   `toml:"database"`
	Storage         storage.Config    `toml:"storage"`
	Cache           cache.Config      `toml:"cache"`
	Auth            auth.Config       `toml:"auth"`
	Telemetry       telemetry.Config  `toml:"telemetry"`
	API             APIConfig         `toml:"api"`
	Pipeline        PipelineConfig    `toml:"pipeline"`
	Parsing         ParsingConfig     `toml:"parsing"`
	Structuring     StructuringConfig `toml:"structuring"`
	Prediction      PredictionConfig  `toml:"prediction"`
	ShutdownTimeout string            `toml:"shutdown_timeout"`
	Version         string            `toml:"version"`
}

// Env returns the AURA_ENV value, defaulting to "local".
func (c *Config) Env() string {
	if env := os.Getenv(EnvAuraEnv); env != "" {
		return env
	}
	return "local"
}

// ShutdownTimeoutDuration returns ShutdownTimeout as a time.Duration.
func (c *Config) ShutdownTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.ShutdownTimeout)
	return d
}

// Load reads the base config (if present), applies any environment overlay,
// and finalizes all values. If no config.toml exists, defaults and environment
// variables provide all configuration.
func Load() (*Config, error) {
	cfg := &Config{}

	if _, err := os.Stat(BaseConfigFile); err == nil {
		loaded, err := load(BaseConfigFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if path := overlayPath(); path != "" {
		overlay, err := load(path)
		if err != nil {
			return nil, fmt.Errorf("load overlay %s: %w", path, err)
		}
		cfg.Merge(overlay)
	}

	if err := cfg.finalize(); err != nil {
		return nil, fmt.Errorf("finalize config: %w", err)
	}

	return cfg, nil
}

// Merge overwrites non-zero fields from overlay across all sub-configs.
func (c *Config) Merge(overlay *Config) {
	if overlay.ShutdownTimeout != "" {
		c.ShutdownTimeout = overlay.ShutdownTimeout
	}
	if overlay.Version != "" {
		c.Version = overlay.Version
	}
	c.Server.Merge(&overlay.Server)
	c.Log.Merge(&overlay.Log)
	c.Database.Merge(&overlay.Database)
	c.Storage.Merge(&overlay.Storage)
	c.Cache.Merge(&overlay.Cache)
	c.Auth.Merge(&overlay.Auth)
	c.Telemetry.Merge(&overlay.Telemetry)
	c.API.Merge(&overlay.API)
	c.Pipeline.Merge(&overlay.Pipeline)
	c.Parsing.Merge(&overlay.Parsing)
	c.Structuring.Merge(&overlay.Structuring)
	c.Prediction.Merge(&overlay.Prediction)
}

func (c *Config) finalize() error {
	c.loadDefaults()
	c.loadEnv()

	if err := c.validate(); err != nil {
		return err
	}

	steps := []struct {
		name string
		fn   func() error
	}{
		{"server", c.Server.Finalize},
		{"log", c.Log.Finalize},
		{"database", func() error { return c.Database.Finalize(databaseEnv) }},
		{"storage", func() error { return c.Storage.Finalize(storageEnv) }},
		{"cache", func() error { return c.Cache.Finalize(cacheEnv) }},
		{"auth", func() error { return c.Auth.Finalize(authEnv) }},
		{"telemetry", func() error { return c.Telemetry.Finalize(telemetryEnv) }},
		{"api", c.API.Finalize},
		{"pipeline", c.Pipeline.Finalize},
		{"parsing", c.Parsing.Finalize},
		{"structuring", c.Structuring.Finalize},
		{"prediction", c.Prediction.Finalize},
	}

	for _, step := range steps {
		if err := step.fn(); err != nil {
			return fmt.Errorf("%s: %w", step.name, err)
		}
	}

	if c.Pipeline.Notifier == NotifierRedis && !c.Cache.Enabled() {
		return fmt.Errorf("pipeline: redis notifier requires cache.addr")
	}
	return nil
}

func (c *Config) loadDefaults() {
	if c.ShutdownTimeout == "" {
		c.ShutdownTimeout = "30s"
	}
	if c.Version == "" {
		c.Version = "0.1.0"
	}
}

func (c *Config) loadEnv() {
	if v := os.Getenv(EnvAuraShutdownTimeout); v != "" {
		c.ShutdownTimeout = v
	}
	if v := os.Getenv(EnvAuraVersion); v != "" {
		c.Version = v
	}
}

func (c *Config) validate() error {
	if _, err := time.ParseDuration(c.ShutdownTimeout); err != nil {
		return fmt.Errorf("invalid shutdown_timeout: %w", err)
	}
	return nil
}

func load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return &cfg, nil
}

func overlayPath() string {
	if env := os.Getenv(EnvAuraEnv); env != "" {
		path := fmt.Sprintf(OverlayConfigPattern, env)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}
