package telemetry

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds OTLP exporter parameters. An empty Endpoint disables export;
// spans and metrics then go to the no-op global providers.
type Config struct {
	Endpoint       string  `toml:"endpoint"`
	ServiceName    string  `toml:"service_name"`
	Insecure       bool    `toml:"insecure"`
	SampleRatio    float64 `toml:"sample_ratio"`
	MetricInterval string  `toml:"metric_interval"`
}

// Env maps config fields to environment variable names for override injection.
type Env struct {
	Endpoint       string
	ServiceName    string
	Insecure       string
	SampleRatio    string
	MetricInterval string
}

// Enabled reports whether an OTLP endpoint is configured.
func (c *Config) Enabled() bool {
	return c.Endpoint != ""
}

// MetricIntervalDuration returns MetricInterval as a time.Duration.
func (c *Config) MetricIntervalDuration() time.Duration {
	d, _ := time.ParseDuration(c.MetricInterval)
	return d
}

// Finalize applies defaults, environment variable overrides, and validation.
func (c *Config) Finalize(env *Env) error {
	c.loadDefaults()
	if env != nil {
		c.loadEnv(env)
	}
	return c.validate()
}

// Merge overwrites non-zero fields from overlay.
func (c *Config) Merge(overlay *Config) {
	if overlay.Endpoint != "" {
		c.Endpoint = overlay.Endpoint
	}
	if overlay.ServiceName != "" {
		c.ServiceName = overlay.ServiceName
	}
	if overlay.Insecure {
		c.Insecure = true
	}
	if overlay.SampleRatio != 0 {
		c.SampleRatio = overlay.SampleRatio
	}
	if overlay.MetricInterval != "" {
		c.MetricInterval = overlay.MetricInterval
	}
}

func (c *Config) loadDefaults() {
	if c.ServiceName == "" {
		c.ServiceName = "aura"
	}
	if c.SampleRatio == 0 {
		c.SampleRatio = 1
	}
	if c.MetricInterval == "" {
		c.MetricInterval = "30s"
	}
}

func (c *Config) loadEnv(env *Env) {
	if env.Endpoint != "" {
		if v := os.Getenv(env.Endpoint); v != "" {
			c.Endpoint = v
		}
	}
	if env.ServiceName != "" {
		if v := os.Getenv(env.ServiceName); v != "" {
			c.ServiceName = v
		}
	}
	if env.Insecure != "" {
		if v := os.Getenv(env.Insecure); v != "" {
			if b, err := strconv.ParseBool(v); err == nil {
				c.Insecure = b
			}
		}
	}
	if env.SampleRatio != "" {
		if v := os.Getenv(env.SampleRatio); v != "" {
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				c.SampleRatio = f
			}
		}
	}
	if env.MetricInterval != "" {
		if v := os.Getenv(env.MetricInterval); v != "" {
			c.MetricInterval = v
		}
	}
}

func (c *Config) validate() error {
	if c.SampleRatio < 0 || c.SampleRatio > 1 {
		return fmt.Errorf("sample_ratio must be within [0, 1], got %v", c.SampleRatio)
	}
	if d, err := time.ParseDuration(c.MetricInterval); err != nil || d <= 0 {
		return fmt.Errorf("invalid metric_interval: %q", c.MetricInterval)
	}
	return nil
}
