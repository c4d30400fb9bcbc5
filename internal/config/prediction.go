package config

import (
	"fmt"
	"os"
	"slices"
	"strconv"
	"time"
)

// Classifier providers for the prediction stage.
const (
	ClassifierRemote   = "remote"
	ClassifierBaseline = "baseline"
)

const (
	EnvPredictionProvider      = "AURA_PREDICTION_PROVIDER"
	EnvPredictionEndpoint      = "AURA_PREDICTION_ENDPOINT"
	EnvPredictionToken         = "AURA_PREDICTION_TOKEN"
	EnvPredictionModelVersion  = "AURA_PREDICTION_MODEL_VERSION"
	EnvPredictionMinConfidence = "AURA_PREDICTION_MIN_CONFIDENCE"
	EnvPredictionWorkers       = "AURA_PREDICTION_WORKERS"
	EnvPredictionTimeout       = "AURA_PREDICTION_TIMEOUT"
)

// PredictionConfig configures the BI-RADS classifier. The remote provider calls
// a text-classification inference endpoint serving the fine-tuned model; the
// baseline provider derives a distribution from the extracted BI-RADS field.
// Workers bounds concurrent inference calls.
type PredictionConfig struct {
	Provider      string  `toml:"provider"`
	Endpoint      string  `toml:"endpoint"`
	Token         string  `toml:"token"`
	ModelVersion  string  `toml:"model_version"`
	MinConfidence float64 `toml:"min_confidence"`
	Workers       int     `toml:"workers"`
	Timeout       string  `toml:"timeout"`
}

// TimeoutDuration returns Timeout as a time.Duration.
func (c *PredictionConfig) TimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.Timeout)
	return d
}

// Finalize applies defaults, environment variable overrides, and validation.
func (c *PredictionConfig) Finalize() error {
	c.loadDefaults()
	c.loadEnv()
	return c.validate()
}

// Merge overwrites non-zero fields from overlay.
func (c *PredictionConfig) Merge(overlay *PredictionConfig) {
	merge := func(dst *string, src string) {
		if src != "" {
			*dst = src
		}
	}
	merge(&c.Provider, overlay.Provider)
	merge(&c.Endpoint, overlay.Endpoint)
	merge(&c.Token, overlay.Token)
	merge(&c.ModelVersion, overlay.ModelVersion)
	merge(&c.Timeout, overlay.Timeout)
	if overlay.MinConfidence != 0 {
		c.MinConfidence = overlay.MinConfidence
	}
	if overlay.Workers != 0 {
		c.Workers = overlay.Workers
	}
}

func (c *PredictionConfig) loadDefaults() {
	if c.Provider == "" {
		c.Provider = ClassifierBaseline
	}
	if c.ModelVersion == "" {
		c.ModelVersion = "ishro/biogpt-aura"
	}
	if c.MinConfidence == 0 {
		c.MinConfidence = 0.5
	}
	if c.Workers <= 0 {
		c.Workers = 2
	}
	if c.Timeout == "" {
		c.Timeout = "60s"
	}
}

func (c *PredictionConfig) loadEnv() {
	set := func(name string, target *string) {
		if v := os.Getenv(name); v != "" {
			*target = v
		}
	}
	set(EnvPredictionProvider, &c.Provider)
	set(EnvPredictionEndpoint, &c.Endpoint)
	set(EnvPredictionToken, &c.Token)
	set(EnvPredictionModelVersion, &c.ModelVersion)
	set(EnvPredictionTimeout, &c.Timeout)

	if v := os.Getenv(EnvPredictionMinConfidence); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.MinConfidence = f
		}
	}
	if v := os.Getenv(EnvPredictionWorkers); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Workers = n
		}
	}
}

func (c *PredictionConfig) validate() error {
	if !slices.Contains([]string{ClassifierRemote, ClassifierBaseline}, c.Provider) {
		return fmt.Errorf("unknown provider: %q", c.Provider)
	}
	if c.Provider == ClassifierRemote && c.Endpoint == "" {
		return fmt.Errorf("endpoint required for remote provider")
	}
	if c.MinConfidence < 0 || c.MinConfidence > 1 {
		return fmt.Errorf("min_confidence must be within [0, 1]")
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be positive")
	}
	if _, err := time.ParseDuration(c.Timeout); err != nil {
		return fmt.Errorf("invalid timeout: %w", err)
	}
	return nil
}
