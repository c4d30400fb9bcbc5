package config

import (
	"fmt"
	"os"
	"slices"
	"strconv"
	"time"
)

// Extraction providers for the structuring stage.
const (
	ExtractorGemini = "gemini"
	ExtractorVertex = "vertex"
	ExtractorRules  = "rules"
)

const (
	EnvStructuringProvider    = "AURA_STRUCTURING_PROVIDER"
	EnvStructuringAPIKey      = "AURA_STRUCTURING_API_KEY"
	EnvGeminiAPIKey           = "GEMINI_API_KEY"
	EnvStructuringModel       = "AURA_STRUCTURING_MODEL"
	EnvStructuringBaseURL     = "AURA_STRUCTURING_BASE_URL"
	EnvStructuringProject     = "AURA_STRUCTURING_PROJECT"
	EnvStructuringLocation    = "AURA_STRUCTURING_LOCATION"
	EnvStructuringTemperature = "AURA_STRUCTURING_TEMPERATURE"
	EnvStructuringTimeout     = "AURA_STRUCTURING_TIMEOUT"
)

// StructuringConfig selects and configures the LLM used for field extraction.
// The gemini provider authenticates with APIKey; when the key is empty the
// stage runs on the rule-based extractor and marks its results degraded.
// The vertex provider authenticates through application default credentials.
type StructuringConfig struct {
	Provider    string  `toml:"provider"`
	APIKey      string  `toml:"api_key"`
	Model       string  `toml:"model"`
	BaseURL     string  `toml:"base_url"`
	Project     string  `toml:"project"`
	Location    string  `toml:"location"`
	Temperature float32 `toml:"temperature"`
	Timeout     string  `toml:"timeout"`
}

// TimeoutDuration returns Timeout as a time.Duration.
func (c *StructuringConfig) TimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.Timeout)
	return d
}

// Finalize applies defaults, environment variable overrides, and validation.
func (c *StructuringConfig) Finalize() error {
	c.loadDefaults()
	c.loadEnv()
	return c.validate()
}

// Merge overwrites non-zero fields from overlay.
func (c *StructuringConfig) Merge(overlay *StructuringConfig) {
	merge := func(dst *string, src string) {
		if src != "" {
			*dst = src
		}
	}
	merge(&c.Provider, overlay.Provider)
	merge(&c.APIKey, overlay.APIKey)
	merge(&c.Model, overlay.Model)
	merge(&c.BaseURL, overlay.BaseURL)
	merge(&c.Project, overlay.Project)
	merge(&c.Location, overlay.Location)
	merge(&c.Timeout, overlay.Timeout)
	if overlay.Temperature != 0 {
		c.Temperature = overlay.Temperature
	}
}

func (c *StructuringConfig) loadDefaults() {
	if c.Provider == "" {
		c.Provider = ExtractorGemini
	}
	if c.Model == "" {
		c.Model = "gemini-2.0-flash"
	}
	if c.BaseURL == "" {
		c.BaseURL = "https://generativelanguage.googleapis.com/v1beta"
	}
	if c.Location == "" {
		c.Location = "us-central1"
	}
	if c.Temperature == 0 {
		c.Temperature = 0.1
	}
	if c.Timeout == "" {
		c.Timeout = "60s"
	}
}

func (c *StructuringConfig) loadEnv() {
	set := func(name string, target *string) {
		if v := os.Getenv(name); v != "" {
			*target = v
		}
	}
	set(EnvStructuringProvider, &c.Provider)
	set(EnvGeminiAPIKey, &c.APIKey)
	set(EnvStructuringAPIKey, &c.APIKey)
	set(EnvStructuringModel, &c.Model)
	set(EnvStructuringBaseURL, &c.BaseURL)
	set(EnvStructuringProject, &c.Project)
	set(EnvStructuringLocation, &c.Location)
	set(EnvStructuringTimeout, &c.Timeout)

	if v := os.Getenv(EnvStructuringTemperature); v != "" {
		if f, err := strconv.ParseFloat(v, 32); err == nil {
			c.Temperature = float32(f)
		}
	}
}

func (c *StructuringConfig) validate() error {
	if !slices.Contains([]string{ExtractorGemini, ExtractorVertex, ExtractorRules}, c.Provider) {
		return fmt.Errorf("unknown provider: %q", c.Provider)
	}
	if c.Provider == ExtractorVertex && c.Project == "" {
		return fmt.Errorf("project required for vertex provider")
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("temperature out of range: %v", c.Temperature)
	}
	if _, err := time.ParseDuration(c.Timeout); err != nil {
		return fmt.Errorf("invalid timeout: %w", err)
	}
	return nil
}
