package openapi

import "os"

const defaultDescription = "Mammography report pipeline: ingestion, parsing, structuring, and BI-RADS risk prediction."

// Config holds the document title and description.
type Config struct {
	Title       string `toml:"title"`
	Description string `toml:"description"`
}

// ConfigEnv names the environment variables that override Config.
type ConfigEnv struct {
	Title       string
	Description string
}

// Finalize fills defaults and applies environment overrides. It never fails.
func (c *Config) Finalize(env *ConfigEnv) error {
	c.Title = firstNonEmpty(lookup(env, func(e *ConfigEnv) string { return e.Title }), c.Title, "Aura API")
	c.Description = firstNonEmpty(lookup(env, func(e *ConfigEnv) string { return e.Description }), c.Description, defaultDescription)
	return nil
}

// Merge overwrites non-zero fields from overlay.
func (c *Config) Merge(overlay *Config) {
	c.Title = firstNonEmpty(overlay.Title, c.Title)
	c.Description = firstNonEmpty(overlay.Description, c.Description)
}

func lookup(env *ConfigEnv, name func(*ConfigEnv) string) string {
	if env == nil || name(env) == "" {
		return ""
	}
	return os.Getenv(name(env))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
