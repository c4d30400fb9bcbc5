package auth

import (
	"fmt"
	"os"
)

// Config holds the shared token secret.
type Config struct {
	Secret string `toml:"secret"`
}

// Env maps config fields to environment variable names for override injection.
type Env struct {
	Secret string
}

// SecretBytes returns the secret as a signing key.
func (c *Config) SecretBytes() []byte {
	return []byte(c.Secret)
}

// Finalize applies environment variable overrides and validation.
func (c *Config) Finalize(env *Env) error {
	if env != nil && env.Secret != "" {
		if v := os.Getenv(env.Secret); v != "" {
			c.Secret = v
		}
	}
	return c.validate()
}

// Merge overwrites non-zero fields from overlay.
func (c *Config) Merge(overlay *Config) {
	if overlay.Secret != "" {
		c.Secret = overlay.Secret
	}
}

func (c *Config) validate() error {
	if c.Secret == "" {
		return fmt.Errorf("secret required")
	}
	return nil
}
