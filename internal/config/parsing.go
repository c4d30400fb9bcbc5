package config

import (
	"fmt"
	"os"
	"time"
)

const (
	EnvParsingConverterURL     = "AURA_PARSING_CONVERTER_URL"
	EnvParsingConverterTimeout = "AURA_PARSING_CONVERTER_TIMEOUT"
)

// ParsingConfig configures the text extraction stage. ConverterURL points at an
// Apache Tika server used for PDF and image reports; plain text and DOCX
// reports are read in-process.
type ParsingConfig struct {
	ConverterURL     string `toml:"converter_url"`
	ConverterTimeout string `toml:"converter_timeout"`
}

// ConverterTimeoutDuration returns ConverterTimeout as a time.Duration.
func (c *ParsingConfig) ConverterTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.ConverterTimeout)
	return d
}

// Finalize applies defaults, environment variable overrides, and validation.
func (c *ParsingConfig) Finalize() error {
	if c.ConverterTimeout == "" {
		c.ConverterTimeout = "2m"
	}
	if v := os.Getenv(EnvParsingConverterURL); v != "" {
		c.ConverterURL = v
	}
	if v := os.Getenv(EnvParsingConverterTimeout); v != "" {
		c.ConverterTimeout = v
	}
	if _, err := time.ParseDuration(c.ConverterTimeout); err != nil {
		return fmt.Errorf("invalid converter_timeout: %w", err)
	}
	return nil
}

// Merge overwrites non-zero fields from overlay.
func (c *ParsingConfig) Merge(overlay *ParsingConfig) {
	if overlay.ConverterURL != "" {
		c.ConverterURL = overlay.ConverterURL
	}
	if overlay.ConverterTimeout != "" {
		c.ConverterTimeout = overlay.ConverterTimeout
	}
}
