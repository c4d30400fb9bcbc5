package config

import (
	"cmp"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

const (
	EnvLogLevel  = "AURA_LOG_LEVEL"
	EnvLogFormat = "AURA_LOG_FORMAT"

	LogFormatText = "text"
	LogFormatJSON = "json"
)

// LogConfig selects the slog handler. Level is debug, info, warn or error.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

func (c *LogConfig) Finalize() error {
	c.Level = strings.ToLower(cmp.Or(os.Getenv(EnvLogLevel), c.Level, "info"))
	c.Format = strings.ToLower(cmp.Or(os.Getenv(EnvLogFormat), c.Format, LogFormatText))

	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.Level)); err != nil {
		return fmt.Errorf("invalid level %q", c.Level)
	}
	if c.Format != LogFormatText && c.Format != LogFormatJSON {
		return fmt.Errorf("format must be %s or %s, got %q", LogFormatText, LogFormatJSON, c.Format)
	}
	return nil
}

func (c *LogConfig) Merge(overlay *LogConfig) {
	c.Level = cmp.Or(overlay.Level, c.Level)
	c.Format = cmp.Or(overlay.Format, c.Format)
}

// NewLogger builds the process logger writing to w.
func (c *LogConfig) NewLogger(w io.Writer) *slog.Logger {
	var lvl slog.Level
	_ = lvl.UnmarshalText([]byte(c.Level))

	opts := &slog.HandlerOptions{Level: lvl}
	if c.Format == LogFormatJSON {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
