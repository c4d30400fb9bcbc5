package config

import (
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Pipeline stage names as they appear in configuration.
const (
	StageIngestion   = "ingestion"
	StageParsing     = "parsing"
	StageStructuring = "structuring"
	StagePrediction  = "prediction"
)

// Next-stage notifier implementations.
const (
	NotifierHTTP  = "http"
	NotifierRedis = "redis"
)

// AllStages lists the pipeline stages in execution order.
var AllStages = []string{StageIngestion, StageParsing, StageStructuring, StagePrediction}

const (
	EnvPipelineStages           = "AURA_PIPELINE_STAGES"
	EnvPipelineNotifier         = "AURA_PIPELINE_NOTIFIER"
	EnvPipelineIngestionURL     = "AURA_PIPELINE_INGESTION_URL"
	EnvPipelineParsingURL       = "AURA_PIPELINE_PARSING_URL"
	EnvPipelineStructuringURL   = "AURA_PIPELINE_STRUCTURING_URL"
	EnvPipelinePredictionURL    = "AURA_PIPELINE_PREDICTION_URL"
	EnvPipelineParseTimeout     = "AURA_PIPELINE_PARSE_TIMEOUT"
	EnvPipelineStructureTimeout = "AURA_PIPELINE_STRUCTURE_TIMEOUT"
	EnvPipelinePredictTimeout   = "AURA_PIPELINE_PREDICT_TIMEOUT"
	EnvPipelineReportTimeout    = "AURA_PIPELINE_REPORT_TIMEOUT"
	EnvPipelineStaleAfter       = "AURA_PIPELINE_STALE_AFTER"
	EnvPipelineWorkers          = "AURA_PIPELINE_WORKERS"
)

// PipelineConfig controls which stages this process hosts and how stages
// reach one another. Stage URLs are base URLs including the API base path,
// e.g. http://parsing:8080/api.
type PipelineConfig struct {
	Stages           []string `toml:"stages"`
	Notifier         string   `toml:"notifier"`
	IngestionURL     string   `toml:"ingestion_url"`
	ParsingURL       string   `toml:"parsing_url"`
	StructuringURL   string   `toml:"structuring_url"`
	PredictionURL    string   `toml:"prediction_url"`
	ParseTimeout     string   `toml:"parse_timeout"`
	StructureTimeout string   `toml:"structure_timeout"`
	PredictTimeout   string   `toml:"predict_timeout"`
	ReportTimeout    string   `toml:"report_timeout"`
	StaleAfter       string   `toml:"stale_after"`
	Workers          int      `toml:"workers"`
}

// Enabled reports whether this process hosts stage.
func (c *PipelineConfig) Enabled(stage string) bool {
	return slices.Contains(c.Stages, stage)
}

// URL returns the configured base URL for stage.
func (c *PipelineConfig) URL(stage string) string {
	switch stage {
	case StageIngestion:
		return c.IngestionURL
	case StageParsing:
		return c.ParsingURL
	case StageStructuring:
		return c.StructuringURL
	case StagePrediction:
		return c.PredictionURL
	}
	return ""
}

// Timeout returns the propagation timeout for calls into stage.
func (c *PipelineConfig) Timeout(stage string) time.Duration {
	var raw string
	switch stage {
	case StageParsing:
		raw = c.ParseTimeout
	case StageStructuring:
		raw = c.StructureTimeout
	case StagePrediction:
		raw = c.PredictTimeout
	default:
		raw = c.ReportTimeout
	}
	d, _ := time.ParseDuration(raw)
	return d
}

// ReportTimeoutDuration returns ReportTimeout as a time.Duration.
func (c *PipelineConfig) ReportTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.ReportTimeout)
	return d
}

// StaleAfterDuration returns StaleAfter as a time.Duration.
func (c *PipelineConfig) StaleAfterDuration() time.Duration {
	d, _ := time.ParseDuration(c.StaleAfter)
	return d
}

// Finalize applies defaults, environment variable overrides, and validation.
func (c *PipelineConfig) Finalize() error {
	c.loadDefaults()
	c.loadEnv()
	return c.validate()
}

// Merge overwrites non-zero fields from overlay.
func (c *PipelineConfig) Merge(overlay *PipelineConfig) {
	if overlay.Stages != nil {
		c.Stages = overlay.Stages
	}
	merge := func(dst *string, src string) {
		if src != "" {
			*dst = src
		}
	}
	merge(&c.Notifier, overlay.Notifier)
	merge(&c.IngestionURL, overlay.IngestionURL)
	merge(&c.ParsingURL, overlay.ParsingURL)
	merge(&c.StructuringURL, overlay.StructuringURL)
	merge(&c.PredictionURL, overlay.PredictionURL)
	merge(&c.ParseTimeout, overlay.ParseTimeout)
	merge(&c.StructureTimeout, overlay.StructureTimeout)
	merge(&c.PredictTimeout, overlay.PredictTimeout)
	merge(&c.ReportTimeout, overlay.ReportTimeout)
	merge(&c.StaleAfter, overlay.StaleAfter)
	if overlay.Workers != 0 {
		c.Workers = overlay.Workers
	}
}

func (c *PipelineConfig) loadDefaults() {
	if len(c.Stages) == 0 {
		c.Stages = slices.Clone(AllStages)
	}
	if c.Notifier == "" {
		c.Notifier = NotifierHTTP
	}
	local := "http://localhost:8080/api"
	if c.IngestionURL == "" {
		c.IngestionURL = local
	}
	if c.ParsingURL == "" {
		c.ParsingURL = local
	}
	if c.StructuringURL == "" {
		c.StructuringURL = local
	}
	if c.PredictionURL == "" {
		c.PredictionURL = local
	}
	if c.ParseTimeout == "" {
		c.ParseTimeout = "30s"
	}
	if c.StructureTimeout == "" {
		c.StructureTimeout = "30s"
	}
	if c.PredictTimeout == "" {
		c.PredictTimeout = "60s"
	}
	if c.ReportTimeout == "" {
		c.ReportTimeout = "10s"
	}
	if c.StaleAfter == "" {
		c.StaleAfter = "15m"
	}
	if c.Workers <= 0 {
		c.Workers = 4
	}
}

func (c *PipelineConfig) loadEnv() {
	if v := os.Getenv(EnvPipelineStages); v != "" {
		var stages []string
		for s := range strings.SplitSeq(v, ",") {
			if trimmed := strings.TrimSpace(s); trimmed != "" {
				stages = append(stages, trimmed)
			}
		}
		c.Stages = stages
	}

	set := func(name string, target *string) {
		if v := os.Getenv(name); v != "" {
			*target = v
		}
	}
	set(EnvPipelineNotifier, &c.Notifier)
	set(EnvPipelineIngestionURL, &c.IngestionURL)
	set(EnvPipelineParsingURL, &c.ParsingURL)
	set(EnvPipelineStructuringURL, &c.StructuringURL)
	set(EnvPipelinePredictionURL, &c.PredictionURL)
	set(EnvPipelineParseTimeout, &c.ParseTimeout)
	set(EnvPipelineStructureTimeout, &c.StructureTimeout)
	set(EnvPipelinePredictTimeout, &c.PredictTimeout)
	set(EnvPipelineReportTimeout, &c.ReportTimeout)
	set(EnvPipelineStaleAfter, &c.StaleAfter)

	if v := os.Getenv(EnvPipelineWorkers); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Workers = n
		}
	}
}

func (c *PipelineConfig) validate() error {
	if len(c.Stages) == 0 {
		return fmt.Errorf("at least one stage required")
	}
	for _, s := range c.Stages {
		if !slices.Contains(AllStages, s) {
			return fmt.Errorf("unknown stage: %q", s)
		}
	}
	if c.Notifier != NotifierHTTP && c.Notifier != NotifierRedis {
		return fmt.Errorf("unknown notifier: %q", c.Notifier)
	}
	for name, raw := range map[string]string{
		"parse_timeout":     c.ParseTimeout,
		"structure_timeout": c.StructureTimeout,
		"predict_timeout":   c.PredictTimeout,
		"report_timeout":    c.ReportTimeout,
		"stale_after":       c.StaleAfter,
	} {
		if _, err := time.ParseDuration(raw); err != nil {
			return fmt.Errorf("invalid %s: %w", name, err)
		}
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be positive")
	}
	return nil
}
