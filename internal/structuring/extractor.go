package structuring

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/JaimeStill/aura/internal/clinical"
)

// Source identifies which extractor produced structured data.
type Source string

const (
	SourceLLM   Source = "llm"
	SourceRules Source = "rules"
)

var (
	ErrNoCredentials = errors.New("language model credentials not configured")
	ErrEmptyResponse = errors.New("language model returned no content")
)

// Extractor structures report text with a language model.
type Extractor interface {
	Extract(ctx context.Context, text string) (clinical.StructuredData, error)
	// Model names the model used, for provenance on results.
	Model() string
}

// Extraction is the outcome of structuring one report. Reason explains why
// the rules extractor was used and is empty when the model answered.
type Extraction struct {
	Data   clinical.StructuredData
	Source Source
	Model  string
	Reason string
}

// Fallback runs the language model when one is configured and falls back to
// Rules on any model error.
type Fallback struct {
	llm     Extractor
	timeout time.Duration
	logger  *slog.Logger
}

// NewFallback creates a Fallback. llm may be nil, in which case every
// extraction uses Rules. timeout bounds a single model call.
func NewFallback(llm Extractor, timeout time.Duration, logger *slog.Logger) *Fallback {
	return &Fallback{llm: llm, timeout: timeout, logger: logger}
}

// Model names the configured language model, or "rules".
func (f *Fallback) Model() string {
	if f.llm == nil {
		return string(SourceRules)
	}
	return f.llm.Model()
}

// Extract always produces an Extraction.
func (f *Fallback) Extract(ctx context.Context, text string) Extraction {
	if f.llm == nil {
		return f.rules(text, "no language model configured")
	}

	callCtx := ctx
	if f.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	data, err := f.llm.Extract(callCtx, text)
	if err != nil {
		f.logger.Warn("language model extraction failed, using rules", "model", f.llm.Model(), "error", err)
		return f.rules(text, err.Error())
	}

	return Extraction{Data: data, Source: SourceLLM, Model: f.llm.Model()}
}

func (f *Fallback) rules(text, reason string) Extraction {
	return Extraction{
		Data:   Rules(text),
		Source: SourceRules,
		Model:  string(SourceRules),
		Reason: reason,
	}
}
