// Package structuring turns extracted report text into clinical.StructuredData
// with a language model, falling back to keyword rules when the model is
// unavailable. Rule-based results complete normally but are marked degraded.
package structuring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"path"
	"strings"

	"github.com/google/uuid"

	"github.com/JaimeStill/aura/internal/clinical"
	"github.com/JaimeStill/aura/internal/config"
	"github.com/JaimeStill/aura/internal/pipeline"
	"github.com/JaimeStill/aura/internal/stage"
	"github.com/JaimeStill/aura/pkg/openapi"
	"github.com/JaimeStill/aura/pkg/routes"
	"github.com/JaimeStill/aura/pkg/storage"
)

// Output is the structuring stage result.
type Output struct {
	StructuredData  clinical.StructuredData `json:"structured_data"`
	ConfidenceScore float64                 `json:"confidence_score"`
	Source          Source                  `json:"source"`
	FallbackReason  string                  `json:"fallback_reason,omitempty"`
	Model           string                  `json:"model"`
	ArtifactKey     string                  `json:"artifact_key"`
}

// Degraded reports whether the rules extractor produced the output.
func (o Output) Degraded() bool {
	return o.Source != SourceLLM
}

// Confidence is the share of known fields, rounded to two decimals.
func Confidence(d clinical.StructuredData) float64 {
	n := len(d.Values())
	known := n - d.UnknownCount()
	return math.Round(float64(known)/float64(n)*100) / 100
}

// ArtifactKey returns the storage key of the structured result for documentID.
func ArtifactKey(documentID uuid.UUID) string {
	return path.Join("results", documentID.String()+".json")
}

// Work implements stage.Work for field extraction.
type Work struct {
	extractor *Fallback
	store     storage.System
	logger    *slog.Logger
}

// NewWork creates the structuring Work.
func NewWork(extractor *Fallback, store storage.System, logger *slog.Logger) *Work {
	return &Work{extractor: extractor, store: store, logger: logger}
}

func (w *Work) Validate(_ context.Context, in pipeline.StructureRequest) error {
	if in.DocumentID == uuid.Nil {
		return fmt.Errorf("%w: document_id is required", stage.ErrValidation)
	}
	if strings.TrimSpace(in.ExtractedText) == "" {
		return fmt.Errorf("%w: extracted_text is required", stage.ErrValidation)
	}
	return nil
}

func (w *Work) Transform(ctx context.Context, in pipeline.StructureRequest, progress stage.Progress) (Output, error) {
	progress(10)

	ext := w.extractor.Extract(ctx, in.ExtractedText)
	ext.Data.Normalize()
	progress(70)

	out := Output{
		StructuredData:  ext.Data,
		ConfidenceScore: Confidence(ext.Data),
		Source:          ext.Source,
		FallbackReason:  ext.Reason,
		Model:           ext.Model,
		ArtifactKey:     ArtifactKey(in.DocumentID),
	}

	artifact, err := json.MarshalIndent(out.StructuredData, "", "  ")
	if err != nil {
		return Output{}, fmt.Errorf("%w: encode artifact: %w", stage.ErrTransformation, err)
	}
	if err := w.store.Upload(ctx, out.ArtifactKey, bytes.NewReader(artifact), "application/json"); err != nil {
		return Output{}, fmt.Errorf("%w: save artifact: %w", stage.ErrTransformation, err)
	}
	progress(90)

	w.logger.Info("report structured",
		"document_id", in.DocumentID,
		"source", out.Source,
		"confidence", out.ConfidenceScore,
	)
	return out, nil
}

// System hosts the structuring stage.
type System struct {
	handler   *stage.Handler[pipeline.StructureRequest, Output]
	extractor *Fallback
}

// New creates the structuring stage on host. Completed results are handed to
// prediction through the host notifier.
func New(host *pipeline.Host, cfg *config.StructuringConfig, client *http.Client) *System {
	logger := host.Logger.With("system", "structuring", "component", "work")

	var llm Extractor
	switch cfg.Provider {
	case config.ExtractorGemini:
		llm = NewGemini(cfg, client)
	case config.ExtractorVertex:
		v := NewVertex(cfg)
		host.Lifecycle.OnShutdown(func() {
			<-host.Lifecycle.Context().Done()
			if err := v.Close(); err != nil {
				logger.Warn("close vertex client", "error", err)
			}
		})
		llm = v
	}

	extractor := NewFallback(llm, cfg.TimeoutDuration(), logger)

	handoff := func(ctx context.Context, result *stage.Result[Output]) {
		host.Notifier.Notify(ctx, pipeline.Prediction, result.DocumentID, pipeline.PredictRequest{
			DocumentID:     result.DocumentID,
			StructuringID:  result.ID,
			StructuredData: result.Output.StructuredData,
		})
	}

	return &System{
		extractor: extractor,
		handler: pipeline.Mount(
			host,
			pipeline.Structuring,
			stage.Work[pipeline.StructureRequest, Output](NewWork(extractor, host.Storage, logger)),
			2*cfg.TimeoutDuration(),
			func(in pipeline.StructureRequest) uuid.UUID { return in.DocumentID },
			"StructureRequest",
			stage.WithHandoff[Output](handoff),
			stage.WithCleanup[Output](pipeline.RemoveArtifact(host.Storage, ArtifactKey)),
		),
	}
}

// Model names the language model in use, or "rules".
func (s *System) Model() string {
	return s.extractor.Model()
}

// Routes returns the structuring route group.
func (s *System) Routes(auth routes.Middleware) routes.Group {
	return s.handler.Routes(pipeline.Structuring.Prefix(), []string{"Structuring"}, auth)
}

// Receiver returns the queue receiver for structuring requests.
func (s *System) Receiver() pipeline.Receiver {
	return s.handler
}

// Schemas returns the OpenAPI component schemas for structuring.
func Schemas() map[string]*openapi.Schema {
	fields := make(map[string]*openapi.Schema, len(clinical.Fields))
	for _, f := range clinical.Fields {
		fields[f.Name] = &openapi.Schema{Type: "string", Description: f.Description}
	}

	return map[string]*openapi.Schema{
		"StructuredData": {Type: "object", Properties: fields},
		"StructureRequest": {
			Type:     "object",
			Required: []string{"document_id", "extracted_text"},
			Properties: map[string]*openapi.Schema{
				"document_id":    {Type: "string", Format: "uuid"},
				"extracted_text": {Type: "string"},
			},
		},
		"StructureOutput": {
			Type: "object",
			Properties: map[string]*openapi.Schema{
				"structured_data":  openapi.SchemaRef("StructuredData"),
				"confidence_score": {Type: "number"},
				"source":           {Type: "string", Enum: []any{"llm", "rules"}},
				"fallback_reason":  {Type: "string"},
				"model":            {Type: "string"},
				"artifact_key":     {Type: "string"},
			},
		},
	}
}
