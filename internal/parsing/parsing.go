// Package parsing extracts text from stored reports. Plain text and DOCX are
// read in-process; PDFs and scanned images go through an external converter
// and come back as Markdown. The extracted text is saved as an artifact and
// handed to structuring.
package parsing

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/JaimeStill/aura/internal/config"
	"github.com/JaimeStill/aura/internal/pipeline"
	"github.com/JaimeStill/aura/internal/stage"
	"github.com/JaimeStill/aura/pkg/openapi"
	"github.com/JaimeStill/aura/pkg/routes"
	"github.com/JaimeStill/aura/pkg/storage"
)

// Output is the parsing stage result.
type Output struct {
	ExtractedText string `json:"extracted_text"`
	Format        Format `json:"format"`
	PageCount     *int   `json:"page_count,omitempty"`
	ArtifactKey   string `json:"artifact_key"`
}

// ArtifactKey returns the storage key of the parsed text for documentID.
func ArtifactKey(documentID uuid.UUID) string {
	return path.Join("parsed", documentID.String()+".md")
}

// Work implements stage.Work for text extraction.
type Work struct {
	store     storage.System
	converter Converter
	logger    *slog.Logger
}

// NewWork creates the parsing Work.
func NewWork(store storage.System, conv Converter, logger *slog.Logger) *Work {
	return &Work{store: store, converter: conv, logger: logger}
}

func (w *Work) Validate(ctx context.Context, in pipeline.ParseRequest) error {
	if in.DocumentID == uuid.Nil {
		return fmt.Errorf("%w: document_id is required", stage.ErrValidation)
	}
	if in.FilePath == "" {
		return fmt.Errorf("%w: file_path is required", stage.ErrValidation)
	}
	if _, ok := FormatOf(sourceName(in)); !ok {
		return fmt.Errorf("%w: unsupported file type %q", stage.ErrValidation, path.Ext(sourceName(in)))
	}

	exists, err := w.store.Exists(ctx, in.FilePath)
	if err != nil {
		if errors.Is(err, storage.ErrInvalidKey) || errors.Is(err, storage.ErrEmptyKey) {
			return fmt.Errorf("%w: %w", stage.ErrValidation, err)
		}
		return fmt.Errorf("check %s: %w", in.FilePath, err)
	}
	if !exists {
		return fmt.Errorf("%w: file %s", stage.ErrNotFound, in.FilePath)
	}
	return nil
}

func (w *Work) Transform(ctx context.Context, in pipeline.ParseRequest, progress stage.Progress) (Output, error) {
	format, _ := FormatOf(sourceName(in))

	data, err := storage.ReadAll(ctx, w.store, in.FilePath)
	if err != nil {
		return Output{}, fmt.Errorf("%w: download: %w", stage.ErrTransformation, err)
	}
	progress(20)

	out := Output{Format: format}

	var text string
	switch {
	case format == FormatText:
		if !utf8.Valid(data) {
			return Output{}, fmt.Errorf("%w: text file is not valid UTF-8", stage.ErrTransformation)
		}
		text = normalize(string(data))
	case format == FormatDOCX:
		raw, err := readDOCX(data)
		if err != nil {
			return Output{}, fmt.Errorf("%w: %w", stage.ErrTransformation, err)
		}
		text = normalize(raw)
	case format.Remote():
		if w.converter == nil {
			return Output{}, fmt.Errorf("%w: no converter configured for %s", stage.ErrTransformation, format)
		}
		if format == FormatPDF {
			pages, err := api.PageCount(bytes.NewReader(data), model.NewDefaultConfiguration())
			if err != nil {
				return Output{}, fmt.Errorf("%w: invalid pdf: %w", stage.ErrTransformation, err)
			}
			out.PageCount = &pages
		}
		progress(40)

		html, err := w.converter.Convert(ctx, data, contentTypeOf(sourceName(in)))
		if err != nil {
			return Output{}, fmt.Errorf("%w: %w", stage.ErrTransformation, err)
		}
		progress(70)

		if text, err = Markdown(html); err != nil {
			return Output{}, fmt.Errorf("%w: %w", stage.ErrTransformation, err)
		}
	}

	if text == "" {
		return Output{}, fmt.Errorf("%w: no text extracted", stage.ErrTransformation)
	}
	out.ExtractedText = text
	progress(80)

	out.ArtifactKey = ArtifactKey(in.DocumentID)
	if err := w.store.Upload(ctx, out.ArtifactKey, bytes.NewReader([]byte(text)), "text/markdown; charset=utf-8"); err != nil {
		return Output{}, fmt.Errorf("%w: save artifact: %w", stage.ErrTransformation, err)
	}
	progress(95)

	w.logger.Info("text extracted",
		"document_id", in.DocumentID,
		"format", format,
		"chars", len(text),
	)
	return out, nil
}

// sourceName prefers the original filename and falls back to the storage key.
func sourceName(in pipeline.ParseRequest) string {
	if in.Filename != "" {
		return in.Filename
	}
	return in.FilePath
}

// System hosts the parsing stage.
type System struct {
	handler *stage.Handler[pipeline.ParseRequest, Output]
}

// New creates the parsing stage on host. Completed results are handed to
// structuring through the host notifier.
func New(host *pipeline.Host, cfg *config.ParsingConfig, client *http.Client) *System {
	work := NewWork(
		host.Storage,
		NewTika(cfg.ConverterURL, client),
		host.Logger.With("system", "parsing", "component", "work"),
	)

	handoff := func(ctx context.Context, result *stage.Result[Output]) {
		host.Notifier.Notify(ctx, pipeline.Structuring, result.DocumentID, pipeline.StructureRequest{
			DocumentID:    result.DocumentID,
			ExtractedText: result.Output.ExtractedText,
		})
	}

	return &System{
		handler: pipeline.Mount(
			host,
			pipeline.Parsing,
			stage.Work[pipeline.ParseRequest, Output](work),
			cfg.ConverterTimeoutDuration(),
			func(in pipeline.ParseRequest) uuid.UUID { return in.DocumentID },
			"ParseRequest",
			stage.WithHandoff[Output](handoff),
			stage.WithCleanup[Output](pipeline.RemoveArtifact(host.Storage, ArtifactKey)),
		),
	}
}

// Routes returns the parsing route group.
func (s *System) Routes(auth routes.Middleware) routes.Group {
	return s.handler.Routes(pipeline.Parsing.Prefix(), []string{"Parsing"}, auth)
}

// Receiver returns the queue receiver for parsing requests.
func (s *System) Receiver() pipeline.Receiver {
	return s.handler
}

// Schemas returns the OpenAPI component schemas for parsing.
func Schemas() map[string]*openapi.Schema {
	return map[string]*openapi.Schema{
		"ParseRequest": {
			Type:     "object",
			Required: []string{"document_id", "file_path"},
			Properties: map[string]*openapi.Schema{
				"document_id": {Type: "string", Format: "uuid"},
				"file_path":   {Type: "string", Description: "Storage key of the uploaded file"},
				"filename":    {Type: "string"},
			},
		},
		"ParseOutput": {
			Type: "object",
			Properties: map[string]*openapi.Schema{
				"extracted_text": {Type: "string"},
				"format":         {Type: "string", Enum: []any{"text", "docx", "pdf", "image"}},
				"page_count":     {Type: "integer"},
				"artifact_key":   {Type: "string"},
			},
		},
	}
}
