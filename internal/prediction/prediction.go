// Package prediction classifies structured report data into a BI-RADS
// category and derives the risk level shown to coordinators, who can record
// a review decision on each prediction.
package prediction

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/JaimeStill/aura/internal/config"
	"github.com/JaimeStill/aura/internal/pipeline"
	"github.com/JaimeStill/aura/internal/stage"
	"github.com/JaimeStill/aura/pkg/auth"
	"github.com/JaimeStill/aura/pkg/handlers"
	"github.com/JaimeStill/aura/pkg/openapi"
	"github.com/JaimeStill/aura/pkg/routes"
)

// Risk is the coarse risk bucket of a BI-RADS class.
type Risk string

const (
	RiskHigh            Risk = "high"
	RiskMedium          Risk = "medium"
	RiskLow             Risk = "low"
	RiskNeedsAssessment Risk = "needs_assessment"
)

// RiskLevel buckets a BI-RADS class or label.
func RiskLevel(label string) Risk {
	class, ok := ClassOf(label)
	if !ok {
		return RiskNeedsAssessment
	}
	switch class {
	case "4", "5", "6":
		return RiskHigh
	case "3":
		return RiskMedium
	case "1", "2":
		return RiskLow
	default:
		return RiskNeedsAssessment
	}
}

// Output is the prediction stage result.
type Output struct {
	PredictedClass string             `json:"predicted_class"`
	PredictedLabel string             `json:"predicted_label"`
	Probabilities  map[string]float64 `json:"probabilities"`
	Confidence     float64            `json:"confidence"`
	RiskLevel      Risk               `json:"risk_level"`
	NeedsReview    bool               `json:"needs_review"`
	ModelVersion   string             `json:"model_version"`
	StructuringID  uuid.UUID          `json:"structuring_id"`
}

// Work implements stage.Work for classification.
type Work struct {
	model         *Model
	modelVersion  string
	minConfidence float64
	logger        *slog.Logger
}

// NewWork creates the prediction Work. Predictions below minConfidence are
// flagged for review.
func NewWork(model *Model, modelVersion string, minConfidence float64, logger *slog.Logger) *Work {
	return &Work{model: model, modelVersion: modelVersion, minConfidence: minConfidence, logger: logger}
}

func (w *Work) Validate(_ context.Context, in pipeline.PredictRequest) error {
	if in.DocumentID == uuid.Nil {
		return fmt.Errorf("%w: document_id is required", stage.ErrValidation)
	}
	return nil
}

func (w *Work) Transform(ctx context.Context, in pipeline.PredictRequest, progress stage.Progress) (Output, error) {
	progress(10)

	scores, err := w.model.Predict(ctx, in.StructuredData)
	if err != nil {
		return Output{}, fmt.Errorf("%w: %w", stage.ErrTransformation, err)
	}
	progress(80)

	class, confidence := scores.Best()
	probs := make(map[string]float64, len(scores))
	for c, p := range scores {
		probs[Label(c)] = p
	}

	out := Output{
		PredictedClass: class,
		PredictedLabel: Label(class),
		Probabilities:  probs,
		Confidence:     confidence,
		RiskLevel:      RiskLevel(class),
		NeedsReview:    confidence < w.minConfidence,
		ModelVersion:   w.modelVersion,
		StructuringID:  in.StructuringID,
	}

	w.logger.Info("prediction made",
		"document_id", in.DocumentID,
		"class", out.PredictedClass,
		"confidence", out.Confidence,
		"needs_review", out.NeedsReview,
	)
	return out, nil
}

// System hosts the prediction stage and its review overlay.
type System struct {
	handler *stage.Handler[pipeline.PredictRequest, Output]
	model   *Model
	reviews Reviews
	logger  *slog.Logger
}

// New creates the prediction stage on host. Prediction is the last stage
// and hands nothing on.
func New(host *pipeline.Host, cfg *config.PredictionConfig, client *http.Client) *System {
	return newSystem(host, cfg, NewModel(cfg, client), NewReviews(host.DB, host.Logger))
}

func newSystem(host *pipeline.Host, cfg *config.PredictionConfig, model *Model, reviews Reviews) *System {
	logger := host.Logger.With("system", "prediction")
	work := NewWork(model, cfg.ModelVersion, cfg.MinConfidence, logger.With("component", "work"))

	return &System{
		model:   model,
		reviews: reviews,
		logger:  logger.With("handler", "review"),
		handler: pipeline.Mount(
			host,
			pipeline.Prediction,
			stage.Work[pipeline.PredictRequest, Output](work),
			cfg.TimeoutDuration(),
			func(in pipeline.PredictRequest) uuid.UUID { return in.DocumentID },
			"PredictRequest",
			stage.WithCleanup[Output](reviews.Delete),
		),
	}
}

// Model returns the shared classifier handle.
func (s *System) Model() *Model {
	return s.model
}

// Routes returns the prediction route group with the review and model routes.
func (s *System) Routes(authn routes.Middleware) routes.Group {
	coordinator := auth.Require(s.logger, auth.RoleCoordinator)

	return s.handler.Routes(pipeline.Prediction.Prefix(), []string{"Predictions"}, authn,
		routes.Route{Method: "GET", Pattern: "/model", Handler: s.ModelInfo, OpenAPI: modelOp},
		routes.Route{Method: "GET", Pattern: "/document/{document_id}/review", Handler: s.FindReview, OpenAPI: findReviewOp},
		routes.Route{
			Method:  "PATCH",
			Pattern: "/document/{document_id}/review",
			Handler: coordinator(http.HandlerFunc(s.Review)).ServeHTTP,
			OpenAPI: reviewOp,
		},
	)
}

// Receiver returns the queue receiver for prediction requests.
func (s *System) Receiver() pipeline.Receiver {
	return s.handler
}

func (s *System) ModelInfo(w http.ResponseWriter, r *http.Request) {
	handlers.RespondJSON(w, http.StatusOK, s.model.Info())
}

func (s *System) FindReview(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("document_id"))
	if err != nil {
		handlers.RespondError(w, s.logger, http.StatusBadRequest, fmt.Errorf("%w: invalid document_id", ErrInvalidReview))
		return
	}

	rv, err := s.reviews.Find(r.Context(), id)
	if err != nil {
		handlers.RespondError(w, s.logger, MapHTTPStatus(err), err)
		return
	}
	handlers.RespondJSON(w, http.StatusOK, rv)
}

func (s *System) Review(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("document_id"))
	if err != nil {
		handlers.RespondError(w, s.logger, http.StatusBadRequest, fmt.Errorf("%w: invalid document_id", ErrInvalidReview))
		return
	}

	var cmd ReviewCommand
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		handlers.RespondError(w, s.logger, http.StatusBadRequest, fmt.Errorf("%w: invalid request body", ErrInvalidReview))
		return
	}

	claims, _ := auth.FromContext(r.Context())

	rv, err := s.reviews.Set(r.Context(), id, claims.UserID(), cmd)
	if err != nil {
		handlers.RespondError(w, s.logger, MapHTTPStatus(err), err)
		return
	}
	handlers.RespondJSON(w, http.StatusOK, rv)
}

var modelOp = &openapi.Operation{
	Summary: "Describe the classifier",
	Responses: map[int]*openapi.Response{
		200: openapi.ResponseJSON("Model info", "ModelInfo"),
		401: openapi.ResponseRef("Unauthorized"),
	},
}

var findReviewOp = &openapi.Operation{
	Summary:    "Get the review of a prediction",
	Parameters: []*openapi.Parameter{openapi.PathParam("document_id", "Document UUID")},
	Responses: map[int]*openapi.Response{
		200: openapi.ResponseJSON("Review", "Review"),
		401: openapi.ResponseRef("Unauthorized"),
		404: openapi.ResponseRef("NotFound"),
	},
}

var reviewOp = &openapi.Operation{
	Summary:     "Review a prediction (coordinators only)",
	Parameters:  []*openapi.Parameter{openapi.PathParam("document_id", "Document UUID")},
	RequestBody: openapi.RequestBodyJSON("ReviewCommand", true),
	Responses: map[int]*openapi.Response{
		200: openapi.ResponseJSON("Recorded review", "Review"),
		400: openapi.ResponseRef("BadRequest"),
		401: openapi.ResponseRef("Unauthorized"),
		403: openapi.ResponseRef("Forbidden"),
		404: openapi.ResponseRef("NotFound"),
	},
}

// Schemas returns the OpenAPI component schemas for prediction.
func Schemas() map[string]*openapi.Schema {
	reviewStatus := &openapi.Schema{Type: "string", Enum: []any{"pending", "approved", "rejected", "modified"}}

	return map[string]*openapi.Schema{
		"PredictRequest": {
			Type:     "object",
			Required: []string{"document_id", "structured_data"},
			Properties: map[string]*openapi.Schema{
				"document_id":     {Type: "string", Format: "uuid"},
				"structuring_id":  {Type: "string", Format: "uuid"},
				"structured_data": openapi.SchemaRef("StructuredData"),
			},
		},
		"PredictOutput": {
			Type: "object",
			Properties: map[string]*openapi.Schema{
				"predicted_class": {Type: "string", Enum: []any{"0", "1", "2", "3", "4", "5", "6"}},
				"predicted_label": {Type: "string", Example: "BI-RADS 2"},
				"probabilities":   {Type: "object", Description: "Probability per label, summing to 1"},
				"confidence":      {Type: "number"},
				"risk_level":      {Type: "string", Enum: []any{"high", "medium", "low", "needs_assessment"}},
				"needs_review":    {Type: "boolean"},
				"model_version":   {Type: "string"},
				"structuring_id":  {Type: "string", Format: "uuid"},
			},
		},
		"ModelInfo": {
			Type: "object",
			Properties: map[string]*openapi.Schema{
				"model_version":  {Type: "string"},
				"provider":       {Type: "string", Enum: []any{"remote", "baseline"}},
				"loaded":         {Type: "boolean"},
				"workers":        {Type: "integer"},
				"min_confidence": {Type: "number"},
				"cached":         {Type: "integer"},
			},
		},
		"ReviewCommand": {
			Type:     "object",
			Required: []string{"review_status"},
			Properties: map[string]*openapi.Schema{
				"review_status":  reviewStatus,
				"reviewer_notes": {Type: "string"},
			},
		},
		"Review": {
			Type: "object",
			Properties: map[string]*openapi.Schema{
				"document_id":    {Type: "string", Format: "uuid"},
				"review_status":  reviewStatus,
				"reviewed_by":    {Type: "string"},
				"reviewer_notes": {Type: "string"},
				"reviewed_at":    {Type: "string", Format: "date-time"},
			},
		},
	}
}
