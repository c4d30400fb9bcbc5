package stage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/JaimeStill/aura/pkg/handlers"
	"github.com/JaimeStill/aura/pkg/openapi"
	"github.com/JaimeStill/aura/pkg/routes"
)

// Handler exposes an Orchestrator over HTTP with the public/internal route
// split shared by every stage. Public routes carry the auth middleware;
// "-internal" routes are for service-to-service calls on the private network.
type Handler[In, Out any] struct {
	orc      *Orchestrator[In, Out]
	logger   *slog.Logger
	document func(In) uuid.UUID
	schema   string
}

// NewHandler creates a Handler. document extracts the document id from a
// decoded request; schema names the OpenAPI component of the request body.
func NewHandler[In, Out any](
	orc *Orchestrator[In, Out],
	logger *slog.Logger,
	document func(In) uuid.UUID,
	schema string,
) *Handler[In, Out] {
	return &Handler[In, Out]{
		orc:      orc,
		logger:   logger.With("handler", orc.Name()),
		document: document,
		schema:   schema,
	}
}

// Routes returns the stage route group under prefix. auth guards the public
// routes; extra routes are appended to the public set.
func (h *Handler[In, Out]) Routes(prefix string, tags []string, auth routes.Middleware, extra ...routes.Route) routes.Group {
	public := []routes.Route{
		{Method: "POST", Pattern: "/process", Handler: h.Process, OpenAPI: h.processOp(false)},
		{Method: "GET", Pattern: "/result/{id}", Handler: h.Find, OpenAPI: resultOp("Get a result by id")},
		{Method: "GET", Pattern: "/result/document/{document_id}", Handler: h.FindByDocument, OpenAPI: resultOp("Get the current result for a document")},
		{Method: "GET", Pattern: "/progress/{document_id}", Handler: h.Progress, OpenAPI: progressOp},
	}
	public = append(public, extra...)

	var mw []routes.Middleware
	if auth != nil {
		mw = append(mw, auth)
	}

	return routes.Group{
		Prefix:      prefix,
		Tags:        tags,
		Description: "Stage processing, results and progress",
		Children: []routes.Group{
			{Secured: auth != nil, Middleware: mw, Routes: public},
			{Routes: []routes.Route{
				{Method: "POST", Pattern: "/process-internal", Handler: h.ProcessInternal, OpenAPI: h.processOp(true)},
				{Method: "DELETE", Pattern: "/{document_id}/delete-internal", Handler: h.DeleteInternal, OpenAPI: deleteOp},
			}},
		},
	}
}

// Process runs the stage synchronously. A failed transformation surfaces as a
// 500 carrying the stored error message.
func (h *Handler[In, Out]) Process(w http.ResponseWriter, r *http.Request) {
	in, ok := h.decode(w, r)
	if !ok {
		return
	}

	result, err := h.orc.Submit(r.Context(), h.document(in), in)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	if result.Status == StatusFailed {
		msg := ""
		if result.ErrorMessage != nil {
			msg = *result.ErrorMessage
		}
		handlers.RespondError(w, h.logger, http.StatusInternalServerError, fmt.Errorf("%w: %s", ErrTransformation, msg))
		return
	}

	handlers.RespondJSON(w, http.StatusOK, result)
}

// ProcessInternal accepts work and returns 202 with the pending result.
func (h *Handler[In, Out]) ProcessInternal(w http.ResponseWriter, r *http.Request) {
	in, ok := h.decode(w, r)
	if !ok {
		return
	}

	result, err := h.orc.Start(r.Context(), h.document(in), in)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusAccepted, result)
}

// Receive decodes a queued payload and starts it. It serves queue consumers
// the same way ProcessInternal serves HTTP callers.
func (h *Handler[In, Out]) Receive(ctx context.Context, data []byte) error {
	var in In
	if err := json.Unmarshal(data, &in); err != nil {
		return fmt.Errorf("%w: decode payload: %w", ErrValidation, err)
	}
	_, err := h.orc.Start(ctx, h.document(in), in)
	return err
}

func (h *Handler[In, Out]) Find(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}

	result, err := h.orc.ResultByID(r.Context(), id)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}
	handlers.RespondJSON(w, http.StatusOK, result)
}

func (h *Handler[In, Out]) FindByDocument(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "document_id")
	if !ok {
		return
	}

	result, err := h.orc.Result(r.Context(), id)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}
	handlers.RespondJSON(w, http.StatusOK, result)
}

func (h *Handler[In, Out]) Progress(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "document_id")
	if !ok {
		return
	}

	snap, err := h.orc.Progress(r.Context(), id)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}
	handlers.RespondJSON(w, http.StatusOK, snap)
}

// DeleteInternal removes the result for a document. Absent results succeed
// so cascades can be retried.
func (h *Handler[In, Out]) DeleteInternal(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "document_id")
	if !ok {
		return
	}

	n, err := h.orc.Delete(r.Context(), id)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}
	handlers.RespondJSON(w, http.StatusOK, map[string]any{
		"document_id": id,
		"deleted":     n,
	})
}

func (h *Handler[In, Out]) decode(w http.ResponseWriter, r *http.Request) (In, bool) {
	var in In
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, fmt.Errorf("%w: invalid request body", ErrValidation))
		return in, false
	}
	if h.document(in) == uuid.Nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, fmt.Errorf("%w: document_id is required", ErrValidation))
		return in, false
	}
	return in, true
}

func (h *Handler[In, Out]) pathID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, errors.Join(ErrValidation, fmt.Errorf("invalid %s", name)))
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler[In, Out]) processOp(internal bool) *openapi.Operation {
	op := &openapi.Operation{
		Summary:     "Process a document synchronously",
		RequestBody: openapi.RequestBodyJSON(h.schema, true),
		Responses: map[int]*openapi.Response{
			200: openapi.ResponseJSON("Completed result", "StageResult"),
			400: openapi.ResponseRef("BadRequest"),
			401: openapi.ResponseRef("Unauthorized"),
			404: openapi.ResponseRef("NotFound"),
		},
	}
	if internal {
		op.Summary = "Accept a document for background processing"
		op.Responses = map[int]*openapi.Response{
			202: openapi.ResponseJSON("Pending result", "StageResult"),
			400: openapi.ResponseRef("BadRequest"),
			404: openapi.ResponseRef("NotFound"),
		}
	}
	return op
}

func resultOp(summary string) *openapi.Operation {
	return &openapi.Operation{
		Summary: summary,
		Responses: map[int]*openapi.Response{
			200: openapi.ResponseJSON("Stage result", "StageResult"),
			401: openapi.ResponseRef("Unauthorized"),
			404: openapi.ResponseRef("NotFound"),
		},
	}
}

var progressOp = &openapi.Operation{
	Summary: "Poll processing progress",
	Responses: map[int]*openapi.Response{
		200: openapi.ResponseJSON("Progress snapshot", "Progress"),
		401: openapi.ResponseRef("Unauthorized"),
		404: openapi.ResponseRef("NotFound"),
	},
}

var deleteOp = &openapi.Operation{
	Summary: "Delete the result for a document",
	Responses: map[int]*openapi.Response{
		200: {Description: "Result deleted or absent"},
	},
}

// Schemas returns the OpenAPI component schemas shared by stage routes.
func Schemas() map[string]*openapi.Schema {
	return map[string]*openapi.Schema{
		"StageResult": {
			Type: "object",
			Properties: map[string]*openapi.Schema{
				"id":              {Type: "string", Format: "uuid"},
				"document_id":     {Type: "string", Format: "uuid"},
				"status":          {Type: "string", Enum: []any{"pending", "processing", "completed", "failed"}},
				"progress":        {Type: "integer"},
				"output":          {Type: "object", Description: "Stage output, present when completed"},
				"error_message":   {Type: "string"},
				"processing_time": {Type: "number", Description: "Seconds"},
				"degraded":        {Type: "boolean"},
				"stale":           {Type: "boolean"},
				"created_at":      {Type: "string", Format: "date-time"},
				"updated_at":      {Type: "string", Format: "date-time"},
			},
		},
		"Progress": {
			Type: "object",
			Properties: map[string]*openapi.Schema{
				"document_id": {Type: "string", Format: "uuid"},
				"status":      {Type: "string"},
				"progress":    {Type: "integer"},
				"updated_at":  {Type: "string", Format: "date-time"},
				"stale":       {Type: "boolean"},
			},
		},
	}
}
