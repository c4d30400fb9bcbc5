package documents

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/JaimeStill/aura/pkg/auth"
	"github.com/JaimeStill/aura/pkg/formatting"
	"github.com/JaimeStill/aura/pkg/handlers"
	"github.com/JaimeStill/aura/pkg/openapi"
	"github.com/JaimeStill/aura/pkg/pagination"
	"github.com/JaimeStill/aura/pkg/routes"
)

// multipartOverhead allows for form boundaries and headers around the file.
const multipartOverhead = 1 << 20

// Handler provides HTTP endpoints for document operations.
type Handler struct {
	sys           System
	logger        *slog.Logger
	pagination    pagination.Config
	maxUploadSize int64
}

// SearchRequest combines pagination and filter criteria for the search endpoint.
type SearchRequest struct {
	pagination.PageRequest
	Filters
}

// NewHandler creates a Handler with the given system, logger, pagination config, and upload size limit.
func NewHandler(
	sys System,
	logger *slog.Logger,
	pagination pagination.Config,
	maxUploadSize int64,
) *Handler {
	return &Handler{
		sys:           sys,
		logger:        logger.With("handler", "documents"),
		pagination:    pagination,
		maxUploadSize: maxUploadSize,
	}
}

// Routes returns the route group for document endpoints. authn guards the
// public routes; the -internal routes are left open for peer stages.
func (h *Handler) Routes(authn routes.Middleware) routes.Group {
	var mw []routes.Middleware
	if authn != nil {
		mw = append(mw, authn)
	}

	return routes.Group{
		Prefix:      "/documents",
		Tags:        []string{"Documents"},
		Description: "Report upload and pipeline status",
		Children: []routes.Group{
			{
				Secured:    authn != nil,
				Middleware: mw,
				Routes: []routes.Route{
					{Method: "GET", Pattern: "", Handler: h.List, OpenAPI: listOp},
					{Method: "POST", Pattern: "/search", Handler: h.Search, OpenAPI: searchOp},
					{Method: "POST", Pattern: "/upload", Handler: h.Upload, OpenAPI: uploadOp},
					{Method: "GET", Pattern: "/{id}", Handler: h.Find, OpenAPI: findOp},
					{Method: "GET", Pattern: "/{id}/status", Handler: h.Status, OpenAPI: statusOp},
					{Method: "POST", Pattern: "/{id}/reprocess", Handler: h.Reprocess, OpenAPI: reprocessOp},
					{Method: "DELETE", Pattern: "/{id}", Handler: h.Delete, OpenAPI: deleteOp},
				},
			},
			{
				Routes: []routes.Route{
					{Method: "POST", Pattern: "/update-status-internal", Handler: h.RecordStatus, OpenAPI: recordStatusOp},
					{Method: "PATCH", Pattern: "/{id}/status-internal", Handler: h.SetStatus, OpenAPI: setStatusOp},
				},
			},
		},
	}
}

// List returns a paginated list of documents with optional query parameter filters.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	page := pagination.PageRequestFromQuery(r.URL.Query(), h.pagination)
	filters := FiltersFromQuery(r.URL.Query())

	result, err := h.sys.List(r.Context(), page, filters)
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusInternalServerError, err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, result)
}

// Search accepts a JSON body with pagination and filter criteria and returns matching documents.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, err)
		return
	}

	req.PageRequest.Normalize(h.pagination)

	result, err := h.sys.List(r.Context(), req.PageRequest, req.Filters)
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusInternalServerError, err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, result)
}

// Find returns a single document by its UUID path parameter.
func (h *Handler) Find(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	doc, err := h.sys.Find(r.Context(), id)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, doc)
}

// Status returns a document with its processing history.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	view, err := h.sys.Status(r.Context(), id)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, view)
}

// Upload accepts a multipart "file" field, stores it, and starts the pipeline.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize+multipartOverhead)
	if err := r.ParseMultipartForm(h.maxUploadSize); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			handlers.RespondError(w, h.logger, http.StatusRequestEntityTooLarge,
				fmt.Errorf("%w: limit is %s", ErrFileTooLarge, formatting.FormatBytes(h.maxUploadSize, 0)))
			return
		}
		handlers.RespondError(w, h.logger, http.StatusBadRequest, ErrInvalidFile)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, ErrInvalidFile)
		return
	}
	defer file.Close()

	if err := validateUpload(header.Filename, header.Size, h.maxUploadSize); err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, ErrInvalidFile)
		return
	}

	var uploadedBy string
	if claims, ok := auth.FromContext(r.Context()); ok {
		uploadedBy = claims.UserID()
	}

	cmd := CreateCommand{
		Data:        data,
		Filename:    header.Filename,
		ContentType: detectContentType(header.Header.Get("Content-Type"), header.Filename, data),
		PageCount:   extractPDFPageCount(h.logger, data, header.Filename),
		UploadedBy:  uploadedBy,
	}

	doc, err := h.sys.Create(r.Context(), cmd)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusCreated, doc)
}

// Reprocess restarts the pipeline for an existing document.
func (h *Handler) Reprocess(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	doc, err := h.sys.Reprocess(r.Context(), id)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusAccepted, doc)
}

// Delete removes a document by its UUID path parameter.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	if err := h.sys.Delete(r.Context(), id); err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// RecordStatus appends a processing event reported by a peer stage.
func (h *Handler) RecordStatus(w http.ResponseWriter, r *http.Request) {
	var update StatusUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, err)
		return
	}

	if err := h.sys.RecordStatus(r.Context(), update); err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, map[string]string{"message": "status recorded"})
}

// SetStatus replaces the coarse status of a document.
func (h *Handler) SetStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	var update DocumentStatusUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, err)
		return
	}

	if err := h.sys.SetStatus(r.Context(), id, update); err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, map[string]string{"message": "status updated"})
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, ErrInvalidID)
		return uuid.Nil, false
	}
	return id, true
}

var idParam = []*openapi.Parameter{openapi.PathParam("id", "Document id")}

var listOp = &openapi.Operation{
	Summary: "List documents",
	Parameters: []*openapi.Parameter{
		openapi.QueryParam("page", "integer", "Page number", false),
		openapi.QueryParam("page_size", "integer", "Page size", false),
		openapi.QueryParam("search", "string", "Search filename and uploader", false),
		openapi.QueryParam("status", "string", "Filter by status", false),
		openapi.QueryParam("filename", "string", "Filter by filename", false),
		openapi.QueryParam("uploaded_by", "string", "Filter by uploader", false),
	},
	Responses: map[int]*openapi.Response{
		200: openapi.ResponseJSON("Document page", "DocumentPage"),
		401: openapi.ResponseRef("Unauthorized"),
	},
}

var searchOp = &openapi.Operation{
	Summary:     "Search documents",
	RequestBody: openapi.RequestBodyJSON("DocumentSearch", true),
	Responses: map[int]*openapi.Response{
		200: openapi.ResponseJSON("Document page", "DocumentPage"),
		400: openapi.ResponseRef("BadRequest"),
		401: openapi.ResponseRef("Unauthorized"),
	},
}

var uploadOp = &openapi.Operation{
	Summary: "Upload a report",
	RequestBody: &openapi.RequestBody{
		Required: true,
		Content: map[string]*openapi.MediaType{
			"multipart/form-data": {Schema: &openapi.Schema{
				Type: "object",
				Properties: map[string]*openapi.Schema{
					"file": {Type: "string", Format: "binary"},
				},
				Required: []string{"file"},
			}},
		},
	},
	Responses: map[int]*openapi.Response{
		201: openapi.ResponseJSON("Uploaded document", "Document"),
		400: openapi.ResponseRef("BadRequest"),
		401: openapi.ResponseRef("Unauthorized"),
		413: openapi.ResponseRef("PayloadTooLarge"),
	},
}

var findOp = &openapi.Operation{
	Summary:    "Get a document",
	Parameters: idParam,
	Responses: map[int]*openapi.Response{
		200: openapi.ResponseJSON("Document", "Document"),
		401: openapi.ResponseRef("Unauthorized"),
		404: openapi.ResponseRef("NotFound"),
	},
}

var statusOp = &openapi.Operation{
	Summary:    "Get a document with its processing history",
	Parameters: idParam,
	Responses: map[int]*openapi.Response{
		200: openapi.ResponseJSON("Document status", "DocumentStatus"),
		401: openapi.ResponseRef("Unauthorized"),
		404: openapi.ResponseRef("NotFound"),
	},
}

var reprocessOp = &openapi.Operation{
	Summary:    "Restart the pipeline for a document",
	Parameters: idParam,
	Responses: map[int]*openapi.Response{
		202: openapi.ResponseJSON("Document", "Document"),
		401: openapi.ResponseRef("Unauthorized"),
		404: openapi.ResponseRef("NotFound"),
	},
}

var deleteOp = &openapi.Operation{
	Summary:    "Delete a document and everything derived from it",
	Parameters: idParam,
	Responses: map[int]*openapi.Response{
		204: {Description: "Deleted"},
		401: openapi.ResponseRef("Unauthorized"),
		404: openapi.ResponseRef("NotFound"),
	},
}

var recordStatusOp = &openapi.Operation{
	Summary:     "Record a processing event from a peer stage",
	RequestBody: openapi.RequestBodyJSON("StatusUpdate", true),
	Responses: map[int]*openapi.Response{
		200: {Description: "Recorded"},
		400: openapi.ResponseRef("BadRequest"),
		404: openapi.ResponseRef("NotFound"),
	},
}

var setStatusOp = &openapi.Operation{
	Summary:     "Set the coarse document status",
	Parameters:  idParam,
	RequestBody: openapi.RequestBodyJSON("DocumentStatusUpdate", true),
	Responses: map[int]*openapi.Response{
		200: {Description: "Updated"},
		400: openapi.ResponseRef("BadRequest"),
		404: openapi.ResponseRef("NotFound"),
	},
}

// Schemas returns the OpenAPI component schemas for document routes.
func Schemas() map[string]*openapi.Schema {
	document := &openapi.Schema{
		Type: "object",
		Properties: map[string]*openapi.Schema{
			"id":           {Type: "string", Format: "uuid"},
			"filename":     {Type: "string"},
			"content_type": {Type: "string"},
			"size_bytes":   {Type: "integer"},
			"page_count":   {Type: "integer"},
			"storage_key":  {Type: "string"},
			"uploaded_by":  {Type: "string"},
			"status":       {Type: "string", Enum: []any{"uploaded", "parsed", "structured", "predicted", "failed"}},
			"uploaded_at":  {Type: "string", Format: "date-time"},
			"updated_at":   {Type: "string", Format: "date-time"},
		},
	}

	return map[string]*openapi.Schema{
		"Document": document,
		"DocumentPage": {
			Type: "object",
			Properties: map[string]*openapi.Schema{
				"data":        {Type: "array", Items: openapi.SchemaRef("Document")},
				"total":       {Type: "integer"},
				"page":        {Type: "integer"},
				"page_size":   {Type: "integer"},
				"total_pages": {Type: "integer"},
				"has_next":    {Type: "boolean"},
			},
		},
		"DocumentSearch": {
			Type: "object",
			Properties: map[string]*openapi.Schema{
				"page":        {Type: "integer"},
				"page_size":   {Type: "integer"},
				"search":      {Type: "string"},
				"status":      {Type: "string"},
				"filename":    {Type: "string"},
				"uploaded_by": {Type: "string"},
			},
		},
		"DocumentStatus": {
			Type: "object",
			Properties: map[string]*openapi.Schema{
				"document":            openapi.SchemaRef("Document"),
				"processing_statuses": {Type: "array", Items: openapi.SchemaRef("StatusEntry")},
			},
		},
		"StatusEntry": {
			Type: "object",
			Properties: map[string]*openapi.Schema{
				"id":            {Type: "string", Description: "ULID"},
				"document_id":   {Type: "string", Format: "uuid"},
				"service_name":  {Type: "string"},
				"status":        {Type: "string"},
				"error_message": {Type: "string"},
				"created_at":    {Type: "string", Format: "date-time"},
			},
		},
		"StatusUpdate": {
			Type: "object",
			Properties: map[string]*openapi.Schema{
				"document_id":   {Type: "string", Format: "uuid"},
				"service_name":  {Type: "string", Enum: []any{"document_ingestion", "document_parsing", "information_structuring", "risk_prediction"}},
				"status":        {Type: "string", Enum: []any{"pending", "processing", "completed", "failed"}},
				"error_message": {Type: "string"},
			},
			Required: []string{"document_id", "service_name", "status"},
		},
		"DocumentStatusUpdate": {
			Type: "object",
			Properties: map[string]*openapi.Schema{
				"status": {Type: "string", Enum: []any{"uploaded", "parsed", "structured", "predicted", "failed"}},
			},
			Required: []string{"status"},
		},
	}
}
