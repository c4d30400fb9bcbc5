package documents_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/JaimeStill/aura/internal/documents"
	"github.com/JaimeStill/aura/internal/ledger"
	"github.com/JaimeStill/aura/pkg/auth"
	"github.com/JaimeStill/aura/pkg/pagination"
	"github.com/JaimeStill/aura/pkg/routes"
)

type mockSystem struct {
	listFn      func(ctx context.Context, page pagination.PageRequest, filters documents.Filters) (*pagination.PageResult[documents.Document], error)
	findFn      func(ctx context.Context, id uuid.UUID) (*documents.Document, error)
	statusFn    func(ctx context.Context, id uuid.UUID) (*documents.StatusView, error)
	createFn    func(ctx context.Context, cmd documents.CreateCommand) (*documents.Document, error)
	reprocessFn func(ctx context.Context, id uuid.UUID) (*documents.Document, error)
	deleteFn    func(ctx context.Context, id uuid.UUID) error
	recordFn    func(ctx context.Context, update documents.StatusUpdate) error
	setFn       func(ctx context.Context, id uuid.UUID, update documents.DocumentStatusUpdate) error
}

func (m *mockSystem) Handler(maxUploadSize int64) *documents.Handler {
	return newTestHandler(m, maxUploadSize)
}

func (m *mockSystem) List(ctx context.Context, page pagination.PageRequest, filters documents.Filters) (*pagination.PageResult[documents.Document], error) {
	return m.listFn(ctx, page, filters)
}

func (m *mockSystem) Find(ctx context.Context, id uuid.UUID) (*documents.Document, error) {
	return m.findFn(ctx, id)
}

func (m *mockSystem) Status(ctx context.Context, id uuid.UUID) (*documents.StatusView, error) {
	return m.statusFn(ctx, id)
}

func (m *mockSystem) Create(ctx context.Context, cmd documents.CreateCommand) (*documents.Document, error) {
	return m.createFn(ctx, cmd)
}

func (m *mockSystem) Reprocess(ctx context.Context, id uuid.UUID) (*documents.Document, error) {
	return m.reprocessFn(ctx, id)
}

func (m *mockSystem) Delete(ctx context.Context, id uuid.UUID) error {
	return m.deleteFn(ctx, id)
}

func (m *mockSystem) RecordStatus(ctx context.Context, update documents.StatusUpdate) error {
	return m.recordFn(ctx, update)
}

func (m *mockSystem) SetStatus(ctx context.Context, id uuid.UUID, update documents.DocumentStatusUpdate) error {
	return m.setFn(ctx, id, update)
}

func newTestHandler(sys documents.System, maxUploadSize int64) *documents.Handler {
	return documents.NewHandler(
		sys,
		slog.New(slog.NewTextHandler(io.Discard, nil)),
		pagination.Config{DefaultPageSize: 20, MaxPageSize: 100},
		maxUploadSize,
	)
}

// asUser injects claims the way the authentication middleware does.
func asUser(subject string) routes.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := &auth.Claims{
				Role:             string(auth.RoleClinicAdmin),
				Type:             auth.TokenTypeAccess,
				RegisteredClaims: jwt.RegisteredClaims{Subject: subject},
			}
			next.ServeHTTP(w, r.WithContext(auth.WithClaims(r.Context(), claims)))
		})
	}
}

func setupMux(sys *mockSystem, maxUploadSize int64) *http.ServeMux {
	mux := http.NewServeMux()
	routes.Register(mux, newTestHandler(sys, maxUploadSize).Routes(asUser("user-7")))
	return mux
}

func sampleDoc() documents.Document {
	return documents.Document{
		ID:          uuid.MustParse("550e8400-e29b-41d4-a716-446655440000"),
		Filename:    "report.pdf",
		ContentType: "application/pdf",
		SizeBytes:   1024,
		PageCount:   ptr(2),
		StorageKey:  "uploads/2026/01/15/550e8400-e29b-41d4-a716-446655440000.pdf",
		UploadedBy:  "user-7",
		Status:      ledger.DocumentUploaded,
		UploadedAt:  time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC),
		UpdatedAt:   time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC),
	}
}

func TestHandlerList(t *testing.T) {
	doc := sampleDoc()
	var captured documents.Filters
	sys := &mockSystem{
		listFn: func(_ context.Context, _ pagination.PageRequest, f documents.Filters) (*pagination.PageResult[documents.Document], error) {
			captured = f
			result := pagination.NewPageResult([]documents.Document{doc}, 1, 1, 20)
			return &result, nil
		},
	}
	mux := setupMux(sys, 10<<20)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/documents?status=parsed&uploaded_by=user-7", nil)
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var result pagination.PageResult[documents.Document]
	if err := json.NewDecoder(rec.Body).Decode(&result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if result.Total != 1 || len(result.Data) != 1 {
		t.Fatalf("result = %+v, want one document", result)
	}
	if captured.Status == nil || *captured.Status != "parsed" {
		t.Errorf("status filter = %v, want parsed", captured.Status)
	}
	if captured.UploadedBy == nil || *captured.UploadedBy != "user-7" {
		t.Errorf("uploaded_by filter = %v, want user-7", captured.UploadedBy)
	}
}

func TestHandlerFind(t *testing.T) {
	doc := sampleDoc()

	t.Run("returns document by id", func(t *testing.T) {
		sys := &mockSystem{
			findFn: func(_ context.Context, id uuid.UUID) (*documents.Document, error) {
				if id != doc.ID {
					return nil, documents.ErrNotFound
				}
				return &doc, nil
			},
		}

		rec := httptest.NewRecorder()
		setupMux(sys, 10<<20).ServeHTTP(rec, httptest.NewRequest("GET", "/documents/"+doc.ID.String(), nil))

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		var got documents.Document
		if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if got.ID != doc.ID {
			t.Errorf("id = %v, want %v", got.ID, doc.ID)
		}
	})

	t.Run("invalid uuid returns 400", func(t *testing.T) {
		rec := httptest.NewRecorder()
		setupMux(&mockSystem{}, 10<<20).ServeHTTP(rec, httptest.NewRequest("GET", "/documents/not-a-uuid", nil))

		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})

	t.Run("not found returns 404", func(t *testing.T) {
		sys := &mockSystem{
			findFn: func(_ context.Context, _ uuid.UUID) (*documents.Document, error) {
				return nil, documents.ErrNotFound
			},
		}

		rec := httptest.NewRecorder()
		setupMux(sys, 10<<20).ServeHTTP(rec, httptest.NewRequest("GET", "/documents/"+uuid.New().String(), nil))

		if rec.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", rec.Code)
		}
	})
}

func TestHandlerStatus(t *testing.T) {
	doc := sampleDoc()
	sys := &mockSystem{
		statusFn: func(_ context.Context, id uuid.UUID) (*documents.StatusView, error) {
			return &documents.StatusView{
				Document: &doc,
				History: []ledger.Entry{
					{ID: "01HZX3V1K3", DocumentID: id, ServiceName: ledger.ServiceIngestion, Status: "completed"},
				},
			}, nil
		},
	}

	rec := httptest.NewRecorder()
	setupMux(sys, 10<<20).ServeHTTP(rec, httptest.NewRequest("GET", "/documents/"+doc.ID.String()+"/status", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"processing_statuses"`) {
		t.Errorf("body = %s, want processing_statuses", rec.Body.String())
	}
}

func TestHandlerUpload(t *testing.T) {
	doc := sampleDoc()

	t.Run("creates document from multipart form", func(t *testing.T) {
		var captured documents.CreateCommand
		sys := &mockSystem{
			createFn: func(_ context.Context, cmd documents.CreateCommand) (*documents.Document, error) {
				captured = cmd
				return &doc, nil
			},
		}

		body, contentType := createMultipartForm(t, "report.txt", []byte("BI-RADS 2"))

		rec := httptest.NewRecorder()
		req := httptest.NewRequest("POST", "/documents/upload", body)
		req.Header.Set("Content-Type", contentType)
		setupMux(sys, 10<<20).ServeHTTP(rec, req)

		if rec.Code != http.StatusCreated {
			t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body.String())
		}
		if captured.Filename != "report.txt" {
			t.Errorf("filename = %q, want report.txt", captured.Filename)
		}
		if captured.UploadedBy != "user-7" {
			t.Errorf("uploaded_by = %q, want user-7", captured.UploadedBy)
		}
		if !strings.HasPrefix(captured.ContentType, "text/plain") {
			t.Errorf("content_type = %q, want text/plain", captured.ContentType)
		}
		if captured.PageCount != nil {
			t.Errorf("page_count = %v, want nil for text", *captured.PageCount)
		}
	})

	t.Run("unsupported extension returns 400", func(t *testing.T) {
		body, contentType := createMultipartForm(t, "payload.exe", []byte("MZ"))

		rec := httptest.NewRecorder()
		req := httptest.NewRequest("POST", "/documents/upload", body)
		req.Header.Set("Content-Type", contentType)
		setupMux(&mockSystem{}, 10<<20).ServeHTTP(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})

	t.Run("oversized file returns 413", func(t *testing.T) {
		body, contentType := createMultipartForm(t, "report.txt", bytes.Repeat([]byte("a"), 2048))

		rec := httptest.NewRecorder()
		req := httptest.NewRequest("POST", "/documents/upload", body)
		req.Header.Set("Content-Type", contentType)
		setupMux(&mockSystem{}, 1024).ServeHTTP(rec, req)

		if rec.Code != http.StatusRequestEntityTooLarge {
			t.Errorf("status = %d, want 413", rec.Code)
		}
	})

	t.Run("missing file returns 400", func(t *testing.T) {
		var buf bytes.Buffer
		writer := multipart.NewWriter(&buf)
		writer.WriteField("note", "no file")
		writer.Close()

		rec := httptest.NewRecorder()
		req := httptest.NewRequest("POST", "/documents/upload", &buf)
		req.Header.Set("Content-Type", writer.FormDataContentType())
		setupMux(&mockSystem{}, 10<<20).ServeHTTP(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})
}

func TestHandlerReprocess(t *testing.T) {
	doc := sampleDoc()
	var captured uuid.UUID
	sys := &mockSystem{
		reprocessFn: func(_ context.Context, id uuid.UUID) (*documents.Document, error) {
			captured = id
			return &doc, nil
		},
	}

	rec := httptest.NewRecorder()
	setupMux(sys, 10<<20).ServeHTTP(rec, httptest.NewRequest("POST", "/documents/"+doc.ID.String()+"/reprocess", nil))

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rec.Code)
	}
	if captured != doc.ID {
		t.Errorf("id = %v, want %v", captured, doc.ID)
	}
}

func TestHandlerDelete(t *testing.T) {
	docID := uuid.MustParse("550e8400-e29b-41d4-a716-446655440000")

	t.Run("deletes document", func(t *testing.T) {
		var captured uuid.UUID
		sys := &mockSystem{
			deleteFn: func(_ context.Context, id uuid.UUID) error {
				captured = id
				return nil
			},
		}

		rec := httptest.NewRecorder()
		setupMux(sys, 10<<20).ServeHTTP(rec, httptest.NewRequest("DELETE", "/documents/"+docID.String(), nil))

		if rec.Code != http.StatusNoContent {
			t.Fatalf("status = %d, want 204", rec.Code)
		}
		if captured != docID {
			t.Errorf("id = %v, want %v", captured, docID)
		}
	})

	t.Run("not found returns 404", func(t *testing.T) {
		sys := &mockSystem{
			deleteFn: func(_ context.Context, _ uuid.UUID) error {
				return documents.ErrNotFound
			},
		}

		rec := httptest.NewRecorder()
		setupMux(sys, 10<<20).ServeHTTP(rec, httptest.NewRequest("DELETE", "/documents/"+docID.String(), nil))

		if rec.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", rec.Code)
		}
	})
}

func TestHandlerInternalStatus(t *testing.T) {
	docID := uuid.New()

	t.Run("records processing status", func(t *testing.T) {
		var captured documents.StatusUpdate
		sys := &mockSystem{
			recordFn: func(_ context.Context, u documents.StatusUpdate) error {
				captured = u
				return nil
			},
		}

		body := `{"document_id":"` + docID.String() + `","service_name":"document_parsing","status":"failed","error_message":"bad pdf"}`
		rec := httptest.NewRecorder()
		setupMux(sys, 10<<20).ServeHTTP(rec, httptest.NewRequest("POST", "/documents/update-status-internal", strings.NewReader(body)))

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		if captured.ServiceName != ledger.ServiceParsing || captured.Status != "failed" {
			t.Errorf("update = %+v", captured)
		}
		if captured.ErrorMessage == nil || *captured.ErrorMessage != "bad pdf" {
			t.Errorf("error_message = %v, want bad pdf", captured.ErrorMessage)
		}
	})

	t.Run("invalid status returns 400", func(t *testing.T) {
		sys := &mockSystem{
			setFn: func(_ context.Context, _ uuid.UUID, _ documents.DocumentStatusUpdate) error {
				return ledger.ErrInvalidStatus
			},
		}

		rec := httptest.NewRecorder()
		req := httptest.NewRequest("PATCH", "/documents/"+docID.String()+"/status-internal", strings.NewReader(`{"status":"archived"}`))
		setupMux(sys, 10<<20).ServeHTTP(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})

	t.Run("sets document status", func(t *testing.T) {
		var captured documents.DocumentStatusUpdate
		sys := &mockSystem{
			setFn: func(_ context.Context, _ uuid.UUID, u documents.DocumentStatusUpdate) error {
				captured = u
				return nil
			},
		}

		rec := httptest.NewRecorder()
		req := httptest.NewRequest("PATCH", "/documents/"+docID.String()+"/status-internal", strings.NewReader(`{"status":"structured"}`))
		setupMux(sys, 10<<20).ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		if captured.Status != ledger.DocumentStructured {
			t.Errorf("status = %q, want structured", captured.Status)
		}
	})
}

func createMultipartForm(t *testing.T, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	part.Write(content)

	writer.Close()
	return &buf, writer.FormDataContentType()
}
