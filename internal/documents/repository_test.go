package documents_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"

	"github.com/JaimeStill/aura/internal/documents"
	"github.com/JaimeStill/aura/internal/ledger"
	"github.com/JaimeStill/aura/internal/pipeline"
	"github.com/JaimeStill/aura/internal/stage"
	"github.com/JaimeStill/aura/pkg/lifecycle"
	"github.com/JaimeStill/aura/pkg/pagination"
	"github.com/JaimeStill/aura/pkg/storage"
)

var documentColumns = []string{
	"id", "filename", "content_type", "size_bytes", "page_count",
	"storage_key", "uploaded_by", "status", "uploaded_at", "updated_at",
}

type memoryStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
	deleted []string
}

func (s *memoryStorage) Start(*lifecycle.Coordinator) error { return nil }

func (s *memoryStorage) Upload(_ context.Context, key string, r io.Reader, _ string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.objects == nil {
		s.objects = make(map[string][]byte)
	}
	s.objects[key] = data
	return nil
}

func (s *memoryStorage) Download(_ context.Context, key string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *memoryStorage) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted = append(s.deleted, key)
	delete(s.objects, key)
	return nil
}

func (s *memoryStorage) Exists(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[key]
	return ok, nil
}

type fakeLedger struct {
	recorded []ledger.Entry
	statuses map[uuid.UUID]ledger.DocumentStatus
	missing  bool
}

func (l *fakeLedger) Record(_ context.Context, id uuid.UUID, svc ledger.Service, st stage.Status, _ string) (*ledger.Entry, error) {
	e := ledger.Entry{DocumentID: id, ServiceName: svc, Status: st}
	l.recorded = append(l.recorded, e)
	return &e, nil
}

func (l *fakeLedger) SetDocumentStatus(_ context.Context, id uuid.UUID, st ledger.DocumentStatus) error {
	if l.missing {
		return ledger.ErrNotFound
	}
	if l.statuses == nil {
		l.statuses = make(map[uuid.UUID]ledger.DocumentStatus)
	}
	l.statuses[id] = st
	return nil
}

func (l *fakeLedger) History(context.Context, uuid.UUID) ([]ledger.Entry, error) {
	return l.recorded, nil
}

type notification struct {
	next    pipeline.Stage
	payload any
}

type fakeNotifier struct {
	sent []notification
}

func (n *fakeNotifier) Notify(_ context.Context, next pipeline.Stage, _ uuid.UUID, payload any) {
	n.sent = append(n.sent, notification{next: next, payload: payload})
}

type fakePurger struct {
	purged []uuid.UUID
	err    error
}

func (p *fakePurger) Purge(_ context.Context, id uuid.UUID) error {
	p.purged = append(p.purged, id)
	return p.err
}

type fixture struct {
	mock     sqlmock.Sqlmock
	storage  *memoryStorage
	ledger   *fakeLedger
	notifier *fakeNotifier
	purger   *fakePurger
	sys      documents.System
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	f := &fixture{
		mock:     mock,
		storage:  &memoryStorage{},
		ledger:   &fakeLedger{},
		notifier: &fakeNotifier{},
		purger:   &fakePurger{},
	}
	f.sys = documents.New(
		db, f.storage, f.ledger, f.notifier, f.purger,
		slog.New(slog.NewTextHandler(io.Discard, nil)),
		pagination.Config{DefaultPageSize: 20, MaxPageSize: 100},
	)
	return f
}

func documentRow(id uuid.UUID, key string) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(documentColumns).AddRow(
		id.String(), "report.txt", "text/plain", int64(9), nil,
		key, "user-7", "uploaded", now, now,
	)
}

func TestCreateStartsPipeline(t *testing.T) {
	f := newFixture(t)
	id := uuid.New()

	f.mock.ExpectQuery(`INSERT INTO documents \(id, filename, .*, status\) VALUES \(\$1, .*\$8\) RETURNING id, .*, updated_at`).
		WithArgs(sqlmock.AnyArg(), "report.txt", "text/plain", int64(9), sqlmock.AnyArg(), sqlmock.AnyArg(), "user-7", "uploaded").
		WillReturnRows(documentRow(id, "uploads/2026/01/15/"+id.String()+".txt"))

	doc, err := f.sys.Create(context.Background(), documents.CreateCommand{
		Data:        []byte("BI-RADS 2"),
		Filename:    "report.txt",
		ContentType: "text/plain",
		UploadedBy:  "user-7",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if doc.Status != ledger.DocumentUploaded {
		t.Errorf("status = %q, want uploaded", doc.Status)
	}

	if len(f.storage.objects) != 1 {
		t.Fatalf("stored objects = %d, want 1", len(f.storage.objects))
	}
	for key := range f.storage.objects {
		pattern := regexp.MustCompile(`^uploads/\d{4}/\d{2}/\d{2}/[0-9a-f-]{36}\.txt$`)
		if !pattern.MatchString(key) {
			t.Errorf("storage key = %q, want uploads/YYYY/MM/DD/<uuid>.txt", key)
		}
	}

	if len(f.ledger.recorded) != 1 || f.ledger.recorded[0].ServiceName != ledger.ServiceIngestion ||
		f.ledger.recorded[0].Status != stage.StatusCompleted {
		t.Errorf("ledger = %+v, want ingestion completed", f.ledger.recorded)
	}

	if len(f.notifier.sent) != 1 {
		t.Fatalf("notifications = %d, want 1", len(f.notifier.sent))
	}
	n := f.notifier.sent[0]
	req, ok := n.payload.(pipeline.ParseRequest)
	if n.next != pipeline.Parsing || !ok {
		t.Fatalf("notification = %+v, want ParseRequest to parsing", n)
	}
	if req.DocumentID != id || req.Filename != "report.txt" || !strings.HasPrefix(req.FilePath, "uploads/") {
		t.Errorf("payload = %+v", req)
	}

	if err := f.mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestCreateRemovesBlobOnInsertFailure(t *testing.T) {
	f := newFixture(t)

	f.mock.ExpectQuery(`INSERT INTO documents`).WillReturnError(errors.New("connection reset"))

	_, err := f.sys.Create(context.Background(), documents.CreateCommand{
		Data:     []byte("x"),
		Filename: "report.txt",
	})
	if err == nil {
		t.Fatal("Create succeeded, want error")
	}
	if len(f.storage.objects) != 0 || len(f.storage.deleted) != 1 {
		t.Errorf("storage = %+v, want compensating delete", f.storage)
	}
	if len(f.notifier.sent) != 0 {
		t.Errorf("notifications = %d, want none", len(f.notifier.sent))
	}
}

func TestDeleteCascades(t *testing.T) {
	f := newFixture(t)
	id := uuid.New()
	key := "uploads/2026/01/15/" + id.String() + ".txt"
	f.storage.objects = map[string][]byte{key: []byte("x")}
	f.purger.err = errors.New("structuring unreachable")

	f.mock.ExpectQuery(`SELECT .* FROM "public"."documents" AS "d" WHERE \("d"."id" = \$1\)`).
		WithArgs(id).
		WillReturnRows(documentRow(id, key))
	f.mock.ExpectExec(`DELETE FROM documents WHERE id = \$1`).
		WithArgs(id).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := f.sys.Delete(context.Background(), id); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	if len(f.purger.purged) != 1 || f.purger.purged[0] != id {
		t.Errorf("purged = %v, want [%s]", f.purger.purged, id)
	}
	if len(f.storage.deleted) != 1 || f.storage.deleted[0] != key {
		t.Errorf("deleted blobs = %v, want [%s]", f.storage.deleted, key)
	}
	if err := f.mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestDeleteNotFound(t *testing.T) {
	f := newFixture(t)

	f.mock.ExpectQuery(`SELECT .* FROM "public"."documents" AS "d"`).
		WillReturnRows(sqlmock.NewRows(documentColumns))

	err := f.sys.Delete(context.Background(), uuid.New())
	if !errors.Is(err, documents.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
	if len(f.purger.purged) != 0 {
		t.Errorf("purged = %v, want none", f.purger.purged)
	}
}

func TestReprocessRestartsPipeline(t *testing.T) {
	f := newFixture(t)
	id := uuid.New()

	f.mock.ExpectQuery(`SELECT .* FROM "public"."documents" AS "d" WHERE \("d"."id" = \$1\)`).
		WithArgs(id).
		WillReturnRows(documentRow(id, "uploads/2026/01/15/"+id.String()+".txt"))

	doc, err := f.sys.Reprocess(context.Background(), id)
	if err != nil {
		t.Fatalf("Reprocess: %v", err)
	}
	if doc.ID != id {
		t.Errorf("id = %v, want %v", doc.ID, id)
	}
	if f.ledger.statuses[id] != ledger.DocumentUploaded {
		t.Errorf("status = %q, want uploaded", f.ledger.statuses[id])
	}
	if len(f.notifier.sent) != 1 || f.notifier.sent[0].next != pipeline.Parsing {
		t.Errorf("notifications = %+v, want one to parsing", f.notifier.sent)
	}
}

func TestReprocessMissing(t *testing.T) {
	f := newFixture(t)
	f.ledger.missing = true

	_, err := f.sys.Reprocess(context.Background(), uuid.New())
	if !errors.Is(err, documents.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestRecordStatusRejectsNilDocument(t *testing.T) {
	f := newFixture(t)

	err := f.sys.RecordStatus(context.Background(), documents.StatusUpdate{
		ServiceName: ledger.ServiceParsing,
		Status:      "completed",
	})
	if !errors.Is(err, documents.ErrInvalidID) {
		t.Errorf("err = %v, want ErrInvalidID", err)
	}
}
