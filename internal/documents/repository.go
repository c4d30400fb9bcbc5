package documents

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/JaimeStill/aura/internal/ledger"
	"github.com/JaimeStill/aura/internal/pipeline"
	"github.com/JaimeStill/aura/internal/stage"
	"github.com/JaimeStill/aura/pkg/pagination"
	"github.com/JaimeStill/aura/pkg/query"
	"github.com/JaimeStill/aura/pkg/repository"
	"github.com/JaimeStill/aura/pkg/storage"
)

type repo struct {
	db         *sql.DB
	storage    storage.System
	ledger     ledger.System
	notifier   pipeline.Notifier
	purger     Purger
	logger     *slog.Logger
	pagination pagination.Config
	now        func() time.Time
}

// New creates a document repository implementing the System interface.
func New(
	db *sql.DB,
	store storage.System,
	ledgerSys ledger.System,
	notifier pipeline.Notifier,
	purger Purger,
	logger *slog.Logger,
	pagination pagination.Config,
) System {
	return &repo{
		db:         db,
		storage:    store,
		ledger:     ledgerSys,
		notifier:   notifier,
		purger:     purger,
		logger:     logger.With("system", "documents"),
		pagination: pagination,
		now:        time.Now,
	}
}

func (r *repo) Handler(maxUploadSize int64) *Handler {
	return NewHandler(r, r.logger, r.pagination, maxUploadSize)
}

func (r *repo) List(ctx context.Context, page pagination.PageRequest, filters Filters) (*pagination.PageResult[Document], error) {
	page.Normalize(r.pagination)

	qb := filters.Apply(query.NewBuilder(projection, defaultSort).
		WhereSearch(page.Search, "Filename", "UploadedBy"))
	if len(page.Sort) > 0 {
		qb.OrderByFields(page.Sort)
	}

	var total int
	if q, args, err := qb.BuildCount(); err != nil {
		return nil, fmt.Errorf("build count: %w", err)
	} else if err := r.db.QueryRowContext(ctx, q, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count documents: %w", err)
	}

	docs := []Document{}
	if total > page.Offset() {
		q, args, err := qb.BuildPage(page.Page, page.PageSize)
		if err != nil {
			return nil, fmt.Errorf("build page: %w", err)
		}
		if docs, err = repository.QueryMany(ctx, r.db, q, args, scanDocument); err != nil {
			return nil, fmt.Errorf("query documents: %w", err)
		}
	}

	result := pagination.NewPageResult(docs, total, page.Page, page.PageSize)
	return &result, nil
}

func (r *repo) Find(ctx context.Context, id uuid.UUID) (*Document, error) {
	q, args, err := query.NewBuilder(projection).BuildSingle("ID", id)
	if err != nil {
		return nil, err
	}

	d, err := repository.QueryOne(ctx, r.db, q, args, scanDocument)
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}
	return &d, nil
}

func (r *repo) Status(ctx context.Context, id uuid.UUID) (*StatusView, error) {
	doc, err := r.Find(ctx, id)
	if err != nil {
		return nil, err
	}

	history, err := r.ledger.History(ctx, id)
	if err != nil {
		return nil, err
	}

	return &StatusView{Document: doc, History: history}, nil
}

// insertDocument builds the INSERT for a new upload. The first eight
// projected columns are written; every projected column is returned.
func insertDocument(id uuid.UUID, key string, cmd CreateCommand) (string, []any) {
	names := make([]string, len(documentColumns))
	for i, c := range documentColumns {
		names[i] = c[0]
	}

	args := []any{
		id,
		cmd.Filename,
		cmd.ContentType,
		int64(len(cmd.Data)),
		cmd.PageCount,
		key,
		cmd.UploadedBy,
		string(ledger.DocumentUploaded),
	}
	marks := make([]string, len(args))
	for i := range args {
		marks[i] = "$" + strconv.Itoa(i+1)
	}

	q := fmt.Sprintf("INSERT INTO documents (%s) VALUES (%s) RETURNING %s",
		strings.Join(names[:len(args)], ", "),
		strings.Join(marks, ", "),
		strings.Join(names, ", "),
	)
	return q, args
}

// Create stores the blob first and removes it again if the row cannot be
// written.
func (r *repo) Create(ctx context.Context, cmd CreateCommand) (*Document, error) {
	id := uuid.New()
	key := buildStorageKey(r.now(), id, cmd.Filename)

	q, args := insertDocument(id, key, cmd)
	if err := r.storage.Upload(ctx, key, bytes.NewReader(cmd.Data), cmd.ContentType); err != nil {
		return nil, fmt.Errorf("upload document blob: %w", err)
	}

	d, err := repository.QueryOne(ctx, r.db, q, args, scanDocument)
	if err != nil {
		if delErr := r.storage.Delete(ctx, key); delErr != nil {
			r.logger.Warn("orphaned blob", "key", key, "error", delErr)
		}
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}

	r.logger.Info("document created", "id", d.ID, "filename", d.Filename, "uploaded_by", d.UploadedBy)
	r.start(ctx, &d)
	return &d, nil
}

func (r *repo) Reprocess(ctx context.Context, id uuid.UUID) (*Document, error) {
	if err := r.ledger.SetDocumentStatus(ctx, id, ledger.DocumentUploaded); err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	doc, err := r.Find(ctx, id)
	if err != nil {
		return nil, err
	}

	r.logger.Info("document reprocessing", "id", id)
	r.start(ctx, doc)
	return doc, nil
}

// start records ingestion as complete and hands the document to parsing.
func (r *repo) start(ctx context.Context, d *Document) {
	if _, err := r.ledger.Record(ctx, d.ID, ledger.ServiceIngestion, stage.StatusCompleted, ""); err != nil {
		r.logger.Warn("record ingestion status failed", "id", d.ID, "error", err)
	}

	r.notifier.Notify(ctx, pipeline.Parsing, d.ID, pipeline.ParseRequest{
		DocumentID: d.ID,
		FilePath:   d.StorageKey,
		Filename:   d.Filename,
	})
}

// Delete purges downstream results, removes the row and then the blob. Purge
// and blob failures are logged; only the row delete is fatal.
func (r *repo) Delete(ctx context.Context, id uuid.UUID) error {
	doc, err := r.Find(ctx, id)
	if err != nil {
		return err
	}

	if err := r.purger.Purge(ctx, id); err != nil {
		r.logger.Warn("downstream cleanup incomplete", "id", id, "error", err)
	}

	if err := repository.ExecExpectOne(ctx, r.db, "DELETE FROM documents WHERE id = $1", id); err != nil {
		return repository.MapError(err, ErrNotFound, ErrDuplicate)
	}

	if err := r.storage.Delete(ctx, doc.StorageKey); err != nil && !errors.Is(err, storage.ErrNotFound) {
		r.logger.Warn("orphaned blob", "key", doc.StorageKey, "error", err)
	}

	r.logger.Info("document deleted", "id", id)
	return nil
}

func (r *repo) RecordStatus(ctx context.Context, update StatusUpdate) error {
	if update.DocumentID == uuid.Nil {
		return ErrInvalidID
	}

	var msg string
	if update.ErrorMessage != nil {
		msg = *update.ErrorMessage
	}

	_, err := r.ledger.Record(ctx, update.DocumentID, update.ServiceName, stage.Status(update.Status), msg)
	return err
}

func (r *repo) SetStatus(ctx context.Context, id uuid.UUID, update DocumentStatusUpdate) error {
	return r.ledger.SetDocumentStatus(ctx, id, update.Status)
}
