package ledger

import (
	"context"
	"crypto/rand"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"github.com/JaimeStill/aura/internal/stage"
	"github.com/JaimeStill/aura/pkg/repository"
)

type repo struct {
	db     *sql.DB
	logger *slog.Logger

	mu      sync.Mutex
	entropy io.Reader
}

// New creates a PostgreSQL-backed ledger.
func New(db *sql.DB, logger *slog.Logger) System {
	return &repo{
		db:      db,
		logger:  logger.With("system", "ledger"),
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
}

func (r *repo) newID(now time.Time) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(now), r.entropy).String()
}

func (r *repo) Record(
	ctx context.Context,
	documentID uuid.UUID,
	service Service,
	status stage.Status,
	errMsg string,
) (*Entry, error) {
	if !service.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidService, service)
	}
	if !validStatus(status) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}

	var msg *string
	if errMsg != "" {
		msg = &errMsg
	}

	q := `
		INSERT INTO processing_statuses (id, document_id, service_name, status, error_message)
		SELECT $1, d.id, $3, $4, $5 FROM documents d WHERE d.id = $2
		RETURNING id, document_id, service_name, status, error_message, created_at`

	args := []any{r.newID(time.Now()), documentID, string(service), string(status), msg}

	e, err := repository.WithTx(ctx, r.db, func(tx *sql.Tx) (Entry, error) {
		return repository.QueryOne(ctx, tx, q, args, scanEntry)
	})
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, err)
	}

	r.logger.Info("status recorded",
		"document_id", documentID,
		"service", service,
		"status", status,
	)
	return &e, nil
}

func (r *repo) SetDocumentStatus(ctx context.Context, documentID uuid.UUID, status DocumentStatus) error {
	if !status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}

	err := repository.ExecExpectOne(
		ctx, r.db,
		"UPDATE documents SET status = $2, updated_at = NOW() WHERE id = $1",
		documentID, string(status),
	)
	if err != nil {
		return repository.MapError(err, ErrNotFound, err)
	}

	r.logger.Info("document status set", "document_id", documentID, "status", status)
	return nil
}

func (r *repo) History(ctx context.Context, documentID uuid.UUID) ([]Entry, error) {
	q := `
		SELECT id, document_id, service_name, status, error_message, created_at
		FROM processing_statuses
		WHERE document_id = $1
		ORDER BY id`

	entries, err := repository.QueryMany(ctx, r.db, q, []any{documentID}, scanEntry)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	return entries, nil
}

func scanEntry(s repository.Scanner) (Entry, error) {
	var (
		e       Entry
		service string
		status  string
	)
	err := s.Scan(&e.ID, &e.DocumentID, &service, &status, &e.ErrorMessage, &e.CreatedAt)
	e.ServiceName = Service(service)
	e.Status = stage.Status(status)
	return e, err
}
