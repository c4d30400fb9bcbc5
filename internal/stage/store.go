package stage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/JaimeStill/aura/pkg/query"
	"github.com/JaimeStill/aura/pkg/repository"
)

// Store persists the single current result per document for one stage.
// Every write is an upsert keyed by document id.
type Store[T any] interface {
	// Accept records a pending result, clearing any previous outcome.
	Accept(ctx context.Context, documentID uuid.UUID) (*Result[T], error)
	// Begin moves the result to processing at progress 0, clearing any previous outcome.
	Begin(ctx context.Context, documentID uuid.UUID) (*Result[T], error)
	// Complete stores out and marks the result completed at progress 100.
	Complete(ctx context.Context, documentID uuid.UUID, out T, elapsed time.Duration, degraded bool) (*Result[T], error)
	// Fail marks the result failed with msg, keeping the progress reached.
	Fail(ctx context.Context, documentID uuid.UUID, msg string, elapsed time.Duration) (*Result[T], error)
	// Advance raises progress while processing. Lower or equal values are ignored.
	Advance(ctx context.Context, documentID uuid.UUID, pct int) error

	Find(ctx context.Context, id uuid.UUID) (*Result[T], error)
	FindByDocument(ctx context.Context, documentID uuid.UUID) (*Result[T], error)
	Snapshot(ctx context.Context, documentID uuid.UUID) (*Snapshot, error)
	// Delete removes the result for documentID and reports how many rows were removed.
	Delete(ctx context.Context, documentID uuid.UUID) (int64, error)
}

type pgStore[T any] struct {
	db         *sql.DB
	table      string
	projection *query.ProjectionMap
}

// NewStore creates a PostgreSQL Store over table. The table must carry the
// columns created by the stage result migrations.
func NewStore[T any](db *sql.DB, table string) Store[T] {
	return &pgStore[T]{
		db:    db,
		table: table,
		projection: query.
			NewProjectionMap("public", table, "r").
			Project("id", "ID").
			Project("document_id", "DocumentID").
			Project("status", "Status").
			Project("progress", "Progress").
			Project("output", "Output").
			Project("error_message", "ErrorMessage").
			Project("processing_time", "ProcessingTime").
			Project("degraded", "Degraded").
			Project("created_at", "CreatedAt").
			Project("updated_at", "UpdatedAt"),
	}
}

const returning = `RETURNING id, document_id, status, progress, output, error_message,
		processing_time, degraded, created_at, updated_at`

func (s *pgStore[T]) upsertSQL() string {
	return fmt.Sprintf(`
		INSERT INTO %[1]s AS r (id, document_id, status, progress, output, error_message, processing_time, degraded)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (document_id) DO UPDATE SET
			status = EXCLUDED.status,
			progress = CASE WHEN $9 THEN r.progress ELSE EXCLUDED.progress END,
			output = EXCLUDED.output,
			error_message = EXCLUDED.error_message,
			processing_time = EXCLUDED.processing_time,
			degraded = EXCLUDED.degraded,
			updated_at = NOW()
		%[2]s`, s.table, returning)
}

type write struct {
	status       Status
	progress     int
	output       []byte
	errorMessage *string
	elapsed      *float64
	degraded     bool
	keepProgress bool
}

func (s *pgStore[T]) upsert(ctx context.Context, documentID uuid.UUID, w write) (*Result[T], error) {
	args := []any{
		uuid.New(),
		documentID,
		string(w.status),
		w.progress,
		w.output,
		w.errorMessage,
		w.elapsed,
		w.degraded,
		w.keepProgress,
	}

	r, err := repository.WithTx(ctx, s.db, func(tx *sql.Tx) (Result[T], error) {
		return repository.QueryOne(ctx, tx, s.upsertSQL(), args, scanResult[T])
	})
	if err != nil {
		return nil, fmt.Errorf("upsert %s result: %w", s.table, err)
	}
	return &r, nil
}

func (s *pgStore[T]) Accept(ctx context.Context, documentID uuid.UUID) (*Result[T], error) {
	return s.upsert(ctx, documentID, write{status: StatusPending})
}

func (s *pgStore[T]) Begin(ctx context.Context, documentID uuid.UUID) (*Result[T], error) {
	return s.upsert(ctx, documentID, write{status: StatusProcessing})
}

func (s *pgStore[T]) Complete(ctx context.Context, documentID uuid.UUID, out T, elapsed time.Duration, degraded bool) (*Result[T], error) {
	data, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("marshal %s output: %w", s.table, err)
	}
	secs := elapsed.Seconds()
	return s.upsert(ctx, documentID, write{
		status:   StatusCompleted,
		progress: 100,
		output:   data,
		elapsed:  &secs,
		degraded: degraded,
	})
}

func (s *pgStore[T]) Fail(ctx context.Context, documentID uuid.UUID, msg string, elapsed time.Duration) (*Result[T], error) {
	secs := elapsed.Seconds()
	return s.upsert(ctx, documentID, write{
		status:       StatusFailed,
		errorMessage: &msg,
		elapsed:      &secs,
		keepProgress: true,
	})
}

func (s *pgStore[T]) Advance(ctx context.Context, documentID uuid.UUID, pct int) error {
	q := fmt.Sprintf(`
		UPDATE %s SET progress = $2, updated_at = NOW()
		WHERE document_id = $1 AND status = 'processing' AND progress < $2`, s.table)

	if _, err := repository.Exec(ctx, s.db, q, documentID, pct); err != nil {
		return fmt.Errorf("advance %s progress: %w", s.table, err)
	}
	return nil
}

func (s *pgStore[T]) Find(ctx context.Context, id uuid.UUID) (*Result[T], error) {
	return s.findBy(ctx, "ID", id)
}

func (s *pgStore[T]) FindByDocument(ctx context.Context, documentID uuid.UUID) (*Result[T], error) {
	return s.findBy(ctx, "DocumentID", documentID)
}

func (s *pgStore[T]) findBy(ctx context.Context, field string, id uuid.UUID) (*Result[T], error) {
	q, args, err := query.NewBuilder(s.projection).BuildSingle(field, id)
	if err != nil {
		return nil, err
	}

	r, err := repository.QueryOne(ctx, s.db, q, args, scanResult[T])
	if err != nil {
		return nil, mapError(err)
	}
	return &r, nil
}

func (s *pgStore[T]) Snapshot(ctx context.Context, documentID uuid.UUID) (*Snapshot, error) {
	q := fmt.Sprintf(
		"SELECT document_id, status, progress, updated_at FROM %s WHERE document_id = $1",
		s.table,
	)

	snap, err := repository.QueryOne(ctx, s.db, q, []any{documentID}, scanSnapshot)
	if err != nil {
		return nil, mapError(err)
	}
	return &snap, nil
}

func (s *pgStore[T]) Delete(ctx context.Context, documentID uuid.UUID) (int64, error) {
	q := fmt.Sprintf("DELETE FROM %s WHERE document_id = $1", s.table)

	n, err := repository.Exec(ctx, s.db, q, documentID)
	if err != nil {
		return 0, fmt.Errorf("delete %s result: %w", s.table, err)
	}
	return n, nil
}

func mapError(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func scanResult[T any](s repository.Scanner) (Result[T], error) {
	var (
		r      Result[T]
		status string
		output []byte
	)
	err := s.Scan(
		&r.ID,
		&r.DocumentID,
		&status,
		&r.Progress,
		&output,
		&r.ErrorMessage,
		&r.ProcessingTime,
		&r.Degraded,
		&r.CreatedAt,
		&r.UpdatedAt,
	)
	if err != nil {
		return r, err
	}
	r.Status = Status(status)

	if len(output) > 0 {
		var out T
		if err := json.Unmarshal(output, &out); err != nil {
			return r, fmt.Errorf("decode output: %w", err)
		}
		r.Output = &out
	}
	return r, nil
}

func scanSnapshot(s repository.Scanner) (Snapshot, error) {
	var (
		snap   Snapshot
		status string
	)
	err := s.Scan(&snap.DocumentID, &status, &snap.Progress, &snap.UpdatedAt)
	snap.Status = Status(status)
	return snap, err
}
