package prediction

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/JaimeStill/aura/pkg/repository"
)

var (
	ErrReviewNotFound = errors.New("review not found")
	ErrInvalidReview  = errors.New("invalid review")
)

// ReviewStatus is the coordinator's decision on a prediction.
type ReviewStatus string

const (
	ReviewPending  ReviewStatus = "pending"
	ReviewApproved ReviewStatus = "approved"
	ReviewRejected ReviewStatus = "rejected"
	ReviewModified ReviewStatus = "modified"
)

// Valid reports whether s is a known review status.
func (s ReviewStatus) Valid() bool {
	switch s {
	case ReviewPending, ReviewApproved, ReviewRejected, ReviewModified:
		return true
	}
	return false
}

// Review overlays a coordinator decision on the prediction for a document.
// It is keyed by document and survives prediction reruns.
type Review struct {
	DocumentID    uuid.UUID    `json:"document_id"`
	ReviewStatus  ReviewStatus `json:"review_status"`
	ReviewedBy    string       `json:"reviewed_by"`
	ReviewerNotes *string      `json:"reviewer_notes,omitempty"`
	ReviewedAt    time.Time    `json:"reviewed_at"`
}

// ReviewCommand is the body of the review route.
type ReviewCommand struct {
	ReviewStatus  ReviewStatus `json:"review_status"`
	ReviewerNotes *string      `json:"reviewer_notes,omitempty"`
}

// Reviews stores review overlays.
type Reviews interface {
	// Find returns the review for documentID or ErrReviewNotFound.
	Find(ctx context.Context, documentID uuid.UUID) (*Review, error)
	// Set records a review. It returns ErrReviewNotFound when no prediction
	// exists for documentID.
	Set(ctx context.Context, documentID uuid.UUID, reviewer string, cmd ReviewCommand) (*Review, error)
	// Delete removes the review for documentID, if any.
	Delete(ctx context.Context, documentID uuid.UUID) error
}

type reviewRepo struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewReviews creates a PostgreSQL-backed review store.
func NewReviews(db *sql.DB, logger *slog.Logger) Reviews {
	return &reviewRepo{db: db, logger: logger.With("component", "reviews")}
}

const reviewColumns = `document_id, review_status, reviewed_by, reviewer_notes, reviewed_at`

func (r *reviewRepo) Find(ctx context.Context, documentID uuid.UUID) (*Review, error) {
	q := `SELECT ` + reviewColumns + ` FROM prediction_reviews WHERE document_id = $1`
	rv, err := repository.QueryOne(ctx, r.db, q, []any{documentID}, scanReview)
	if err != nil {
		return nil, repository.MapError(err, ErrReviewNotFound, err)
	}
	return &rv, nil
}

func (r *reviewRepo) Set(ctx context.Context, documentID uuid.UUID, reviewer string, cmd ReviewCommand) (*Review, error) {
	if !cmd.ReviewStatus.Valid() {
		return nil, fmt.Errorf("%w: unknown review_status %q", ErrInvalidReview, cmd.ReviewStatus)
	}
	if reviewer == "" {
		return nil, fmt.Errorf("%w: reviewer is required", ErrInvalidReview)
	}

	q := `
		INSERT INTO prediction_reviews (` + reviewColumns + `)
		SELECT p.document_id, $2, $3, $4, NOW() FROM prediction_results p WHERE p.document_id = $1
		ON CONFLICT (document_id) DO UPDATE SET
			review_status = EXCLUDED.review_status,
			reviewed_by = EXCLUDED.reviewed_by,
			reviewer_notes = EXCLUDED.reviewer_notes,
			reviewed_at = EXCLUDED.reviewed_at
		RETURNING ` + reviewColumns

	args := []any{documentID, string(cmd.ReviewStatus), reviewer, cmd.ReviewerNotes}

	rv, err := repository.WithTx(ctx, r.db, func(tx *sql.Tx) (Review, error) {
		return repository.QueryOne(ctx, tx, q, args, scanReview)
	})
	if err != nil {
		return nil, repository.MapError(err, ErrReviewNotFound, err)
	}

	r.logger.Info("prediction reviewed",
		"document_id", documentID,
		"review_status", rv.ReviewStatus,
		"reviewed_by", reviewer,
	)
	return &rv, nil
}

func (r *reviewRepo) Delete(ctx context.Context, documentID uuid.UUID) error {
	_, err := repository.Exec(ctx, r.db, `DELETE FROM prediction_reviews WHERE document_id = $1`, documentID)
	return err
}

func scanReview(s repository.Scanner) (Review, error) {
	var rv Review
	var status string
	err := s.Scan(&rv.DocumentID, &status, &rv.ReviewedBy, &rv.ReviewerNotes, &rv.ReviewedAt)
	rv.ReviewStatus = ReviewStatus(status)
	return rv, err
}

// MapHTTPStatus maps review errors to HTTP status codes.
func MapHTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrReviewNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidReview):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
