// Package stage implements the per-stage orchestration shared by every
// pipeline step: input validation, an idempotent result row per document,
// progress tracking, upstream status reporting, and handoff to the next stage.
package stage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a stage result.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Active reports whether the status is still awaiting a terminal write.
func (s Status) Active() bool {
	return s == StatusPending || s == StatusProcessing
}

// Result is the single current result of a stage for one document.
// Output is populated only when Status is completed.
type Result[T any] struct {
	ID             uuid.UUID `json:"id"`
	DocumentID     uuid.UUID `json:"document_id"`
	Status         Status    `json:"status"`
	Progress       int       `json:"progress"`
	Output         *T        `json:"output,omitempty"`
	ErrorMessage   *string   `json:"error_message,omitempty"`
	ProcessingTime *float64  `json:"processing_time,omitempty"`
	Degraded       bool      `json:"degraded"`
	Stale          bool      `json:"stale,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Resolve applies the staleness rule: an active result that has not been
// touched within staleAfter is reported as failed. The stored row is unchanged.
func (r *Result[T]) Resolve(now time.Time, staleAfter time.Duration) *Result[T] {
	if !isStale(r.Status, r.UpdatedAt, now, staleAfter) {
		return r
	}
	resolved := *r
	resolved.Status = StatusFailed
	resolved.Stale = true
	msg := staleMessage(r.Status, r.UpdatedAt)
	resolved.ErrorMessage = &msg
	return &resolved
}

// Snapshot is the lightweight progress view of a stage result.
type Snapshot struct {
	DocumentID uuid.UUID `json:"document_id"`
	Status     Status    `json:"status"`
	Progress   int       `json:"progress"`
	UpdatedAt  time.Time `json:"updated_at"`
	Stale      bool      `json:"stale,omitempty"`
}

// Resolve applies the same staleness rule as Result.Resolve.
func (s *Snapshot) Resolve(now time.Time, staleAfter time.Duration) *Snapshot {
	if !isStale(s.Status, s.UpdatedAt, now, staleAfter) {
		return s
	}
	resolved := *s
	resolved.Status = StatusFailed
	resolved.Stale = true
	return &resolved
}

// Progress reports intermediate completion of a transformation, 0 to 100.
type Progress func(pct int)

// Work is the stage-specific half of an orchestrator.
type Work[In, Out any] interface {
	// Validate checks that in references retrievable, well-formed input.
	// Errors must wrap ErrValidation or ErrNotFound.
	Validate(ctx context.Context, in In) error
	// Transform produces the stage output for in.
	Transform(ctx context.Context, in In, progress Progress) (Out, error)
}

// Degrader is implemented by outputs that can be produced on a fallback path.
type Degrader interface {
	Degraded() bool
}

// StatusSink receives status transitions of a stage for a document.
// Implementations must not block on or fail because of unreachable peers.
type StatusSink interface {
	Report(ctx context.Context, documentID uuid.UUID, status Status, errMsg string)
}

// Handoff forwards a completed result to whatever runs next.
type Handoff[Out any] func(ctx context.Context, result *Result[Out])

func isStale(status Status, updated, now time.Time, staleAfter time.Duration) bool {
	return staleAfter > 0 && status.Active() && now.Sub(updated) > staleAfter
}

func staleMessage(status Status, updated time.Time) string {
	return fmt.Sprintf("stale: no progress while %s since %s", status, updated.UTC().Format(time.RFC3339))
}

func degraded(out any) bool {
	if d, ok := out.(Degrader); ok {
		return d.Degraded()
	}
	return false
}
