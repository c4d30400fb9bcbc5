package pipeline

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/JaimeStill/aura/internal/stage"
	"github.com/JaimeStill/aura/pkg/lifecycle"
	"github.com/JaimeStill/aura/pkg/storage"
)

// Host carries the collaborators every downstream stage is built from.
type Host struct {
	DB         *sql.DB
	Storage    storage.System
	Notifier   Notifier
	Reporter   *Reporter
	Lifecycle  *lifecycle.Coordinator
	Logger     *slog.Logger
	StaleAfter time.Duration
	Workers    int

	// Tracker, when set, replaces the result-row progress tracker.
	Tracker func(Stage) stage.Tracker
}

// Table returns the result table owned by s.
func (s Stage) Table() string {
	return string(s) + "_results"
}

// Mount builds the orchestrator for s over its result table and wraps it in
// the shared stage handler. timeout bounds one transformation. Status
// reporting and tracking come from h; opts add stage-specific hooks.
func Mount[In, Out any](
	h *Host,
	s Stage,
	work stage.Work[In, Out],
	timeout time.Duration,
	document func(In) uuid.UUID,
	schema string,
	opts ...stage.Option[Out],
) *stage.Handler[In, Out] {
	logger := h.Logger.With("system", string(s))

	var base []stage.Option[Out]
	if h.Reporter != nil {
		base = append(base, stage.WithStatus[Out](h.Reporter.For(s)))
	}
	if h.Tracker != nil {
		base = append(base, stage.WithTracker[Out](h.Tracker(s)))
	}

	orc := stage.New(
		stage.Config{
			Name:       string(s),
			Timeout:    timeout,
			StaleAfter: h.StaleAfter,
			Workers:    h.Workers,
		},
		work,
		stage.NewStore[Out](h.DB, s.Table()),
		h.Lifecycle,
		logger,
		append(base, opts...)...,
	)
	return stage.NewHandler(orc, logger, document, schema)
}

// RemoveArtifact returns a stage cleanup that deletes the stored artifact
// of a document. An artifact that was never written is not an error.
func RemoveArtifact(store storage.System, key func(uuid.UUID) string) func(context.Context, uuid.UUID) error {
	return func(ctx context.Context, documentID uuid.UUID) error {
		if err := store.Delete(ctx, key(documentID)); err != nil && !errors.Is(err, storage.ErrNotFound) {
			return err
		}
		return nil
	}
}
