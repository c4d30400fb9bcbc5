package stage

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	"github.com/JaimeStill/aura/pkg/lifecycle"
)

const instrumentation = "github.com/JaimeStill/aura/internal/stage"

// Config tunes an Orchestrator.
type Config struct {
	// Name identifies the stage in logs, spans, and metrics.
	Name string
	// Timeout bounds a single transformation. Zero disables the bound.
	Timeout time.Duration
	// StaleAfter is the age past which an active result reads as failed.
	StaleAfter time.Duration
	// Workers bounds concurrently running background transformations.
	Workers int
}

// Option configures optional Orchestrator collaborators.
type Option[Out any] func(*hooks[Out])

type hooks[Out any] struct {
	sink    StatusSink
	handoff Handoff[Out]
	tracker Tracker
	cleanup func(ctx context.Context, documentID uuid.UUID) error
}

// WithStatus reports every status transition to sink.
func WithStatus[Out any](sink StatusSink) Option[Out] {
	return func(h *hooks[Out]) { h.sink = sink }
}

// WithHandoff forwards completed results to fn.
func WithHandoff[Out any](fn Handoff[Out]) Option[Out] {
	return func(h *hooks[Out]) { h.handoff = fn }
}

// WithTracker replaces the default Store-backed progress tracker.
func WithTracker[Out any](tracker Tracker) Option[Out] {
	return func(h *hooks[Out]) { h.tracker = tracker }
}

// WithCleanup runs fn after the result for a document is deleted, for
// stage-owned data kept outside the result row.
func WithCleanup[Out any](fn func(ctx context.Context, documentID uuid.UUID) error) Option[Out] {
	return func(h *hooks[Out]) { h.cleanup = fn }
}

// Orchestrator runs a Work for documents and keeps exactly one Result per
// document in its Store.
type Orchestrator[In, Out any] struct {
	cfg    Config
	work   Work[In, Out]
	store  Store[Out]
	hooks  hooks[Out]
	lc     *lifecycle.Coordinator
	sem    *semaphore.Weighted
	logger *slog.Logger
	now    func() time.Time

	tracer   trace.Tracer
	results  metric.Int64Counter
	duration metric.Float64Histogram
}

// New creates an Orchestrator. Background work started through Start is
// owned by lc and drained on shutdown.
func New[In, Out any](
	cfg Config,
	work Work[In, Out],
	store Store[Out],
	lc *lifecycle.Coordinator,
	logger *slog.Logger,
	opts ...Option[Out],
) *Orchestrator[In, Out] {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}

	h := hooks[Out]{}
	for _, opt := range opts {
		opt(&h)
	}
	if h.tracker == nil {
		h.tracker = NewStoreTracker(store)
	}

	meter := otel.Meter(instrumentation)
	results, _ := meter.Int64Counter(
		"aura.stage.results",
		metric.WithDescription("Stage results by terminal status"),
	)
	duration, _ := meter.Float64Histogram(
		"aura.stage.duration",
		metric.WithDescription("Stage transformation duration"),
		metric.WithUnit("s"),
	)

	return &Orchestrator[In, Out]{
		cfg:      cfg,
		work:     work,
		store:    store,
		hooks:    h,
		lc:       lc,
		sem:      semaphore.NewWeighted(int64(cfg.Workers)),
		logger:   logger.With("stage", cfg.Name),
		now:      time.Now,
		tracer:   otel.Tracer(instrumentation),
		results:  results,
		duration: duration,
	}
}

// Name returns the configured stage name.
func (o *Orchestrator[In, Out]) Name() string {
	return o.cfg.Name
}

// Submit validates in and processes it synchronously. A failed transformation
// is recorded and returned as a failed Result with a nil error; errors are
// returned only for invalid input or when the result cannot be persisted.
func (o *Orchestrator[In, Out]) Submit(ctx context.Context, documentID uuid.UUID, in In) (*Result[Out], error) {
	if err := o.work.Validate(ctx, in); err != nil {
		return nil, err
	}
	return o.run(ctx, documentID, in)
}

// Start validates in, records a pending result, and processes it on the
// worker pool. It returns the pending result without waiting. Work accepted
// before shutdown still runs; lifecycle shutdown waits for it.
func (o *Orchestrator[In, Out]) Start(ctx context.Context, documentID uuid.UUID, in In) (*Result[Out], error) {
	if err := o.work.Validate(ctx, in); err != nil {
		return nil, err
	}

	result, err := o.store.Accept(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("accept %s: %w", o.cfg.Name, err)
	}
	o.track(ctx, documentID, func(t Tracker) error { return t.Reset(ctx, documentID, StatusPending) })
	o.report(ctx, documentID, StatusPending, "")

	o.lc.Go(func(lctx context.Context) {
		// accepted work is drained at shutdown, bounded by the shutdown timeout
		ctx := context.WithoutCancel(lctx)
		if err := o.sem.Acquire(ctx, 1); err != nil {
			o.logger.Error("acquire worker", "document_id", documentID, "error", err)
			return
		}
		defer o.sem.Release(1)

		if _, err := o.run(ctx, documentID, in); err != nil {
			o.logger.Error("background run failed", "document_id", documentID, "error", err)
		}
	})

	return result, nil
}

// Result returns the current result for documentID with staleness applied.
func (o *Orchestrator[In, Out]) Result(ctx context.Context, documentID uuid.UUID) (*Result[Out], error) {
	r, err := o.store.FindByDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	return r.Resolve(o.now(), o.cfg.StaleAfter), nil
}

// ResultByID returns a result by its own id with staleness applied.
func (o *Orchestrator[In, Out]) ResultByID(ctx context.Context, id uuid.UUID) (*Result[Out], error) {
	r, err := o.store.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	return r.Resolve(o.now(), o.cfg.StaleAfter), nil
}

// Progress returns the lightweight progress snapshot for documentID.
func (o *Orchestrator[In, Out]) Progress(ctx context.Context, documentID uuid.UUID) (*Snapshot, error) {
	snap, err := readSnapshot(ctx, o.hooks.tracker, o.store, documentID)
	if err != nil {
		return nil, err
	}
	return snap.Resolve(o.now(), o.cfg.StaleAfter), nil
}

// Delete removes the result for documentID. Deleting an absent result is not an error.
func (o *Orchestrator[In, Out]) Delete(ctx context.Context, documentID uuid.UUID) (int64, error) {
	n, err := o.store.Delete(ctx, documentID)
	if err != nil {
		return 0, err
	}
	if o.hooks.cleanup != nil {
		if err := o.hooks.cleanup(ctx, documentID); err != nil {
			return n, fmt.Errorf("cleanup %s: %w", o.cfg.Name, err)
		}
	}
	o.logger.Info("result deleted", "document_id", documentID, "rows", n)
	return n, nil
}

func (o *Orchestrator[In, Out]) run(ctx context.Context, documentID uuid.UUID, in In) (*Result[Out], error) {
	started := o.now()

	if _, err := o.store.Begin(ctx, documentID); err != nil {
		return nil, fmt.Errorf("begin %s: %w", o.cfg.Name, err)
	}
	o.track(ctx, documentID, func(t Tracker) error { return t.Reset(ctx, documentID, StatusProcessing) })
	o.report(ctx, documentID, StatusProcessing, "")

	out, err := o.transform(ctx, documentID, in)
	elapsed := o.now().Sub(started)

	if err != nil {
		msg := err.Error()
		result, ferr := o.store.Fail(ctx, documentID, msg, elapsed)
		if ferr != nil {
			return nil, fmt.Errorf("record %s failure: %w", o.cfg.Name, ferr)
		}
		o.track(ctx, documentID, func(t Tracker) error { return t.Settle(ctx, documentID, StatusFailed) })
		o.report(ctx, documentID, StatusFailed, msg)
		o.observe(ctx, StatusFailed, elapsed)

		o.logger.Warn("stage failed",
			"document_id", documentID,
			"error", msg,
			"elapsed", elapsed,
		)
		return result, nil
	}

	result, err := o.store.Complete(ctx, documentID, out, elapsed, degraded(out))
	if err != nil {
		return nil, fmt.Errorf("complete %s: %w", o.cfg.Name, err)
	}
	o.track(ctx, documentID, func(t Tracker) error { return t.Settle(ctx, documentID, StatusCompleted) })
	o.report(ctx, documentID, StatusCompleted, "")
	o.observe(ctx, StatusCompleted, elapsed)

	o.logger.Info("stage completed",
		"document_id", documentID,
		"result_id", result.ID,
		"degraded", result.Degraded,
		"elapsed", elapsed,
	)

	if o.hooks.handoff != nil {
		o.hooks.handoff(ctx, result)
	}
	return result, nil
}

func (o *Orchestrator[In, Out]) transform(ctx context.Context, documentID uuid.UUID, in In) (out Out, err error) {
	ctx, span := o.tracer.Start(ctx, "stage."+o.cfg.Name+".transform",
		trace.WithAttributes(attribute.String("document_id", documentID.String())),
	)
	defer span.End()

	if o.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.cfg.Timeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic: %v", ErrTransformation, r)
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	var last atomic.Int64
	progress := func(pct int) {
		pct = min(max(pct, 0), 99)
		if int64(pct) <= last.Load() {
			return
		}
		last.Store(int64(pct))
		o.track(ctx, documentID, func(t Tracker) error { return t.Advance(ctx, documentID, pct) })
	}

	return o.work.Transform(ctx, in, progress)
}

func (o *Orchestrator[In, Out]) track(ctx context.Context, documentID uuid.UUID, fn func(Tracker) error) {
	if err := fn(o.hooks.tracker); err != nil {
		o.logger.DebugContext(ctx, "progress tracking failed", "document_id", documentID, "error", err)
	}
}

func (o *Orchestrator[In, Out]) report(ctx context.Context, documentID uuid.UUID, status Status, errMsg string) {
	if o.hooks.sink != nil {
		o.hooks.sink.Report(ctx, documentID, status, errMsg)
	}
}

func (o *Orchestrator[In, Out]) observe(ctx context.Context, status Status, elapsed time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("stage", o.cfg.Name),
		attribute.String("status", string(status)),
	)
	o.results.Add(ctx, 1, attrs)
	o.duration.Record(ctx, elapsed.Seconds(), attrs)
}
