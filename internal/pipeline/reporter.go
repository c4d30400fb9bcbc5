package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/JaimeStill/aura/internal/config"
	"github.com/JaimeStill/aura/internal/ledger"
	"github.com/JaimeStill/aura/internal/stage"
)

// StatusUpdate is the body of the update-status-internal route.
type StatusUpdate struct {
	DocumentID   uuid.UUID      `json:"document_id"`
	ServiceName  ledger.Service `json:"service_name"`
	Status       stage.Status   `json:"status"`
	ErrorMessage *string        `json:"error_message,omitempty"`
}

// DocumentStatusUpdate is the body of the status-internal route.
type DocumentStatusUpdate struct {
	Status ledger.DocumentStatus `json:"status"`
}

// DocumentStatusFor maps a stage transition to the coarse document status it
// implies. ok is false when the document status is unaffected.
func DocumentStatusFor(s Stage, status stage.Status) (ledger.DocumentStatus, bool) {
	switch status {
	case stage.StatusCompleted:
		return s.Completed(), true
	case stage.StatusFailed:
		return ledger.DocumentFailed, true
	default:
		return "", false
	}
}

// Reporter sends stage status to the ingestion stage. Reporting is best
// effort: failures are retried briefly, then logged.
type Reporter struct {
	client  *http.Client
	baseURL string
	timeout time.Duration
	retries uint64
	logger  *slog.Logger
}

// NewReporter creates a Reporter targeting the configured ingestion URL.
func NewReporter(cfg *config.PipelineConfig, client *http.Client, logger *slog.Logger) *Reporter {
	if client == nil {
		client = &http.Client{}
	}
	return &Reporter{
		client:  client,
		baseURL: cfg.URL(config.StageIngestion) + Ingestion.Prefix(),
		timeout: cfg.ReportTimeoutDuration(),
		retries: 2,
		logger:  logger.With("system", "reporter"),
	}
}

// Report records status for documentID on behalf of s, then updates the
// coarse document status when one applies.
func (r *Reporter) Report(ctx context.Context, documentID uuid.UUID, s Stage, status stage.Status, errMsg string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	defer cancel()

	update := StatusUpdate{DocumentID: documentID, ServiceName: s.Service(), Status: status}
	if errMsg != "" {
		update.ErrorMessage = &errMsg
	}

	if err := r.call(ctx, http.MethodPost, r.baseURL+"/update-status-internal", update); err != nil {
		r.logger.Warn("status report failed",
			"document_id", documentID, "stage", s, "status", status, "error", err)
	}

	docStatus, ok := DocumentStatusFor(s, status)
	if !ok {
		return
	}

	url := fmt.Sprintf("%s/%s/status-internal", r.baseURL, documentID)
	if err := r.call(ctx, http.MethodPatch, url, DocumentStatusUpdate{Status: docStatus}); err != nil {
		r.logger.Warn("document status update failed",
			"document_id", documentID, "stage", s, "status", docStatus, "error", err)
	}
}

// For returns a StatusSink that reports on behalf of s.
func (r *Reporter) For(s Stage) stage.StatusSink {
	return sink{r: r, stage: s}
}

func (r *Reporter) call(ctx context.Context, method, url string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode body: %w", err)
	}

	op := func() error {
		err := send(ctx, r.client, method, url, body)
		var se *StatusError
		if errors.As(err, &se) && se.Permanent() {
			return backoff.Permanent(err)
		}
		return err
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 200 * time.Millisecond
	policy.MaxInterval = 2 * time.Second

	return backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(policy, r.retries), ctx))
}

type sink struct {
	r     *Reporter
	stage Stage
}

func (s sink) Report(ctx context.Context, documentID uuid.UUID, status stage.Status, errMsg string) {
	s.r.Report(ctx, documentID, s.stage, status, errMsg)
}
