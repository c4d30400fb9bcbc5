package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/JaimeStill/aura/internal/config"
)

// Cleaner removes a document's results from every downstream stage.
type Cleaner struct {
	cfg    *config.PipelineConfig
	client *http.Client
	logger *slog.Logger
}

// NewCleaner creates a Cleaner.
func NewCleaner(cfg *config.PipelineConfig, client *http.Client, logger *slog.Logger) *Cleaner {
	if client == nil {
		client = &http.Client{}
	}
	return &Cleaner{
		cfg:    cfg,
		client: client,
		logger: logger.With("system", "cleaner"),
	}
}

// Purge calls every downstream delete-internal route concurrently. Each
// failure is logged; the joined error is returned for the caller to log and
// never aborts a deletion.
func (c *Cleaner) Purge(ctx context.Context, documentID uuid.UUID) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.ReportTimeoutDuration())
	defer cancel()

	// every stage is attempted; errs keeps each failure for the joined error
	errs := make([]error, len(Downstream))

	var g errgroup.Group
	for i, s := range Downstream {
		g.Go(func() error {
			url := fmt.Sprintf("%s%s/%s/delete-internal", c.cfg.URL(string(s)), s.Prefix(), documentID)
			if err := send(ctx, c.client, http.MethodDelete, url, nil); err != nil {
				c.logger.Warn("remote cleanup failed", "stage", s, "document_id", documentID, "error", err)
				errs[i] = fmt.Errorf("%s: %w", s, err)
				return errs[i]
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return errors.Join(errs...)
	}
	return nil
}
