package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"

	"github.com/JaimeStill/aura/internal/config"
	"github.com/JaimeStill/aura/pkg/lifecycle"
)

// Notifier hands a payload to the next stage. Notify never blocks the caller
// and never reports failure; delivery problems are logged.
type Notifier interface {
	Notify(ctx context.Context, next Stage, documentID uuid.UUID, payload any)
}

// HTTPNotifier posts payloads to the next stage's process-internal route.
type HTTPNotifier struct {
	cfg    *config.PipelineConfig
	client *http.Client
	lc     *lifecycle.Coordinator
	logger *slog.Logger

	mu       sync.Mutex
	breakers map[Stage]*gobreaker.CircuitBreaker
}

// NewHTTPNotifier creates an HTTPNotifier. Calls run on lc so shutdown waits
// for deliveries still in flight.
func NewHTTPNotifier(cfg *config.PipelineConfig, client *http.Client, lc *lifecycle.Coordinator, logger *slog.Logger) *HTTPNotifier {
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPNotifier{
		cfg:      cfg,
		client:   client,
		lc:       lc,
		logger:   logger.With("system", "notifier", "transport", "http"),
		breakers: make(map[Stage]*gobreaker.CircuitBreaker),
	}
}

func (n *HTTPNotifier) Notify(ctx context.Context, next Stage, documentID uuid.UUID, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		n.logger.Error("encode payload failed", "stage", next, "document_id", documentID, "error", err)
		return
	}

	url := n.cfg.URL(string(next)) + next.Prefix() + "/process-internal"
	timeout := n.cfg.Timeout(string(next))
	cb := n.breaker(next)

	n.lc.Go(func(lctx context.Context) {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(lctx), timeout)
		defer cancel()

		_, err := cb.Execute(func() (any, error) {
			return nil, send(ctx, n.client, http.MethodPost, url, body)
		})

		switch {
		case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
			n.logger.Warn("next stage unavailable, circuit open", "stage", next, "document_id", documentID)
		case err != nil:
			n.logger.Warn("next stage notification failed", "stage", next, "document_id", documentID, "error", err)
		default:
			n.logger.Info("next stage notified", "stage", next, "document_id", documentID)
		}
	})
}

func (n *HTTPNotifier) breaker(stage Stage) *gobreaker.CircuitBreaker {
	n.mu.Lock()
	defer n.mu.Unlock()

	if cb, ok := n.breakers[stage]; ok {
		return cb
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        string(stage),
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			n.logger.Warn("circuit state changed", "stage", name, "from", from.String(), "to", to.String())
		},
	})
	n.breakers[stage] = cb
	return cb
}
