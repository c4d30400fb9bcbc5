package api

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/JaimeStill/aura/internal/config"
	"github.com/JaimeStill/aura/internal/infrastructure"
	"github.com/JaimeStill/aura/internal/pipeline"
	"github.com/JaimeStill/aura/internal/stage"
	"github.com/JaimeStill/aura/pkg/pagination"
)

// Runtime extends Infrastructure with the collaborators shared by the stages
// this process hosts.
type Runtime struct {
	*infrastructure.Infrastructure
	Host       *pipeline.Host
	Client     *http.Client
	Pagination pagination.Config
}

// NewRuntime creates an API runtime with a module-scoped logger. The next-stage
// notifier is the Redis queue when configured, otherwise direct HTTP calls.
// With a cache, progress is tracked in Redis instead of the result rows.
func NewRuntime(cfg *config.Config, infra *infrastructure.Infrastructure) *Runtime {
	logger := infra.Logger.With("module", "api")
	client := &http.Client{}

	var notifier pipeline.Notifier
	if cfg.Pipeline.Notifier == config.NotifierRedis && infra.Cache != nil {
		notifier = pipeline.NewQueueNotifier(
			infra.Cache.Client(),
			func(s pipeline.Stage) string { return infra.Cache.Key("queue", string(s)) },
			infra.Lifecycle,
			logger,
		)
	} else {
		notifier = pipeline.NewHTTPNotifier(&cfg.Pipeline, client, infra.Lifecycle, logger)
	}

	host := &pipeline.Host{
		DB:         infra.Database.Connection(),
		Storage:    infra.Storage,
		Notifier:   notifier,
		Reporter:   pipeline.NewReporter(&cfg.Pipeline, client, logger),
		Lifecycle:  infra.Lifecycle,
		Logger:     logger,
		StaleAfter: cfg.Pipeline.StaleAfterDuration(),
		Workers:    cfg.Pipeline.Workers,
	}

	if infra.Cache != nil {
		ttl := max(cfg.Pipeline.StaleAfterDuration(), time.Hour)
		host.Tracker = func(s pipeline.Stage) stage.Tracker {
			return stage.NewRedisTracker(
				infra.Cache.Client(),
				func(id uuid.UUID) string { return infra.Cache.Key("progress", string(s), id.String()) },
				ttl,
			)
		}
	}

	return &Runtime{
		Infrastructure: &infrastructure.Infrastructure{
			Lifecycle: infra.Lifecycle,
			Logger:    logger,
			Database:  infra.Database,
			Storage:   infra.Storage,
			Cache:     infra.Cache,
			Telemetry: infra.Telemetry,
		},
		Host:       host,
		Client:     client,
		Pagination: cfg.API.Pagination,
	}
}
