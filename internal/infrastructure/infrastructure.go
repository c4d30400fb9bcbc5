// Package infrastructure builds the shared systems every stage runs on: the
// lifecycle coordinator, logger, database and blob storage, plus Redis and
// OpenTelemetry when configured.
package infrastructure

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/JaimeStill/aura/internal/config"
	"github.com/JaimeStill/aura/pkg/cache"
	"github.com/JaimeStill/aura/pkg/database"
	"github.com/JaimeStill/aura/pkg/lifecycle"
	"github.com/JaimeStill/aura/pkg/storage"
	"github.com/JaimeStill/aura/pkg/telemetry"
)

// Infrastructure holds the shared systems. Cache and Telemetry are nil when
// not configured.
type Infrastructure struct {
	Lifecycle *lifecycle.Coordinator
	Logger    *slog.Logger
	Database  database.System
	Storage   storage.System
	Cache     cache.System
	Telemetry telemetry.System
}

// starter is the registration surface shared by every system.
type starter interface {
	Start(lc *lifecycle.Coordinator) error
}

type namedStarter struct {
	name string
	sys  starter
}

// New constructs every configured system without contacting any of them.
func New(cfg *config.Config) (*Infrastructure, error) {
	logger := cfg.Log.NewLogger(os.Stderr)
	infra := &Infrastructure{
		Lifecycle: lifecycle.New(),
		Logger:    logger,
	}

	var err error
	if infra.Database, err = database.New(&cfg.Database, logger); err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}
	if infra.Storage, err = storage.New(&cfg.Storage, logger); err != nil {
		return nil, fmt.Errorf("storage: %w", err)
	}
	if cfg.Cache.Enabled() {
		if infra.Cache, err = cache.New(&cfg.Cache, logger); err != nil {
			return nil, fmt.Errorf("cache: %w", err)
		}
	}
	if cfg.Telemetry.Enabled() {
		if infra.Telemetry, err = telemetry.New(context.Background(), &cfg.Telemetry, cfg.Version, logger); err != nil {
			return nil, fmt.Errorf("telemetry: %w", err)
		}
	}
	return infra, nil
}

// Start registers each system's lifecycle hooks in construction order.
func (i *Infrastructure) Start() error {
	systems := []namedStarter{
		{"database", i.Database},
		{"storage", i.Storage},
	}
	if i.Cache != nil {
		systems = append(systems, namedStarter{"cache", i.Cache})
	}
	if i.Telemetry != nil {
		systems = append(systems, namedStarter{"telemetry", i.Telemetry})
	}

	for _, s := range systems {
		if err := s.sys.Start(i.Lifecycle); err != nil {
			return fmt.Errorf("start %s: %w", s.name, err)
		}
	}
	return nil
}
