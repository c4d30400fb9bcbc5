// Package cache provides a Redis connection with lifecycle coordination.
// It backs the progress tracker and the queue-based next-stage notifier.
package cache

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/JaimeStill/aura/pkg/lifecycle"
)

// System manages a Redis client and its lifecycle.
type System interface {
	// Client returns the underlying Redis client.
	Client() *redis.Client
	// Key joins parts under the configured key prefix.
	Key(parts ...string) string
	// Ping verifies the connection is alive.
	Ping(ctx context.Context) error
	// Start registers startup and shutdown hooks with the lifecycle coordinator.
	Start(lc *lifecycle.Coordinator) error
}

type cache struct {
	client *redis.Client
	prefix string
	logger *slog.Logger
}

// New creates a Redis system. No connection is attempted until Start.
func New(cfg *Config, logger *slog.Logger) (System, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("redis address not configured")
	}

	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: cfg.DialTimeoutDuration(),
	})

	return &cache{
		client: client,
		prefix: cfg.KeyPrefix,
		logger: logger.With("system", "cache"),
	}, nil
}

func (c *cache) Client() *redis.Client {
	return c.client
}

func (c *cache) Key(parts ...string) string {
	return c.prefix + ":" + strings.Join(parts, ":")
}

func (c *cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *cache) Start(lc *lifecycle.Coordinator) error {
	c.logger.Info("starting cache connection")

	lc.OnStartup(func() {
		if err := c.Ping(lc.Context()); err != nil {
			c.logger.Error("cache ping failed", "error", err)
			return
		}
		c.logger.Info("cache connection established")
	})

	lc.OnShutdown(func() {
		<-lc.Context().Done()
		if err := c.client.Close(); err != nil {
			c.logger.Error("cache close failed", "error", err)
			return
		}
		c.logger.Info("cache connection closed")
	})

	return nil
}
