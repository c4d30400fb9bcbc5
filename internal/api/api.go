// Package api assembles the API module from the stages this process hosts.
package api

import (
	"net/http"

	"github.com/JaimeStill/aura/internal/config"
	"github.com/JaimeStill/aura/internal/infrastructure"
	"github.com/JaimeStill/aura/internal/pipeline"
	"github.com/JaimeStill/aura/pkg/middleware"
	"github.com/JaimeStill/aura/pkg/module"
	"github.com/JaimeStill/aura/pkg/telemetry"
)

// Module is the mounted API together with the stages it hosts.
type Module struct {
	*module.Module
	Domain *Domain
}

// NewModule creates the API module with the enabled stage handlers and
// middleware. With the Redis notifier, hosted stages also consume their queue.
func NewModule(cfg *config.Config, infra *infrastructure.Infrastructure) (*Module, error) {
	runtime := NewRuntime(cfg, infra)
	domain := NewDomain(cfg, runtime)

	mux := http.NewServeMux()
	if err := registerRoutes(mux, domain, cfg, runtime); err != nil {
		return nil, err
	}

	if cfg.Pipeline.Notifier == config.NotifierRedis && infra.Cache != nil {
		consumer := pipeline.NewConsumer(
			infra.Cache.Client(),
			func(s pipeline.Stage) string { return infra.Cache.Key("queue", string(s)) },
			runtime.Logger,
		)
		for s, r := range domain.Receivers() {
			consumer.Register(s, r)
		}
		if err := consumer.Start(infra.Lifecycle); err != nil {
			return nil, err
		}
	}

	m := module.New(cfg.API.BasePath, mux)
	m.Use(middleware.RequestID())
	m.Use(middleware.Recover(runtime.Logger))
	m.Use(middleware.CORS(&cfg.API.CORS))
	m.Use(middleware.Logger(runtime.Logger))
	if infra.Telemetry != nil {
		m.Use(telemetry.Middleware())
	}

	return &Module{Module: m, Domain: domain}, nil
}
