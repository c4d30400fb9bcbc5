package main

import (
	"context"
	"net/http"
	"time"

	"github.com/JaimeStill/aura/internal/api"
	"github.com/JaimeStill/aura/internal/config"
	"github.com/JaimeStill/aura/internal/infrastructure"
	"github.com/JaimeStill/aura/pkg/handlers"
	"github.com/JaimeStill/aura/pkg/middleware"
	"github.com/JaimeStill/aura/pkg/module"
	"github.com/JaimeStill/aura/web/scalar"
)

type Modules struct {
	API    *api.Module
	Scalar *module.Module
}

func NewModules(infra *infrastructure.Infrastructure, cfg *config.Config) (*Modules, error) {
	apiModule, err := api.NewModule(cfg, infra)
	if err != nil {
		return nil, err
	}

	scalarModule := scalar.NewModule("/scalar", cfg.API.BasePath+"/openapi.json")
	scalarModule.Use(middleware.Logger(infra.Logger))

	return &Modules{
		API:    apiModule,
		Scalar: scalarModule,
	}, nil
}

func (m *Modules) Mount(router *module.Router) {
	router.Mount(m.API.Module)
	router.Mount(m.Scalar)
}

type health struct {
	Status  string   `json:"status"`
	Version string   `json:"version,omitempty"`
	Stages  []string `json:"stages,omitempty"`
	Error   string   `json:"error,omitempty"`
}

func buildRouter(infra *infrastructure.Infrastructure, cfg *config.Config, stages []string) *module.Router {
	router := module.NewRouter()

	router.HandleNative("GET /health", func(w http.ResponseWriter, r *http.Request) {
		handlers.RespondJSON(w, http.StatusOK, health{Status: "ok", Version: cfg.Version, Stages: stages})
	})

	router.HandleNative("GET /health/live", func(w http.ResponseWriter, r *http.Request) {
		handlers.RespondJSON(w, http.StatusOK, health{Status: "alive"})
	})

	router.HandleNative("GET /health/ready", func(w http.ResponseWriter, r *http.Request) {
		if !infra.Lifecycle.Ready() {
			handlers.RespondJSON(w, http.StatusServiceUnavailable, health{Status: "not ready"})
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := infra.Database.Ping(ctx); err != nil {
			handlers.RespondJSON(w, http.StatusServiceUnavailable, health{Status: "not ready", Error: "database unreachable"})
			return
		}
		handlers.RespondJSON(w, http.StatusOK, health{Status: "ready"})
	})

	return router
}
