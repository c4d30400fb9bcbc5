package main

import (
	"log/slog"
	"time"

	"github.com/JaimeStill/aura/internal/config"
	"github.com/JaimeStill/aura/internal/infrastructure"
)

// Server owns the infrastructure, the mounted modules and the listener.
type Server struct {
	infra   *infrastructure.Infrastructure
	modules *Modules
	http    *httpServer
	logger  *slog.Logger
}

func NewServer(cfg *config.Config) (*Server, error) {
	infra, err := infrastructure.New(cfg)
	if err != nil {
		return nil, err
	}

	modules, err := NewModules(infra, cfg)
	if err != nil {
		return nil, err
	}

	stages := modules.API.Domain.Stages()
	router := buildRouter(infra, cfg, stages)
	modules.Mount(router)

	logger := infra.Logger.With("system", "server")
	logger.Info("server configured",
		"env", cfg.Env(),
		"version", cfg.Version,
		"addr", cfg.Server.Addr(),
		"stages", stages,
		"notifier", cfg.Pipeline.Notifier,
	)

	return &Server{
		infra:   infra,
		modules: modules,
		http:    newHTTPServer(&cfg.Server, router, infra.Logger),
		logger:  logger,
	}, nil
}

// Start registers infrastructure hooks, binds the listener and runs the
// startup hooks in the background.
func (s *Server) Start() error {
	if err := s.infra.Start(); err != nil {
		return err
	}
	if err := s.http.Start(s.infra.Lifecycle); err != nil {
		return err
	}

	go func() {
		s.infra.Lifecycle.WaitForStartup()
		s.logger.Info("ready")
	}()
	return nil
}

// Shutdown runs the shutdown hooks, waiting at most timeout.
func (s *Server) Shutdown(timeout time.Duration) error {
	s.logger.Info("shutting down", "timeout", timeout)
	if err := s.infra.Lifecycle.Shutdown(timeout); err != nil {
		return err
	}
	s.logger.Info("stopped")
	return nil
}
