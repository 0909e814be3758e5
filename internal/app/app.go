// Package app owns the HTTP server lifecycle.
package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/blastline/blastline/internal/config"
)

type App struct {
	cfg    config.Config
	log    *zap.Logger
	server *http.Server
}

func New(cfg config.Config, log *zap.Logger, handler http.Handler) *App {
	return &App{
		cfg: cfg,
		log: log,
		server: &http.Server{
			Addr:              ":" + cfg.App.Port,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Run blocks until the server stops. A clean Shutdown is not an error.
func (a *App) Run(ctx context.Context) error {
	a.log.Info("http server listening", zap.String("addr", a.server.Addr))
	if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (a *App) Shutdown(ctx context.Context) error {
	return a.server.Shutdown(ctx)
}
