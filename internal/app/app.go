package app

import (
	"context"
	"errors"
	"net/http"

	"gitlab.com/nevasik7/alerting/logger"
)

type HTTPServer interface {
	Start() error
	Shutdown(ctx context.Context) error
}

type App struct {
	log     logger.Logger
	httpSrv HTTPServer
	errCh   chan error
}

func New(lg logger.Logger, httpSrv HTTPServer) *App {
	return &App{log: lg, httpSrv: httpSrv, errCh: make(chan error, 1)}
}

// Start serves HTTP in the background; a listener failure shows up on Errors
func (a *App) Start() error {
	a.log.Debug("App started begin...")

	go func() {
		if err := a.httpSrv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Errorf("Start HTTP server is error=%v", err)
			a.errCh <- err
		}
	}()

	a.log.Info("App started")
	return nil
}

func (a *App) Errors() <-chan error {
	return a.errCh
}

func (a *App) Shutdown(ctx context.Context) error {
	a.log.Debug("App stopped begin...")

	if err := a.httpSrv.Shutdown(ctx); err != nil {
		return err
	}

	a.log.Info("App stopped")
	return nil
}
