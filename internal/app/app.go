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

// Subscription is the running NATS consumer; nil when ingest is HTTP only.
type Subscription interface {
	Drain() error
}

type App struct {
	log     logger.Logger
	httpSrv HTTPServer
	sub     Subscription
	errCh   chan error
}

func New(log logger.Logger, httpSrv HTTPServer, sub Subscription) *App {
	return &App{log: log, httpSrv: httpSrv, sub: sub, errCh: make(chan error, 1)}
}

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

// Errors reports a server that stopped on its own.
func (a *App) Errors() <-chan error {
	return a.errCh
}

// Shutdown stops the inputs: first the HTTP listener, then the NATS consumer.
func (a *App) Shutdown(ctx context.Context) error {
	a.log.Debug("App stopped begin...")

	var errs []error
	if err := a.httpSrv.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	if a.sub != nil {
		if err := a.sub.Drain(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}

	a.log.Info("App stopped")
	return nil
}
