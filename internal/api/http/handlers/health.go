package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"gitlab.com/nevasik7/alerting/logger"

	"referralstats/internal/chain"
	"referralstats/internal/service"
	"referralstats/pkg/httputil"
)

// EventService is the part of *service.AggregatorService the HTTP layer calls.
type EventService interface {
	Ingest(ctx context.Context, dec service.LogDecoder, source string, envs []chain.LogEnvelope) (service.IngestResult, error)
	CheckDependency(ctx context.Context) error
}

type Handler struct {
	Log          logger.Logger
	Service      EventService
	Decoder      service.LogDecoder
	MaxBodyBytes int64
}

func NewHandler(log logger.Logger, svc EventService, dec service.LogDecoder, maxBodyBytes int64) (*Handler, error) {
	if svc == nil {
		return nil, errors.New("aggregate service cannot be nil")
	}
	if dec == nil {
		return nil, errors.New("log decoder cannot be nil")
	}

	return &Handler{Log: log, Service: svc, Decoder: dec, MaxBodyBytes: maxBodyBytes}, nil
}

func (a *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	if err := httputil.JSON(w, http.StatusOK, map[string]any{}, nil); err != nil {
		a.Log.Errorf("Healthz handler error: %s", err.Error())
	}
}

// Check health external services/clients
func (a *Handler) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
	defer cancel()

	if err := a.Service.CheckDependency(ctx); err != nil {
		err = httputil.Error(w, r, http.StatusServiceUnavailable, "dependencies_unhealthy", "dependencies check failed", map[string]any{
			"error": err.Error(),
		})
		if err != nil {
			a.Log.Errorf("Readiness handler error: %s", err.Error())
		}
		return
	}

	if err := httputil.JSON(w, http.StatusOK, map[string]string{"dependencies": "healthy"}, nil); err != nil {
		a.Log.Errorf("Readiness handler error: %s", err.Error())
	}
}
