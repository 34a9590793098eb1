package handlers

import (
	"errors"
	"net/http"

	"referralstats/internal/chain"
	"referralstats/internal/engine"
	"referralstats/internal/service"
	"referralstats/pkg/httputil"
)

// Ingest accepts one log envelope or an array of them and applies them in order.
// Envelopes before a failing one stay applied; the response says how far it got.
func (a *Handler) Ingest(w http.ResponseWriter, r *http.Request) {
	body, err := httputil.ReadBody(r, a.MaxBodyBytes)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, httputil.ErrBodyTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		a.writeError(w, r, status, "invalid_payload", err, nil)
		return
	}

	envs, err := service.ParseEnvelopes(body)
	if err != nil {
		a.writeError(w, r, http.StatusBadRequest, "invalid_payload", err, nil)
		return
	}

	res, err := a.Service.Ingest(r.Context(), a.Decoder, "http", envs)
	if err != nil {
		status, code := classify(err)
		a.writeError(w, r, status, code, err, res)
		return
	}

	if err = httputil.JSON(w, http.StatusAccepted, res, nil); err != nil {
		a.Log.Errorf("Ingest handler error: %s", err.Error())
	}
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, chain.ErrMalformedLog):
		return http.StatusUnprocessableEntity, "malformed_log"
	case errors.Is(err, engine.ErrIntegrity):
		return http.StatusConflict, "integrity_violation"
	case errors.Is(err, service.ErrClosed):
		return http.StatusServiceUnavailable, "shutting_down"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func (a *Handler) writeError(w http.ResponseWriter, r *http.Request, status int, code string, cause error, details any) {
	if status >= http.StatusInternalServerError {
		a.Log.Errorf("Ingest handler failed: %v", cause)
	}
	if err := httputil.Error(w, r, status, code, cause.Error(), details); err != nil {
		a.Log.Errorf("Ingest handler error: %s", err.Error())
	}
}
