package mw

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"gitlab.com/nevasik7/alerting/logger"
)

// HTTPMetrics is implemented by metrics.Collector.
type HTTPMetrics interface {
	ObserveHTTP(method, route string, code int, took time.Duration)
}

type LoggingMiddleware struct {
	Log     logger.Logger
	Metrics HTTPMetrics // optional
}

func NewLogging(log logger.Logger, m HTTPMetrics) *LoggingMiddleware {
	return &LoggingMiddleware{Log: log, Metrics: m}
}

func (m *LoggingMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		lrw := &loggingRW{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(lrw, r)

		dur := time.Since(start)

		// route pattern keeps the label set bounded
		route := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		if m.Metrics != nil {
			m.Metrics.ObserveHTTP(r.Method, route, lrw.status, dur)
		}

		m.Log.WithFields(map[string]interface{}{
			"method": r.Method,
			"path":   r.URL.Path,
			"status": lrw.status,
			"size":   lrw.size,
			"dur_ms": dur.Milliseconds(),
			"ip":     clientIP(r),
			"ua":     r.UserAgent(),
			"req_id": middleware.GetReqID(r.Context()),
		}).Info("http_request")
	})
}

type loggingRW struct {
	http.ResponseWriter
	status int
	size   int
}

func (w *loggingRW) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *loggingRW) Write(b []byte) (int, error) {
	n, err := w.ResponseWriter.Write(b)
	w.size += n
	return n, err
}
