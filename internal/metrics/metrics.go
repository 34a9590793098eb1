package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Event results used as the "result" label.
const (
	ResultApplied     = "applied"
	ResultDuplicate   = "duplicate"
	ResultPrefiltered = "prefiltered"
	ResultDropped     = "dropped"
	ResultNoop        = "noop"
	ResultFault       = "fault"
)

// Side-effect stages that may fail after a commit.
const (
	StageDedupe    = "dedupe"
	StageAudit     = "audit"
	StageBroadcast = "broadcast"
)

// Collector owns a private registry so tests and several instances do not collide.
type Collector struct {
	reg *prometheus.Registry

	events        *prometheus.CounterVec
	eventDuration *prometheus.HistogramVec
	sideEffects   *prometheus.CounterVec
	decodeErrors  *prometheus.CounterVec
	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
}

func New(namespace string) *Collector {
	if namespace == "" {
		namespace = "referral"
	}

	c := &Collector{
		reg: prometheus.NewRegistry(),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Contract events handled, by kind and result.",
		}, []string{"kind", "result"}),
		eventDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "event_duration_seconds",
			Help:      "Time from dequeue to commit of one event.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		}, []string{"kind"}),
		sideEffects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "side_effect_errors_total",
			Help:      "Post-commit failures that did not fail the event.",
		}, []string{"stage"}),
		decodeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decode_errors_total",
			Help:      "Inbound logs rejected before reaching the engine.",
		}, []string{"source"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code.",
		}, []string{"method", "route", "code"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	c.reg.MustRegister(
		c.events,
		c.eventDuration,
		c.sideEffects,
		c.decodeErrors,
		c.httpRequests,
		c.httpDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return c
}

func (c *Collector) ObserveEvent(kind, result string, took time.Duration) {
	c.events.WithLabelValues(kind, result).Inc()
	if result == ResultApplied {
		c.eventDuration.WithLabelValues(kind).Observe(took.Seconds())
	}
}

func (c *Collector) SideEffectFailed(stage string) {
	c.sideEffects.WithLabelValues(stage).Inc()
}

func (c *Collector) DecodeFailed(source string) {
	c.decodeErrors.WithLabelValues(source).Inc()
}

func (c *Collector) ObserveHTTP(method, route string, code int, took time.Duration) {
	c.httpRequests.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	c.httpDuration.WithLabelValues(method, route).Observe(took.Seconds())
}

// Registry exposes the underlying registry, mostly for tests.
func (c *Collector) Registry() *prometheus.Registry {
	return c.reg
}

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{Registry: c.reg})
}
