package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"gitlab.com/nevasik7/alerting/logger"

	"referralstats/internal/dedupe"
	"referralstats/internal/domain"
	"referralstats/internal/engine"
	"referralstats/internal/metrics"
	"referralstats/internal/pubsub"
	"referralstats/internal/store"
)

var ErrClosed = errors.New("aggregator service is closed")

// AuditSink receives the append-only rows of a committed event.
type AuditSink interface {
	Record(vr *domain.ReferralVolumeRecord, ds []*domain.Distribution) error
}

// Metrics is the part of metrics.Collector the service reports to.
type Metrics interface {
	ObserveEvent(kind, result string, took time.Duration)
	SideEffectFailed(stage string)
	DecodeFailed(source string)
}

type healthChecker interface {
	Health(ctx context.Context) error
}

// Dependency is an extra readiness check, e.g. the ClickHouse connection.
type Dependency struct {
	Name  string
	Check func(ctx context.Context) error
}

type Deps struct {
	Engine      *engine.Engine
	Store       store.Store
	Deduper     dedupe.Deduper     // optional, Noop when nil
	Audit       AuditSink          // optional
	Broadcaster pubsub.Broadcaster // optional, Noop when nil
	Metrics     Metrics            // optional
	Extra       []Dependency
}

// AggregatorService is the single entry point for events, whichever adapter delivered them
// (NATS, HTTP, replay). It runs one event at a time: dedupe → engine → commit → audit → broadcast.
type AggregatorService struct {
	log         logger.Logger
	engine      *engine.Engine
	st          store.Store
	deduper     dedupe.Deduper
	audit       AuditSink
	broadcaster pubsub.Broadcaster
	metrics     Metrics
	extra       []Dependency

	mu     sync.Mutex
	closed bool
}

func NewAggregatorService(log logger.Logger, d Deps) (*AggregatorService, error) {
	if log == nil {
		return nil, errors.New("logger is required to the aggregator service")
	}
	if d.Engine == nil {
		return nil, errors.New("engine is required to the aggregator service")
	}
	if d.Store == nil {
		return nil, errors.New("store is required to the aggregator service")
	}

	a := &AggregatorService{
		log:         log,
		engine:      d.Engine,
		st:          d.Store,
		deduper:     d.Deduper,
		audit:       d.Audit,
		broadcaster: d.Broadcaster,
		metrics:     d.Metrics,
		extra:       d.Extra,
	}
	if a.deduper == nil {
		a.deduper = dedupe.Noop{}
	}
	if a.broadcaster == nil {
		a.broadcaster = pubsub.Noop{}
	}
	if a.metrics == nil {
		a.metrics = noopMetrics{}
	}

	return a, nil
}

// Process applies one event. Only the prefilter, the engine and the commit can fail it;
// audit and broadcast errors are logged and counted.
func (a *AggregatorService) Process(ctx context.Context, ev domain.Event) (*engine.Outcome, error) {
	if ev == nil {
		return nil, fmt.Errorf("%w: nil event", engine.ErrMalformedEvent)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return nil, ErrClosed
	}

	start := time.Now()
	id := ev.Meta().ID()
	kind := string(ev.Kind())

	seen, err := a.deduper.Contains(ctx, id)
	if err != nil {
		a.metrics.ObserveEvent(kind, metrics.ResultFault, time.Since(start))
		return nil, fmt.Errorf("dedup check failed for %s: %w", id, err)
	}
	if seen {
		a.log.Debugf("Duplicate event ignored: %s", id)
		a.metrics.ObserveEvent(kind, metrics.ResultPrefiltered, time.Since(start))
		return &engine.Outcome{EventID: id, Kind: ev.Kind(), Duplicate: true}, nil
	}

	tx := store.Begin(a.st)
	out, err := a.engine.Apply(ctx, tx, ev)
	if err != nil {
		a.metrics.ObserveEvent(kind, metrics.ResultFault, time.Since(start))
		a.log.WithFields(map[string]interface{}{
			"event_id": id,
			"kind":     kind,
			"block":    ev.Meta().BlockNumber,
		}).Errorf("Event rejected, error=%v", err)
		return nil, err
	}

	if out.Skipped() {
		a.metrics.ObserveEvent(kind, skippedResult(out), time.Since(start))
		if out.Duplicate {
			a.markSeen(ctx, id)
		}
		return out, nil
	}

	if err = tx.Commit(ctx); err != nil {
		a.metrics.ObserveEvent(kind, metrics.ResultFault, time.Since(start))
		a.log.Errorf("Commit of %s failed, error=%v", id, err)
		return nil, fmt.Errorf("commit %s: %w", id, err)
	}
	a.metrics.ObserveEvent(kind, metrics.ResultApplied, time.Since(start))

	a.markSeen(ctx, id)
	a.record(out)
	a.publish(ctx, out)

	a.log.Debugf("Event processed successfully: %s (kind=%s, writes=%d)", id, kind, tx.Len())
	return out, nil
}

func skippedResult(out *engine.Outcome) string {
	switch {
	case out.Duplicate:
		return metrics.ResultDuplicate
	case out.Dropped:
		return metrics.ResultDropped
	default:
		return metrics.ResultNoop
	}
}

func (a *AggregatorService) markSeen(ctx context.Context, id string) {
	if err := a.deduper.Add(ctx, id); err != nil {
		a.metrics.SideEffectFailed(metrics.StageDedupe)
		a.log.Errorf("Failed to mark event as seen %s: %v", id, err)
	}
}

func (a *AggregatorService) record(out *engine.Outcome) {
	if a.audit == nil || (out.VolumeRecord == nil && len(out.Distributions) == 0) {
		return
	}
	if err := a.audit.Record(out.VolumeRecord, out.Distributions); err != nil {
		a.metrics.SideEffectFailed(metrics.StageAudit)
		a.log.Errorf("Failed to record audit rows for %s: %v", out.EventID, err)
	}
}

func (a *AggregatorService) publish(ctx context.Context, out *engine.Outcome) {
	for _, patch := range BuildPatches(out, time.Now().UTC()) {
		if err := a.broadcaster.Publish(ctx, patch.Topic, patch); err != nil {
			a.metrics.SideEffectFailed(metrics.StageBroadcast)
			a.log.Errorf("Failed to broadcast patch for %s: %v", patch.Topic, err)
		}
	}
}

// BuildPatches groups the stats an event touched by topic: one per referrer, one per
// referral and one for the global rollups.
func BuildPatches(out *engine.Outcome, now time.Time) []domain.StatsPatch {
	var patches []domain.StatsPatch
	byReferrer := make(map[string]int)

	for _, s := range out.ReferrerStats {
		topic := "referrer." + s.Referrer
		i, ok := byReferrer[topic]
		if !ok {
			i = len(patches)
			byReferrer[topic] = i
			patches = append(patches, domain.StatsPatch{Topic: topic, EventID: out.EventID, Kind: out.Kind, GeneratedAt: now})
		}
		patches[i].ReferrerStats = append(patches[i].ReferrerStats, s)
	}

	if out.ReferralStat != nil {
		patches = append(patches, domain.StatsPatch{
			Topic:        "referral." + out.ReferralStat.Referral,
			EventID:      out.EventID,
			Kind:         out.Kind,
			GeneratedAt:  now,
			ReferralStat: out.ReferralStat,
		})
	}

	if len(out.GlobalStats) > 0 {
		patches = append(patches, domain.StatsPatch{
			Topic:       "global",
			EventID:     out.EventID,
			Kind:        out.Kind,
			GeneratedAt: now,
			GlobalStats: out.GlobalStats,
		})
	}

	return patches
}

// Close waits for the event in flight and rejects the following ones.
func (a *AggregatorService) Close() {
	a.mu.Lock()
	a.closed = true
	a.mu.Unlock()
}

func (a *AggregatorService) CheckDependency(ctx context.Context) error {
	errDependency := make([]string, 0, 4)

	if err := a.st.Health(ctx); err != nil {
		errDependency = append(errDependency, fmt.Sprintf("store: %v", err))
	}
	if h, ok := a.deduper.(healthChecker); ok {
		if err := h.Health(ctx); err != nil {
			errDependency = append(errDependency, fmt.Sprintf("dedupe: %v", err))
		}
	}
	if err := a.broadcaster.Health(ctx); err != nil {
		errDependency = append(errDependency, fmt.Sprintf("broadcaster: %v", err))
	}
	for _, d := range a.extra {
		if err := d.Check(ctx); err != nil {
			errDependency = append(errDependency, fmt.Sprintf("%s: %v", d.Name, err))
		}
	}

	if len(errDependency) > 0 {
		return fmt.Errorf("dependency check failed: %v", strings.Join(errDependency, "; "))
	}

	a.log.Debugf("All dependency check passed")
	return nil
}

type noopMetrics struct{}

func (noopMetrics) ObserveEvent(string, string, time.Duration) {}
func (noopMetrics) SideEffectFailed(string)                    {}
func (noopMetrics) DecodeFailed(string)                        {}
