package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	lgcfg "gitlab.com/nevasik7/alerting/config"
	"gitlab.com/nevasik7/alerting/logger"

	apihttp "referralstats/internal/api/http"
	"referralstats/internal/api/http/handlers"
	"referralstats/internal/api/http/mw"
	"referralstats/internal/chain"
	"referralstats/internal/config"
	"referralstats/internal/dedupe"
	rdbdedupe "referralstats/internal/dedupe/redis"
	"referralstats/internal/engine"
	"referralstats/internal/metrics"
	"referralstats/internal/pubsub"
	"referralstats/internal/pubsub/nats"
	"referralstats/internal/security"
	"referralstats/internal/service"
	"referralstats/internal/store"
	"referralstats/internal/stores/clickhouse"
	"referralstats/internal/stores/memory"
	"referralstats/internal/stores/postgres"
	"referralstats/internal/stores/redis"
)

type Container struct {
	app *App
	log logger.Logger

	// closers run in reverse order of construction
	closers []func(ctx context.Context)
}

func (c *Container) Start() error {
	return c.app.Start()
}

func (c *Container) Stop(ctx context.Context) error {
	if err := c.app.Shutdown(ctx); err != nil {
		return fmt.Errorf("app shutdown is failed, error=%w", err)
	}
	return nil
}

func (c *Container) onClose(f func(ctx context.Context)) {
	c.closers = append(c.closers, f)
}

func (c *Container) cleanup(ctx context.Context) {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i](ctx)
	}
	c.closers = nil
	c.log.Info("Successfully cleaned up dependency")
}

// Build constructs every component from cfg. On error whatever was already built is closed.
func Build(ctx context.Context, cfg *config.Config) (*Container, func(), error) {
	if cfg == nil {
		return nil, nil, errors.New("config is required to build the app")
	}

	lg := logger.New(lgcfg.LoggerCfg{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	lg.Info("Successfully initialize logger")

	if cfg.App.InstanceID == "" {
		cfg.App.InstanceID = uuid.NewString()
	}

	c := &Container{log: lg}
	cleanupF := func() {
		ctxClean, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		c.cleanup(ctxClean)
	}

	app, err := c.build(ctx, cfg)
	if err != nil {
		cleanupF()
		return nil, nil, err
	}
	c.app = app

	lg.Infof("Successfully initialize Wiring, instance=%s", cfg.App.InstanceID)
	return c, cleanupF, nil
}

// core is everything an event needs on its way from decoder to store, without the listeners.
type core struct {
	svc       *service.AggregatorService
	dec       *chain.Decoder
	natsCl    *nats.Client
	collector *metrics.Collector
	rdb       *redis.Client
}

func (c *Container) build(ctx context.Context, cfg *config.Config) (*App, error) {
	lg := c.log

	k, err := c.buildCore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	var sub Subscription
	if k.natsCl != nil {
		// handlers outlive the build context
		s, err := k.natsCl.Subscribe(context.Background(), cfg.PubSub.NATS.EventsSubject, cfg.PubSub.NATS.QueueGroup,
			func(ctx context.Context, data []byte) error {
				_, err := k.svc.HandleMessage(ctx, k.dec, "nats", data)
				return err
			})
		if err != nil {
			return nil, err
		}
		sub = s
		lg.Infof("Successfully subscribe to %s", cfg.PubSub.NATS.EventsSubject)
	}

	httpSrv, err := c.buildHTTP(cfg, k.rdb, k.collector, k.svc, k.dec)
	if err != nil {
		return nil, err
	}

	return New(lg, httpSrv, sub), nil
}

func (c *Container) buildCore(ctx context.Context, cfg *config.Config) (*core, error) {
	lg := c.log

	profiler, err := metrics.InitPProf(&cfg.Metrics.Pyroscope, cfg.App.InstanceID)
	if err != nil {
		return nil, fmt.Errorf("pyroscope initialize failed: %w", err)
	}
	if profiler != nil {
		lg.Infof("Successfully initialize Pyroscope to %s as %s", cfg.Metrics.Pyroscope.ServerAddr, cfg.Metrics.Pyroscope.AppName)
		c.onClose(func(context.Context) {
			if err := profiler.Stop(); err != nil {
				lg.Errorf("Failed to stop profiler: %v", err)
			}
		})
	}

	collector := metrics.New(cfg.Metrics.Namespace)

	// Redis client, shared by the store, the deduper and the rate limiter
	var rdb *redis.Client
	if cfg.Stores.Backend == "redis" || cfg.Dedupe.Backend == "redis" || cfg.RateLimit.Enabled {
		if rdb, err = redis.New(ctx, &cfg.Stores.Redis); err != nil {
			return nil, fmt.Errorf("failed to initialize redis client: %w", err)
		}
		lg.Infof("Successfully initialize redis client, addr=%s", cfg.Stores.Redis.Addr)
		c.onClose(func(context.Context) {
			if err := rdb.Close(); err != nil {
				lg.Errorf("Failed to close by cleanupF redis client: %v", err)
			}
		})
	}

	st, err := c.buildStore(ctx, cfg, rdb)
	if err != nil {
		return nil, err
	}

	deduper, err := c.buildDedupe(ctx, cfg, rdb)
	if err != nil {
		return nil, err
	}

	// ClickHouse audit trail
	var (
		audit service.AuditSink
		extra []service.Dependency
	)
	if cfg.Stores.ClickHouse.Enabled {
		ch, err := clickhouse.New(ctx, &cfg.Stores.ClickHouse)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize clickhouse client: %w", err)
		}
		c.onClose(func(context.Context) {
			if err := ch.Close(); err != nil {
				lg.Errorf("Failed to close by cleanupF clickhouse client: %v", err)
			}
		})
		lg.Infof("Successfully initialize clickhouse client, url=%s", strings.Split(cfg.Stores.ClickHouse.DSN, "?")[0])

		if err = ch.Migrate(ctx); err != nil {
			return nil, err
		}

		chWriter, err := clickhouse.NewWriter(lg, clickhouse.NativeInsert(ch.Native), cfg.Stores.ClickHouse.Writer)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize clickhouse writer: %w", err)
		}
		c.onClose(func(ctx context.Context) {
			if err := chWriter.Close(ctx); err != nil {
				lg.Errorf("Failed to close by cleanupF clickhouse writer: %v", err)
			}
		})
		lg.Info("Successfully initialize clickhouse writer")

		audit = chWriter
		extra = append(extra, service.Dependency{Name: "clickhouse", Check: ch.Health})
	}

	// NATS carries both the raw logs in and the stats patches out
	var (
		broadcaster pubsub.Broadcaster = pubsub.Noop{}
		natsCl      *nats.Client
	)
	if cfg.PubSub.NATS.URL != "" {
		if natsCl, err = nats.Connect(&cfg.PubSub.NATS, lg); err != nil {
			return nil, fmt.Errorf("failed to initialize nats client: %w", err)
		}
		c.onClose(func(context.Context) {
			if err := natsCl.Close(); err != nil {
				lg.Errorf("Failed to close by cleanupF nats client: %v", err)
			}
		})
		broadcaster = natsCl
	}

	eng, err := engine.New(lg, &cfg.Engine)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize engine: %w", err)
	}

	aggregatorService, err := service.NewAggregatorService(lg, service.Deps{
		Engine:      eng,
		Store:       st,
		Deduper:     deduper,
		Audit:       audit,
		Broadcaster: broadcaster,
		Metrics:     collector,
		Extra:       extra,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize aggregator service: %w", err)
	}
	c.onClose(func(context.Context) { aggregatorService.Close() })
	lg.Info("Successfully initialize aggregator service")

	dec, err := chain.NewDecoder()
	if err != nil {
		return nil, err
	}

	return &core{svc: aggregatorService, dec: dec, natsCl: natsCl, collector: collector, rdb: rdb}, nil
}

// BuildService wires the same pipeline as Build without the HTTP server and the NATS
// consumer. Used by offline tools such as cmd/replay.
func BuildService(ctx context.Context, cfg *config.Config) (*service.AggregatorService, *chain.Decoder, logger.Logger, func(), error) {
	if cfg == nil {
		return nil, nil, nil, nil, errors.New("config is required to build the service")
	}

	lg := logger.New(lgcfg.LoggerCfg{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})

	c := &Container{log: lg}
	cleanupF := func() {
		ctxClean, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		c.cleanup(ctxClean)
	}

	k, err := c.buildCore(ctx, cfg)
	if err != nil {
		cleanupF()
		return nil, nil, nil, nil, err
	}
	return k.svc, k.dec, lg, cleanupF, nil
}

func (c *Container) buildStore(ctx context.Context, cfg *config.Config, rdb *redis.Client) (store.Store, error) {
	lg := c.log

	var (
		st  store.Store
		err error
	)
	switch cfg.Stores.Backend {
	case "", "memory":
		memStore := memory.NewStore()
		if path := cfg.Stores.Memory.SnapshotPath; path != "" {
			loaded, err := memStore.LoadFile(path)
			if err != nil {
				return nil, fmt.Errorf("failed to restore memory store: %w", err)
			}
			if loaded {
				lg.Infof("Successfully restored memory store from %s", path)
			}
			c.onClose(func(context.Context) {
				if err := memStore.SaveFile(path); err != nil {
					lg.Errorf("Failed to save memory store snapshot: %v", err)
				}
			})
		}
		st = memStore
	case "redis":
		// closing the client is owned by the redis closer
		if st, err = redis.NewStore(rdb, cfg.Stores.Redis.Prefix); err != nil {
			return nil, fmt.Errorf("failed to initialize redis store: %w", err)
		}
	case "postgres":
		pool, err := postgres.NewPool(ctx, &cfg.Stores.Postgres)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize postgres pool: %w", err)
		}
		c.onClose(func(context.Context) { pool.Close() })

		pgStore, err := postgres.NewStore(pool)
		if err != nil {
			return nil, err
		}

		if cfg.Stores.Postgres.ApplyMigrations {
			if err = pool.Migrate(ctx); err != nil {
				return nil, err
			}
			lg.Info("Successfully applied postgres migrations")
		}
		st = pgStore
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Stores.Backend)
	}
	lg.Infof("Successfully initialize %s store", orMemory(cfg.Stores.Backend))

	if cfg.Stores.Cache.Enabled {
		if st, err = store.NewCached(st, cfg.Stores.Cache.Size); err != nil {
			return nil, fmt.Errorf("failed to initialize store cache: %w", err)
		}
		lg.Infof("Successfully initialize store cache, size=%d", cfg.Stores.Cache.Size)
	}
	return st, nil
}

func (c *Container) buildDedupe(ctx context.Context, cfg *config.Config, rdb *redis.Client) (dedupe.Deduper, error) {
	lg := c.log

	switch cfg.Dedupe.Backend {
	case "none":
		return dedupe.Noop{}, nil
	case "", "memory":
		d := dedupe.NewInMemoryDedupe(lg, cfg.Dedupe.TTL, cfg.Dedupe.JanitorEvery)
		c.onClose(func(context.Context) { d.Close() })
		lg.Info("Successfully initialize in-memory deduper")
		return d, nil
	case "redis":
		var (
			bloom *rdbdedupe.Bloom
			err   error
		)
		if cfg.Dedupe.Bloom.Enabled {
			if bloom, err = rdbdedupe.NewBloom(&cfg.Dedupe.Bloom, rdb); err != nil {
				return nil, fmt.Errorf("failed to initialize bloom: %w", err)
			}
			bloom = ensureBloom(ctx, lg, bloom)
		}

		d, err := rdbdedupe.NewRedisDeduper(lg, &cfg.Dedupe, rdb, bloom)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize redis deduper: %w", err)
		}
		lg.Infof("Successfully initialize Deduper redis_client by prefix %s", cfg.Dedupe.Prefix)
		return d, nil
	default:
		return nil, fmt.Errorf("unknown dedupe backend %q", cfg.Dedupe.Backend)
	}
}

// ensureBloom reserves the filter with the configured capacity and error rate. Without it the
// first BF.ADD would create the filter with server defaults. On failure dedupe uses keys only.
func ensureBloom(ctx context.Context, lg logger.Logger, bloom *rdbdedupe.Bloom) *rdbdedupe.Bloom {
	if err := bloom.Ensure(ctx); err != nil {
		lg.Warnf("Bloom %s unavailable, dedupe falls back to keys only: %v", bloom.Key, err)
		return nil
	}
	lg.Infof("Successfully initialize Bloom by key=%s, cap=%d, errRate=%f", bloom.Key, bloom.Capacity, bloom.ErrRate)
	return bloom
}

func (c *Container) buildHTTP(
	cfg *config.Config,
	rdb *redis.Client,
	collector *metrics.Collector,
	svc *service.AggregatorService,
	dec *chain.Decoder,
) (*apihttp.Server, error) {
	lg := c.log

	var (
		verifier *security.RS256Verifier
		jwtMW    *mw.JWTMiddleware
		rlMW     *mw.RateLimitMiddleware
		err      error
	)
	if cfg.Security.JWT.Enabled {
		if verifier, err = security.NewRS256Verifier(&cfg.Security.JWT); err != nil {
			return nil, fmt.Errorf("failed to initialize JWT-Verifier: %w", err)
		}
		if jwtMW, err = mw.NewJWTMiddleware(verifier, security.ScopeIngest); err != nil {
			return nil, err
		}
		lg.Info("Successfully initialize JWT-Verifier")
	}

	if cfg.RateLimit.Enabled {
		if rlMW, err = mw.NewRateLimit(&cfg.RateLimit, rdb, verifier); err != nil {
			return nil, fmt.Errorf("failed to initialize rate limiter: %w", err)
		}
		lg.Info("Successfully initialize rate limiter")
	}

	h, err := handlers.NewHandler(lg, svc, dec, cfg.API.HTTP.MaxBodyBytes)
	if err != nil {
		return nil, err
	}

	allowOpen := cfg.API.HTTP.AllowUnauthenticatedIngest
	switch {
	case jwtMW == nil && allowOpen:
		lg.Warn("POST /api/events is mounted without authentication")
	case jwtMW == nil:
		lg.Warn("POST /api/events is not mounted: JWT is disabled and unauthenticated ingest is not allowed")
	}

	router := apihttp.BuildRouter(h, collector.Handler(), mw.NewLogging(lg, collector), rlMW, jwtMW, allowOpen)

	httpSrv, err := apihttp.NewServer(lg, &cfg.API.HTTP, router)
	if err != nil {
		return nil, err
	}
	lg.Info("Successfully initialize HTTP server")
	return httpSrv, nil
}

func orMemory(backend string) string {
	if backend == "" {
		return "memory"
	}
	return backend
}
