package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	App       AppConfig       `yaml:"app"`
	Logging   LoggingConfig   `yaml:"logging"`
	Engine    EngineConfig    `yaml:"engine"`
	Security  SecurityConfig  `yaml:"security"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Dedupe    DedupeConfig    `yaml:"dedupe"`
	Stores    StoresConfig    `yaml:"stores"`
	PubSub    PubSubConfig    `yaml:"pubsub"`
	API       APIConfig       `yaml:"api"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

type AppConfig struct {
	InstanceID      string        `yaml:"instance_id"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug|info|warn|error
	Format string `yaml:"format"` // json|console
}

type EngineConfig struct {
	// Skip events whose tx_hash:log_index was already committed.
	ReplayGuard bool `yaml:"replay_guard"`
	// Create a missing tier with defaults instead of failing the event.
	MaterializeDefaultTier bool `yaml:"materialize_default_tier"`
}

type JWTConfig struct {
	Enabled        bool          `yaml:"enabled"`
	Alg            string        `yaml:"alg"` // RS256
	PublicKeyPath  string        `yaml:"public_key_path"`
	PrivateKeyPath string        `yaml:"private_key_path"`
	Audience       string        `yaml:"audience"`
	Issuer         string        `yaml:"issuer"`
	Leeway         time.Duration `yaml:"leeway"`
	TTL            time.Duration `yaml:"ttl"`
}

type SecurityConfig struct {
	JWT JWTConfig `yaml:"jwt"`
}

type RateBucketConfig struct {
	RefillPerSec int           `yaml:"refill_per_sec"`
	Burst        int           `yaml:"burst"`
	TTL          time.Duration `yaml:"ttl"`
}

type RateLimitConfig struct {
	Enabled bool             `yaml:"enabled"`
	ByJWT   RateBucketConfig `yaml:"by_jwt"`
	ByIP    RateBucketConfig `yaml:"by_ip"`
}

type BloomConfig struct {
	Enabled  bool    `yaml:"enabled"`
	Key      string  `yaml:"key"`
	Capacity int64   `yaml:"capacity"`
	ErrRate  float64 `yaml:"err_rate"`
}

type DedupeConfig struct {
	Backend      string        `yaml:"backend"` // none|memory|redis
	Prefix       string        `yaml:"prefix"`
	TTL          time.Duration `yaml:"ttl"`
	JanitorEvery time.Duration `yaml:"janitor_every"`
	Bloom        BloomConfig   `yaml:"bloom"`
}

type RedisConfig struct {
	Addr         string        `yaml:"addr"`
	Username     string        `yaml:"username"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	Prefix       string        `yaml:"prefix"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type PostgresConfig struct {
	DSN             string `yaml:"dsn"`
	MaxConns        int32  `yaml:"max_conns"`
	ApplyMigrations bool   `yaml:"apply_migrations"`
}

type ClickHouseWriterConfig struct {
	BatchMaxRows     int           `yaml:"batch_max_rows"`
	BatchMaxInterval time.Duration `yaml:"batch_max_interval"`
	MaxRetries       int           `yaml:"max_retries"`
	RetryBackoff     time.Duration `yaml:"retry_backoff"`
}

type ClickHouseConfig struct {
	Enabled bool                   `yaml:"enabled"`
	DSN     string                 `yaml:"dsn"`
	Writer  ClickHouseWriterConfig `yaml:"writer"`
}

type CacheConfig struct {
	Enabled bool `yaml:"enabled"`
	Size    int  `yaml:"size"`
}

type MemoryConfig struct {
	// Gob snapshot loaded at start and written at shutdown; empty disables it.
	SnapshotPath string `yaml:"snapshot_path"`
}

type StoresConfig struct {
	Backend    string           `yaml:"backend"` // memory|redis|postgres
	Cache      CacheConfig      `yaml:"cache"`
	Memory     MemoryConfig     `yaml:"memory"`
	Redis      RedisConfig      `yaml:"redis"`
	Postgres   PostgresConfig   `yaml:"postgres"`
	ClickHouse ClickHouseConfig `yaml:"clickhouse"`
}

type NATSConfig struct {
	URL             string `yaml:"url"`
	EventsSubject   string `yaml:"events_subject"`
	QueueGroup      string `yaml:"queue_group"`
	BroadcastPrefix string `yaml:"broadcast_prefix"`
}

type PubSubConfig struct {
	NATS NATSConfig `yaml:"nats"`
}

type HTTPConfig struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
	MaxBodyBytes int64         `yaml:"max_body_bytes"`
	// Mount POST /api/events without JWT. Only for local development.
	AllowUnauthenticatedIngest bool `yaml:"allow_unauthenticated_ingest"`
}

type APIConfig struct {
	HTTP HTTPConfig `yaml:"http"`
}

type PyroscopeConfig struct {
	Enabled    bool              `yaml:"enabled"`
	AppName    string            `yaml:"app_name"`
	ServerAddr string            `yaml:"server_addr"`
	AuthToken  string            `yaml:"auth_token"`
	Tags       map[string]string `yaml:"tags"`
}

type MetricsConfig struct {
	Namespace string          `yaml:"namespace"`
	Pyroscope PyroscopeConfig `yaml:"pyroscope"`
}

// Default returns the settings used for keys the YAML file leaves out.
func Default() *Config {
	cfg := &Config{}
	cfg.App.ShutdownTimeout = 10 * time.Second
	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"
	cfg.Engine.ReplayGuard = true
	cfg.Dedupe.Backend = "memory"
	cfg.Dedupe.TTL = 24 * time.Hour
	cfg.Stores.Backend = "memory"
	cfg.PubSub.NATS.EventsSubject = "referrals.logs"
	cfg.PubSub.NATS.BroadcastPrefix = "referrals.stats"
	cfg.API.HTTP.Addr = ":8080"
	cfg.Metrics.Namespace = "referral"
	return cfg
}

func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err = yaml.Unmarshal(b, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}
