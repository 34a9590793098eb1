package redis

import (
	"context"
	"fmt"
	"time"

	"referralstats/internal/config"
	"referralstats/internal/dedupe"
	rdb "referralstats/internal/stores/redis"

	"gitlab.com/nevasik7/alerting/logger"
)

var _ dedupe.Deduper = (*RedisDedupe)(nil)

type RedisDedupe struct {
	log    logger.Logger
	rdb    *rdb.Client
	ttl    time.Duration
	prefix string
	bloom  *Bloom // optional
}

// Cluster dedupe on Redis keys + TTL (0 = keep forever)
// prefix example "refstats:dedupe:"
func NewRedisDeduper(log logger.Logger, cfg *config.DedupeConfig, rdb *rdb.Client, bloom *Bloom) (*RedisDedupe, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required to the redis deduper")
	}
	if rdb == nil {
		return nil, fmt.Errorf("redis client is required to the redis deduper")
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "dedupe:"
	}

	return &RedisDedupe{
		log:    log,
		rdb:    rdb,
		ttl:    cfg.TTL,
		prefix: prefix,
		bloom:  bloom,
	}, nil
}

func (d *RedisDedupe) Contains(ctx context.Context, id string) (bool, error) {
	// bloom "definitely not seen" -> skip the key lookup; "maybe seen" or an error -> ask the key
	if d.bloom != nil {
		if exists, err := d.bloom.Exists(ctx, id); err == nil && !exists {
			return false, nil
		}
	}

	n, err := d.rdb.Exists(ctx, d.prefix+id).Result()
	if err != nil {
		d.log.Errorf("Redis Exists error=%v", err)
		return false, fmt.Errorf("redis Exists error=%w", err)
	}

	return n > 0, nil
}

func (d *RedisDedupe) Add(ctx context.Context, id string) error {
	if err := d.rdb.Set(ctx, d.prefix+id, 1, d.ttl).Err(); err != nil {
		d.log.Errorf("Redis Set error=%v", err)
		return fmt.Errorf("redis Set error=%w", err)
	}

	if d.bloom != nil {
		if _, err := d.bloom.Add(ctx, id); err != nil {
			d.log.Warnf("Failed to add bloom id %s, err=%v", id, err)
		}
	}

	return nil
}

func (d *RedisDedupe) Health(ctx context.Context) error {
	return d.rdb.Ping(ctx).Err()
}
