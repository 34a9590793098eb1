package redis

import (
	"context"
	"errors"
	"fmt"

	"referralstats/internal/config"
	rdb "referralstats/internal/stores/redis"
)

/*
The Bloom prefilter answers "definitely not committed" without touching the dedupe keys.
Fresh events are the common case on a live stream, so most lookups stop here:
	- "definitely not seen" -> Contains=false right away;
	- "maybe seen" -> confirm with the exact key, a false positive never drops an event.
Needs the RedisBloom module (BF.*). Without it every call errors and the deduper falls back to the key.
*/

type Bloom struct {
	rdb      *rdb.Client
	Key      string
	Capacity int64
	ErrRate  float64
}

func NewBloom(cfg *config.BloomConfig, rdb *rdb.Client) (*Bloom, error) {
	if cfg == nil {
		return nil, errors.New("bloom config is required to the bloom")
	}
	if rdb == nil {
		return nil, errors.New("redis client is required to the bloom")
	}

	key := cfg.Key
	if key == "" {
		key = "dedupe:bf:events"
	}

	capacity := cfg.Capacity
	if capacity <= 0 {
		capacity = 1_000_000
	}

	errRate := cfg.ErrRate
	if errRate <= 0 {
		errRate = 0.001 // 0.1%
	}

	return &Bloom{
		rdb:      rdb,
		Key:      key,
		Capacity: capacity,
		ErrRate:  errRate,
	}, nil
}

// Create filter if not exists. Repeated calls are safe
func (b *Bloom) Ensure(ctx context.Context) error {
	exists, err := b.rdb.Exists(ctx, b.Key).Result()
	if err != nil {
		return fmt.Errorf("failed to check if redis exists to the bloom, error: %w", err)
	}
	if exists > 0 {
		return nil // exists
	}

	// try added
	res := b.rdb.Do(ctx, "BF.RESERVE", b.Key, b.ErrRate, b.Capacity)
	if res.Err() != nil {
		return fmt.Errorf("BF.RESERVE failed: %w", res.Err()) // if module not load -> err unknown command 'BF.RESERVE'
	}

	return nil
}

// Add puts item into the filter. true -> the item was definitely not there before
func (b *Bloom) Add(ctx context.Context, item string) (bool, error) {
	res := b.rdb.Do(ctx, "BF.ADD", b.Key, item)
	if err := res.Err(); err != nil {
		return false, fmt.Errorf("failed to add item to bloom: %w", err)
	}

	// BF.ADD -> 1 -> newly added; 0 -> probably present already
	v, err := res.Int()
	return v == 1, err
}

// Check exists, true -> item "probably" exists
func (b *Bloom) Exists(ctx context.Context, item string) (bool, error) {
	res := b.rdb.Do(ctx, "BF.EXISTS", b.Key, item)
	if err := res.Err(); err != nil {
		return false, fmt.Errorf("failed to check if item exists to bloom: %w", err)
	}
	v, err := res.Int()
	return v == 1, err
}

// Get key filter
func (b *Bloom) GetKey() string {
	return b.Key
}
