package redis

import (
	"context"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"referralstats/internal/domain"
	"referralstats/internal/store"
)

// Store keeps every collection in one Redis hash: <prefix><collection> -> {id: json}.
type Store struct {
	rdb    *Client
	prefix string
}

var _ store.Store = (*Store)(nil)

func NewStore(rdb *Client, prefix string) (*Store, error) {
	if rdb == nil {
		return nil, errors.New("redis client is required to the redis store")
	}
	if prefix == "" {
		prefix = "refstats:"
	}
	return &Store{rdb: rdb, prefix: prefix}, nil
}

func (s *Store) hashKey(c domain.Collection) string {
	return s.prefix + string(c)
}

func (s *Store) Get(ctx context.Context, c domain.Collection, id string) ([]byte, error) {
	b, err := s.rdb.HGet(ctx, s.hashKey(c), id).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis HGET %s/%s: %w", c, id, err)
	}
	return b, nil
}

// Commit sends all writes in one MULTI/EXEC block.
func (s *Store) Commit(ctx context.Context, writes []store.Write) error {
	if len(writes) == 0 {
		return nil
	}

	_, err := s.rdb.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		for _, w := range writes {
			p.HSet(ctx, s.hashKey(w.Collection), w.ID, w.Body)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis MULTI/EXEC: %w", err)
	}
	return nil
}

// Count is the number of entities in a collection.
func (s *Store) Count(ctx context.Context, c domain.Collection) (int64, error) {
	return s.rdb.HLen(ctx, s.hashKey(c)).Result()
}

func (s *Store) Health(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func (s *Store) Close() error {
	return s.rdb.Close()
}
