package store

import (
	"context"
	"errors"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"referralstats/internal/domain"
)

// Cached is a read-through LRU in front of a durable backend. It is only coherent
// while this process is the single writer of the backend.
type Cached struct {
	inner Store
	lru   *lru.Cache[string, []byte]
}

var _ Store = (*Cached)(nil)

func NewCached(inner Store, size int) (*Cached, error) {
	if inner == nil {
		return nil, errors.New("inner store is required to the cache")
	}
	if size <= 0 {
		size = 10_000
	}

	c, err := lru.New[string, []byte](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create lru cache: %w", err)
	}
	return &Cached{inner: inner, lru: c}, nil
}

func cacheKey(c domain.Collection, id string) string {
	return string(c) + "/" + id
}

func (s *Cached) Get(ctx context.Context, c domain.Collection, id string) ([]byte, error) {
	k := cacheKey(c, id)
	if b, ok := s.lru.Get(k); ok {
		return b, nil
	}

	b, err := s.inner.Get(ctx, c, id)
	if err != nil {
		return nil, err
	}
	s.lru.Add(k, b)
	return b, nil
}

// Commit updates the cache only after the backend accepted the writes.
func (s *Cached) Commit(ctx context.Context, writes []Write) error {
	if err := s.inner.Commit(ctx, writes); err != nil {
		return err
	}
	for _, w := range writes {
		s.lru.Add(cacheKey(w.Collection, w.ID), w.Body)
	}
	return nil
}

func (s *Cached) Len() int {
	return s.lru.Len()
}

func (s *Cached) Health(ctx context.Context) error {
	return s.inner.Health(ctx)
}

func (s *Cached) Close() error {
	s.lru.Purge()
	return s.inner.Close()
}
