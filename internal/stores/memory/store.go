package memory

import (
	"context"
	"sync"

	"referralstats/internal/domain"
	"referralstats/internal/store"
)

// Store is an in-memory implementation of store.Store.
type Store struct {
	mu   sync.RWMutex
	data map[domain.Collection]map[string][]byte
}

// NewStore creates a new in-memory entity store.
func NewStore() *Store {
	return &Store{
		data: make(map[domain.Collection]map[string][]byte, 16),
	}
}

// Compile-time interface check.
var _ store.Store = (*Store)(nil)

func (s *Store) Get(_ context.Context, c domain.Collection, id string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.data[c][id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return append([]byte(nil), b...), nil
}

// Commit applies all writes under one lock, so readers never observe half an event.
func (s *Store) Commit(_ context.Context, writes []store.Write) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, w := range writes {
		coll, ok := s.data[w.Collection]
		if !ok {
			coll = make(map[string][]byte, 64)
			s.data[w.Collection] = coll
		}
		coll[w.ID] = append([]byte(nil), w.Body...)
	}
	return nil
}

// Count returns the number of entities in a collection.
func (s *Store) Count(c domain.Collection) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data[c])
}

// IDs returns the ids of a collection in no particular order.
func (s *Store) IDs(c domain.Collection) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.data[c]))
	for id := range s.data[c] {
		out = append(out, id)
	}
	return out
}

func (s *Store) Health(context.Context) error { return nil }

func (s *Store) Close() error { return nil }
