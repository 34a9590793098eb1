package store

import (
	"context"
	"errors"

	"referralstats/internal/domain"
)

var (
	// ErrNotFound is returned by Get when the id is absent from the collection.
	ErrNotFound = errors.New("entity not found")

	// ErrTxDone is returned when a unit of work is used after Commit.
	ErrTxDone = errors.New("unit of work already committed")
)

// Write is one entity snapshot to persist.
type Write struct {
	Collection domain.Collection
	ID         string
	Body       []byte
}

// Store is the keyed entity store contract every backend implements
// (memory, redis, postgres).
type Store interface {
	// Get returns the last committed snapshot of an entity or ErrNotFound.
	Get(ctx context.Context, c domain.Collection, id string) ([]byte, error)

	// Commit applies all writes atomically; last write wins per key.
	Commit(ctx context.Context, writes []Write) error

	Health(ctx context.Context) error
	Close() error
}
