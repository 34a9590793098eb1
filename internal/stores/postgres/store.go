package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"referralstats/internal/domain"
	"referralstats/internal/store"
)

// Store implements store.Store on a single jsonb table keyed by (collection, id).
type Store struct {
	pool *Pool
}

// Compile-time interface check.
var _ store.Store = (*Store)(nil)

func NewStore(pool *Pool) (*Store, error) {
	if pool == nil {
		return nil, errors.New("pool is required to the postgres store")
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Get(ctx context.Context, c domain.Collection, id string) ([]byte, error) {
	var body string
	err := s.pool.QueryRow(ctx,
		`SELECT body::text FROM entities WHERE collection = $1 AND id = $2`,
		string(c), id,
	).Scan(&body)
	if isNotFoundError(err) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select %s/%s: %w", c, id, err)
	}
	return []byte(body), nil
}

// Commit upserts all writes in one transaction.
func (s *Store) Commit(ctx context.Context, writes []store.Write) error {
	if len(writes) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	batch := &pgx.Batch{}
	for _, w := range writes {
		batch.Queue(`
			INSERT INTO entities (collection, id, body, updated_at)
			VALUES ($1, $2, $3::jsonb, now())
			ON CONFLICT (collection, id) DO UPDATE
			SET body = EXCLUDED.body, updated_at = EXCLUDED.updated_at
		`, string(w.Collection), w.ID, string(w.Body))
	}

	if err = tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("upsert %d entities: %w", len(writes), err)
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (s *Store) Count(ctx context.Context, c domain.Collection) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx, `SELECT count(*) FROM entities WHERE collection = $1`, string(c)).Scan(&n)
	return n, err
}

func (s *Store) Health(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}
