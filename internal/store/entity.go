package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"referralstats/internal/domain"
)

// Entity is a snapshot that knows where it lives.
type Entity interface {
	Collection() domain.Collection
	Key() string
}

// entityPtr lets generic helpers allocate a *T and still call Entity methods on it.
type entityPtr[T any] interface {
	*T
	Entity
}

func collectionOf[T any, PT entityPtr[T]]() domain.Collection {
	var zero T
	return PT(&zero).Collection()
}

// Load decodes the entity stored under id. Missing entities return ErrNotFound.
func Load[T any, PT entityPtr[T]](ctx context.Context, tx *Tx, id string) (PT, error) {
	c := collectionOf[T, PT]()

	b, err := tx.Get(ctx, c, id)
	if err != nil {
		return nil, err
	}

	out := PT(new(T))
	if err = json.Unmarshal(b, out); err != nil {
		return nil, fmt.Errorf("decode %s/%s: %w", c, id, err)
	}
	return out, nil
}

func Put(tx *Tx, e Entity) error {
	b, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", e.Collection(), e.Key(), err)
	}
	return tx.Put(e.Collection(), e.Key(), b)
}

func Exists(ctx context.Context, tx *Tx, c domain.Collection, id string) (bool, error) {
	_, err := tx.Get(ctx, c, id)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}

// UpsertDefault loads id or, when absent, persists the entity built by factory.
// created reports whether the factory was used.
func UpsertDefault[T any, PT entityPtr[T]](ctx context.Context, tx *Tx, id string, factory func() PT) (PT, bool, error) {
	e, err := Load[T, PT](ctx, tx, id)
	if err == nil {
		return e, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}

	e = factory()
	if err = Put(tx, e); err != nil {
		return nil, false, err
	}
	return e, true, nil
}
