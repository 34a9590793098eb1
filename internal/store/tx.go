package store

import (
	"context"
	"fmt"

	"referralstats/internal/domain"
)

type writeKey struct {
	c  domain.Collection
	id string
}

// Tx buffers every write of one event and flushes them in a single Commit.
// Reads see the buffered writes first. Dropping a Tx without Commit leaves the
// backend untouched. A Tx is not safe for concurrent use.
type Tx struct {
	st      Store
	pending map[writeKey][]byte
	order   []writeKey
	done    bool
}

func Begin(st Store) *Tx {
	return &Tx{
		st:      st,
		pending: make(map[writeKey][]byte, 16),
	}
}

func (t *Tx) Get(ctx context.Context, c domain.Collection, id string) ([]byte, error) {
	if t.done {
		return nil, ErrTxDone
	}
	if b, ok := t.pending[writeKey{c, id}]; ok {
		return b, nil
	}
	return t.st.Get(ctx, c, id)
}

func (t *Tx) Put(c domain.Collection, id string, body []byte) error {
	if t.done {
		return ErrTxDone
	}
	k := writeKey{c, id}
	if _, ok := t.pending[k]; !ok {
		t.order = append(t.order, k)
	}
	t.pending[k] = body
	return nil
}

// Len is the number of distinct keys written so far.
func (t *Tx) Len() int {
	return len(t.order)
}

// Writes returns buffered writes in first-write order.
func (t *Tx) Writes() []Write {
	out := make([]Write, 0, len(t.order))
	for _, k := range t.order {
		out = append(out, Write{Collection: k.c, ID: k.id, Body: t.pending[k]})
	}
	return out
}

func (t *Tx) Commit(ctx context.Context) error {
	if t.done {
		return ErrTxDone
	}
	if len(t.order) > 0 {
		if err := t.st.Commit(ctx, t.Writes()); err != nil {
			return fmt.Errorf("commit %d writes: %w", len(t.order), err)
		}
	}
	t.done = true
	return nil
}
