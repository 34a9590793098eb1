package store_test

import (
	"context"
	"errors"
	"testing"

	"referralstats/internal/domain"
	"referralstats/internal/store"
	"referralstats/internal/stores/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingStore struct {
	*memory.Store
	commits int
}

func (f *failingStore) Commit(context.Context, []store.Write) error {
	f.commits++
	return errors.New("boom")
}

func TestTx_ReadsOwnWrites(t *testing.T) {
	ctx := context.Background()
	st := memory.NewStore()
	tx := store.Begin(st)

	require.NoError(t, store.Put(tx, &domain.Tier{ID: "1", TotalRebate: 1000, DiscountShare: 5000}))

	tier, err := store.Load[domain.Tier](ctx, tx, "1")
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), tier.TotalRebate)

	// not yet visible in the backend
	_, err = st.Get(ctx, domain.CollectionTiers, "1")
	assert.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, tx.Commit(ctx))

	_, err = st.Get(ctx, domain.CollectionTiers, "1")
	assert.NoError(t, err)
}

func TestTx_DroppedLeavesBackendUntouched(t *testing.T) {
	ctx := context.Background()
	st := memory.NewStore()

	tx := store.Begin(st)
	require.NoError(t, store.Put(tx, domain.NewReferrer("0xaa")))
	require.NoError(t, store.Put(tx, domain.NewTier("0")))
	assert.Equal(t, 2, tx.Len())

	assert.Equal(t, 0, st.Count(domain.CollectionReferrers))
	assert.Equal(t, 0, st.Count(domain.CollectionTiers))

	_, err := st.Get(ctx, domain.CollectionReferrers, "0xaa")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestTx_LastWriteWinsAndKeepsFirstOrder(t *testing.T) {
	tx := store.Begin(memory.NewStore())

	require.NoError(t, store.Put(tx, &domain.Tier{ID: "1", TotalRebate: 1}))
	require.NoError(t, store.Put(tx, &domain.Tier{ID: "2", TotalRebate: 2}))
	require.NoError(t, store.Put(tx, &domain.Tier{ID: "1", TotalRebate: 3}))

	writes := tx.Writes()
	require.Len(t, writes, 2)
	assert.Equal(t, "1", writes[0].ID)
	assert.Contains(t, string(writes[0].Body), `"totalRebate":3`)
	assert.Equal(t, "2", writes[1].ID)
}

func TestTx_CommitTwice(t *testing.T) {
	ctx := context.Background()
	tx := store.Begin(memory.NewStore())
	require.NoError(t, tx.Commit(ctx))

	assert.ErrorIs(t, tx.Commit(ctx), store.ErrTxDone)
	assert.ErrorIs(t, tx.Put(domain.CollectionTiers, "1", nil), store.ErrTxDone)
}

func TestTx_EmptyCommitSkipsBackend(t *testing.T) {
	fs := &failingStore{Store: memory.NewStore()}
	tx := store.Begin(fs)

	require.NoError(t, tx.Commit(context.Background()))
	assert.Equal(t, 0, fs.commits)
}

func TestTx_CommitErrorIsWrapped(t *testing.T) {
	fs := &failingStore{Store: memory.NewStore()}
	tx := store.Begin(fs)
	require.NoError(t, store.Put(tx, domain.NewTier("0")))

	err := tx.Commit(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "commit 1 writes")
}

func TestUpsertDefault(t *testing.T) {
	ctx := context.Background()
	tx := store.Begin(memory.NewStore())

	tier, created, err := store.UpsertDefault[domain.Tier](ctx, tx, "0", func() *domain.Tier {
		return domain.NewTier("0")
	})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, uint64(domain.DefaultTierDiscountShare), tier.DiscountShare)

	tier.TotalRebate = 700
	require.NoError(t, store.Put(tx, tier))

	again, created, err := store.UpsertDefault[domain.Tier](ctx, tx, "0", func() *domain.Tier {
		t.Fatal("factory must not run for an existing entity")
		return nil
	})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, uint64(700), again.TotalRebate)
}

func TestExists(t *testing.T) {
	ctx := context.Background()
	tx := store.Begin(memory.NewStore())

	ok, err := store.Exists(ctx, tx, domain.CollectionUniqueReferrals, "x")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Put(tx, &domain.UniqueReferral{ID: "x"}))
	ok, err = store.Exists(ctx, tx, domain.CollectionUniqueReferrals, "x")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLoad_CorruptSnapshot(t *testing.T) {
	ctx := context.Background()
	st := memory.NewStore()
	require.NoError(t, st.Commit(ctx, []store.Write{{Collection: domain.CollectionTiers, ID: "9", Body: []byte("{")}}))

	_, err := store.Load[domain.Tier](ctx, store.Begin(st), "9")
	require.Error(t, err)
	assert.NotErrorIs(t, err, store.ErrNotFound)
}

func TestCached_ReadThroughAndCommit(t *testing.T) {
	ctx := context.Background()
	inner := memory.NewStore()
	require.NoError(t, inner.Commit(ctx, []store.Write{{Collection: domain.CollectionTiers, ID: "1", Body: []byte(`{"id":"1"}`)}}))

	cached, err := store.NewCached(inner, 8)
	require.NoError(t, err)

	b, err := cached.Get(ctx, domain.CollectionTiers, "1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"1"}`, string(b))
	assert.Equal(t, 1, cached.Len())

	_, err = cached.Get(ctx, domain.CollectionTiers, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Equal(t, 1, cached.Len())

	require.NoError(t, cached.Commit(ctx, []store.Write{{Collection: domain.CollectionTiers, ID: "2", Body: []byte(`{"id":"2"}`)}}))
	assert.Equal(t, 2, cached.Len())

	b, err = inner.Get(ctx, domain.CollectionTiers, "2")
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"2"}`, string(b))
}

func TestCached_FailedCommitDoesNotPopulate(t *testing.T) {
	fs := &failingStore{Store: memory.NewStore()}
	cached, err := store.NewCached(fs, 8)
	require.NoError(t, err)

	err = cached.Commit(context.Background(), []store.Write{{Collection: domain.CollectionTiers, ID: "1", Body: []byte(`{}`)}})
	assert.Error(t, err)
	assert.Equal(t, 0, cached.Len())
}

func TestNewCached_NilInner(t *testing.T) {
	c, err := store.NewCached(nil, 1)
	assert.Error(t, err)
	assert.Nil(t, c)
}
