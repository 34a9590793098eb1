package clickhouse

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"referralstats/internal/config"
	"referralstats/internal/domain"
	"referralstats/internal/testutil"
)

type fakeInsert struct {
	mu       sync.Mutex
	failures int // fail this many calls first
	calls    int
	rows     map[string][][]interface{}
}

func (f *fakeInsert) insert(_ context.Context, query string, rows [][]interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls++
	if f.failures > 0 {
		f.failures--
		return errors.New("connection reset")
	}
	if f.rows == nil {
		f.rows = make(map[string][][]interface{})
	}
	f.rows[query] = append(f.rows[query], rows...)
	return nil
}

func (f *fakeInsert) count(query string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rows[query])
}

func newTestWriter(t *testing.T, f *fakeInsert, cfg config.ClickHouseWriterConfig) *Writer {
	t.Helper()
	w, err := NewWriter(testutil.Logger(), f.insert, cfg)
	require.NoError(t, err)
	return w
}

func sampleRecord() *domain.ReferralVolumeRecord {
	return &domain.ReferralVolumeRecord{
		ID:              "0xaa:1",
		Direction:       domain.DirectionIncrease,
		Volume:          domain.MustAmount("123456"),
		FeesUsd:         domain.NewAmount(123),
		TotalRebateUsd:  domain.NewAmount(36),
		DiscountUsd:     domain.NewAmount(18),
		TransactionHash: "0xaa",
		Timestamp:       1_700_000_000,
	}
}

func TestNewWriter_RequiresInsert(t *testing.T) {
	w, err := NewWriter(testutil.Logger(), nil, config.ClickHouseWriterConfig{})
	assert.Nil(t, w)
	assert.Error(t, err)
}

func TestWriter_FlushesOnClose(t *testing.T) {
	f := &fakeInsert{}
	w := newTestWriter(t, f, config.ClickHouseWriterConfig{BatchMaxRows: 100, BatchMaxInterval: time.Hour})

	dists := []*domain.Distribution{
		{ID: "0x1:0xaa:1", Amount: domain.NewAmount(5), Timestamp: 1},
		{ID: "0x2:0xaa:1", Amount: domain.NewAmount(7), Timestamp: 1},
	}
	require.NoError(t, w.Record(sampleRecord(), dists))
	require.NoError(t, w.Close(context.Background()))

	assert.Equal(t, 1, f.count(insertVolumeRecords))
	assert.Equal(t, 2, f.count(insertDistributions))

	row := f.rows[insertVolumeRecords][0]
	require.Len(t, row, 16)
	assert.Equal(t, "0xaa:1", row[0])
	assert.Equal(t, time.Unix(1_700_000_000, 0).UTC(), row[1])
	assert.Equal(t, "increase", row[4])
	assert.Equal(t, 0, big.NewInt(123456).Cmp(row[12].(*big.Int)))

	flushed, failed := w.Stats()
	assert.Equal(t, 3, flushed)
	assert.Equal(t, 0, failed)

	assert.ErrorIs(t, w.Record(sampleRecord(), nil), ErrWriterClosed)
}

func TestWriter_FlushesBySize(t *testing.T) {
	f := &fakeInsert{}
	w := newTestWriter(t, f, config.ClickHouseWriterConfig{BatchMaxRows: 2, BatchMaxInterval: time.Hour})
	defer w.Close(context.Background())

	require.NoError(t, w.Record(sampleRecord(), nil))
	require.NoError(t, w.Record(sampleRecord(), nil))

	assert.Eventually(t, func() bool {
		return f.count(insertVolumeRecords) == 2
	}, time.Second, 5*time.Millisecond)
}

func TestWriter_FlushesByInterval(t *testing.T) {
	f := &fakeInsert{}
	w := newTestWriter(t, f, config.ClickHouseWriterConfig{BatchMaxRows: 1000, BatchMaxInterval: 10 * time.Millisecond})
	defer w.Close(context.Background())

	require.NoError(t, w.Record(sampleRecord(), nil))

	assert.Eventually(t, func() bool {
		return f.count(insertVolumeRecords) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestWriter_RetriesThenSucceeds(t *testing.T) {
	f := &fakeInsert{failures: 2}
	w := newTestWriter(t, f, config.ClickHouseWriterConfig{
		BatchMaxRows:     1000,
		BatchMaxInterval: time.Hour,
		MaxRetries:       3,
		RetryBackoff:     time.Millisecond,
	})

	require.NoError(t, w.Record(sampleRecord(), nil))
	require.NoError(t, w.Close(context.Background()))

	assert.Equal(t, 3, f.calls)
	assert.Equal(t, 1, f.count(insertVolumeRecords))
}

func TestWriter_DropsAfterRetries(t *testing.T) {
	f := &fakeInsert{failures: 10}
	w := newTestWriter(t, f, config.ClickHouseWriterConfig{
		BatchMaxRows:     1000,
		BatchMaxInterval: time.Hour,
		MaxRetries:       1,
		RetryBackoff:     time.Millisecond,
	})

	require.NoError(t, w.Record(sampleRecord(), nil))
	require.NoError(t, w.Close(context.Background()))

	assert.Equal(t, 2, f.calls)
	flushed, failed := w.Stats()
	assert.Equal(t, 0, flushed)
	assert.Equal(t, 1, failed)
}
