package clickhouse

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	ch "github.com/ClickHouse/clickhouse-go/v2"
	"github.com/cenkalti/backoff/v4"
	"gitlab.com/nevasik7/alerting/logger"

	"referralstats/internal/config"
	"referralstats/internal/domain"
)

var ErrWriterClosed = errors.New("clickhouse writer closed")

const (
	insertVolumeRecords = `INSERT INTO referral_volume_records (
		id, timestamp, block_number, tx_hash, direction, referral, referral_code, referrer,
		tier_id, margin_fee, total_rebate, discount_share,
		volume, fees_usd, total_rebate_usd, discount_usd
	)`
	insertDistributions = `INSERT INTO distributions (
		id, timestamp, block_number, tx_hash, type_id, token, receiver, amount
	)`
)

// InsertFunc sends one batch of rows to a table insert statement.
type InsertFunc func(ctx context.Context, query string, rows [][]interface{}) error

// NativeInsert adapts a clickhouse connection to InsertFunc.
func NativeInsert(conn ch.Conn) InsertFunc {
	return func(ctx context.Context, query string, rows [][]interface{}) error {
		batch, err := conn.PrepareBatch(ctx, query)
		if err != nil {
			return err
		}
		for _, r := range rows {
			if err = batch.Append(r...); err != nil {
				_ = batch.Abort()
				return err
			}
		}
		return batch.Send()
	}
}

type auditRow struct {
	query  string
	values []interface{}
}

// Writer buffers audit rows and flushes them in batches, by size or by interval.
// It is best-effort: a batch that still fails after the retries is logged and dropped.
type Writer struct {
	log    logger.Logger
	insert InsertFunc
	cfg    config.ClickHouseWriterConfig

	inCh      chan auditRow
	closedCh  chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup

	mu      sync.Mutex
	flushed int
	failed  int
}

func NewWriter(log logger.Logger, insert InsertFunc, cfg config.ClickHouseWriterConfig) (*Writer, error) {
	if insert == nil {
		return nil, errors.New("insert func is required to the clickhouse writer")
	}

	// sane defaults
	if cfg.BatchMaxRows <= 0 {
		cfg.BatchMaxRows = 1000
	}
	if cfg.BatchMaxInterval <= 0 {
		cfg.BatchMaxInterval = 200 * time.Millisecond
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 200 * time.Millisecond
	}

	w := &Writer{
		log:      log,
		insert:   insert,
		cfg:      cfg,
		inCh:     make(chan auditRow, 8192),
		closedCh: make(chan struct{}),
	}

	w.wg.Add(1)
	go w.loop()

	return w, nil
}

// Record queues the audit rows of one committed event.
func (w *Writer) Record(vr *domain.ReferralVolumeRecord, ds []*domain.Distribution) error {
	if vr != nil {
		if err := w.enqueue(auditRow{query: insertVolumeRecords, values: volumeValues(vr)}); err != nil {
			return err
		}
	}
	for _, d := range ds {
		if err := w.enqueue(auditRow{query: insertDistributions, values: distributionValues(d)}); err != nil {
			return err
		}
	}
	return nil
}

func volumeValues(r *domain.ReferralVolumeRecord) []interface{} {
	return []interface{}{
		r.ID,
		time.Unix(int64(r.Timestamp), 0).UTC(),
		r.BlockNumber,
		r.TransactionHash,
		string(r.Direction),
		r.Referral,
		r.ReferralCode,
		r.Referrer,
		r.TierID,
		r.MarginFee,
		r.TotalRebate,
		r.DiscountShare,
		r.Volume.BigInt(),
		r.FeesUsd.BigInt(),
		r.TotalRebateUsd.BigInt(),
		r.DiscountUsd.BigInt(),
	}
}

func distributionValues(d *domain.Distribution) []interface{} {
	return []interface{}{
		d.ID,
		time.Unix(int64(d.Timestamp), 0).UTC(),
		d.BlockNumber,
		d.TransactionHash,
		d.TypeID,
		d.Token,
		d.Receiver,
		d.Amount.BigInt(),
	}
}

func (w *Writer) enqueue(row auditRow) error {
	select {
	case <-w.closedCh:
		return ErrWriterClosed
	default:
	}

	select {
	case w.inCh <- row:
		return nil
	case <-w.closedCh:
		return ErrWriterClosed
	}
}

// Stats reports how many rows were written and how many were dropped after retries.
func (w *Writer) Stats() (flushed, failed int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.flushed, w.failed
}

// Close flushes what is buffered and stops the loop.
func (w *Writer) Close(ctx context.Context) error {
	w.closeOnce.Do(func() {
		close(w.closedCh)
	})

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Writer) loop() {
	defer w.wg.Done()

	batches := make(map[string][][]interface{}, 2)
	pending := 0

	ticker := time.NewTicker(w.cfg.BatchMaxInterval)
	defer ticker.Stop()

	flush := func() {
		for query, rows := range batches {
			if len(rows) == 0 {
				continue
			}
			err := w.insertWithRetry(context.Background(), query, rows)

			w.mu.Lock()
			if err != nil {
				w.failed += len(rows)
			} else {
				w.flushed += len(rows)
			}
			w.mu.Unlock()

			if err != nil {
				w.log.Errorf("Failed insert [%d] rows by batch to clickhouse, error=%v", len(rows), err)
			}
			batches[query] = rows[:0]
		}
		pending = 0
	}

	add := func(r auditRow) {
		batches[r.query] = append(batches[r.query], r.values)
		pending++
		if pending >= w.cfg.BatchMaxRows {
			flush()
		}
	}

	for {
		select {
		case r := <-w.inCh:
			add(r)
		case <-ticker.C:
			flush()
		case <-w.closedCh:
			for {
				select {
				case r := <-w.inCh:
					add(r)
				default:
					flush()
					return
				}
			}
		}
	}
}

// insertWithRetry retries with exponential delay starting at RetryBackoff.
func (w *Writer) insertWithRetry(ctx context.Context, query string, rows [][]interface{}) error {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = w.cfg.RetryBackoff
	eb.Multiplier = 2
	eb.RandomizationFactor = 0
	eb.MaxElapsedTime = 0

	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		return w.insert(ctx, query, rows)
	}, backoff.WithContext(backoff.WithMaxRetries(eb, uint64(w.cfg.MaxRetries)), ctx))
	if err != nil {
		return fmt.Errorf("after %d attempts: %w", attempt, err)
	}
	return nil
}
