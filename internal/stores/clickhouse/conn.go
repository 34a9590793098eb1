package clickhouse

import (
	"context"
	"fmt"
	"time"

	ch "github.com/ClickHouse/clickhouse-go/v2"

	"referralstats/internal/config"
)

type Conn struct {
	Native ch.Conn
}

func New(ctx context.Context, cfg *config.ClickHouseConfig) (*Conn, error) {
	if cfg == nil {
		return nil, fmt.Errorf("clickhouse config cannot be nil")
	}
	opts, err := ch.ParseDSN(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed parse DSN ch, error=%w", err)
	}

	if opts.DialTimeout == 0 {
		opts.DialTimeout = 5 * time.Second
	}

	if opts.Compression == nil {
		opts.Compression = &ch.Compression{Method: ch.CompressionLZ4}
	}

	opts.ClientInfo = ch.ClientInfo{
		Products: []struct{ Name, Version string }{
			{
				Name:    "referral-stats",
				Version: "0.1.0",
			},
		},
	}

	conn, err := ch.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed Open ch, error=%w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err = conn.Ping(pingCtx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed ping ch, error=%w", err)
	}

	return &Conn{Native: conn}, nil
}

var ddl = []string{
	`CREATE TABLE IF NOT EXISTS referral_volume_records (
		id               String,
		timestamp        DateTime,
		block_number     UInt64,
		tx_hash          String,
		direction        LowCardinality(String),
		referral         String,
		referral_code    String,
		referrer         String,
		tier_id          UInt64,
		margin_fee       UInt64,
		total_rebate     UInt64,
		discount_share   UInt64,
		volume           UInt256,
		fees_usd         UInt256,
		total_rebate_usd UInt256,
		discount_usd     UInt256
	) ENGINE = ReplacingMergeTree
	ORDER BY (referrer, referral_code, timestamp, id)`,
	`CREATE TABLE IF NOT EXISTS distributions (
		id           String,
		timestamp    DateTime,
		block_number UInt64,
		tx_hash      String,
		type_id      UInt64,
		token        String,
		receiver     String,
		amount       UInt256
	) ENGINE = ReplacingMergeTree
	ORDER BY (receiver, timestamp, id)`,
}

// Migrate creates the audit tables. ReplacingMergeTree collapses rows re-sent after a replay.
func (c *Conn) Migrate(ctx context.Context) error {
	for _, q := range ddl {
		if err := c.Native.Exec(ctx, q); err != nil {
			return fmt.Errorf("failed migrate ch, error=%w", err)
		}
	}
	return nil
}

func (c *Conn) Health(ctx context.Context) error {
	return c.Native.Ping(ctx)
}

func (c *Conn) Close() error {
	return c.Native.Close()
}
