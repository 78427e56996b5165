package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"

	"market-hunter/internal/monitor"
)

type conn interface {
	Exec(ctx context.Context, query string, args ...any) error
	AsyncInsert(ctx context.Context, query string, wait bool, args ...any) error
	Close() error
}

type Config struct {
	Addr     string
	Username string
	Password string
	Timeout  time.Duration
}

// ClickHouseJournal appends one row per completed tick to monitor_ticks.
type ClickHouseJournal struct {
	conn conn
}

var _ monitor.TickRecorder = (*ClickHouseJournal)(nil)

func NewClickHouseJournal(ctx context.Context, cfg Config) (*ClickHouseJournal, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	c, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.Addr},
		Auth: clickhouse.Auth{
			Database: "default",
			Username: cfg.Username,
			Password: cfg.Password,
		},
		DialTimeout: cfg.Timeout,
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})
	if err != nil {
		return nil, err
	}

	if err := c.Ping(ctx); err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	j := &ClickHouseJournal{conn: c}
	if err := j.createTable(ctx); err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return j, nil
}

func (j *ClickHouseJournal) createTable(ctx context.Context) error {
	return j.conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS monitor_ticks (
			monitor_id String,
			owner_id UInt64,
			reason LowCardinality(String),
			started_at DateTime64(3),
			duration_ms UInt32,
			candidates UInt32,
			matched UInt32,
			new_listings UInt32,
			new_links UInt32,
			source_errors UInt32,
			persist_errors UInt32,
			broadcast UInt8,
			discarded UInt8
		) ENGINE = MergeTree()
		ORDER BY (monitor_id, started_at)
	`)
}

func (j *ClickHouseJournal) RecordTick(ctx context.Context, r monitor.TickReport) error {
	query := `
		INSERT INTO monitor_ticks (
			monitor_id, owner_id, reason, started_at, duration_ms,
			candidates, matched, new_listings, new_links,
			source_errors, persist_errors, broadcast, discarded
		) VALUES (
			?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?
		)
	`

	return j.conn.AsyncInsert(ctx, query, false,
		r.MonitorID,
		uint64(r.OwnerID),
		r.Reason,
		r.StartedAt,
		uint32(r.Duration.Milliseconds()),
		uint32(r.Candidates),
		uint32(r.Matched),
		uint32(r.NewListings),
		uint32(r.NewLinks),
		uint32(r.SourceErrors),
		uint32(r.PersistErrors),
		boolToUInt8(r.Broadcast),
		boolToUInt8(r.Discarded),
	)
}

func (j *ClickHouseJournal) Close() error {
	return j.conn.Close()
}

func boolToUInt8(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}
