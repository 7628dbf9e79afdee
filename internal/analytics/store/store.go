// Package store persists analytics snapshots in PostgreSQL so counters
// survive restarts of the aggregator.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/repo-search/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/repo-search/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/repo-search/pkg/resilience"
)

const schema = `CREATE TABLE IF NOT EXISTS search_analytics_snapshots (
    id          BIGSERIAL PRIMARY KEY,
    data        JSONB NOT NULL,
    captured_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

const schemaIndex = `CREATE INDEX IF NOT EXISTS search_analytics_snapshots_captured_at
    ON search_analytics_snapshots (captured_at DESC)`

// Store reads and writes snapshots. It keeps at most retain rows.
type Store struct {
	db     *postgres.Client
	retain int
	logger *slog.Logger
}

func New(db *postgres.Client, retain int) *Store {
	if retain <= 0 {
		retain = 1440
	}
	return &Store{
		db:     db,
		retain: retain,
		logger: slog.Default().With("component", "analytics-store"),
	}
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	return s.db.Migrate(ctx, schema, schemaIndex)
}

// SaveSnapshot inserts stats and prunes rows beyond the retention limit.
func (s *Store) SaveSnapshot(ctx context.Context, stats analytics.Stats) error {
	data, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("marshaling stats: %w", err)
	}
	return s.db.InTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO search_analytics_snapshots (data, captured_at) VALUES ($1, $2)`,
			data, time.Now().UTC(),
		); err != nil {
			return fmt.Errorf("saving analytics snapshot: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM search_analytics_snapshots WHERE id NOT IN (
			    SELECT id FROM search_analytics_snapshots ORDER BY captured_at DESC LIMIT $1)`,
			s.retain,
		); err != nil {
			return fmt.Errorf("pruning analytics snapshots: %w", err)
		}
		return nil
	})
}

// LatestSnapshot returns the newest snapshot, or nil when there is none.
func (s *Store) LatestSnapshot(ctx context.Context) (*analytics.Stats, error) {
	var data []byte
	err := s.db.DB.QueryRowContext(ctx,
		`SELECT data FROM search_analytics_snapshots ORDER BY captured_at DESC LIMIT 1`,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying latest snapshot: %w", err)
	}
	var stats analytics.Stats
	if err := json.Unmarshal(data, &stats); err != nil {
		return nil, fmt.Errorf("decoding snapshot: %w", err)
	}
	return &stats, nil
}

// ListSnapshots returns up to limit snapshots, newest first.
func (s *Store) ListSnapshots(ctx context.Context, limit int) ([]analytics.Stats, error) {
	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT data FROM search_analytics_snapshots ORDER BY captured_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}
	defer rows.Close()

	var out []analytics.Stats
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scanning snapshot row: %w", err)
		}
		var stats analytics.Stats
		if err := json.Unmarshal(data, &stats); err != nil {
			s.logger.Warn("skipping corrupt snapshot", "error", err)
			continue
		}
		out = append(out, stats)
	}
	return out, rows.Err()
}

// Saver persists one snapshot.
type Saver interface {
	SaveSnapshot(ctx context.Context, stats analytics.Stats) error
}

// RunPeriodic saves source's stats every interval, retrying transient
// failures, and once more when ctx ends. It blocks until then.
func RunPeriodic(ctx context.Context, saver Saver, source analytics.StatsSource, interval time.Duration) {
	logger := slog.Default().With("component", "analytics-snapshotter")
	save := func(ctx context.Context) {
		err := resilience.Retry(ctx, "save analytics snapshot", resilience.RetryConfig{MaxAttempts: 3}, func(ctx context.Context) error {
			return saver.SaveSnapshot(ctx, source.Stats())
		})
		if err != nil {
			logger.Error("analytics snapshot failed", "error", err)
		}
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	logger.Info("periodic analytics snapshots started", "interval", interval)
	for {
		select {
		case <-ticker.C:
			save(ctx)
		case <-ctx.Done():
			final, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			save(final)
			cancel()
			return
		}
	}
}
