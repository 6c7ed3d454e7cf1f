// Package aggregator keeps analytics totals across restarts by writing
// periodic snapshots to PostgreSQL, and serves the snapshot history.
package aggregator

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/3worlds/aot/internal/analytics"
	"github.com/3worlds/aot/pkg/postgres"
)

// Snapshot is one stored copy of the aggregated statistics.
type Snapshot struct {
	ID         int64                     `json:"id"`
	CapturedAt time.Time                 `json:"captured_at"`
	Stats      analytics.AggregatedStats `json:"stats"`
}

// Store reads and writes the analytics_snapshots table.
type Store struct {
	db     *sql.DB
	keep   int
	logger *slog.Logger
}

// NewStore returns a store that keeps the newest keep snapshots; keep <= 0
// keeps all of them.
func NewStore(client *postgres.Client, keep int) *Store {
	return &Store{
		db:     client.DB,
		keep:   keep,
		logger: slog.Default().With("component", "analytics-store"),
	}
}

// Save writes stats and prunes snapshots beyond the retention limit.
func (s *Store) Save(ctx context.Context, stats analytics.AggregatedStats) (int64, error) {
	data, err := json.Marshal(stats)
	if err != nil {
		return 0, fmt.Errorf("encoding snapshot: %w", err)
	}
	var id int64
	err = s.db.QueryRowContext(ctx,
		`INSERT INTO analytics_snapshots (data) VALUES ($1) RETURNING id`, data,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("inserting snapshot: %w", err)
	}
	if s.keep > 0 {
		res, err := s.db.ExecContext(ctx,
			`DELETE FROM analytics_snapshots WHERE id NOT IN (
				SELECT id FROM analytics_snapshots ORDER BY captured_at DESC, id DESC LIMIT $1
			)`, s.keep)
		if err != nil {
			s.logger.Warn("pruning snapshots failed", "error", err)
		} else if n, _ := res.RowsAffected(); n > 0 {
			s.logger.Debug("pruned old snapshots", "deleted", n)
		}
	}
	return id, nil
}

// Latest returns the newest snapshot, or nil when none has been saved.
func (s *Store) Latest(ctx context.Context) (*Snapshot, error) {
	snaps, err := s.History(ctx, 1)
	if err != nil || len(snaps) == 0 {
		return nil, err
	}
	return &snaps[0], nil
}

// History returns up to limit snapshots, newest first. Rows that no longer
// decode are skipped.
func (s *Store) History(ctx context.Context, limit int) ([]Snapshot, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, captured_at, data FROM analytics_snapshots
		 ORDER BY captured_at DESC, id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying snapshots: %w", err)
	}
	defer rows.Close()

	var out []Snapshot
	for rows.Next() {
		var (
			snap Snapshot
			data []byte
		)
		if err := rows.Scan(&snap.ID, &snap.CapturedAt, &data); err != nil {
			return nil, fmt.Errorf("scanning snapshot: %w", err)
		}
		if err := json.Unmarshal(data, &snap.Stats); err != nil {
			s.logger.Warn("skipping undecodable snapshot", "id", snap.ID, "error", err)
			continue
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}

// Restore seeds agg from the newest snapshot and returns it, or nil when
// none has been saved.
func (s *Store) Restore(ctx context.Context, agg *analytics.Aggregator) (*Snapshot, error) {
	latest, err := s.Latest(ctx)
	if err != nil {
		return nil, err
	}
	if latest == nil {
		s.logger.Info("no analytics snapshot to restore")
		return nil, nil
	}
	agg.Restore(latest.Stats)
	s.logger.Info("analytics restored",
		"snapshot", latest.ID,
		"captured_at", latest.CapturedAt,
		"total_searches", latest.Stats.TotalSearches,
	)
	return latest, nil
}
