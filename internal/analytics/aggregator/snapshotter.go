package aggregator

import (
	"context"
	"log/slog"
	"time"

	"github.com/3worlds/aot/internal/analytics"
)

// Saver stores one snapshot. *Store implements it.
type Saver interface {
	Save(ctx context.Context, stats analytics.AggregatedStats) (int64, error)
}

// StatsSource is the running aggregate being snapshotted.
type StatsSource interface {
	Stats() analytics.AggregatedStats
}

const finalSaveTimeout = 5 * time.Second

// Snapshotter saves the aggregate every interval, skipping ticks where no
// event arrived since the last save, and once more on shutdown.
type Snapshotter struct {
	saver    Saver
	source   StatsSource
	interval time.Duration
	logger   *slog.Logger

	lastSearches  int64
	lastPublished int64
	saved         bool
}

func NewSnapshotter(saver Saver, source StatsSource, interval time.Duration) *Snapshotter {
	return &Snapshotter{
		saver:    saver,
		source:   source,
		interval: interval,
		logger:   slog.Default().With("component", "analytics-snapshotter"),
	}
}

// Resume records stats as already stored, so totals restored from a
// snapshot are not saved again until they change.
func (s *Snapshotter) Resume(stats analytics.AggregatedStats) {
	s.saved = true
	s.lastSearches, s.lastPublished = stats.TotalSearches, stats.IndexesPublished
}

// Start runs the loop in a goroutine. The channel closes after the final
// save.
func (s *Snapshotter) Start(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.run(ctx)
	}()
	return done
}

func (s *Snapshotter) run(ctx context.Context) {
	s.logger.Info("snapshotting analytics", "interval", s.interval)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.saveIfChanged(ctx)
		case <-ctx.Done():
			final, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalSaveTimeout)
			s.saveIfChanged(final)
			cancel()
			return
		}
	}
}

// saveIfChanged reports whether a snapshot was written.
func (s *Snapshotter) saveIfChanged(ctx context.Context) bool {
	stats := s.source.Stats()
	if s.saved && stats.TotalSearches == s.lastSearches && stats.IndexesPublished == s.lastPublished {
		return false
	}
	id, err := s.saver.Save(ctx, stats)
	if err != nil {
		s.logger.Error("analytics snapshot failed", "error", err)
		return false
	}
	s.Resume(stats)
	s.logger.Debug("analytics snapshot saved", "id", id, "total_searches", stats.TotalSearches)
	return true
}
