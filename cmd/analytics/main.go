// Command analytics starts the standalone analytics aggregation service.
//
// It consumes search and index events from Kafka, aggregates them in memory
// (latency percentiles, cache hit rate, top and zero-result queries, most
// found members, searches per source), snapshots the totals to PostgreSQL
// and serves them at GET /api/v1/analytics, with the stored snapshots at
// GET /api/v1/analytics/history.
//
// Usage:
//
//	go run ./cmd/analytics [-config configs/development.yaml]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/3worlds/aot/internal/analytics"
	"github.com/3worlds/aot/internal/analytics/aggregator"
	"github.com/3worlds/aot/pkg/config"
	"github.com/3worlds/aot/pkg/health"
	"github.com/3worlds/aot/pkg/kafka"
	"github.com/3worlds/aot/pkg/logger"
	"github.com/3worlds/aot/pkg/middleware"
	"github.com/3worlds/aot/pkg/postgres"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting analytics service", "port", cfg.Analytics.Port)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := postgres.New(ctx, cfg.Postgres)
	if err != nil {
		slog.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := db.Migrate(ctx); err != nil {
		slog.Error("failed to migrate schema", "error", err)
		os.Exit(1)
	}

	// The aggregator is the consumer's handler and owns the consumer, so
	// the handler reaches it through a pointer assigned below.
	var agg *analytics.Aggregator
	consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents,
		kafka.ConsumerOptions{GroupID: cfg.Kafka.ConsumerGroup + "-analytics"},
		func(ctx context.Context, key, value []byte) error {
			return analytics.HandleEvent(agg)(ctx, key, value)
		})
	agg = analytics.NewAggregator(consumer)

	store := aggregator.NewStore(db, cfg.Analytics.SnapshotRetention)
	snapshotter := aggregator.NewSnapshotter(store, agg, cfg.Analytics.SnapshotInterval)
	restored, err := store.Restore(ctx, agg)
	switch {
	case err != nil:
		slog.Warn("could not restore analytics snapshot", "error", err)
	case restored != nil:
		snapshotter.Resume(restored.Stats)
	}
	saved := snapshotter.Start(ctx)

	consumed := make(chan struct{})
	go func() {
		defer close(consumed)
		if err := agg.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("aggregator error", "error", err)
		}
	}()
	slog.Info("analytics aggregator started", "topic", cfg.Kafka.Topics.AnalyticsEvents)

	analyticsHandler := analytics.NewHandler(agg)

	checker := health.NewChecker()
	checker.Register("postgres", health.OptionalCheck(db.Ping))

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/analytics", analyticsHandler.Stats)
	mux.HandleFunc("GET /api/v1/analytics/history", aggregator.HistoryHandler(store))
	checker.Routes(mux)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Analytics.Port),
		Handler:      middleware.Chain(mux, middleware.RequestID),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("analytics service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	stop()
	<-consumed
	<-saved
	slog.Info("analytics service stopped")
}
