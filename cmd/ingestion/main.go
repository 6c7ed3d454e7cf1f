// Command ingestion starts the index publishing HTTP service.
//
// The service accepts member-search-index files via
// POST /api/v1/indexes/{source}, validates every entry, stores the index in
// PostgreSQL and announces it on Kafka so that every search node loads it.
//
// Usage:
//
//	go run ./cmd/ingestion [-config configs/development.yaml]
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
	"github.com/3worlds/aot/internal/auth"
	"github.com/3worlds/aot/internal/auth/apikey"
	"github.com/3worlds/aot/internal/auth/ratelimit"
	"github.com/3worlds/aot/internal/ingestion/handler"
	"github.com/3worlds/aot/internal/ingestion/publisher"
	"github.com/3worlds/aot/pkg/config"
	"github.com/3worlds/aot/pkg/health"
	"github.com/3worlds/aot/pkg/kafka"
	"github.com/3worlds/aot/pkg/logger"
	"github.com/3worlds/aot/pkg/metrics"
	"github.com/3worlds/aot/pkg/middleware"
	"github.com/3worlds/aot/pkg/postgres"
)

// anonymousLimit applies to requests without a key when keys are optional.
const anonymousLimit = 30

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting ingestion service", "port", cfg.Ingestion.Port)

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

	m := metrics.New()
	if cfg.Metrics.Enabled {
		metricsServer := metrics.NewServer(cfg.Metrics.Port+1, m)
		if err := metricsServer.Start(); err != nil {
			slog.Warn("metrics disabled", "error", err)
		} else {
			defer metricsServer.Shutdown(context.Background())
		}
	}

	producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.IndexPublished)
	defer producer.Close()
	analyticsProducer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents)
	defer analyticsProducer.Close()
	slog.Info("kafka producers initialized",
		"index_topic", cfg.Kafka.Topics.IndexPublished,
		"analytics_topic", cfg.Kafka.Topics.AnalyticsEvents,
	)
	collector := analytics.NewCollector(analyticsProducer, nil, cfg.Analytics.BufferSize)
	collector.Start(ctx)
	defer collector.Close()

	pub := publisher.New(publisher.NewPostgresRepository(db), producer)
	h := handler.New(pub, cfg.Ingestion.MaxBodyBytes, m, collector)

	checker := health.NewChecker()
	checker.Register("postgres", health.PingCheck(db.Ping))

	mux := http.NewServeMux()
	h.Routes(mux)
	checker.Routes(mux)

	limiter := ratelimit.New(cfg.Ingestion.RateLimitWindow)
	mws := []func(http.Handler) http.Handler{
		middleware.RequestID,
		middleware.Metrics(m, mux),
	}
	if cfg.Ingestion.RequireAPIKey {
		mws = append(mws, auth.RequireKey(apikey.NewValidator(db)))
	} else {
		slog.Warn("api keys disabled, publishing is open to anyone who can reach the service")
	}
	mws = append(mws, auth.RateLimit(limiter, anonymousLimit))

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Ingestion.Port),
		Handler:      middleware.Chain(mux, mws...),
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
	slog.Info("ingestion service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	slog.Info("ingestion service stopped")
}
