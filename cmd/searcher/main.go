// Command searcher serves member search over the configured index files and
// over every index published through the ingestion service.
//
// Usage:
//
//	go run ./cmd/searcher [-config configs/development.yaml]
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
	"time"

	"github.com/3worlds/aot/internal/analytics"
	"github.com/3worlds/aot/internal/auth"
	"github.com/3worlds/aot/internal/auth/ratelimit"
	"github.com/3worlds/aot/internal/indexer/consumer"
	"github.com/3worlds/aot/internal/indexer/shard"
	"github.com/3worlds/aot/internal/indexer/watcher"
	"github.com/3worlds/aot/internal/member"
	"github.com/3worlds/aot/internal/searcher/cache"
	"github.com/3worlds/aot/internal/searcher/executor"
	"github.com/3worlds/aot/internal/searcher/handler"
	"github.com/3worlds/aot/pkg/config"
	"github.com/3worlds/aot/pkg/health"
	"github.com/3worlds/aot/pkg/kafka"
	"github.com/3worlds/aot/pkg/logger"
	"github.com/3worlds/aot/pkg/metrics"
	"github.com/3worlds/aot/pkg/middleware"
	pkgredis "github.com/3worlds/aot/pkg/redis"
	"github.com/3worlds/aot/pkg/tracing"
)

// sourceLoader loads into the router and keeps the active-source gauge
// current.
type sourceLoader struct {
	router  *shard.Router
	metrics *metrics.Metrics
}

func (l sourceLoader) Load(ctx context.Context, name string, entries []member.Entry) error {
	if err := l.router.Load(ctx, name, entries); err != nil {
		return err
	}
	l.metrics.ActiveSources.Set(float64(len(l.router.Sources())))
	return nil
}

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	noKafka := flag.Bool("no-kafka", false, "serve local index files only")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting search service", "port", cfg.Server.Port, "sources", len(cfg.Indexer.Sources))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	if cfg.Metrics.Enabled {
		metricsServer := metrics.NewServer(cfg.Metrics.Port, m)
		if err := metricsServer.Start(); err != nil {
			slog.Warn("metrics disabled", "error", err)
		} else {
			defer metricsServer.Shutdown(context.Background())
		}
	}
	tracer := tracing.NewTracer(cfg.Tracing)

	router, err := shard.NewRouter(cfg.Indexer)
	if err != nil {
		slog.Error("failed to create source router", "error", err)
		os.Exit(1)
	}
	defer router.Close()
	loader := sourceLoader{router: router, metrics: m}
	if err := router.LoadFiles(ctx, cfg.Indexer.Sources); err != nil {
		slog.Error("failed to load index files", "error", err)
		os.Exit(1)
	}
	for _, name := range router.Sources() {
		if engine, err := router.Route(name); err == nil {
			m.RecordSource(name, int(engine.TotalDocs()), nil)
		}
	}
	m.ActiveSources.Set(float64(len(router.Sources())))

	// A nil RemoteStore, not a nil *Client, keeps the cache local-only.
	var remote cache.RemoteStore
	redisClient, err := pkgredis.NewClient(ctx, cfg.Redis)
	if err != nil {
		slog.Warn("redis unavailable, using the local cache level only", "error", err)
	} else {
		defer redisClient.Close()
		remote = redisClient
		slog.Info("shared cache level enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
	}
	queryCache := cache.New(remote, cfg.Redis, m)

	invalidate := func(source string) {
		if err := queryCache.Invalidate(context.Background()); err != nil {
			slog.Error("cache invalidation failed", "source", source, "error", err)
		}
	}
	var background []<-chan struct{}
	if cfg.Indexer.Watch && len(cfg.Indexer.Sources) > 0 {
		w, err := watcher.New(loader, cfg.Indexer.Sources, cfg.Indexer.WatchDebounce, m, invalidate)
		if err != nil {
			slog.Error("failed to watch index files", "error", err)
			os.Exit(1)
		}
		background = append(background, runInBackground("index watcher", func() error { return w.Run(ctx) }))
	}

	aggregator := analytics.NewAggregator(nil)
	var producer analytics.BatchPublisher
	if !*noKafka {
		hostname, _ := os.Hostname()
		// Every search node must see every published index, so each one
		// reads the topic in a group of its own.
		indexConsumer := consumer.New(kafka.NewConsumer(
			cfg.Kafka,
			cfg.Kafka.Topics.IndexPublished,
			kafka.ConsumerOptions{GroupID: cfg.Kafka.ConsumerGroup + "-searcher-" + hostname, FromStart: true},
			consumer.HandleMessage(loader, queryCache, m),
		))
		background = append(background, runInBackground("index consumer", func() error { return indexConsumer.Start(ctx) }))

		analyticsProducer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents)
		defer analyticsProducer.Close()
		producer = analyticsProducer
	}
	collector := analytics.NewCollector(producer, aggregator, cfg.Analytics.BufferSize)
	collector.Start(ctx)
	defer collector.Close()

	checker := health.NewChecker()
	checker.Register("sources", func(ctx context.Context) health.ComponentHealth {
		n := len(router.Sources())
		if n == 0 {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: "no sources loaded"}
		}
		return health.ComponentHealth{Status: health.StatusUp, Message: fmt.Sprintf("%d sources loaded", n)}
	})
	if redisClient != nil {
		checker.Register("redis", func(ctx context.Context) health.ComponentHealth {
			if err := redisClient.Ping(ctx); err != nil {
				return health.ComponentHealth{Status: health.StatusDegraded, Message: err.Error()}
			}
			return health.ComponentHealth{Status: health.StatusUp, Message: redisClient.PoolSummary()}
		})
	}

	exec := executor.NewSharded(router, cfg.Search.TimeoutPerSource)
	h := handler.New(exec, router, handler.Options{
		Cache:      queryCache,
		Collector:  collector,
		Aggregator: aggregator,
		Metrics:    m,
		Tracer:     tracer,
	}, cfg.Search.DefaultLimit, cfg.Search.MaxResults)

	mux := http.NewServeMux()
	h.Routes(mux)
	checker.Routes(mux)

	limiter := ratelimit.New(time.Minute)
	chain := middleware.Chain(mux,
		middleware.RequestID,
		middleware.Metrics(m, mux),
		middleware.CORS(middleware.DefaultCORSConfig(cfg.Server.AllowOrigins)),
		auth.RateLimit(limiter, cfg.Search.RateLimitPerMinute),
		middleware.MaxInFlight(cfg.Search.MaxConcurrentQueries),
		middleware.Timeout(cfg.Server.WriteTimeout),
	)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
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

	slog.Info("search service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	stop()
	for _, done := range background {
		<-done
	}
	if err := router.FlushAll(); err != nil {
		slog.Error("final flush failed", "error", err)
	}
	slog.Info("search service stopped", "analytics_dropped", collector.Dropped())
}

func runInBackground(name string, run func() error) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := run(); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("background task failed", "task", name, "error", err)
		}
	}()
	return done
}
