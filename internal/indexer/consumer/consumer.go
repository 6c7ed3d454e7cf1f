// Package consumer applies IndexPublished events from Kafka to the local
// source router, so every search node serves the indexes published
// through the ingestion service.
package consumer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/3worlds/aot/internal/ingestion"
	"github.com/3worlds/aot/internal/member"
	"github.com/3worlds/aot/pkg/kafka"
	"github.com/3worlds/aot/pkg/metrics"
)

// Loader replaces the entries of a source. shard.Router implements it.
type Loader interface {
	Load(ctx context.Context, name string, entries []member.Entry) error
}

// Invalidator drops cached search results. cache.QueryCache implements it.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

// IndexConsumer wraps a Kafka consumer to drive the indexing pipeline.
type IndexConsumer struct {
	consumer *kafka.Consumer
	logger   *slog.Logger
}

// New creates an IndexConsumer backed by the given Kafka consumer.
func New(kafkaConsumer *kafka.Consumer) *IndexConsumer {
	return &IndexConsumer{
		consumer: kafkaConsumer,
		logger:   slog.Default().With("component", "index-consumer"),
	}
}

// Start begins consuming Kafka messages. It blocks until ctx is cancelled.
func (ic *IndexConsumer) Start(ctx context.Context) error {
	ic.logger.Info("index consumer starting")
	return ic.consumer.Start(ctx)
}

// HandleMessage returns a Kafka MessageHandler that loads each published
// index into loader and then invalidates cache, which may be nil.
// Undecodable messages are logged and skipped; a failed load is returned
// so the message is not committed.
func HandleMessage(loader Loader, cache Invalidator, m *metrics.Metrics) kafka.MessageHandler {
	logger := slog.Default().With("component", "index-consumer")
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[ingestion.IndexPublished](value)
		if err != nil {
			logger.Error("failed to decode index event",
				"error", err,
				"key", string(key),
			)
			return nil
		}
		if event.Source == "" || len(event.Entries) == 0 {
			logger.Warn("ignoring empty index event", "key", string(key))
			return nil
		}

		err = loader.Load(ctx, event.Source, event.Entries)
		m.RecordSource(event.Source, len(event.Entries), err)
		if err != nil {
			return fmt.Errorf("loading source %s: %w", event.Source, err)
		}
		if cache != nil {
			if err := cache.Invalidate(ctx); err != nil {
				logger.Error("cache invalidation failed", "source", event.Source, "error", err)
			}
		}
		logger.Info("published index loaded",
			"source", event.Source,
			"entries", len(event.Entries),
			"checksum", event.Checksum,
			"published_at", event.PublishedAt,
		)
		return nil
	}
}
