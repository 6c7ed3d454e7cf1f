package analytics

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/3worlds/aot/pkg/kafka"
)

// BatchPublisher writes events to Kafka. kafka.Producer implements it.
type BatchPublisher interface {
	PublishBatch(ctx context.Context, events []kafka.Event) error
}

const (
	defaultBufferSize    = 10000
	defaultBatchSize     = 100
	defaultFlushInterval = 2 * time.Second
)

// Collector buffers events in a channel and ships them to Kafka in batches,
// flushed when a batch fills up or after the flush interval. Events are
// also recorded in the local Aggregator when one is attached. Track never
// blocks: events are dropped when the buffer is full.
type Collector struct {
	producer      BatchPublisher
	local         *Aggregator
	eventCh       chan any
	batchSize     int
	flushInterval time.Duration
	logger        *slog.Logger

	mu      sync.RWMutex
	closed  bool
	done    chan struct{}
	dropped atomic.Int64
}

// NewCollector creates a collector. producer may be nil to keep events
// local; local may be nil to only publish them.
func NewCollector(producer BatchPublisher, local *Aggregator, bufferSize int) *Collector {
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	return &Collector{
		producer:      producer,
		local:         local,
		eventCh:       make(chan any, bufferSize),
		batchSize:     defaultBatchSize,
		flushInterval: defaultFlushInterval,
		logger:        slog.Default().With("component", "analytics-collector"),
		done:          make(chan struct{}),
	}
}

// Start launches the publishing loop. It runs until ctx is cancelled or
// Close is called, flushing what is buffered before it returns.
func (c *Collector) Start(ctx context.Context) {
	go func() {
		defer close(c.done)
		ticker := time.NewTicker(c.flushInterval)
		defer ticker.Stop()
		batch := make([]kafka.Event, 0, c.batchSize)
		for {
			select {
			case event, ok := <-c.eventCh:
				if !ok {
					c.flush(context.Background(), batch)
					return
				}
				batch = c.add(ctx, batch, event)
			case <-ticker.C:
				batch = c.flush(ctx, batch)
			case <-ctx.Done():
				batch = c.drainRemaining(batch)
				c.flush(context.Background(), batch)
				return
			}
		}
	}()
	c.logger.Info("analytics collector started",
		"buffer_size", cap(c.eventCh),
		"batch_size", c.batchSize,
		"kafka", c.producer != nil,
	)
}

// Track queues a SearchEvent or IndexEvent.
func (c *Collector) Track(event any) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return
	}
	select {
	case c.eventCh <- event:
	default:
		c.dropped.Add(1)
		c.logger.Warn("analytics event dropped (buffer full)")
	}
}

// Dropped returns the number of events lost to a full buffer.
func (c *Collector) Dropped() int64 {
	return c.dropped.Load()
}

// Close stops accepting events and waits for the buffered ones to be
// published.
func (c *Collector) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.eventCh)
	c.mu.Unlock()
	<-c.done
}

func (c *Collector) add(ctx context.Context, batch []kafka.Event, event any) []kafka.Event {
	if c.local != nil {
		c.local.Record(event)
	}
	if c.producer == nil {
		return batch
	}
	batch = append(batch, kafka.Event{Key: eventKey(event), Value: event})
	if len(batch) >= c.batchSize {
		return c.flush(ctx, batch)
	}
	return batch
}

func (c *Collector) flush(ctx context.Context, batch []kafka.Event) []kafka.Event {
	if len(batch) == 0 || c.producer == nil {
		return batch[:0]
	}
	if err := c.producer.PublishBatch(ctx, batch); err != nil {
		c.logger.Error("failed to publish analytics events",
			"batch_size", len(batch),
			"error", err,
		)
	}
	return batch[:0]
}

func (c *Collector) drainRemaining(batch []kafka.Event) []kafka.Event {
	ctx := context.Background()
	for {
		select {
		case event, ok := <-c.eventCh:
			if !ok {
				return batch
			}
			batch = c.add(ctx, batch, event)
		default:
			return batch
		}
	}
}

func eventKey(event any) string {
	switch e := event.(type) {
	case SearchEvent:
		if e.Source != "" {
			return e.Source
		}
		return "search"
	case IndexEvent:
		return e.Source
	}
	return "analytics"
}
