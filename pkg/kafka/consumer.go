// Package kafka wraps segmentio/kafka-go for the index and analytics topics:
// JSON events out, a retrying handler loop in.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/3worlds/aot/pkg/config"
	"github.com/3worlds/aot/pkg/resilience"
)

// MessageHandler processes one message. Returning a resilience.Permanent
// error skips the message; any other error is retried.
type MessageHandler func(ctx context.Context, key []byte, value []byte) error

// reader is the part of *kafka.Reader the consume loop needs.
type reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Consumer struct {
	reader    reader
	handler   MessageHandler
	retry     resilience.RetryConfig
	backoff   resilience.Backoff
	logger    *slog.Logger
	closeOnce sync.Once
	closeErr  error
}

// ConsumerOptions tune a Consumer. The zero value joins cfg.ConsumerGroup
// at the newest offset.
type ConsumerOptions struct {
	// GroupID replaces the configured group, for services that must each
	// see every message.
	GroupID string
	// FromStart makes a new group replay the topic from the first offset.
	FromStart bool
	// Attempts bounds handler retries per message. Zero means 3.
	Attempts int
}

func NewConsumer(cfg config.KafkaConfig, topic string, opts ConsumerOptions, handler MessageHandler) *Consumer {
	group := cfg.ConsumerGroup
	if opts.GroupID != "" {
		group = opts.GroupID
	}
	start := kafka.LastOffset
	if opts.FromStart {
		start = kafka.FirstOffset
	}
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       topic,
		GroupID:     group,
		MinBytes:    1,
		MaxBytes:    2 * maxMessageBytes,
		MaxWait:     500 * time.Millisecond,
		StartOffset: start,
	})
	c := newConsumer(r, handler, opts.Attempts)
	c.logger = c.logger.With("topic", topic, "group", group)
	return c
}

func newConsumer(r reader, handler MessageHandler, attempts int) *Consumer {
	return &Consumer{
		reader:  r,
		handler: handler,
		retry: resilience.RetryConfig{
			Attempts: attempts,
			Backoff:  resilience.Backoff{Initial: 250 * time.Millisecond, Max: 5 * time.Second},
		},
		backoff: resilience.Backoff{Initial: 500 * time.Millisecond, Max: 30 * time.Second},
		logger:  slog.Default().With("component", "kafka-consumer"),
	}
}

// Start consumes until ctx is cancelled, then closes the reader. A message
// is committed once handled or once its handler fails permanently. A
// message whose retries run out is not committed itself, but offsets are
// per partition, so the next commit on its partition covers it: it is only
// redelivered if the consumer stops before that happens. Handlers that must
// not lose messages have to block in their own retries instead.
func (c *Consumer) Start(ctx context.Context) error {
	defer c.Close()
	c.logger.Info("consumer started")
	fetchFailures := 0
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("consumer stopping", "reason", ctx.Err())
				return nil
			}
			fetchFailures++
			delay := c.backoff.Delay(fetchFailures)
			c.logger.Error("fetch failed", "error", err, "failures", fetchFailures, "retry_in", delay)
			if resilience.Sleep(ctx, delay) != nil {
				return nil
			}
			continue
		}
		fetchFailures = 0

		log := c.logger.With("partition", msg.Partition, "offset", msg.Offset, "key", string(msg.Key))
		log.Debug("message received", "bytes", len(msg.Value))
		name := fmt.Sprintf("handle %s/%d@%d", msg.Topic, msg.Partition, msg.Offset)
		err = resilience.Retry(ctx, name, c.retry, func(ctx context.Context) error {
			return c.handler(ctx, msg.Key, msg.Value)
		})
		switch {
		case err == nil:
		case resilience.IsPermanent(err):
			log.Error("skipping unprocessable message", "error", err)
		case ctx.Err() != nil:
			return nil
		default:
			log.Error("message dropped after retries", "error", err)
			continue
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			log.Error("commit failed", "error", err)
		}
	}
}

// Close releases the reader. It is safe to call more than once.
func (c *Consumer) Close() error {
	c.closeOnce.Do(func() { c.closeErr = c.reader.Close() })
	return c.closeErr
}

// DecodeJSON unmarshals a message value into T. Decode failures are
// permanent.
func DecodeJSON[T any](value []byte) (T, error) {
	var v T
	if err := json.Unmarshal(value, &v); err != nil {
		return v, resilience.Permanent(fmt.Errorf("decoding kafka message: %w", err))
	}
	return v, nil
}
