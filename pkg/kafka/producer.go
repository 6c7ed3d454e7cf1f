package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/3worlds/aot/pkg/config"
	"github.com/3worlds/aot/pkg/resilience"
)

// maxMessageBytes bounds one encoded event. An index event carries every
// entry of its source, so it can run to several MB before compression.
const maxMessageBytes = 8 << 20

// Event is one JSON message. Events sharing a Key go to the same
// partition, which keeps the index events of a source in order.
type Event struct {
	Key   string
	Value any
}

type writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Producer struct {
	writer writer
	topic  string
	logger *slog.Logger
}

func NewProducer(cfg config.KafkaConfig, topic string) *Producer {
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    100,
		BatchBytes:   maxMessageBytes,
		BatchTimeout: 10 * time.Millisecond,
		MaxAttempts:  3,
		RequiredAcks: kafka.RequireAll,
		Compression:  kafka.Snappy,
	}
	return newProducer(w, topic)
}

func newProducer(w writer, topic string) *Producer {
	return &Producer{
		writer: w,
		topic:  topic,
		logger: slog.Default().With("component", "kafka-producer", "topic", topic),
	}
}

// Publish writes one event and waits for every in-sync replica.
func (p *Producer) Publish(ctx context.Context, event Event) error {
	return p.PublishBatch(ctx, []Event{event})
}

// PublishBatch encodes and writes events in one call. Encoding failures
// and oversized events are permanent and nothing is written; for broker
// failures the error counts the messages that did not make it.
func (p *Producer) PublishBatch(ctx context.Context, events []Event) error {
	if len(events) == 0 {
		return nil
	}
	msgs := make([]kafka.Message, len(events))
	size := 0
	for i, event := range events {
		value, err := json.Marshal(event.Value)
		if err != nil {
			return resilience.Permanent(fmt.Errorf("encoding event %s: %w", event.Key, err))
		}
		if len(value) > maxMessageBytes {
			return resilience.Permanent(fmt.Errorf("event %s is %d bytes, limit %d", event.Key, len(value), maxMessageBytes))
		}
		msgs[i] = kafka.Message{
			Key:     []byte(event.Key),
			Value:   value,
			Headers: []kafka.Header{{Key: "content-type", Value: []byte("application/json")}},
		}
		size += len(value)
	}

	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		failed := len(msgs)
		var perMsg kafka.WriteErrors
		if errors.As(err, &perMsg) {
			failed = perMsg.Count()
		}
		p.logger.Error("write failed", "messages", len(msgs), "failed", failed, "error", err)
		err = fmt.Errorf("writing %d of %d messages to %s: %w", failed, len(msgs), p.topic, err)
		if tooLarge(err) {
			return resilience.Permanent(err)
		}
		return err
	}
	p.logger.Debug("published", "messages", len(msgs), "bytes", size)
	return nil
}

func tooLarge(err error) bool {
	var msgErr kafka.MessageTooLargeError
	return errors.As(err, &msgErr) || errors.Is(err, kafka.MessageSizeTooLarge)
}

// Close flushes pending writes.
func (p *Producer) Close() error {
	return p.writer.Close()
}
