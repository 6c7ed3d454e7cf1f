// Package publisher persists validated member search indexes to PostgreSQL
// and announces them on Kafka for the search nodes. Publishing is
// idempotent: re-uploading identical content that was already announced is
// acknowledged without a new event.
package publisher

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"time"

	"github.com/3worlds/aot/internal/ingestion"
	"github.com/3worlds/aot/internal/jsindex"
	"github.com/3worlds/aot/internal/member"
	"github.com/3worlds/aot/pkg/kafka"
	"github.com/3worlds/aot/pkg/resilience"
)

// Repository stores published sources.
type Repository interface {
	// State returns the checksum of the stored source, or "" if the source
	// has never been published, and whether that version reached Kafka.
	State(ctx context.Context, source string) (checksum string, announced bool, err error)
	// Save stores a new version as not yet announced.
	Save(ctx context.Context, source, checksum string, entries []member.Entry, warnings int) error
	MarkAnnounced(ctx context.Context, source, checksum string) error
	List(ctx context.Context) ([]ingestion.SourceInfo, error)
	Entries(ctx context.Context, source string) ([]member.Entry, error)
}

// EventPublisher sends events to the message bus.
type EventPublisher interface {
	Publish(ctx context.Context, event kafka.Event) error
}

// Publisher coordinates index persistence and Kafka event production.
type Publisher struct {
	repo     Repository
	producer EventPublisher
	retry    resilience.RetryConfig
	logger   *slog.Logger
}

// New creates a Publisher with the given repository and Kafka producer.
func New(repo Repository, producer EventPublisher) *Publisher {
	return &Publisher{
		repo:     repo,
		producer: producer,
		retry:    resilience.RetryConfig{Attempts: 3, Backoff: resilience.Backoff{Initial: 200 * time.Millisecond}},
		logger:   slog.Default().With("component", "publisher"),
	}
}

// Checksum is the sha256 of the canonical rendering of entries, so two
// uploads differing only in layout, quoting or comments compare equal.
func Checksum(entries []member.Entry) (string, error) {
	var buf bytes.Buffer
	if err := jsindex.Render(&buf, jsindex.NewDocument(entries)); err != nil {
		return "", fmt.Errorf("rendering entries for checksum: %w", err)
	}
	return fmt.Sprintf("%x", sha256.Sum256(buf.Bytes())), nil
}

// Publish stores the document's entries under source and publishes an
// IndexPublished event. report supplies the warnings echoed to the caller.
// A version is only marked announced once Kafka accepted the event, so an
// upload whose announce failed is announced again when it is retried.
func (p *Publisher) Publish(ctx context.Context, source string, doc *jsindex.Document, report *member.Report) (*ingestion.PublishResponse, error) {
	checksum, err := Checksum(doc.Entries)
	if err != nil {
		return nil, err
	}
	resp := &ingestion.PublishResponse{
		Source:   source,
		Status:   ingestion.StatusPublished,
		Checksum: checksum,
		Entries:  len(doc.Entries),
	}
	warnings := 0
	if report != nil {
		warnings = report.Warnings
		resp.Warnings = report.Issues
	}

	existing, announced, err := p.repo.State(ctx, source)
	if err != nil {
		return nil, fmt.Errorf("checking existing checksum: %w", err)
	}
	switch {
	case existing == checksum && announced:
		p.logger.Info("identical index re-published, skipping",
			"source", source,
			"checksum", checksum,
		)
		resp.Status = ingestion.StatusUnchanged
		return resp, nil
	case existing == checksum:
		p.logger.Info("stored index was never announced, announcing again",
			"source", source,
			"checksum", checksum,
		)
	default:
		if err := p.repo.Save(ctx, source, checksum, doc.Entries, warnings); err != nil {
			return nil, fmt.Errorf("storing index %s: %w", source, err)
		}
	}

	event := kafka.Event{
		Key: source,
		Value: ingestion.IndexPublished{
			Source:      source,
			Checksum:    checksum,
			Entries:     doc.Entries,
			PublishedAt: time.Now().UTC(),
		},
	}
	err = resilience.Retry(ctx, "publish-index", p.retry, func(ctx context.Context) error {
		return p.producer.Publish(ctx, event)
	})
	if err != nil {
		return nil, fmt.Errorf("announcing index %s: %w", source, err)
	}
	if err := p.repo.MarkAnnounced(ctx, source, checksum); err != nil {
		// The event is out; at worst the next identical upload announces again.
		p.logger.Warn("marking index announced failed", "source", source, "error", err)
	}
	p.logger.Info("index published",
		"source", source,
		"entries", len(doc.Entries),
		"warnings", warnings,
		"checksum", checksum,
	)
	return resp, nil
}

// Republish re-sends the stored entries of a source, for search nodes that
// joined after the original event.
func (p *Publisher) Republish(ctx context.Context, source string) error {
	entries, err := p.repo.Entries(ctx, source)
	if err != nil {
		return err
	}
	checksum, err := Checksum(entries)
	if err != nil {
		return err
	}
	event := kafka.Event{
		Key: source,
		Value: ingestion.IndexPublished{
			Source:      source,
			Checksum:    checksum,
			Entries:     entries,
			PublishedAt: time.Now().UTC(),
		},
	}
	err = resilience.Retry(ctx, "republish-index", p.retry, func(ctx context.Context) error {
		return p.producer.Publish(ctx, event)
	})
	if err != nil {
		return err
	}
	return p.repo.MarkAnnounced(ctx, source, checksum)
}

// Sources lists the published sources.
func (p *Publisher) Sources(ctx context.Context) ([]ingestion.SourceInfo, error) {
	return p.repo.List(ctx)
}
