// Package ingestion defines the response types and Kafka event schema of
// the index publishing pipeline.
package ingestion

import (
	"time"

	"github.com/3worlds/aot/internal/member"
)

const (
	StatusPublished = "PUBLISHED"
	StatusUnchanged = "UNCHANGED"
)

// PublishResponse is returned to the caller after an index is accepted.
type PublishResponse struct {
	Source   string              `json:"source"`
	Status   string              `json:"status"`
	Checksum string              `json:"checksum"`
	Entries  int                 `json:"entries"`
	Warnings []member.EntryIssue `json:"warnings,omitempty"`
}

// IndexPublished is the Kafka message payload produced after an index is
// persisted. It carries the complete entry set so consumers need no
// database access.
type IndexPublished struct {
	Source      string         `json:"source"`
	Checksum    string         `json:"checksum"`
	Entries     []member.Entry `json:"entries"`
	PublishedAt time.Time      `json:"published_at"`
}

// SourceInfo describes a published source as stored in PostgreSQL.
type SourceInfo struct {
	Name        string    `json:"name"`
	Checksum    string    `json:"checksum"`
	Entries     int       `json:"entries"`
	Warnings    int       `json:"warnings"`
	PublishedAt time.Time `json:"published_at"`
}
