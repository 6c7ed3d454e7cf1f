// Package analytics records member search activity. Search nodes feed a
// Collector; the analytics service consumes the resulting Kafka events
// into an Aggregator and snapshots it to PostgreSQL.
package analytics

import "time"

type EventType string

const (
	EventSearch         EventType = "search"
	EventCacheHit       EventType = "cache_hit"
	EventCacheMiss      EventType = "cache_miss"
	EventZeroResult     EventType = "zero_result"
	EventIndexPublished EventType = "index_published"
)

// SearchEvent describes one answered query.
type SearchEvent struct {
	Type        EventType `json:"type"`
	Query       string    `json:"query"`
	Terms       []string  `json:"terms"`
	Source      string    `json:"source,omitempty"`
	TotalHits   int       `json:"total_hits"`
	Returned    int       `json:"returned"`
	TopKey      string    `json:"top_key,omitempty"`
	LatencyMs   int64     `json:"latency_ms"`
	CacheHit    bool      `json:"cache_hit"`
	SourceCount int       `json:"source_count"`
	Timestamp   time.Time `json:"timestamp"`
	RequestID   string    `json:"request_id"`
}

// IndexEvent describes one index upload handled by the ingestion service.
type IndexEvent struct {
	Type      EventType `json:"type"`
	Source    string    `json:"source"`
	Status    string    `json:"status"`
	Entries   int       `json:"entries"`
	Warnings  int       `json:"warnings"`
	LatencyMs int64     `json:"latency_ms"`
	Timestamp time.Time `json:"timestamp"`
}

// eventKind is decoded first to pick the concrete event type.
type eventKind struct {
	Type EventType `json:"type"`
}

func (t EventType) isSearch() bool {
	switch t {
	case EventSearch, EventCacheHit, EventCacheMiss, EventZeroResult:
		return true
	}
	return false
}
