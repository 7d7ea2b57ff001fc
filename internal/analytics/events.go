// Package analytics emits search query events to Kafka for offline analysis.
// Tracking is fire-and-forget: a full buffer drops events rather than slowing
// the search path.
package analytics

import "time"

// EventType tags a record for consumers of the analytics topic.
type EventType string

const (
	EventServed     EventType = "served"
	EventZeroResult EventType = "zero_result"
)

// QueryEvent describes one served search. Cache is a dimension rather than
// its own event type: "hit", "miss", or "off" when caching is disabled.
type QueryEvent struct {
	Type      EventType `json:"type"`
	Query     string    `json:"query"`
	Limit     int       `json:"limit"`
	Total     int       `json:"total"`
	TopScore  float64   `json:"top_score"`
	TookMs    int64     `json:"took_ms"`
	Cache     string    `json:"cache"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`
}
