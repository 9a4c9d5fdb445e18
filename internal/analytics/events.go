// Package analytics collects match-query events into Kafka and aggregates
// them into the stats surfaced by the analytics endpoint.
package analytics

import "time"

type EventType string

const (
	EventMatch  EventType = "match"
	EventLocate EventType = "locate"
)

// MatchEvent is emitted once per match query, whether or not it found
// anything.
type MatchEvent struct {
	Type         EventType `json:"type"`
	DocumentID   string    `json:"document_id"`
	Target       string    `json:"target"`
	ContextCount int       `json:"context_count"`
	Matched      bool      `json:"matched"`
	FellBack     bool      `json:"fell_back"`
	Score        float64   `json:"score"`
	BaseScore    float64   `json:"base_score"`
	ContextBonus float64   `json:"context_bonus"`
	LatencyMs    int64     `json:"latency_ms"`
	CacheHit     bool      `json:"cache_hit"`
	Timestamp    time.Time `json:"timestamp"`
	RequestID    string    `json:"request_id"`
}
