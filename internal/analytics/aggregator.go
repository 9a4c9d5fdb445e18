package analytics

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/OCR-Coordinate-Match-Platform/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/OCR-Coordinate-Match-Platform/pkg/kafka"
)

// AggregatedStats is the JSON shape returned by the analytics endpoint.
type AggregatedStats struct {
	TotalQueries     int64         `json:"total_queries"`
	MatchedQueries   int64         `json:"matched_queries"`
	MissedQueries    int64         `json:"missed_queries"`
	CaseFallbacks    int64         `json:"case_fallbacks"`
	DocumentsStored  int64         `json:"documents_stored"`
	CacheHits        int64         `json:"cache_hits"`
	CacheMisses      int64         `json:"cache_misses"`
	AvgScore         float64       `json:"avg_score"`
	AvgLatencyMs     float64       `json:"avg_latency_ms"`
	P50LatencyMs     int64         `json:"p50_latency_ms"`
	P95LatencyMs     int64         `json:"p95_latency_ms"`
	P99LatencyMs     int64         `json:"p99_latency_ms"`
	TopTargets       []TargetCount `json:"top_targets"`
	MissedTargets    []TargetCount `json:"missed_targets"`
	QueriesPerMinute float64       `json:"queries_per_minute"`
}

// TargetCount pairs a query target with how often it was asked for.
type TargetCount struct {
	Target string `json:"target"`
	Count  int64  `json:"count"`
}

// Aggregator folds match and ingest events from Kafka into in-memory stats.
type Aggregator struct {
	mu            sync.RWMutex
	totalQueries  atomic.Int64
	matched       atomic.Int64
	missed        atomic.Int64
	fallbacks     atomic.Int64
	documents     atomic.Int64
	cacheHits     atomic.Int64
	cacheMisses   atomic.Int64
	latencies     []int64
	scoreSum      float64
	targetCounts  map[string]int64
	missedTargets map[string]int64
	startTime     time.Time

	logger *slog.Logger
}

func NewAggregator() *Aggregator {
	return &Aggregator{
		latencies:     make([]int64, 0, 10000),
		targetCounts:  make(map[string]int64),
		missedTargets: make(map[string]int64),
		startTime:     time.Now(),
		logger:        slog.Default().With("component", "analytics-aggregator"),
	}
}

// HandleMatchEvent returns the Kafka handler for the match-event topic.
func HandleMatchEvent(agg *Aggregator) kafka.MessageHandler {
	return func(ctx context.Context, key, value []byte) error {
		event, err := kafka.DecodeJSON[MatchEvent](value)
		if err != nil {
			agg.logger.Error("failed to decode match event", "error", err)
			return nil
		}
		agg.RecordMatchEvent(event)
		return nil
	}
}

// HandleIngestEvent returns the Kafka handler for the document-ingest topic.
func HandleIngestEvent(agg *Aggregator) kafka.MessageHandler {
	return func(ctx context.Context, key, value []byte) error {
		if _, err := kafka.DecodeJSON[ingestion.IngestEvent](value); err != nil {
			agg.logger.Error("failed to decode ingest event", "error", err)
			return nil
		}
		agg.documents.Add(1)
		return nil
	}
}

func (a *Aggregator) RecordMatchEvent(event MatchEvent) {
	a.totalQueries.Add(1)
	if event.Matched {
		a.matched.Add(1)
	} else {
		a.missed.Add(1)
	}
	if event.FellBack {
		a.fallbacks.Add(1)
	}
	if event.CacheHit {
		a.cacheHits.Add(1)
	} else {
		a.cacheMisses.Add(1)
	}

	a.mu.Lock()
	a.latencies = append(a.latencies, event.LatencyMs)
	a.targetCounts[event.Target]++
	if event.Matched {
		a.scoreSum += event.Score
	} else {
		a.missedTargets[event.Target]++
	}
	a.mu.Unlock()
}

func (a *Aggregator) Stats() AggregatedStats {
	a.mu.RLock()
	defer a.mu.RUnlock()

	stats := AggregatedStats{
		TotalQueries:    a.totalQueries.Load(),
		MatchedQueries:  a.matched.Load(),
		MissedQueries:   a.missed.Load(),
		CaseFallbacks:   a.fallbacks.Load(),
		DocumentsStored: a.documents.Load(),
		CacheHits:       a.cacheHits.Load(),
		CacheMisses:     a.cacheMisses.Load(),
	}
	if stats.MatchedQueries > 0 {
		stats.AvgScore = a.scoreSum / float64(stats.MatchedQueries)
	}
	if len(a.latencies) > 0 {
		sorted := make([]int64, len(a.latencies))
		copy(sorted, a.latencies)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

		var sum int64
		for _, l := range sorted {
			sum += l
		}
		stats.AvgLatencyMs = float64(sum) / float64(len(sorted))
		stats.P50LatencyMs = percentile(sorted, 50)
		stats.P95LatencyMs = percentile(sorted, 95)
		stats.P99LatencyMs = percentile(sorted, 99)
	}
	stats.TopTargets = topN(a.targetCounts, 10)
	stats.MissedTargets = topN(a.missedTargets, 10)
	elapsed := time.Since(a.startTime).Minutes()
	if elapsed > 0 {
		stats.QueriesPerMinute = float64(stats.TotalQueries) / elapsed
	}
	return stats
}

func percentile(sorted []int64, pct int) int64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := (pct * len(sorted)) / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func topN(counts map[string]int64, n int) []TargetCount {
	result := make([]TargetCount, 0, len(counts))
	for target, count := range counts {
		result = append(result, TargetCount{Target: target, Count: count})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		return result[i].Target < result[j].Target
	})
	if len(result) > n {
		result = result[:n]
	}
	return result
}
