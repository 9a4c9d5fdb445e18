package analytics

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func matchEvent(target string, matched, fellBack bool, score float64, latencyMs int64) MatchEvent {
	return MatchEvent{
		Type:      EventMatch,
		Target:    target,
		Matched:   matched,
		FellBack:  fellBack,
		Score:     score,
		LatencyMs: latencyMs,
		Timestamp: time.Now().UTC(),
	}
}

func TestAggregatorCounters(t *testing.T) {
	agg := NewAggregator()
	agg.RecordMatchEvent(matchEvent("John", true, false, 0.92, 4))
	agg.RecordMatchEvent(matchEvent("John", true, true, 0.88, 6))
	agg.RecordMatchEvent(matchEvent("Zzyzx", false, false, 0, 3))

	stats := agg.Stats()
	if stats.TotalQueries != 3 || stats.MatchedQueries != 2 || stats.MissedQueries != 1 {
		t.Errorf("counts = %d/%d/%d, want 3/2/1",
			stats.TotalQueries, stats.MatchedQueries, stats.MissedQueries)
	}
	if stats.CaseFallbacks != 1 {
		t.Errorf("case_fallbacks = %d, want 1", stats.CaseFallbacks)
	}
	if want := (0.92 + 0.88) / 2; stats.AvgScore != want {
		t.Errorf("avg_score = %v, want %v", stats.AvgScore, want)
	}
	if stats.AvgLatencyMs != (4+6+3)/3.0 {
		t.Errorf("avg_latency_ms = %v", stats.AvgLatencyMs)
	}
}

func TestAggregatorTopAndMissedTargets(t *testing.T) {
	agg := NewAggregator()
	for i := 0; i < 5; i++ {
		agg.RecordMatchEvent(matchEvent("Smith", true, false, 0.9, 1))
	}
	agg.RecordMatchEvent(matchEvent("Jones", true, false, 0.85, 1))
	agg.RecordMatchEvent(matchEvent("Nobody", false, false, 0, 1))

	stats := agg.Stats()
	if len(stats.TopTargets) == 0 || stats.TopTargets[0].Target != "Smith" {
		t.Errorf("top_targets = %v, want Smith first", stats.TopTargets)
	}
	if len(stats.MissedTargets) != 1 || stats.MissedTargets[0].Target != "Nobody" {
		t.Errorf("missed_targets = %v", stats.MissedTargets)
	}
}

func TestHandleMatchEventDecode(t *testing.T) {
	agg := NewAggregator()
	handler := HandleMatchEvent(agg)

	payload, _ := json.Marshal(matchEvent("John", true, false, 0.95, 2))
	if err := handler(t.Context(), []byte("doc-1"), payload); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if agg.Stats().TotalQueries != 1 {
		t.Error("decoded event not recorded")
	}

	// Malformed payloads are logged and skipped, never retried.
	if err := handler(t.Context(), nil, []byte("{broken")); err != nil {
		t.Errorf("malformed payload returned error %v, want nil", err)
	}
}

func TestStatsEndpoint(t *testing.T) {
	agg := NewAggregator()
	agg.RecordMatchEvent(matchEvent("John", true, false, 0.9, 2))
	h := NewHandler(agg)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/analytics", nil)
	rec := httptest.NewRecorder()
	h.Stats(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var stats AggregatedStats
	if err := json.NewDecoder(rec.Body).Decode(&stats); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if stats.TotalQueries != 1 {
		t.Errorf("total_queries = %d, want 1", stats.TotalQueries)
	}
}
