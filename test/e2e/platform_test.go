// Package e2e contains end-to-end tests that exercise the full matcher
// stack: ingest → match → locate → analytics, with real Kafka, PostgreSQL,
// and Redis.
//
// Prerequisites:
//   - PostgreSQL running with schema applied
//   - Kafka (with Zookeeper) running
//   - Redis running
//   - matcher service running
//
// Run with:
//
//	go test -v -timeout=120s ./test/e2e/...
package e2e

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"
)

// ---------------------------------------------------------------------------
// Config
// ---------------------------------------------------------------------------

type e2eConfig struct {
	MatcherURL string
}

func loadE2EConfig() e2eConfig {
	return e2eConfig{
		MatcherURL: envOrDefault("E2E_MATCHER_URL", "http://localhost:8080"),
	}
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// documentPayload builds an ingest body with a single page laying the given
// words out left to right on one line.
func documentPayload(name string, words ...string) string {
	var tokens []string
	x := 10.0
	for _, w := range words {
		width := float64(len(w)) * 8
		tokens = append(tokens, fmt.Sprintf(
			`{"text":%q,"x0":%g,"top":100,"x1":%g,"bottom":120}`,
			w, x, x+width))
		x += width + 12
	}
	return fmt.Sprintf(
		`{"name":%q,"pages":[{"page_number":1,"page_width":%g,"page_height":1000,"words":[%s]}]}`,
		name, x+10, strings.Join(tokens, ","))
}

func ingestDocument(t *testing.T, client *http.Client, baseURL, payload string) string {
	t.Helper()
	resp, err := client.Post(baseURL+"/api/v1/documents", "application/json", strings.NewReader(payload))
	if err != nil {
		t.Fatalf("ingest request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("expected 201, got %d: %s", resp.StatusCode, body)
	}

	var result struct {
		DocumentID string `json:"document_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("decoding ingest response: %v", err)
	}
	if result.DocumentID == "" {
		t.Fatal("ingest response has no document_id")
	}
	return result.DocumentID
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

// TestPlatformHealth verifies the matcher responds to health checks.
func TestPlatformHealth(t *testing.T) {
	cfg := loadE2EConfig()
	client := &http.Client{Timeout: 5 * time.Second}

	endpoints := []string{"/health/live", "/health/ready"}
	for _, ep := range endpoints {
		t.Run(ep, func(t *testing.T) {
			resp, err := client.Get(cfg.MatcherURL + ep)
			if err != nil {
				t.Skipf("service unavailable: %v", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				body, _ := io.ReadAll(resp.Body)
				t.Errorf("expected 200, got %d: %s", resp.StatusCode, body)
			}
		})
	}
}

// TestIngestAndMatch exercises the document lifecycle:
// ingest → match with context → verify coordinates → delete.
func TestIngestAndMatch(t *testing.T) {
	cfg := loadE2EConfig()
	client := &http.Client{Timeout: 10 * time.Second}

	if _, err := client.Get(cfg.MatcherURL + "/health/live"); err != nil {
		t.Skipf("matcher service unavailable: %v", err)
	}

	uniqueName := fmt.Sprintf("Zyxdoc%d", time.Now().UnixNano()%1000000)
	docID := ingestDocument(t, client, cfg.MatcherURL,
		documentPayload("e2e-roster.pdf", "Patient:", uniqueName, "Krishnamurthy", "DOB:", "1985"))
	t.Logf("ingested document: id=%s", docID)

	matchBody := fmt.Sprintf(
		`{"document_id":%q,"queries":[{"target":%q,"context":["Krishnamurthy"]},{"target":"Nonexistentword"}]}`,
		docID, uniqueName)
	resp, err := client.Post(cfg.MatcherURL+"/api/v1/match", "application/json", strings.NewReader(matchBody))
	if err != nil {
		t.Fatalf("match request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, body)
	}

	var matchResult struct {
		Results []struct {
			Target  string `json:"target"`
			Matched bool   `json:"matched"`
			Result  *struct {
				PageNumber int     `json:"page_number"`
				Score      float64 `json:"score"`
				X0         float64 `json:"x0"`
				X1         float64 `json:"x1"`
			} `json:"result"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&matchResult); err != nil {
		t.Fatalf("decoding match response: %v", err)
	}
	if len(matchResult.Results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(matchResult.Results))
	}

	hit := matchResult.Results[0]
	if !hit.Matched || hit.Result == nil {
		t.Fatalf("expected %q to match", uniqueName)
	}
	if hit.Result.PageNumber != 1 {
		t.Errorf("expected page 1, got %d", hit.Result.PageNumber)
	}
	if hit.Result.X0 >= hit.Result.X1 {
		t.Errorf("degenerate bounding box: x0=%g x1=%g", hit.Result.X0, hit.Result.X1)
	}
	t.Logf("matched %q at page %d with score %.3f", uniqueName, hit.Result.PageNumber, hit.Result.Score)

	if matchResult.Results[1].Matched {
		t.Error("expected Nonexistentword to miss")
	}

	// Cleanup.
	req, _ := http.NewRequest(http.MethodDelete, cfg.MatcherURL+"/api/v1/documents/"+docID, nil)
	delResp, err := client.Do(req)
	if err != nil {
		t.Fatalf("delete request failed: %v", err)
	}
	delResp.Body.Close()
	if delResp.StatusCode != http.StatusOK && delResp.StatusCode != http.StatusNoContent {
		t.Errorf("expected delete to succeed, got %d", delResp.StatusCode)
	}
}

// TestLocateCSVExport verifies the locate endpoint streams CSV output when
// callers supply people explicitly.
func TestLocateCSVExport(t *testing.T) {
	cfg := loadE2EConfig()
	client := &http.Client{Timeout: 10 * time.Second}

	if _, err := client.Get(cfg.MatcherURL + "/health/live"); err != nil {
		t.Skipf("matcher service unavailable: %v", err)
	}

	docID := ingestDocument(t, client, cfg.MatcherURL,
		documentPayload("e2e-names.pdf", "John", "Smith", "and", "Jane", "Doe"))
	defer func() {
		req, _ := http.NewRequest(http.MethodDelete, cfg.MatcherURL+"/api/v1/documents/"+docID, nil)
		if resp, err := client.Do(req); err == nil {
			resp.Body.Close()
		}
	}()

	locateBody := `{"people":[{"full_name":"John Smith","name_parts":["John","Smith"]}]}`
	resp, err := client.Post(
		cfg.MatcherURL+"/api/v1/documents/"+docID+"/locate?format=csv",
		"application/json", strings.NewReader(locateBody))
	if err != nil {
		t.Fatalf("locate request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, body)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Errorf("expected text/csv, got %q", ct)
	}

	body, _ := io.ReadAll(resp.Body)
	lines := strings.Split(strings.TrimSpace(string(body)), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header + 2 rows, got %d lines", len(lines))
	}
	if !strings.HasPrefix(lines[0], "person,target,matched") {
		t.Errorf("unexpected CSV header: %q", lines[0])
	}
}

// TestAnalyticsEndpoint verifies aggregated stats are served after traffic.
func TestAnalyticsEndpoint(t *testing.T) {
	cfg := loadE2EConfig()
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(cfg.MatcherURL + "/api/v1/analytics")
	if err != nil {
		t.Skipf("matcher service unavailable: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, body)
	}

	var stats map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		t.Fatalf("decoding analytics response: %v", err)
	}
	if _, ok := stats["total_queries"]; !ok {
		t.Error("analytics response missing total_queries")
	}
}
