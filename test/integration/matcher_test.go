// Package integration contains tests that verify the interaction between
// the matcher's components. These tests use httptest servers with real
// handler wiring and a real PostgreSQL database, but no Kafka or Redis.
//
// Run with:
//
//	go test -v ./test/integration/...
package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/OCR-Coordinate-Match-Platform/internal/auth/apikey"
	"github.com/Adithya-Monish-Kumar-K/OCR-Coordinate-Match-Platform/internal/auth/ratelimit"
	"github.com/Adithya-Monish-Kumar-K/OCR-Coordinate-Match-Platform/internal/ingestion/store"
	"github.com/Adithya-Monish-Kumar-K/OCR-Coordinate-Match-Platform/internal/match"
	"github.com/Adithya-Monish-Kumar-K/OCR-Coordinate-Match-Platform/internal/matchsvc"
	"github.com/Adithya-Monish-Kumar-K/OCR-Coordinate-Match-Platform/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/OCR-Coordinate-Match-Platform/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/OCR-Coordinate-Match-Platform/pkg/postgres"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// skipIfNoPostgres skips the test when PostgreSQL is unavailable.
func skipIfNoPostgres(t *testing.T) *postgres.Client {
	t.Helper()
	cfg := testPostgresConfig()
	db, err := postgres.New(cfg)
	if err != nil {
		t.Skipf("skipping integration test: postgres unavailable: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func testPostgresConfig() config.PostgresConfig {
	return config.PostgresConfig{
		Host:            envOrDefault("TEST_POSTGRES_HOST", "localhost"),
		Port:            envOrDefaultInt("TEST_POSTGRES_PORT", 5432),
		Database:        envOrDefault("TEST_POSTGRES_DB", "ocrmatch_test"),
		User:            envOrDefault("TEST_POSTGRES_USER", "ocrmatch"),
		Password:        envOrDefault("TEST_POSTGRES_PASSWORD", "localdev"),
		SSLMode:         "disable",
		MaxOpenConns:    5,
		MaxIdleConns:    2,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrDefaultInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

// newMatcherServer creates a test matcher backed by a real PostgreSQL
// database, without Redis, Kafka, or the extraction client.
func newMatcherServer(t *testing.T, db *postgres.Client, authed bool) *httptest.Server {
	t.Helper()

	st := store.New(db, nil, nil, nil, 0)
	engine := match.NewEngine(match.DefaultOptions())
	svc := matchsvc.NewService(engine, st, nil, nil, nil, nil, 4)
	h := matchsvc.NewHandler(svc, st, nil)

	mux := http.NewServeMux()
	h.Register(mux)

	var handler http.Handler = mux
	if authed {
		validator := apikey.NewValidator(db)
		limiter := ratelimit.New(time.Minute)
		t.Cleanup(limiter.Stop)
		handler = middleware.RateLimit(limiter)(handler)
		handler = middleware.Auth(validator)(handler)
	}
	return httptest.NewServer(handler)
}

// singleLinePage builds an ingest body laying the words out on one line.
func singleLinePage(name string, words ...string) []byte {
	type token struct {
		Text   string  `json:"text"`
		X0     float64 `json:"x0"`
		Top    float64 `json:"top"`
		X1     float64 `json:"x1"`
		Bottom float64 `json:"bottom"`
	}
	tokens := make([]token, 0, len(words))
	x := 10.0
	for _, w := range words {
		width := float64(len(w)) * 8
		tokens = append(tokens, token{Text: w, X0: x, Top: 100, X1: x + width, Bottom: 120})
		x += width + 12
	}
	body, _ := json.Marshal(map[string]any{
		"name": name,
		"pages": []map[string]any{{
			"page_number": 1,
			"page_width":  x + 10,
			"page_height": 1000,
			"words":       tokens,
		}},
	})
	return body
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

// TestDocumentLifecycle walks a document through ingest, match, and delete
// against a real database.
func TestDocumentLifecycle(t *testing.T) {
	db := skipIfNoPostgres(t)
	srv := newMatcherServer(t, db, false)
	defer srv.Close()

	// 1. Ingest.
	resp, err := http.Post(srv.URL+"/api/v1/documents", "application/json",
		bytes.NewReader(singleLinePage("lifecycle.pdf", "Patient:", "Chidambaram", "DOB:", "1985")))
	if err != nil {
		t.Fatalf("ingest request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("expected 201, got %d: %s", resp.StatusCode, body)
	}

	var ingested struct {
		DocumentID string `json:"document_id"`
		PageCount  int    `json:"page_count"`
		TokenCount int    `json:"token_count"`
	}
	json.NewDecoder(resp.Body).Decode(&ingested)
	if ingested.DocumentID == "" {
		t.Fatal("ingest returned no document id")
	}
	if ingested.TokenCount != 4 {
		t.Errorf("expected token_count 4, got %d", ingested.TokenCount)
	}

	// 2. Match against the stored pages.
	matchBody := fmt.Sprintf(`{"document_id":%q,"queries":[{"target":"Chidambaram"}]}`, ingested.DocumentID)
	resp2, err := http.Post(srv.URL+"/api/v1/match", "application/json", bytes.NewReader([]byte(matchBody)))
	if err != nil {
		t.Fatalf("match request failed: %v", err)
	}
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp2.Body)
		t.Fatalf("expected 200, got %d: %s", resp2.StatusCode, body)
	}

	var matched struct {
		Results []struct {
			Matched bool `json:"matched"`
			Result  *struct {
				PageNumber int `json:"page_number"`
			} `json:"result"`
		} `json:"results"`
	}
	json.NewDecoder(resp2.Body).Decode(&matched)
	if len(matched.Results) != 1 || !matched.Results[0].Matched {
		t.Fatalf("expected a match, got %+v", matched.Results)
	}
	if matched.Results[0].Result.PageNumber != 1 {
		t.Errorf("expected page 1, got %d", matched.Results[0].Result.PageNumber)
	}

	// 3. Delete, then verify the document is gone.
	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/api/v1/documents/"+ingested.DocumentID, nil)
	resp3, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("delete request failed: %v", err)
	}
	resp3.Body.Close()

	resp4, err := http.Get(srv.URL + "/api/v1/documents/" + ingested.DocumentID)
	if err != nil {
		t.Fatalf("get after delete failed: %v", err)
	}
	resp4.Body.Close()
	if resp4.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404 after delete, got %d", resp4.StatusCode)
	}
}

// TestIdempotentIngest verifies that re-sending the same idempotency key
// returns the original document instead of storing a duplicate.
func TestIdempotentIngest(t *testing.T) {
	db := skipIfNoPostgres(t)
	srv := newMatcherServer(t, db, false)
	defer srv.Close()

	key := fmt.Sprintf("idem-%d", time.Now().UnixNano())
	body := singleLinePage("idem.pdf", "Venkatesan")
	var withKey map[string]any
	json.Unmarshal(body, &withKey)
	withKey["idempotency_key"] = key
	payload, _ := json.Marshal(withKey)

	var ids []string
	for i := 0; i < 2; i++ {
		resp, err := http.Post(srv.URL+"/api/v1/documents", "application/json", bytes.NewReader(payload))
		if err != nil {
			t.Fatalf("ingest %d failed: %v", i, err)
		}
		var out struct {
			DocumentID string `json:"document_id"`
		}
		json.NewDecoder(resp.Body).Decode(&out)
		resp.Body.Close()
		ids = append(ids, out.DocumentID)
	}

	if ids[0] == "" || ids[0] != ids[1] {
		t.Errorf("expected both ingests to return the same id, got %q and %q", ids[0], ids[1])
	}
}

// TestUnauthenticatedRequestRejected verifies that API endpoints reject
// requests without an API key when auth is enabled.
func TestUnauthenticatedRequestRejected(t *testing.T) {
	db := skipIfNoPostgres(t)
	srv := newMatcherServer(t, db, true)
	defer srv.Close()

	endpoints := []struct {
		method string
		path   string
	}{
		{"POST", "/api/v1/match"},
		{"POST", "/api/v1/documents"},
		{"GET", "/api/v1/documents/some-id"},
	}

	for _, ep := range endpoints {
		req, _ := http.NewRequest(ep.method, srv.URL+ep.path, nil)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("%s %s: request failed: %v", ep.method, ep.path, err)
		}
		resp.Body.Close()

		if resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("%s %s: expected 401, got %d", ep.method, ep.path, resp.StatusCode)
		}
	}
}

// TestAPIKeyLifecycle creates a key, uses it, revokes it, and verifies the
// revoked key is rejected.
func TestAPIKeyLifecycle(t *testing.T) {
	db := skipIfNoPostgres(t)
	srv := newMatcherServer(t, db, true)
	defer srv.Close()

	validator := apikey.NewValidator(db)
	rawKey, err := validator.CreateKey(t.Context(), "integration-test", 100, nil)
	if err != nil {
		t.Fatalf("creating key: %v", err)
	}

	// Use the key to ingest a document.
	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/api/v1/documents",
		bytes.NewReader(singleLinePage("authed.pdf", "Okonkwo")))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", rawKey)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("authed ingest failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("expected 201, got %d: %s", resp.StatusCode, body)
	}

	if err := validator.RevokeKey(t.Context(), rawKey); err != nil {
		t.Fatalf("revoking key: %v", err)
	}

	req2, _ := http.NewRequest(http.MethodPost, srv.URL+"/api/v1/documents",
		bytes.NewReader(singleLinePage("authed2.pdf", "Adichie")))
	req2.Header.Set("Content-Type", "application/json")
	req2.Header.Set("X-API-Key", rawKey)
	resp2, err := http.DefaultClient.Do(req2)
	if err != nil {
		t.Fatalf("ingest after revoke failed: %v", err)
	}
	resp2.Body.Close()
	if resp2.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401 after revoke, got %d", resp2.StatusCode)
	}
}

// TestRateLimitEnforced verifies that a key's per-minute limit returns 429
// once exhausted.
func TestRateLimitEnforced(t *testing.T) {
	db := skipIfNoPostgres(t)
	srv := newMatcherServer(t, db, true)
	defer srv.Close()

	validator := apikey.NewValidator(db)
	rawKey, err := validator.CreateKey(t.Context(), "ratelimit-test", 3, nil)
	if err != nil {
		t.Fatalf("creating key: %v", err)
	}

	var got429 bool
	for i := 0; i < 5; i++ {
		req, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/v1/documents/nope", nil)
		req.Header.Set("X-API-Key", rawKey)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("request %d failed: %v", i, err)
		}
		resp.Body.Close()
		if resp.StatusCode == http.StatusTooManyRequests {
			got429 = true
			break
		}
	}
	if !got429 {
		t.Error("expected 429 after exhausting the key's rate limit")
	}
}
