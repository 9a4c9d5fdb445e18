// Package store persists OCR documents to PostgreSQL, caches their page sets
// in Redis, and publishes ingest events to Kafka. Pages are stored as a JSONB
// column: the matcher always consumes the whole page set, so there is nothing
// to gain from normalizing tokens into rows.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/OCR-Coordinate-Match-Platform/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/OCR-Coordinate-Match-Platform/internal/match"
	apperrors "github.com/Adithya-Monish-Kumar-K/OCR-Coordinate-Match-Platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/OCR-Coordinate-Match-Platform/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/OCR-Coordinate-Match-Platform/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/OCR-Coordinate-Match-Platform/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/OCR-Coordinate-Match-Platform/pkg/redis"
)

// Store coordinates document persistence, the page cache, and Kafka event
// production. It expects the following schema:
//
//	CREATE TABLE documents (
//	    id              UUID PRIMARY KEY DEFAULT gen_random_uuid(),
//	    name            TEXT NOT NULL,
//	    pages           JSONB NOT NULL,
//	    page_count      INT NOT NULL,
//	    token_count     INT NOT NULL,
//	    idempotency_key TEXT UNIQUE,
//	    created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
//	);
type Store struct {
	db       *postgres.Client
	cache    *redis.Client
	producer *kafka.Producer
	metrics  *metrics.Metrics
	pageTTL  time.Duration
	logger   *slog.Logger
}

// New creates a Store. The producer and cache may be nil in tests; the store
// degrades to PostgreSQL-only behavior.
func New(db *postgres.Client, cache *redis.Client, producer *kafka.Producer, m *metrics.Metrics, pageTTL time.Duration) *Store {
	return &Store{
		db:       db,
		cache:    cache,
		producer: producer,
		metrics:  m,
		pageTTL:  pageTTL,
		logger:   slog.Default().With("component", "document-store"),
	}
}

// Save persists the document, primes the page cache, and publishes an
// IngestEvent. Duplicate idempotency keys return the existing document
// without re-insertion.
func (s *Store) Save(ctx context.Context, req *ingestion.IngestRequest) (*ingestion.IngestResponse, error) {
	if req.IdempotencyKey != "" {
		existing, err := s.findByIdempotencyKey(ctx, req.IdempotencyKey)
		if err != nil {
			return nil, fmt.Errorf("checking idempotency key: %w", err)
		}
		if existing != nil {
			s.logger.Info("duplicate ingestion detected",
				"idempotency_key", req.IdempotencyKey,
				"existing_id", existing.DocumentID,
			)
			return existing, nil
		}
	}

	pagesJSON, err := json.Marshal(req.Pages)
	if err != nil {
		return nil, fmt.Errorf("marshaling pages: %w", err)
	}

	var docID string
	err = s.db.InTx(ctx, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx,
			`INSERT INTO documents (name, pages, page_count, token_count, idempotency_key)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (idempotency_key) DO NOTHING
		RETURNING id`,
			req.Name, pagesJSON, len(req.Pages), req.TokenCount(), nullableString(req.IdempotencyKey),
		).Scan(&docID)
		if err == sql.ErrNoRows {
			return apperrors.New(apperrors.ErrDocumentExists, 409, "idempotency key already in use")
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("inserting document: %w", err)
	}

	if s.metrics != nil {
		s.metrics.DocumentsTotal.Inc()
		s.metrics.PagesPerDocument.Observe(float64(len(req.Pages)))
	}
	s.primeCache(ctx, docID, pagesJSON)

	if s.producer != nil {
		event := kafka.Event{
			Key: docID,
			Value: ingestion.IngestEvent{
				DocumentID: docID,
				Name:       req.Name,
				PageCount:  len(req.Pages),
				TokenCount: req.TokenCount(),
				IngestedAt: time.Now().UTC(),
			},
		}
		if err := s.producer.Publish(ctx, event); err != nil {
			s.logger.Error("failed to publish ingest event",
				"doc_id", docID,
				"error", err,
			)
		}
	}

	return &ingestion.IngestResponse{
		DocumentID: docID,
		Status:     "STORED",
		PageCount:  len(req.Pages),
		TokenCount: req.TokenCount(),
	}, nil
}

// GetPages loads a document's page set, consulting the Redis cache before
// PostgreSQL. A cache miss repopulates the cache.
func (s *Store) GetPages(ctx context.Context, docID string) ([]match.Page, error) {
	if s.cache != nil {
		if raw, err := s.cache.Get(ctx, pageKey(docID)); err == nil {
			var pages []match.Page
			if err := json.Unmarshal([]byte(raw), &pages); err == nil {
				if s.metrics != nil {
					s.metrics.CacheHitsTotal.Inc()
				}
				return pages, nil
			}
			s.logger.Warn("corrupt page cache entry, falling through", "doc_id", docID)
		}
		if s.metrics != nil {
			s.metrics.CacheMissesTotal.Inc()
		}
	}

	var pagesJSON []byte
	err := s.db.DB.QueryRowContext(ctx,
		`SELECT pages FROM documents WHERE id=$1`, docID).Scan(&pagesJSON)
	if err == sql.ErrNoRows {
		return nil, apperrors.Newf(apperrors.ErrDocumentNotFound, 404, "document %s", docID)
	}
	if err != nil {
		return nil, fmt.Errorf("querying document %s: %w", docID, err)
	}

	var pages []match.Page
	if err := json.Unmarshal(pagesJSON, &pages); err != nil {
		return nil, fmt.Errorf("unmarshaling pages for document %s: %w", docID, err)
	}
	s.primeCache(ctx, docID, pagesJSON)
	return pages, nil
}

// GetDocument loads the full document row.
func (s *Store) GetDocument(ctx context.Context, docID string) (*ingestion.Document, error) {
	var (
		doc       ingestion.Document
		pagesJSON []byte
	)
	err := s.db.DB.QueryRowContext(ctx,
		`SELECT id, name, pages, created_at FROM documents WHERE id=$1`, docID,
	).Scan(&doc.ID, &doc.Name, &pagesJSON, &doc.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, apperrors.Newf(apperrors.ErrDocumentNotFound, 404, "document %s", docID)
	}
	if err != nil {
		return nil, fmt.Errorf("querying document %s: %w", docID, err)
	}
	if err := json.Unmarshal(pagesJSON, &doc.Pages); err != nil {
		return nil, fmt.Errorf("unmarshaling pages for document %s: %w", docID, err)
	}
	return &doc, nil
}

// Delete removes a document and invalidates its cache entries, including any
// cached match results for it.
func (s *Store) Delete(ctx context.Context, docID string) error {
	res, err := s.db.DB.ExecContext(ctx, `DELETE FROM documents WHERE id=$1`, docID)
	if err != nil {
		return fmt.Errorf("deleting document %s: %w", docID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.Newf(apperrors.ErrDocumentNotFound, 404, "document %s", docID)
	}
	if s.cache != nil {
		if _, err := s.cache.FlushByPattern(ctx, "doc:"+docID+":*"); err != nil {
			s.logger.Warn("failed to invalidate cache", "doc_id", docID, "error", err)
		}
	}
	return nil
}

func (s *Store) primeCache(ctx context.Context, docID string, pagesJSON []byte) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, pageKey(docID), pagesJSON, s.pageTTL); err != nil {
		s.logger.Warn("failed to prime page cache", "doc_id", docID, "error", err)
	}
}

func pageKey(docID string) string {
	return "doc:" + docID + ":pages"
}

func (s *Store) findByIdempotencyKey(ctx context.Context, key string) (*ingestion.IngestResponse, error) {
	var resp ingestion.IngestResponse
	err := s.db.DB.QueryRowContext(ctx,
		`SELECT id, page_count, token_count FROM documents WHERE idempotency_key=$1`, key,
	).Scan(&resp.DocumentID, &resp.PageCount, &resp.TokenCount)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying by idempotency key: %w", err)
	}
	resp.Status = "STORED"
	return &resp, nil
}

// nullableString converts a Go string to a sql.NullString, treating the
// empty string as NULL.
func nullableString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
