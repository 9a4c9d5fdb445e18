// Package ingestion defines the request/response types and Kafka event
// schemas used by the OCR document ingestion pipeline. OCR itself happens
// upstream; ingestion accepts the already-tokenized page set.
package ingestion

import (
	"time"

	"github.com/Adithya-Monish-Kumar-K/OCR-Coordinate-Match-Platform/internal/match"
)

// IngestRequest is the JSON body accepted by the document ingestion endpoint.
type IngestRequest struct {
	Name           string       `json:"name"`
	Pages          []match.Page `json:"pages"`
	IdempotencyKey string       `json:"idempotency_key,omitempty"`
}

// IngestResponse is returned to the caller after a document is accepted.
type IngestResponse struct {
	DocumentID string `json:"document_id"`
	Status     string `json:"status"`
	PageCount  int    `json:"page_count"`
	TokenCount int    `json:"token_count"`
}

// Document is a stored OCR document with its page set.
type Document struct {
	ID        string       `json:"id"`
	Name      string       `json:"name"`
	Pages     []match.Page `json:"pages"`
	CreatedAt time.Time    `json:"created_at"`
}

// IngestEvent is the Kafka message payload produced after a document is
// persisted. Downstream consumers (analytics, reindexers) key off the
// document ID.
type IngestEvent struct {
	DocumentID string    `json:"document_id"`
	Name       string    `json:"name"`
	PageCount  int       `json:"page_count"`
	TokenCount int       `json:"token_count"`
	IngestedAt time.Time `json:"ingested_at"`
}

// TokenCount sums the tokens across all pages of the request.
func (r *IngestRequest) TokenCount() int {
	n := 0
	for i := range r.Pages {
		n += len(r.Pages[i].Words)
	}
	return n
}
