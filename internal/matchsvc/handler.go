package matchsvc

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/Adithya-Monish-Kumar-K/OCR-Coordinate-Match-Platform/internal/export"
	"github.com/Adithya-Monish-Kumar-K/OCR-Coordinate-Match-Platform/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/OCR-Coordinate-Match-Platform/internal/ingestion/validator"
	apperrors "github.com/Adithya-Monish-Kumar-K/OCR-Coordinate-Match-Platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/OCR-Coordinate-Match-Platform/pkg/logger"
)

// DocumentStore is the persistence surface the handler needs.
type DocumentStore interface {
	PageSource
	Save(ctx context.Context, req *ingestion.IngestRequest) (*ingestion.IngestResponse, error)
	GetDocument(ctx context.Context, docID string) (*ingestion.Document, error)
	Delete(ctx context.Context, docID string) error
}

// Handler serves the document and match endpoints.
type Handler struct {
	service *Service
	store   DocumentStore
	cache   *ResultCache
	logger  *slog.Logger
}

func NewHandler(service *Service, store DocumentStore, cache *ResultCache) *Handler {
	return &Handler{
		service: service,
		store:   store,
		cache:   cache,
		logger:  slog.Default().With("component", "match-handler"),
	}
}

// Register attaches all routes to the mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/documents", h.IngestDocument)
	mux.HandleFunc("GET /api/v1/documents/{id}", h.GetDocument)
	mux.HandleFunc("DELETE /api/v1/documents/{id}", h.DeleteDocument)
	mux.HandleFunc("POST /api/v1/match", h.Match)
	mux.HandleFunc("POST /api/v1/documents/{id}/locate", h.Locate)
	mux.HandleFunc("DELETE /api/v1/documents/{id}/cache", h.InvalidateCache)
}

// IngestDocument validates and stores an already-OCR'd page set.
func (h *Handler) IngestDocument(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)

	var req ingestion.IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := validator.ValidateIngestRequest(&req); err != nil {
		var validationErr *validator.ValidationError
		if errors.As(err, &validationErr) {
			h.writeJSON(w, http.StatusBadRequest, map[string]any{
				"error":  "validation failed",
				"fields": validationErr.Fields,
			})
			return
		}
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := h.store.Save(ctx, &req)
	if err != nil {
		statusCode := apperrors.HTTPStatusCode(err)
		log.Error("ingestion failed", "error", err, "status_code", statusCode)
		h.writeError(w, statusCode, "ingestion failed")
		return
	}
	log.Info("document ingested",
		"doc_id", resp.DocumentID,
		"pages", resp.PageCount,
		"tokens", resp.TokenCount,
	)
	h.writeJSON(w, http.StatusCreated, resp)
}

func (h *Handler) GetDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := h.store.GetDocument(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, apperrors.HTTPStatusCode(err), "document not found")
		return
	}
	h.writeJSON(w, http.StatusOK, doc)
}

func (h *Handler) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	docID := r.PathValue("id")
	if err := h.store.Delete(r.Context(), docID); err != nil {
		h.writeError(w, apperrors.HTTPStatusCode(err), "delete failed")
		return
	}
	if err := h.cache.Invalidate(r.Context(), docID); err != nil {
		h.logger.Warn("cache invalidation failed after delete", "doc_id", docID, "error", err)
	}
	w.WriteHeader(http.StatusNoContent)
}

// Match answers ad-hoc queries against a stored document.
func (h *Handler) Match(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)

	var req MatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.DocumentID == "" {
		h.writeError(w, http.StatusBadRequest, "document_id is required")
		return
	}

	resp, err := h.service.MatchDocument(ctx, &req)
	if err != nil {
		statusCode := apperrors.HTTPStatusCode(err)
		log.Error("match failed",
			"doc_id", req.DocumentID,
			"queries", len(req.Queries),
			"error", err,
		)
		h.writeError(w, statusCode, "match failed")
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// Locate runs the consuming person-by-person flow. With ?format=csv the
// located coordinates stream back as CSV instead of JSON.
func (h *Handler) Locate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)
	docID := r.PathValue("id")

	var req LocateRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
	}

	resp, err := h.service.Locate(ctx, docID, req.People)
	if err != nil {
		statusCode := apperrors.HTTPStatusCode(err)
		log.Error("locate failed", "doc_id", docID, "error", err)
		h.writeError(w, statusCode, "locate failed")
		return
	}

	if r.URL.Query().Get("format") == "csv" {
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", `attachment; filename="matches.csv"`)
		if err := export.WriteCSV(w, csvRecords(resp)); err != nil {
			log.Error("csv export failed", "doc_id", docID, "error", err)
		}
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) InvalidateCache(w http.ResponseWriter, r *http.Request) {
	docID := r.PathValue("id")
	if err := h.cache.Invalidate(r.Context(), docID); err != nil {
		h.writeError(w, http.StatusInternalServerError, "cache invalidation failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func csvRecords(resp *LocateResponse) []export.Record {
	var records []export.Record
	for _, person := range resp.People {
		for _, frag := range person.Fragments {
			records = append(records, export.Record{
				Person:   person.FullName,
				Target:   frag.Target,
				Matched:  frag.Matched,
				FellBack: frag.FellBack,
				Result:   frag.Result,
			})
		}
	}
	return records
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
