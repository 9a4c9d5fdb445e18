package matchsvc

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/OCR-Coordinate-Match-Platform/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/OCR-Coordinate-Match-Platform/internal/extraction"
	"github.com/Adithya-Monish-Kumar-K/OCR-Coordinate-Match-Platform/internal/match"
	apperrors "github.com/Adithya-Monish-Kumar-K/OCR-Coordinate-Match-Platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/OCR-Coordinate-Match-Platform/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/OCR-Coordinate-Match-Platform/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/OCR-Coordinate-Match-Platform/pkg/tracing"
)

// PageSource supplies the stored page sets the matcher runs against.
type PageSource interface {
	GetPages(ctx context.Context, docID string) ([]match.Page, error)
}

// NameExtractor splits document text into people. The production
// implementation is the OpenAI-backed extractor.
type NameExtractor interface {
	Enabled() bool
	ExtractNames(ctx context.Context, documentText string) ([]extraction.Person, error)
}

// Service runs match queries against stored documents. The stateless engine
// is shared across requests; the locate flow builds a fresh consuming
// session per call.
type Service struct {
	engine        *match.Engine
	pages         PageSource
	cache         *ResultCache
	collector     *analytics.Collector
	extractor     NameExtractor
	metrics       *metrics.Metrics
	maxConcurrent int
	logger        *slog.Logger
}

// NewService wires the match service. cache, collector, extractor, and m may
// be nil; the service then runs uncached, untracked, and without extraction.
func NewService(engine *match.Engine, pages PageSource, cache *ResultCache, collector *analytics.Collector, extractor NameExtractor, m *metrics.Metrics, maxConcurrent int) *Service {
	if maxConcurrent <= 0 {
		maxConcurrent = 8
	}
	return &Service{
		engine:        engine,
		pages:         pages,
		cache:         cache,
		collector:     collector,
		extractor:     extractor,
		metrics:       m,
		maxConcurrent: maxConcurrent,
		logger:        slog.Default().With("component", "match-service"),
	}
}

// MatchDocument answers every query against the document's full page set.
// Queries fan out concurrently; the engine is reentrant over the shared
// read-only pages. Results keep request order.
func (s *Service) MatchDocument(ctx context.Context, req *MatchRequest) (*MatchResponse, error) {
	ctx, span := tracing.StartChildSpan(ctx, "match-document")
	defer span.End()

	if len(req.Queries) == 0 {
		return nil, apperrors.New(apperrors.ErrInvalidInput, 400, "at least one query is required")
	}

	pages, err := s.pages.GetPages(ctx, req.DocumentID)
	if err != nil {
		return nil, err
	}

	started := time.Now()
	results := make([]QueryResult, len(req.Queries))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.maxConcurrent)
	for i, q := range req.Queries {
		g.Go(func() error {
			result, cached, err := s.cache.GetOrCompute(gctx, req.DocumentID, q, func() (*QueryResult, error) {
				return s.runQuery(q, pages), nil
			})
			if err != nil {
				return fmt.Errorf("query %q: %w", q.Target, err)
			}
			results[i] = *result
			s.observe(gctx, req.DocumentID, q, result, cached, analytics.EventMatch, time.Since(started))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &MatchResponse{
		DocumentID: req.DocumentID,
		Results:    results,
		TookMs:     time.Since(started).Milliseconds(),
	}, nil
}

// Locate runs the consuming flow: one session over the document, claims
// issued person by person in fragment order, each fragment using the
// person's other fragments as context. A token claimed by one fragment is
// gone for every later claim in the same call.
func (s *Service) Locate(ctx context.Context, docID string, people []extraction.Person) (*LocateResponse, error) {
	ctx, span := tracing.StartChildSpan(ctx, "locate-names")
	defer span.End()

	pages, err := s.pages.GetPages(ctx, docID)
	if err != nil {
		return nil, err
	}
	if len(people) == 0 {
		if people, err = s.extractPeople(ctx, pages); err != nil {
			return nil, err
		}
	}

	started := time.Now()
	session := match.NewSession(s.engine, pages)
	located := make([]LocatedPerson, 0, len(people))
	for _, person := range people {
		lp := LocatedPerson{
			FullName:  person.FullName,
			Fragments: make([]LocatedFragment, 0, len(person.NameParts)),
		}
		for i, part := range person.NameParts {
			q := match.Query{Target: part, Context: otherParts(person.NameParts, i)}
			out := session.Claim(q)
			frag := LocatedFragment{
				Target:   part,
				Matched:  out.Result != nil,
				FellBack: out.FellBack,
				Result:   out.Result,
			}
			lp.Fragments = append(lp.Fragments, frag)
			s.observe(ctx, docID, q, &QueryResult{
				Target:   part,
				Matched:  frag.Matched,
				FellBack: frag.FellBack,
				Result:   frag.Result,
			}, false, analytics.EventLocate, time.Since(started))
		}
		located = append(located, lp)
	}

	s.logger.Info("locate completed",
		"doc_id", docID,
		"people", len(people),
		"tokens_remaining", session.Remaining(),
		"claims", session.Claims(),
	)
	return &LocateResponse{
		DocumentID: docID,
		People:     located,
		TookMs:     time.Since(started).Milliseconds(),
	}, nil
}

func (s *Service) runQuery(q match.Query, pages []match.Page) *QueryResult {
	out := s.engine.Match(q, pages)
	return &QueryResult{
		Target:   q.Target,
		Matched:  out.Result != nil,
		FellBack: out.FellBack,
		Result:   out.Result,
	}
}

// extractPeople joins the document's token text in reading order and asks
// the extractor to split it into people.
func (s *Service) extractPeople(ctx context.Context, pages []match.Page) ([]extraction.Person, error) {
	if s.extractor == nil || !s.extractor.Enabled() {
		return nil, apperrors.ErrExtractionDisabled
	}
	var b strings.Builder
	for i := range pages {
		for w := range pages[i].Words {
			if b.Len() > 0 {
				b.WriteByte(' ')
			}
			b.WriteString(pages[i].Words[w].Text)
		}
	}
	people, err := s.extractor.ExtractNames(ctx, b.String())
	if err != nil {
		return nil, err
	}
	if len(people) == 0 {
		return nil, apperrors.New(apperrors.ErrInvalidInput, 422, "no names found in document")
	}
	return people, nil
}

func (s *Service) observe(ctx context.Context, docID string, q match.Query, result *QueryResult, cached bool, kind analytics.EventType, elapsed time.Duration) {
	if s.metrics != nil {
		outcome := "no_match"
		caseMode := match.CaseSensitive.String()
		if result.Matched {
			outcome = "matched"
			if result.FellBack {
				caseMode = match.CaseInsensitive.String()
			}
			s.metrics.MatchScores.WithLabelValues("final").Observe(result.Result.Score)
			s.metrics.MatchScores.WithLabelValues("base").Observe(result.Result.BaseScore)
		}
		s.metrics.MatchQueriesTotal.WithLabelValues(outcome, caseMode).Inc()
		if result.FellBack {
			s.metrics.CaseFallbacksTotal.Inc()
		}
		cacheStatus := "miss"
		if cached {
			cacheStatus = "hit"
		}
		s.metrics.MatchLatency.WithLabelValues(cacheStatus).Observe(elapsed.Seconds())
	}

	if s.collector != nil {
		event := analytics.MatchEvent{
			Type:         kind,
			DocumentID:   docID,
			Target:       q.Target,
			ContextCount: len(q.Context),
			Matched:      result.Matched,
			FellBack:     result.FellBack,
			LatencyMs:    elapsed.Milliseconds(),
			CacheHit:     cached,
			Timestamp:    time.Now().UTC(),
			RequestID:    middleware.GetRequestID(ctx),
		}
		if result.Result != nil {
			event.Score = result.Result.Score
			event.BaseScore = result.Result.BaseScore
			event.ContextBonus = result.Result.ContextBonus
		}
		s.collector.Track(event)
	}
}

func otherParts(parts []string, skip int) []string {
	if len(parts) <= 1 {
		return nil
	}
	others := make([]string, 0, len(parts)-1)
	for i, p := range parts {
		if i != skip {
			others = append(others, p)
		}
	}
	return others
}
