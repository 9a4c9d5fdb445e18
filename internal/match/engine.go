package match

import (
	"log/slog"
	"strings"
	"sync/atomic"
)

// Blend weights for the final score. Base similarity dominates; the context
// bonus only disambiguates between candidates that both clear the threshold.
const (
	baseWeight    = 0.7
	contextWeight = 0.3
)

// Options holds every scoring knob of the engine. The early-exit pair trades
// accuracy for speed: once a candidate's final score reaches EarlyExitScore
// (and its context bonus clears EarlyExitContextBonus when context words were
// given) the scan stops. 0.95/0.5 are heuristic defaults, not validated
// optima; deployments tune them through config.
type Options struct {
	FuzzyThreshold         float64
	ContextWindow          int
	ContextSimilarityFloor float64
	EarlyExitScore         float64
	EarlyExitContextBonus  float64
}

// DefaultOptions returns the production defaults.
func DefaultOptions() Options {
	return Options{
		FuzzyThreshold:         0.80,
		ContextWindow:          5,
		ContextSimilarityFloor: 0.85,
		EarlyExitScore:         0.95,
		EarlyExitContextBonus:  0.5,
	}
}

// Engine runs phrase searches over pages of OCR tokens. It holds no mutable
// search state, performs no I/O, and is safe for concurrent use on disjoint
// or shared read-only inputs.
type Engine struct {
	opts   Options
	logger *slog.Logger

	sensitivePasses   atomic.Int64
	insensitivePasses atomic.Int64
}

// NewEngine creates an Engine, filling zero-valued options with defaults.
func NewEngine(opts Options) *Engine {
	defaults := DefaultOptions()
	if opts.FuzzyThreshold <= 0 {
		opts.FuzzyThreshold = defaults.FuzzyThreshold
	}
	if opts.ContextWindow <= 0 {
		opts.ContextWindow = defaults.ContextWindow
	}
	if opts.ContextSimilarityFloor <= 0 {
		opts.ContextSimilarityFloor = defaults.ContextSimilarityFloor
	}
	if opts.EarlyExitScore <= 0 {
		opts.EarlyExitScore = defaults.EarlyExitScore
	}
	if opts.EarlyExitContextBonus <= 0 {
		opts.EarlyExitContextBonus = defaults.EarlyExitContextBonus
	}
	return &Engine{
		opts:   opts,
		logger: slog.Default().With("component", "match-engine"),
	}
}

// Options returns the engine's effective options.
func (e *Engine) Options() Options {
	return e.opts
}

// PassCounts reports how many case-sensitive and case-insensitive search
// passes have run. The insensitive count only grows when the sensitive pass
// found nothing.
func (e *Engine) PassCounts() (sensitive, insensitive int64) {
	return e.sensitivePasses.Load(), e.insensitivePasses.Load()
}

// FindBestMatch returns the single best match for the query across all pages,
// or nil when the target is empty, no pages were given, or nothing clears the
// fuzzy threshold.
func (e *Engine) FindBestMatch(q Query, pages []Page) *Result {
	return e.Match(q, pages).Result
}

// Match is FindBestMatch plus fallback information. The case-sensitive pass
// always runs first: OCR text usually preserves case for proper nouns, so an
// exact-case hit is a stronger signal. The case-insensitive pass runs only
// when the first pass comes up empty.
func (e *Engine) Match(q Query, pages []Page) Outcome {
	if strings.TrimSpace(q.Target) == "" || len(pages) == 0 {
		return Outcome{}
	}

	e.sensitivePasses.Add(1)
	if cand := e.search(q, pages, CaseSensitive); cand != nil {
		return Outcome{Result: &cand.result}
	}

	e.insensitivePasses.Add(1)
	if cand := e.search(q, pages, CaseInsensitive); cand != nil {
		e.logger.Debug("match found via case-insensitive fallback",
			"target", q.Target,
			"score", cand.result.Score,
		)
		return Outcome{Result: &cand.result, FellBack: true}
	}
	return Outcome{}
}

// candidate carries a Result together with its location in the page set so
// the consuming Session can remove the matched window.
type candidate struct {
	result  Result
	pageIdx int
	start   int
	width   int
}

// search slides a window of the target's word count across every page and
// keeps the best-scoring window. Improvement is strict, so the
// earliest-encountered candidate wins ties (stable left-to-right,
// top-to-bottom preference).
func (e *Engine) search(q Query, pages []Page, mode Mode) *candidate {
	normalizedTarget := Normalize(q.Target, mode)
	targetWords := strings.Fields(normalizedTarget)
	k := len(targetWords)
	if k == 0 {
		return nil
	}

	var best *candidate
	highest := -1.0

	for pageIdx := range pages {
		page := &pages[pageIdx]
		words := page.Words
		if len(words) < k {
			continue
		}

		for i := 0; i+k <= len(words); i++ {
			window := words[i : i+k]
			texts := make([]string, k)
			for w := range window {
				texts[w] = window[w].Text
			}
			phrase := Normalize(strings.Join(texts, " "), mode)

			baseScore := Ratio(normalizedTarget, phrase)
			if baseScore < e.opts.FuzzyThreshold {
				continue
			}

			contextBonus := 0.0
			if len(q.Context) > 0 {
				contextBonus = e.contextBonus(words, i, k, q.Context, mode)
			}
			finalScore := baseWeight*baseScore + contextWeight*contextBonus

			if finalScore > highest {
				highest = finalScore
				best = &candidate{
					result:  assembleResult(page, window, texts, finalScore, baseScore, contextBonus),
					pageIdx: pageIdx,
					start:   i,
					width:   k,
				}
				// Stop scanning further start indices on this page.
				if e.goodEnough(finalScore, contextBonus, len(q.Context)) {
					break
				}
			}
		}

		// And stop scanning further pages.
		if best != nil && e.goodEnough(highest, best.result.ContextBonus, len(q.Context)) {
			break
		}
	}
	return best
}

// goodEnough is the early-exit predicate: the candidate scores at or above
// the exit floor and, when context words were supplied, its bonus shows the
// neighborhood actually agrees.
func (e *Engine) goodEnough(finalScore, contextBonus float64, contextCount int) bool {
	if finalScore < e.opts.EarlyExitScore {
		return false
	}
	return contextCount == 0 || contextBonus > e.opts.EarlyExitContextBonus
}

// contextBonus scores how many context strings appear in the bounded
// neighborhood around the window: up to ContextWindow tokens before and after
// it, the window itself excluded. A context string counts as found when any
// neighborhood token reaches ContextSimilarityFloor against it under the
// active mode.
func (e *Engine) contextBonus(words []Token, start, width int, context []string, mode Mode) float64 {
	if len(context) == 0 {
		return 0
	}

	lo := start - e.opts.ContextWindow
	if lo < 0 {
		lo = 0
	}
	hi := start + width + e.opts.ContextWindow
	if hi > len(words) {
		hi = len(words)
	}

	nearby := make([]string, 0, hi-lo)
	for i := lo; i < hi; i++ {
		if i >= start && i < start+width {
			continue
		}
		nearby = append(nearby, Normalize(words[i].Text, mode))
	}

	found := 0
	for _, ctx := range context {
		normalized := Normalize(ctx, mode)
		for _, token := range nearby {
			if Ratio(normalized, token) >= e.opts.ContextSimilarityFloor {
				found++
				break
			}
		}
	}
	return float64(found) / float64(len(context))
}

// assembleResult builds a Result whose bounding box is the union of the
// window tokens' boxes.
func assembleResult(page *Page, window []Token, texts []string, finalScore, baseScore, contextBonus float64) Result {
	r := Result{
		MatchedText:  strings.Join(texts, " "),
		X0:           window[0].X0,
		Top:          window[0].Top,
		X1:           window[0].X1,
		Bottom:       window[0].Bottom,
		PageNumber:   page.PageNumber,
		PageWidth:    page.PageWidth,
		PageHeight:   page.PageHeight,
		Score:        finalScore,
		BaseScore:    baseScore,
		ContextBonus: contextBonus,
	}
	for _, t := range window[1:] {
		if t.X0 < r.X0 {
			r.X0 = t.X0
		}
		if t.Top < r.Top {
			r.Top = t.Top
		}
		if t.X1 > r.X1 {
			r.X1 = t.X1
		}
		if t.Bottom > r.Bottom {
			r.Bottom = t.Bottom
		}
	}
	return r
}
