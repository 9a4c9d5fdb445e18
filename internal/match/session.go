package match

import "strings"

// Session is the consuming variant of the matcher. It owns a private working
// copy of the pages; every successful Claim removes the matched token window
// from that copy, so later claims in the same session can never re-use those
// tokens. This buys an at-most-once-per-token guarantee across a batch of
// sequential queries at the cost of statelessness.
//
// A Session is not safe for concurrent use: the order of Claim calls decides
// which query wins contested tokens, so callers must issue claims in a
// stable, deterministic order (e.g. person by person, then fragment index).
// Do not mix Session claims and stateless Engine calls over the same logical
// page set within one matching session.
type Session struct {
	engine   *Engine
	pages    []Page
	claims   int
	consumed int
}

// NewSession deep-copies pages into a new consuming session backed by the
// given engine.
func NewSession(engine *Engine, pages []Page) *Session {
	copied := make([]Page, len(pages))
	for i, p := range pages {
		copied[i] = p
		copied[i].Words = make([]Token, len(p.Words))
		copy(copied[i].Words, p.Words)
	}
	return &Session{engine: engine, pages: copied}
}

// Claim finds the best match for the query against the session's remaining
// tokens and consumes the matched window. Returns the outcome with a nil
// Result when nothing clears the threshold; nothing is consumed in that case.
func (s *Session) Claim(q Query) Outcome {
	if strings.TrimSpace(q.Target) == "" || len(s.pages) == 0 {
		return Outcome{}
	}

	s.engine.sensitivePasses.Add(1)
	cand := s.engine.search(q, s.pages, CaseSensitive)
	fellBack := false
	if cand == nil {
		s.engine.insensitivePasses.Add(1)
		cand = s.engine.search(q, s.pages, CaseInsensitive)
		fellBack = true
	}
	if cand == nil {
		return Outcome{}
	}

	s.consume(cand)
	s.claims++
	return Outcome{Result: &cand.result, FellBack: fellBack}
}

// Remaining reports how many tokens are still claimable across all pages.
func (s *Session) Remaining() int {
	n := 0
	for i := range s.pages {
		n += len(s.pages[i].Words)
	}
	return n
}

// Claims reports how many successful claims the session has made.
func (s *Session) Claims() int {
	return s.claims
}

// consume removes the candidate's token window from the session's copy.
func (s *Session) consume(c *candidate) {
	words := s.pages[c.pageIdx].Words
	s.pages[c.pageIdx].Words = append(words[:c.start:c.start], words[c.start+c.width:]...)
	s.consumed += c.width
}
