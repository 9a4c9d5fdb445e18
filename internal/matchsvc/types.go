// Package matchsvc exposes the matching engine over HTTP: ad-hoc match
// queries against a stored document, the person-by-person locate flow, and
// CSV export of located coordinates.
package matchsvc

import (
	"github.com/Adithya-Monish-Kumar-K/OCR-Coordinate-Match-Platform/internal/extraction"
	"github.com/Adithya-Monish-Kumar-K/OCR-Coordinate-Match-Platform/internal/match"
)

// MatchRequest is the JSON body of the ad-hoc match endpoint.
type MatchRequest struct {
	DocumentID string        `json:"document_id"`
	Queries    []match.Query `json:"queries"`
}

// QueryResult is one query's outcome. Result is null when nothing cleared
// the threshold; that is an answer, not an error.
type QueryResult struct {
	Target   string        `json:"target"`
	Matched  bool          `json:"matched"`
	FellBack bool          `json:"fell_back"`
	Result   *match.Result `json:"result,omitempty"`
}

// MatchResponse preserves query order: Results[i] answers Queries[i].
type MatchResponse struct {
	DocumentID string        `json:"document_id"`
	Results    []QueryResult `json:"results"`
	TookMs     int64         `json:"took_ms"`
}

// LocateRequest is the JSON body of the locate endpoint. When People is
// empty the service extracts names from the document text first.
type LocateRequest struct {
	People []extraction.Person `json:"people,omitempty"`
}

// LocatedFragment is one name part with its claimed coordinates.
type LocatedFragment struct {
	Target   string        `json:"target"`
	Matched  bool          `json:"matched"`
	FellBack bool          `json:"fell_back"`
	Result   *match.Result `json:"result,omitempty"`
}

// LocatedPerson groups the fragments of one person's name.
type LocatedPerson struct {
	FullName  string            `json:"full_name"`
	Fragments []LocatedFragment `json:"fragments"`
}

// LocateResponse reports every person in request order.
type LocateResponse struct {
	DocumentID string          `json:"document_id"`
	People     []LocatedPerson `json:"people"`
	TookMs     int64           `json:"took_ms"`
}
