// Package match locates the token span on an OCR'd page that best corresponds
// to a target string. It contains the text normalizer, the Ratcliff/Obershelp
// similarity ratio, the sliding-window phrase search with case-sensitivity
// fallback, the neighboring-context bonus, and the consuming Session variant.
//
// Tokens and pages are treated as read-only inputs; the Engine never mutates
// them and is safe for concurrent use. Only a Session (which owns a private
// copy) removes tokens.
package match

// Token is a single OCR-recognized word with its axis-aligned bounding box in
// page coordinate space.
type Token struct {
	Text   string  `json:"text"`
	X0     float64 `json:"x0"`
	Top    float64 `json:"top"`
	X1     float64 `json:"x1"`
	Bottom float64 `json:"bottom"`
}

// Page is one logical unit of layout holding an ordered token sequence. The
// order is the reading order produced upstream (top-to-bottom, left-to-right)
// and is significant: adjacent indices are assumed spatially adjacent for
// phrase construction.
type Page struct {
	PageNumber int     `json:"page_number"`
	PageWidth  float64 `json:"page_width"`
	PageHeight float64 `json:"page_height"`
	Words      []Token `json:"words"`
}

// Query asks for the location of Target among the page tokens. Context holds
// auxiliary strings expected to appear near the true match (e.g. the other
// fragments of the same person's name); they are never required.
type Query struct {
	Target  string   `json:"target"`
	Context []string `json:"context,omitempty"`
}

// Result describes the winning token window. The bounding box is the union of
// all tokens in the window. Score is the blend
// baseWeight*BaseScore + contextWeight*ContextBonus; all three scores are
// in [0,1].
type Result struct {
	MatchedText  string  `json:"matched_text"`
	X0           float64 `json:"x0"`
	Top          float64 `json:"top"`
	X1           float64 `json:"x1"`
	Bottom       float64 `json:"bottom"`
	PageNumber   int     `json:"page_number"`
	PageWidth    float64 `json:"page_width"`
	PageHeight   float64 `json:"page_height"`
	Score        float64 `json:"score"`
	BaseScore    float64 `json:"base_score"`
	ContextBonus float64 `json:"context_bonus"`
}

// Outcome pairs a Result with how it was found. FellBack reports that the
// case-sensitive pass found nothing and the match came from the
// case-insensitive fallback.
type Outcome struct {
	Result   *Result
	FellBack bool
}
