// Package validator provides input validation for ingestion requests. The
// matching engine assumes well-formed tokens, so geometry is checked once
// here at the boundary and rejected with per-field error details.
package validator

import (
	"fmt"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/OCR-Coordinate-Match-Platform/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/OCR-Coordinate-Match-Platform/internal/match"
)

const (
	maxNameLength = 255
	maxPages      = 500
	maxTokens     = 250000
)

// ValidationError holds per-field validation failure messages.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	var parts []string
	for field, msg := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s:%s", field, msg))
	}
	return strings.Join(parts, "; ")
}

// ValidateIngestRequest checks the document name, page numbering, page
// dimensions, and every token's bounding box. The first bad token on a page
// fails that page; collection continues across pages so the caller sees all
// broken pages at once.
func ValidateIngestRequest(req *ingestion.IngestRequest) error {
	errs := make(map[string]string)

	name := strings.TrimSpace(req.Name)
	if name == "" {
		errs["name"] = "name is required"
	} else if len(name) > maxNameLength {
		errs["name"] = fmt.Sprintf("name must be at most %d characters", maxNameLength)
	}
	if req.IdempotencyKey != "" && len(req.IdempotencyKey) > 255 {
		errs["idempotency_key"] = "idempotency key must be at most 255 characters"
	}

	if len(req.Pages) == 0 {
		errs["pages"] = "at least one page is required"
	} else if len(req.Pages) > maxPages {
		errs["pages"] = fmt.Sprintf("at most %d pages are allowed", maxPages)
	} else if n := req.TokenCount(); n > maxTokens {
		errs["pages"] = fmt.Sprintf("at most %d tokens are allowed across all pages, got %d", maxTokens, n)
	} else {
		for i := range req.Pages {
			if msg := validatePage(&req.Pages[i]); msg != "" {
				errs[fmt.Sprintf("pages[%d]", i)] = msg
			}
		}
	}

	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}

func validatePage(p *match.Page) string {
	if p.PageNumber < 1 {
		return fmt.Sprintf("page_number must be positive, got %d", p.PageNumber)
	}
	if p.PageWidth <= 0 || p.PageHeight <= 0 {
		return fmt.Sprintf("page dimensions must be positive, got %vx%v", p.PageWidth, p.PageHeight)
	}
	for w := range p.Words {
		t := &p.Words[w]
		if t.X0 > t.X1 || t.Top > t.Bottom {
			return fmt.Sprintf("words[%d] has an inverted bounding box [%v,%v,%v,%v]", w, t.X0, t.Top, t.X1, t.Bottom)
		}
		if t.X0 < 0 || t.Top < 0 {
			return fmt.Sprintf("words[%d] has negative coordinates [%v,%v]", w, t.X0, t.Top)
		}
	}
	return ""
}
