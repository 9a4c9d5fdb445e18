// Package export renders located coordinates for spreadsheet import. Columns
// mirror the locate response shape so a row can be traced back to its person
// and name fragment.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/Adithya-Monish-Kumar-K/OCR-Coordinate-Match-Platform/internal/match"
)

// Record is one exportable row: a name fragment and where (or whether) it was
// found.
type Record struct {
	Person   string
	Target   string
	Matched  bool
	FellBack bool
	Result   *match.Result
}

var header = []string{
	"person", "target", "matched", "case_fallback",
	"page_number", "x0", "top", "x1", "bottom",
	"score", "base_score", "context_bonus", "matched_text",
}

// WriteCSV streams records as CSV. Unmatched fragments keep their identifying
// columns and leave the coordinate columns empty.
func WriteCSV(w io.Writer, records []Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("writing csv header: %w", err)
	}
	for i, rec := range records {
		if err := cw.Write(row(rec)); err != nil {
			return fmt.Errorf("writing csv row %d: %w", i, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func row(rec Record) []string {
	out := []string{
		rec.Person,
		rec.Target,
		strconv.FormatBool(rec.Matched),
		strconv.FormatBool(rec.FellBack),
	}
	if rec.Result == nil {
		return append(out, "", "", "", "", "", "", "", "", "")
	}
	r := rec.Result
	return append(out,
		strconv.Itoa(r.PageNumber),
		num(r.X0), num(r.Top), num(r.X1), num(r.Bottom),
		num(r.Score), num(r.BaseScore), num(r.ContextBonus),
		r.MatchedText,
	)
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
