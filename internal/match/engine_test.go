package match

import (
	"math"
	"reflect"
	"testing"
)

// rowPage lays the given words out left to right on a single line.
func rowPage(pageNumber int, words ...string) Page {
	tokens := make([]Token, len(words))
	x := 10.0
	for i, w := range words {
		width := float64(len(w)) * 8
		tokens[i] = Token{
			Text:   w,
			X0:     x,
			Top:    100,
			X1:     x + width,
			Bottom: 120,
		}
		x += width + 12
	}
	return Page{
		PageNumber: pageNumber,
		PageWidth:  800,
		PageHeight: 1000,
		Words:      tokens,
	}
}

func TestFindBestMatchExactToken(t *testing.T) {
	engine := NewEngine(DefaultOptions())
	pages := []Page{rowPage(1, "John", "Smith")}

	got := engine.FindBestMatch(Query{Target: "John"}, pages)
	if got == nil {
		t.Fatal("expected a match, got nil")
	}
	if got.MatchedText != "John" {
		t.Errorf("matched_text = %q, want %q", got.MatchedText, "John")
	}
	if got.BaseScore != 1.0 {
		t.Errorf("base_score = %v, want 1.0", got.BaseScore)
	}
	if got.ContextBonus != 0 {
		t.Errorf("context_bonus = %v, want 0 without context words", got.ContextBonus)
	}
	if math.Abs(got.Score-0.7) > 1e-9 {
		t.Errorf("score = %v, want 0.7 (0.7*base + 0.3*bonus)", got.Score)
	}
	if got.X0 != 10 || got.X1 != 42 {
		t.Errorf("bbox x = [%v, %v], want the first token's box [10, 42]", got.X0, got.X1)
	}
	if got.PageNumber != 1 {
		t.Errorf("page_number = %d, want 1", got.PageNumber)
	}
}

func TestFindBestMatchPunctuationNoise(t *testing.T) {
	engine := NewEngine(DefaultOptions())
	pages := []Page{rowPage(1, "John.", "Smith,")}

	got := engine.FindBestMatch(Query{Target: "John"}, pages)
	if got == nil {
		t.Fatal("expected a match, got nil")
	}
	if got.BaseScore != 1.0 {
		t.Errorf("base_score = %v, want 1.0 after punctuation strip", got.BaseScore)
	}
	if got.MatchedText != "John." {
		t.Errorf("matched_text = %q, want the raw token text %q", got.MatchedText, "John.")
	}
}

func TestThresholdGating(t *testing.T) {
	engine := NewEngine(DefaultOptions())
	// Ratio("John", "Jobn") is 0.75, below the 0.80 threshold.
	pages := []Page{rowPage(1, "Jobn", "Smith")}

	if got := engine.FindBestMatch(Query{Target: "John"}, pages); got != nil {
		t.Errorf("expected no match below threshold, got %+v with base_score %v", got, got.BaseScore)
	}

	// Lowering the threshold admits the same candidate.
	loose := NewEngine(Options{FuzzyThreshold: 0.7})
	got := loose.FindBestMatch(Query{Target: "John"}, pages)
	if got == nil {
		t.Fatal("expected a match at threshold 0.7")
	}
	if got.BaseScore < 0.7 {
		t.Errorf("returned base_score %v below configured threshold", got.BaseScore)
	}
}

func TestMultiWordTarget(t *testing.T) {
	engine := NewEngine(DefaultOptions())
	pages := []Page{rowPage(1, "Dr", "Amal", "Krishna", "Rajesh", "MD")}

	got := engine.FindBestMatch(Query{Target: "Amal Krishna"}, pages)
	if got == nil {
		t.Fatal("expected a match, got nil")
	}
	if got.MatchedText != "Amal Krishna" {
		t.Errorf("matched_text = %q, want %q", got.MatchedText, "Amal Krishna")
	}
	// Union box spans both tokens.
	if got.X0 >= got.X1 || got.Top != 100 || got.Bottom != 120 {
		t.Errorf("unexpected bbox %+v", got)
	}
}

func TestContextDisambiguation(t *testing.T) {
	engine := NewEngine(DefaultOptions())
	// A decoy "Krishna" appears first with unrelated neighbors; the real one
	// sits between the other fragments of the same name.
	pages := []Page{rowPage(1,
		"Krishna", "Invoice", "Total", "Amount", "Due", "Date", "Ref",
		"Amal", "Krishna", "Rajesh",
	)}

	q := Query{Target: "Krishna", Context: []string{"Amal", "Rajesh"}}
	got := engine.FindBestMatch(q, pages)
	if got == nil {
		t.Fatal("expected a match, got nil")
	}
	if got.ContextBonus != 1.0 {
		t.Errorf("context_bonus = %v, want 1.0 for the candidate next to both fragments", got.ContextBonus)
	}
	// The decoy's box starts at x=10; the winner must not.
	if got.X0 == 10 {
		t.Errorf("engine picked the decoy occurrence at x0=%v", got.X0)
	}
	if math.Abs(got.Score-1.0) > 1e-9 {
		t.Errorf("score = %v, want 1.0 (perfect base and bonus)", got.Score)
	}
}

func TestContextBonusBounds(t *testing.T) {
	engine := NewEngine(DefaultOptions())
	pages := []Page{rowPage(1, "Amal", "Krishna", "Rajesh")}

	// Half the context words nearby.
	q := Query{Target: "Krishna", Context: []string{"Amal", "Zebra"}}
	got := engine.FindBestMatch(q, pages)
	if got == nil {
		t.Fatal("expected a match, got nil")
	}
	if got.ContextBonus != 0.5 {
		t.Errorf("context_bonus = %v, want 0.5", got.ContextBonus)
	}
	if got.ContextBonus < 0 || got.ContextBonus > 1 {
		t.Errorf("context_bonus %v out of [0,1]", got.ContextBonus)
	}
}

func TestCaseFallbackOrdering(t *testing.T) {
	engine := NewEngine(DefaultOptions())
	pages := []Page{rowPage(1, "John", "Smith")}

	out := engine.Match(Query{Target: "John"}, pages)
	if out.Result == nil {
		t.Fatal("expected a match, got nil")
	}
	if out.FellBack {
		t.Error("case-sensitive hit must not be reported as a fallback")
	}
	if _, insensitive := engine.PassCounts(); insensitive != 0 {
		t.Errorf("case-insensitive pass ran %d times despite a case-sensitive hit", insensitive)
	}

	// All-caps OCR output only matches after case folding.
	upper := []Page{rowPage(1, "JOHN", "SMITH")}
	out = engine.Match(Query{Target: "john"}, upper)
	if out.Result == nil {
		t.Fatal("expected a fallback match, got nil")
	}
	if !out.FellBack {
		t.Error("expected FellBack for a case-folded match")
	}
	if out.Result.BaseScore != 1.0 {
		t.Errorf("fallback base_score = %v, want 1.0", out.Result.BaseScore)
	}
}

func TestEmptyInputs(t *testing.T) {
	engine := NewEngine(DefaultOptions())
	pages := []Page{rowPage(1, "John")}

	if got := engine.FindBestMatch(Query{Target: ""}, pages); got != nil {
		t.Errorf("empty target: got %+v, want nil", got)
	}
	if got := engine.FindBestMatch(Query{Target: "   "}, pages); got != nil {
		t.Errorf("whitespace target: got %+v, want nil", got)
	}
	if got := engine.FindBestMatch(Query{Target: "..."}, pages); got != nil {
		t.Errorf("punctuation-only target: got %+v, want nil", got)
	}
	if got := engine.FindBestMatch(Query{Target: "John"}, nil); got != nil {
		t.Errorf("no pages: got %+v, want nil", got)
	}
	if got := engine.FindBestMatch(Query{Target: "John"}, []Page{{PageNumber: 1}}); got != nil {
		t.Errorf("page without tokens: got %+v, want nil", got)
	}
}

func TestWindowLargerThanPage(t *testing.T) {
	engine := NewEngine(DefaultOptions())
	pages := []Page{rowPage(1, "John")}

	if got := engine.FindBestMatch(Query{Target: "John Michael Smith"}, pages); got != nil {
		t.Errorf("three-word target on a one-token page: got %+v, want nil", got)
	}
}

func TestDeterminism(t *testing.T) {
	engine := NewEngine(DefaultOptions())
	pages := []Page{
		rowPage(1, "Smith", "John", "Smith", "Jones"),
		rowPage(2, "Smith", "Brown"),
	}
	q := Query{Target: "Smith", Context: []string{"John"}}

	first := engine.FindBestMatch(q, pages)
	for i := 0; i < 10; i++ {
		again := engine.FindBestMatch(q, pages)
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("run %d differed: %+v vs %+v", i, first, again)
		}
	}
}

func TestTiesKeepEarliestCandidate(t *testing.T) {
	engine := NewEngine(DefaultOptions())
	// Two identical candidates with identical neighborhoods; the first
	// encountered must win.
	pages := []Page{rowPage(1, "Smith", "x", "y", "z", "q", "r", "s", "Smith")}

	got := engine.FindBestMatch(Query{Target: "Smith"}, pages)
	if got == nil {
		t.Fatal("expected a match, got nil")
	}
	if got.X0 != 10 {
		t.Errorf("tie broken away from the earliest candidate: x0 = %v, want 10", got.X0)
	}
}

func TestEngineDoesNotMutatePages(t *testing.T) {
	engine := NewEngine(DefaultOptions())
	pages := []Page{rowPage(1, "Amal", "Krishna", "Rajesh")}
	before := make([]Token, len(pages[0].Words))
	copy(before, pages[0].Words)

	engine.FindBestMatch(Query{Target: "Krishna"}, pages)
	engine.FindBestMatch(Query{Target: "Krishna"}, pages)

	if !reflect.DeepEqual(before, pages[0].Words) {
		t.Error("stateless engine mutated its input pages")
	}
}

func TestEarlyExitConfigurable(t *testing.T) {
	// With the exit floor above any reachable score, the scan must visit
	// every candidate and still return the best one.
	strict := NewEngine(Options{EarlyExitScore: 0.999})
	pages := []Page{rowPage(1, "Krishna", "Amal", "Krishna", "Rajesh")}
	q := Query{Target: "Krishna", Context: []string{"Amal", "Rajesh"}}

	got := strict.FindBestMatch(q, pages)
	if got == nil {
		t.Fatal("expected a match, got nil")
	}
	if got.ContextBonus != 1.0 {
		t.Errorf("context_bonus = %v, want 1.0 for the fully scanned best candidate", got.ContextBonus)
	}
}

func TestScoreBlendInvariant(t *testing.T) {
	engine := NewEngine(DefaultOptions())
	pages := []Page{rowPage(1, "Amal", "Krishna", "Rajesh")}
	q := Query{Target: "Krishna", Context: []string{"Amal"}}

	got := engine.FindBestMatch(q, pages)
	if got == nil {
		t.Fatal("expected a match, got nil")
	}
	want := 0.7*got.BaseScore + 0.3*got.ContextBonus
	if math.Abs(got.Score-want) > 1e-9 {
		t.Errorf("score = %v, want 0.7*%v + 0.3*%v = %v", got.Score, got.BaseScore, got.ContextBonus, want)
	}
}

func BenchmarkFindBestMatch(b *testing.B) {
	engine := NewEngine(DefaultOptions())
	words := make([]string, 0, 500)
	for i := 0; i < 124; i++ {
		words = append(words, "lorem", "ipsum", "dolor", "sit")
	}
	words = append(words, "Amal", "Krishna", "Rajesh")
	pages := []Page{rowPage(1, words...)}
	q := Query{Target: "Krishna", Context: []string{"Amal", "Rajesh"}}

	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if engine.FindBestMatch(q, pages) == nil {
			b.Fatal("no match")
		}
	}
}
