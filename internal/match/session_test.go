package match

import "testing"

func TestSessionClaimConsumesWindow(t *testing.T) {
	engine := NewEngine(DefaultOptions())
	pages := []Page{rowPage(1, "John", "Smith", "Total")}
	session := NewSession(engine, pages)

	first := session.Claim(Query{Target: "Smith"})
	if first.Result == nil {
		t.Fatal("expected the first claim to match")
	}
	if first.Result.MatchedText != "Smith" {
		t.Errorf("matched_text = %q, want %q", first.Result.MatchedText, "Smith")
	}
	if session.Remaining() != 2 {
		t.Errorf("remaining tokens = %d, want 2 after consuming one", session.Remaining())
	}

	second := session.Claim(Query{Target: "Smith"})
	if second.Result != nil {
		t.Errorf("second claim for the same token matched %+v, want none", second.Result)
	}
	if session.Claims() != 1 {
		t.Errorf("claims = %d, want 1", session.Claims())
	}
	if session.Remaining() != 2 {
		t.Errorf("failed claim consumed tokens: remaining = %d, want 2", session.Remaining())
	}
}

func TestSessionRepeatedOccurrences(t *testing.T) {
	engine := NewEngine(DefaultOptions())
	pages := []Page{rowPage(1, "Smith", "and", "Smith", "LLP")}
	session := NewSession(engine, pages)

	first := session.Claim(Query{Target: "Smith"})
	second := session.Claim(Query{Target: "Smith"})
	third := session.Claim(Query{Target: "Smith"})

	if first.Result == nil || second.Result == nil {
		t.Fatal("expected both occurrences to be claimable")
	}
	if first.Result.X0 == second.Result.X0 {
		t.Error("both claims returned the same occurrence")
	}
	if third.Result != nil {
		t.Errorf("third claim matched %+v after both occurrences were consumed", third.Result)
	}
	if session.Claims() != 2 {
		t.Errorf("claims = %d, want 2", session.Claims())
	}
}

func TestSessionMultiWordClaim(t *testing.T) {
	engine := NewEngine(DefaultOptions())
	pages := []Page{rowPage(1, "Dr", "Amal", "Krishna", "Rajesh", "MD")}
	session := NewSession(engine, pages)

	out := session.Claim(Query{Target: "Amal Krishna"})
	if out.Result == nil {
		t.Fatal("expected a match")
	}
	if session.Remaining() != 3 {
		t.Errorf("remaining = %d, want 3 after consuming a two-token window", session.Remaining())
	}

	// The leftover tokens are still claimable.
	if session.Claim(Query{Target: "Rajesh"}).Result == nil {
		t.Error("token after the consumed window should still be claimable")
	}
	if session.Claim(Query{Target: "Dr"}).Result == nil {
		t.Error("token before the consumed window should still be claimable")
	}
}

func TestSessionDoesNotMutateCallerPages(t *testing.T) {
	engine := NewEngine(DefaultOptions())
	pages := []Page{rowPage(1, "John", "Smith")}
	session := NewSession(engine, pages)

	if session.Claim(Query{Target: "John"}).Result == nil {
		t.Fatal("expected a match")
	}
	if len(pages[0].Words) != 2 {
		t.Errorf("caller's pages shrank to %d tokens; the session must work on a copy", len(pages[0].Words))
	}

	// The same engine remains usable statelessly against the originals.
	if engine.FindBestMatch(Query{Target: "John"}, pages) == nil {
		t.Error("stateless engine no longer sees the token the session consumed")
	}
}

func TestSessionCaseFallback(t *testing.T) {
	engine := NewEngine(DefaultOptions())
	pages := []Page{rowPage(1, "JOHN", "SMITH")}
	session := NewSession(engine, pages)

	out := session.Claim(Query{Target: "john"})
	if out.Result == nil {
		t.Fatal("expected a fallback match")
	}
	if !out.FellBack {
		t.Error("expected FellBack for a case-folded claim")
	}
	if session.Remaining() != 1 {
		t.Errorf("remaining = %d, want 1", session.Remaining())
	}
}

func TestSessionEmptyTarget(t *testing.T) {
	engine := NewEngine(DefaultOptions())
	session := NewSession(engine, []Page{rowPage(1, "John")})

	if out := session.Claim(Query{Target: "  "}); out.Result != nil {
		t.Errorf("blank target claimed %+v", out.Result)
	}
	if session.Remaining() != 1 || session.Claims() != 0 {
		t.Error("blank target must not consume or count")
	}
}
