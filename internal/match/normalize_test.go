package match

import "testing"

func TestNormalizeCaseInsensitive(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"John Smith", "john smith"},
		{"  John   Smith  ", "john smith"},
		{"John.", "john"},
		{"O'Brien-Smith", "obriensmith"},
		{"Room #42, Floor 3", "room 42 floor 3"},
		{"", ""},
		{"   \t\n  ", ""},
		{"___", ""},
		{"Ünïcode stays ascii", "ncode stays ascii"},
	}
	for _, tc := range cases {
		if got := Normalize(tc.in, CaseInsensitive); got != tc.want {
			t.Errorf("Normalize(%q, CaseInsensitive) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestNormalizeCaseSensitive(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"John Smith", "John Smith"},
		{"JOHN.", "JOHN"},
		{"  McDonald's  ", "McDonalds"},
		{"A-1  b/2", "A1 b2"},
	}
	for _, tc := range cases {
		if got := Normalize(tc.in, CaseSensitive); got != tc.want {
			t.Errorf("Normalize(%q, CaseSensitive) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{
		"John Smith",
		"  mixed   CASE, with. punctuation!  ",
		"",
		"12  34",
		"tabs\tand\nnewlines",
	}
	for _, mode := range []Mode{CaseSensitive, CaseInsensitive} {
		for _, s := range inputs {
			once := Normalize(s, mode)
			twice := Normalize(once, mode)
			if once != twice {
				t.Errorf("Normalize not idempotent in mode %v: %q -> %q -> %q", mode, s, once, twice)
			}
		}
	}
}
