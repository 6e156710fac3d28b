package util

import "testing"

func TestRemoveNulls(t *testing.T) {
	if got := RemoveNulls("a\x00b\x00"); got != "ab" {
		t.Fatalf("got %q", got)
	}
	if got := RemoveNulls("plain"); got != "plain" {
		t.Fatalf("got %q", got)
	}
}

func TestCleanText(t *testing.T) {
	if CleanText(nil) != nil {
		t.Fatalf("nil should stay nil")
	}
	s := "x\x00y"
	if got := CleanText(&s); got == nil || *got != "xy" {
		t.Fatalf("got %v", got)
	}
}

func TestFoldTag(t *testing.T) {
	cases := map[string][2]string{
		"#golang": {"#", "GoLang"},
		"$aapl":   {"$", "AAPL"},
		"#été":    {"#", "ÉTÉ"},
	}
	for want, in := range cases {
		if got := FoldTag(in[0], in[1]); got != want {
			t.Fatalf("FoldTag(%q,%q)=%q want %q", in[0], in[1], got, want)
		}
	}
}

func TestJoinCountries(t *testing.T) {
	if JoinCountries(nil) != nil {
		t.Fatalf("empty should be unknown")
	}
	if got := JoinCountries([]string{"de", "fr"}); got == nil || *got != "de,fr" {
		t.Fatalf("got %v", got)
	}
}
