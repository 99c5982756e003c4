package textnorm

import "testing"

func TestNormalize(t *testing.T) {
	cases := map[string]string{
		"  Foo  ":            "foo",
		"Foo   Bar":          "foo bar",
		"":                   "",
		"  ":                 "",
		"Mixed\tCase":        "mixed case",
		"Đam Mỹ":             "dam my",
		"BL Hàn":             "bl han",
		"Sủng":               "sung",
		"NTR":                "ntr",
		"18+":                "18",
		"Ngược / Tâm-lý!!":   "nguoc tam ly",
		"Straße":             "strasse",
		"...,,;":             "",
		"Tags: A, B | C":     "tags a b c",
		"Truyện có yếu tố 18+ và cảnh nóng": "truyen co yeu to 18 va canh nong",
	}
	for in, expect := range cases {
		if got := Normalize(in); got != expect {
			t.Fatalf("normalize %q => %q, expected %q", in, got, expect)
		}
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{
		"Đam Mỹ", "  ĐAM   MỸ ", "İstanbul", "Æther—Œuvre", "日本語 タグ", "Ǆemal", "áb̂",
		"hello_world", "C++ / C#", "Ngôn Tình (HE)",
	}
	for _, in := range inputs {
		once := Normalize(in)
		if twice := Normalize(once); twice != once {
			t.Fatalf("normalize not idempotent for %q: %q then %q", in, once, twice)
		}
	}
}

func TestTokens(t *testing.T) {
	if got := Tokens(""); got != nil {
		t.Fatalf("expected nil tokens, got %v", got)
	}
	got := Tokens("dam my ntr")
	if len(got) != 3 || got[0] != "dam" || got[2] != "ntr" {
		t.Fatalf("unexpected tokens %v", got)
	}
}

func TestDedupeSortsByNormalizedForm(t *testing.T) {
	in := []string{"Sủng", "NTR", "Đam Mỹ", " NTR ", ""}
	got := Dedupe(in)
	expect := []string{"Đam Mỹ", "NTR", "Sủng"}
	if len(got) != len(expect) {
		t.Fatalf("expected %d tags got %d (%v)", len(expect), len(got), got)
	}
	for i := range got {
		if got[i] != expect[i] {
			t.Fatalf("tag %d expected %q got %q", i, expect[i], got[i])
		}
	}
}

func TestCanonicalKeepsDiacritics(t *testing.T) {
	// "Súng" written with a combining acute accent.
	decomposed := "  Súng "
	if got := Canonical(decomposed); got != "Súng" {
		t.Fatalf("canonical %q => %q", decomposed, got)
	}
	if Canonical("Súng") == Canonical("Sủng") {
		t.Fatalf("canonical must not fold diacritics")
	}
}
