// Package textnorm puts arbitrary text into the comparison space shared by
// dictionary triggers and caller input.
package textnorm

import (
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var stripMarks = runes.Remove(runes.In(unicode.Mn))

// Letters that carry no canonical decomposition and survive mark stripping.
var foldLetters = map[rune]string{
	'đ': "d",
	'ð': "d",
	'ø': "o",
	'ł': "l",
	'ħ': "h",
	'ı': "i",
	'ß': "ss",
	'æ': "ae",
	'œ': "oe",
	'þ': "th",
}

// Normalize lowercases text, strips diacritics and collapses every run of
// non-alphanumeric runes into a single space. It is idempotent.
func Normalize(text string) string {
	if text == "" {
		return ""
	}
	lowered := strings.ToLower(text)
	t := transform.Chain(norm.NFD, stripMarks, norm.NFC)
	stripped, _, err := transform.String(t, lowered)
	if err != nil {
		stripped = lowered
	}

	var b strings.Builder
	b.Grow(len(stripped))
	pendingSpace := false
	for _, r := range stripped {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			pendingSpace = b.Len() > 0
			continue
		}
		if pendingSpace {
			b.WriteByte(' ')
			pendingSpace = false
		}
		if folded, ok := foldLetters[r]; ok {
			b.WriteString(folded)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Canonical trims text and puts it in NFC form without otherwise changing it.
// Two labels that differ only by diacritics stay distinct.
func Canonical(text string) string {
	return norm.NFC.String(strings.TrimSpace(text))
}

// Tokens splits an already normalized string into its words.
func Tokens(normalized string) []string {
	if normalized == "" {
		return nil
	}
	return strings.Split(normalized, " ")
}

// RuneLen counts the runes of s.
func RuneLen(s string) int {
	return len([]rune(s))
}

// Less orders canonical tags by their normalized form, then by raw bytes,
// so that accented and unaccented labels interleave the way a reader expects.
func Less(a, b string) bool {
	ka, kb := Normalize(a), Normalize(b)
	if ka != kb {
		return ka < kb
	}
	return a < b
}

// SortTags sorts tags in place using Less.
func SortTags(tags []string) {
	sort.SliceStable(tags, func(i, j int) bool { return Less(tags[i], tags[j]) })
}

// Dedupe trims each tag, drops empties and exact duplicates, and returns the
// result ordered by Less.
func Dedupe(tags []string) []string {
	set := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		set[t] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for t := range set {
		out = append(out, t)
	}
	SortTags(out)
	return out
}
