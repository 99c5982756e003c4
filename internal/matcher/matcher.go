// Package matcher applies a compiled dictionary to normalized text.
//
// Phrase rules are matched with an Aho-Corasick automaton over space-padded
// patterns, scanned against the space-padded haystack. Normalized text holds
// single spaces between words only, so a hit can only cover whole words and
// a trigger inside a longer word never matches. Overlapping iteration reports
// every hit, so two phrases sharing words both fire.
package matcher

import (
	aho "github.com/petar-dambovaliev/aho-corasick"

	"github.com/example/tagcanon/internal/dictionary"
	"github.com/example/tagcanon/internal/textnorm"
)

// Matcher is immutable and safe for concurrent use.
type Matcher struct {
	idx       *dictionary.Index
	automaton aho.AhoCorasick
	tags      []string // standard tag per automaton pattern
}

func New(idx *dictionary.Index) *Matcher {
	m := &Matcher{idx: idx}
	if len(idx.PhraseRules) == 0 {
		return m
	}
	patterns := make([]string, len(idx.PhraseRules))
	m.tags = make([]string, len(idx.PhraseRules))
	for i, r := range idx.PhraseRules {
		patterns[i] = " " + r.Phrase + " "
		m.tags[i] = r.StandardTag
	}
	builder := aho.NewAhoCorasickBuilder(aho.Opts{
		DFA: true,
	})
	m.automaton = builder.Build(patterns)
	return m
}

// Index returns the index the matcher was built from.
func (m *Matcher) Index() *dictionary.Index {
	return m.idx
}

// Match returns every standard tag signaled anywhere in normalized.
// Rules are independent; the result does not depend on evaluation order.
func (m *Matcher) Match(normalized string) map[string]struct{} {
	out := make(map[string]struct{})
	m.matchInto(normalized, out)
	return out
}

func (m *Matcher) matchInto(normalized string, out map[string]struct{}) {
	if normalized == "" {
		return
	}
	for _, tok := range textnorm.Tokens(normalized) {
		if tag, ok := m.idx.TokenRules[tok]; ok {
			out[tag] = struct{}{}
		}
	}
	if m.tags == nil {
		return
	}
	haystack := []byte(" " + normalized + " ")
	iter := m.automaton.IterOverlappingByte(haystack)
	for next := iter.Next(); next != nil; next = iter.Next() {
		out[m.tags[next.Pattern()]] = struct{}{}
	}
}

// MatchTag classifies one raw tag. A tag that is itself a standard tag maps
// to that tag. A tag whose whole normalized text is a registered trigger
// maps to that trigger's standard tag alone. Anything else falls back to
// Match.
func (m *Matcher) MatchTag(raw string) map[string]struct{} {
	if tag, ok := m.idx.Verbatim[textnorm.Canonical(raw)]; ok {
		return map[string]struct{}{tag: {}}
	}
	normalized := textnorm.Normalize(raw)
	if tag, ok := m.idx.Exact[normalized]; ok {
		return map[string]struct{}{tag: {}}
	}
	return m.Match(normalized)
}

// MatchDescription classifies free text. Each candidate phrase from
// ExtractPhrases is normalized and matched on its own.
func (m *Matcher) MatchDescription(description string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, phrase := range ExtractPhrases(description) {
		m.matchInto(textnorm.Normalize(phrase), out)
	}
	return out
}
