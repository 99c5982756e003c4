package dictionary

import (
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/example/tagcanon/internal/conflict"
	"github.com/example/tagcanon/internal/textnorm"
)

// DefaultShortTokenMax is the longest single-word trigger, in runes, that is
// matched only as a whole token.
const DefaultShortTokenMax = 4

// DefaultLoadTimeout bounds one read of the dictionary source.
const DefaultLoadTimeout = 30 * time.Second

type Options struct {
	ShortTokenMax int
	// LoadTimeout bounds each source read made by a Cache build.
	LoadTimeout time.Duration
}

func (o Options) loadTimeout() time.Duration {
	if o.LoadTimeout <= 0 {
		return DefaultLoadTimeout
	}
	return o.LoadTimeout
}

func (o Options) shortTokenMax() int {
	if o.ShortTokenMax <= 0 {
		return DefaultShortTokenMax
	}
	return o.ShortTokenMax
}

// PhraseRule maps a normalized phrase to a standard tag. Phrases only match
// whole words.
type PhraseRule struct {
	Phrase      string
	StandardTag string
}

// Ambiguity records a trigger claimed by more than one standard tag.
type Ambiguity struct {
	Trigger  string
	Chosen   string
	Rejected []string
}

// Index is a compiled dictionary. It is never modified after Compile
// returns; a reload builds a new one.
type Index struct {
	PhraseRules []PhraseRule
	TokenRules  map[string]string
	// Exact maps every normalized trigger, including each standard tag's own
	// text, to its standard tag.
	Exact       map[string]string
	// Verbatim holds each standard tag in canonical form. A raw tag equal to
	// one of them maps to itself even when its normalized text is claimed
	// by another tag.
	Verbatim    map[string]string
	Rules       []conflict.Rule
	Categories  map[string]string
	Ambiguities []Ambiguity
	Entries     int
	Generation  uint64
	BuiltAt     time.Time
}

// StandardTags lists every standard tag the index can emit.
func (idx *Index) StandardTags() []string {
	out := make([]string, 0, len(idx.Categories))
	for t := range idx.Categories {
		out = append(out, t)
	}
	textnorm.SortTags(out)
	return out
}

const (
	claimSelf = iota
	claimTrigger
)

type claim struct {
	tag      string
	authored string
	kind     int
	seq      int
}

// beats reports whether c wins a contested trigger over o: a standard tag's
// own text first, then the longest authored phrase, then registration order.
func (c claim) beats(o claim) bool {
	if c.kind != o.kind {
		return c.kind < o.kind
	}
	if lc, lo := textnorm.RuneLen(c.authored), textnorm.RuneLen(o.authored); lc != lo {
		return lc > lo
	}
	return c.seq < o.seq
}

// Compile builds an index from the active rows of snap. Malformed rows and
// invalid conflict rules are skipped with a warning. A snapshot with no
// usable entry is an error.
func Compile(snap Snapshot, opts Options, logger *slog.Logger) (*Index, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stdout, nil))
	}
	shortMax := opts.shortTokenMax()

	claims := make(map[string][]claim)
	var order []string
	categories := make(map[string]string)
	verbatim := make(map[string]string)
	seq := 0
	add := func(norm string, c claim) {
		if _, ok := claims[norm]; !ok {
			order = append(order, norm)
		}
		c.seq = seq
		seq++
		claims[norm] = append(claims[norm], c)
	}

	entries := 0
	for _, row := range snap.Rows {
		if !row.IsActive {
			continue
		}
		e, err := NewEntry(row)
		if err != nil {
			logger.Warn("skipping dictionary row", "id", row.ID, "error", err)
			continue
		}
		entries++
		verbatim[textnorm.Canonical(e.StandardTag())] = e.StandardTag()
		if categories[e.StandardTag()] == "" {
			categories[e.StandardTag()] = e.Category()
		}
		if norm := textnorm.Normalize(e.StandardTag()); norm != "" {
			add(norm, claim{tag: e.StandardTag(), authored: e.StandardTag(), kind: claimSelf})
		}
		for _, trig := range e.Triggers() {
			norm := textnorm.Normalize(trig)
			if norm == "" {
				logger.Warn("dropping trigger with no letters or digits", "id", e.ID(), "trigger", trig, "standard_tag", e.StandardTag())
				continue
			}
			add(norm, claim{tag: e.StandardTag(), authored: trig, kind: claimTrigger})
		}
	}
	if entries == 0 {
		return nil, fmt.Errorf("%w: no active entries", ErrUnavailable)
	}

	idx := &Index{
		TokenRules: make(map[string]string),
		Exact:      make(map[string]string, len(order)),
		Verbatim:   verbatim,
		Categories: categories,
		Entries:    entries,
		BuiltAt:    time.Now().UTC(),
	}
	for _, norm := range order {
		cs := claims[norm]
		best := cs[0]
		for _, c := range cs[1:] {
			if c.beats(best) {
				best = c
			}
		}
		rejected := map[string]struct{}{}
		for _, c := range cs {
			if c.tag != best.tag {
				rejected[c.tag] = struct{}{}
			}
		}
		if len(rejected) > 0 {
			amb := Ambiguity{Trigger: norm, Chosen: best.tag}
			for t := range rejected {
				amb.Rejected = append(amb.Rejected, t)
			}
			sort.Strings(amb.Rejected)
			idx.Ambiguities = append(idx.Ambiguities, amb)
			logger.Warn("ambiguous dictionary trigger",
				"error", ErrAmbiguousMapping, "trigger", norm, "chosen", best.tag, "rejected", strings.Join(amb.Rejected, ", "))
		}

		idx.Exact[norm] = best.tag
		if !strings.Contains(norm, " ") && textnorm.RuneLen(norm) <= shortMax {
			idx.TokenRules[norm] = best.tag
			continue
		}
		idx.PhraseRules = append(idx.PhraseRules, PhraseRule{Phrase: norm, StandardTag: best.tag})
	}
	sort.Slice(idx.PhraseRules, func(i, j int) bool {
		a, b := idx.PhraseRules[i], idx.PhraseRules[j]
		if len(a.Phrase) != len(b.Phrase) {
			return len(a.Phrase) > len(b.Phrase)
		}
		return a.Phrase < b.Phrase
	})

	for _, r := range snap.Rules {
		if err := r.Validate(); err != nil {
			logger.Warn("skipping conflict rule", "rule", r.Name, "error", err)
			continue
		}
		for _, m := range r.Priority {
			if _, ok := categories[m]; !ok {
				logger.Warn("conflict rule names unknown standard tag", "rule", r.Name, "tag", m)
			}
		}
		idx.Rules = append(idx.Rules, conflict.Rule{Name: r.Name, Priority: append([]string(nil), r.Priority...)})
	}
	return idx, nil
}
