// Package dictionary compiles the tag dictionary into matchable rules and
// owns the process-wide cache of the compiled index.
package dictionary

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/example/tagcanon/internal/conflict"
)

var (
	// ErrUnavailable means the dictionary could not be read or compiled.
	// Callers must abort rather than classify against an empty index.
	ErrUnavailable = errors.New("dictionary unavailable")
	// ErrAmbiguousMapping tags warnings about two standard tags claiming the
	// same normalized trigger. It is never returned to callers.
	ErrAmbiguousMapping = errors.New("ambiguous mapping")
	// ErrMalformedEntry is attached to warnings about rows skipped at load.
	ErrMalformedEntry = errors.New("malformed dictionary entry")
)

// Row is a dictionary record as persisted. Fields are loosely validated.
type Row struct {
	ID          int64
	Keyword     string
	StandardTag string
	Aliases     []string
	Category    string
	IsActive    bool
}

// Entry is a validated dictionary entry. It is immutable once built.
type Entry struct {
	id          int64
	keyword     string
	standardTag string
	aliases     []string
	category    string
}

// NewEntry validates a row. Blank aliases are dropped; an entry needs a
// standard tag and at least one trigger (keyword or alias).
func NewEntry(r Row) (Entry, error) {
	e := Entry{
		id:          r.ID,
		keyword:     strings.TrimSpace(r.Keyword),
		standardTag: strings.TrimSpace(r.StandardTag),
		category:    strings.TrimSpace(r.Category),
	}
	if e.standardTag == "" {
		return Entry{}, fmt.Errorf("%w: row %d has empty standard tag", ErrMalformedEntry, r.ID)
	}
	for _, a := range r.Aliases {
		if a = strings.TrimSpace(a); a != "" {
			e.aliases = append(e.aliases, a)
		}
	}
	if e.keyword == "" && len(e.aliases) == 0 {
		return Entry{}, fmt.Errorf("%w: row %d (%s) has no keyword or aliases", ErrMalformedEntry, r.ID, e.standardTag)
	}
	return e, nil
}

func (e Entry) ID() int64           { return e.id }
func (e Entry) Keyword() string     { return e.keyword }
func (e Entry) StandardTag() string { return e.standardTag }
func (e Entry) Category() string    { return e.category }

// Aliases returns a copy of the entry's alternate triggers, in order.
func (e Entry) Aliases() []string {
	out := make([]string, len(e.aliases))
	copy(out, e.aliases)
	return out
}

// Triggers returns the keyword followed by the aliases.
func (e Entry) Triggers() []string {
	out := make([]string, 0, len(e.aliases)+1)
	if e.keyword != "" {
		out = append(out, e.keyword)
	}
	return append(out, e.aliases...)
}

// Snapshot is everything a compile needs, read from one source in one go.
type Snapshot struct {
	Rows  []Row
	Rules []conflict.Rule
}

// Source reads the dictionary store. Implementations only read.
type Source interface {
	LoadDictionary(ctx context.Context) (Snapshot, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context) (Snapshot, error)

func (f SourceFunc) LoadDictionary(ctx context.Context) (Snapshot, error) {
	return f(ctx)
}
