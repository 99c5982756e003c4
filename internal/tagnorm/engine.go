// Package tagnorm turns raw scraped tags and descriptions into a document's
// standard tags. It is the entry point used by the HTTP API, the retag job
// and the admin CLI.
package tagnorm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"

	"github.com/example/tagcanon/internal/conflict"
	"github.com/example/tagcanon/internal/dictionary"
	"github.com/example/tagcanon/internal/matcher"
	"github.com/example/tagcanon/internal/stats"
	"github.com/example/tagcanon/internal/textnorm"
)

// ErrInvalidInput tags warnings about raw tag values that are not strings.
var ErrInvalidInput = errors.New("invalid input")

// Engine classifies tags against the dictionary held by its cache. It keeps
// no per-call state and is safe for concurrent use.
type Engine struct {
	cache  *dictionary.Cache
	logger *slog.Logger

	current atomic.Pointer[matcher.Matcher]
	buildMu sync.Mutex
}

func New(cache *dictionary.Cache, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stdout, nil))
	}
	return &Engine{cache: cache, logger: logger}
}

// NewFromSource builds an engine with its own cache over src.
func NewFromSource(src dictionary.Source, opts dictionary.Options, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stdout, nil))
	}
	return New(dictionary.NewCache(src, opts, logger), logger)
}

// Cache exposes the underlying dictionary cache.
func (e *Engine) Cache() *dictionary.Cache {
	return e.cache
}

// matcher returns a matcher for the cache's current index, building one when
// the index has been replaced since the last call.
func (e *Engine) matcher(ctx context.Context) (*matcher.Matcher, error) {
	idx, err := e.cache.Get(ctx)
	if err != nil {
		return nil, err
	}
	if m := e.current.Load(); m != nil && m.Index() == idx {
		return m, nil
	}
	e.buildMu.Lock()
	defer e.buildMu.Unlock()
	if m := e.current.Load(); m != nil && m.Index() == idx {
		return m, nil
	}
	m := matcher.New(idx)
	e.current.Store(m)
	return m, nil
}

// NormalizeTags maps raw tags to the sorted, deduplicated standard tag set.
func (e *Engine) NormalizeTags(ctx context.Context, rawTags []string) ([]string, error) {
	stats.NormalizeCounter.WithLabelValues("tags").Inc()
	m, err := e.matcher(ctx)
	if err != nil {
		return nil, err
	}
	found := matchTags(m, rawTags)
	return finish(found, m.Index().Rules), nil
}

// NormalizeTagsWithDescription is NormalizeTags with the signals found in
// description added before conflict resolution.
func (e *Engine) NormalizeTagsWithDescription(ctx context.Context, rawTags []string, description string) ([]string, error) {
	stats.NormalizeCounter.WithLabelValues("tags_with_description").Inc()
	m, err := e.matcher(ctx)
	if err != nil {
		return nil, err
	}
	found := matchTags(m, rawTags)
	for tag := range m.MatchDescription(description) {
		found[tag] = struct{}{}
	}
	return finish(found, m.Index().Rules), nil
}

// ExtractTagsFromDescription returns the standard tags signaled by the
// description alone, sorted. Conflict rules are not applied.
func (e *Engine) ExtractTagsFromDescription(ctx context.Context, description string) ([]string, error) {
	stats.NormalizeCounter.WithLabelValues("description").Inc()
	m, err := e.matcher(ctx)
	if err != nil {
		return nil, err
	}
	return sorted(m.MatchDescription(description)), nil
}

// Explain reports, for audit tooling, which standard tags each raw tag
// produced and what conflict resolution removed.
func (e *Engine) Explain(ctx context.Context, rawTags []string, description string) (*Explanation, error) {
	m, err := e.matcher(ctx)
	if err != nil {
		return nil, err
	}
	ex := &Explanation{Generation: m.Index().Generation, PerTag: make(map[string][]string, len(rawTags))}
	found := make(map[string]struct{})
	for _, raw := range rawTags {
		hits := m.MatchTag(raw)
		ex.PerTag[raw] = sorted(hits)
		for t := range hits {
			found[t] = struct{}{}
		}
	}
	desc := m.MatchDescription(description)
	ex.Description = sorted(desc)
	for t := range desc {
		found[t] = struct{}{}
	}
	ex.Dropped = conflict.Dropped(found, m.Index().Rules)
	ex.StandardTags = finish(found, m.Index().Rules)
	return ex, nil
}

// Explanation is the audit trail of one classification.
type Explanation struct {
	Generation   uint64              `json:"generation"`
	PerTag       map[string][]string `json:"per_tag"`
	Description  []string            `json:"description"`
	Dropped      map[string][]string `json:"dropped"`
	StandardTags []string            `json:"standard_tags"`
}

// WarmUpCache compiles the dictionary before a batch run.
func (e *Engine) WarmUpCache(ctx context.Context) error {
	if _, err := e.matcher(ctx); err != nil {
		return fmt.Errorf("warm up: %w", err)
	}
	return nil
}

// ClearCache forces the next call to recompile the dictionary.
func (e *Engine) ClearCache() {
	e.cache.Invalidate()
}

// LoadDictionary returns the compiled index, rebuilding it from the store
// when forceReload is set.
func (e *Engine) LoadDictionary(ctx context.Context, forceReload bool) (*dictionary.Index, error) {
	return e.cache.Load(ctx, forceReload)
}

// CoerceRawTags keeps the string elements of a loosely typed tag list. Every
// other element is skipped with a warning.
func (e *Engine) CoerceRawTags(values []any) []string {
	out := make([]string, 0, len(values))
	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			stats.InvalidRawTagCounter.Inc()
			e.logger.Warn("skipping raw tag", "error", ErrInvalidInput, "index", i, "type", fmt.Sprintf("%T", v))
			continue
		}
		out = append(out, s)
	}
	return out
}

func matchTags(m *matcher.Matcher, rawTags []string) map[string]struct{} {
	found := make(map[string]struct{})
	for _, raw := range rawTags {
		for tag := range m.MatchTag(raw) {
			found[tag] = struct{}{}
		}
	}
	return found
}

func finish(found map[string]struct{}, rules []conflict.Rule) []string {
	return sorted(conflict.Resolve(found, rules))
}

func sorted(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for t := range set {
		out = append(out, t)
	}
	textnorm.SortTags(out)
	return out
}
