package dictionary

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/example/tagcanon/internal/stats"
)

const buildKey = "compile"

// Cache owns the current compiled index. Reads are a single atomic load;
// builds happen off to the side and are coalesced so that only one is in
// flight at a time.
type Cache struct {
	source Source
	opts   Options
	logger *slog.Logger

	current    atomic.Pointer[Index]
	builds     singleflight.Group
	generation atomic.Uint64

	// publishMu orders publishing against Invalidate; readers never take it.
	publishMu sync.Mutex
	epoch     uint64
}

func NewCache(source Source, opts Options, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stdout, nil))
	}
	return &Cache{source: source, opts: opts, logger: logger}
}

// Get returns the cached index, compiling it on first use.
func (c *Cache) Get(ctx context.Context) (*Index, error) {
	if idx := c.current.Load(); idx != nil {
		return idx, nil
	}
	return c.build(ctx, false)
}

// Current returns the cached index without building one.
func (c *Cache) Current() *Index {
	return c.current.Load()
}

// WarmUp compiles the index ahead of a batch run so that per-document calls
// never reach the dictionary store.
func (c *Cache) WarmUp(ctx context.Context) error {
	_, err := c.Get(ctx)
	return err
}

// Invalidate drops the cached index. The next Get compiles a fresh one.
// A build already in flight will not publish its result.
func (c *Cache) Invalidate() {
	c.publishMu.Lock()
	c.epoch++
	c.current.Store(nil)
	c.publishMu.Unlock()
	c.builds.Forget(buildKey)
}

// Load returns the cached index, or rebuilds it when force is set or nothing
// is cached. During a forced rebuild other readers keep the previous index;
// if the rebuild fails the previous index stays in place.
func (c *Cache) Load(ctx context.Context, force bool) (*Index, error) {
	if !force {
		return c.Get(ctx)
	}
	return c.build(ctx, true)
}

func (c *Cache) build(ctx context.Context, fresh bool) (*Index, error) {
	if fresh {
		c.builds.Forget(buildKey)
	}
	// Callers that join share one build; it ignores the starter's cancellation.
	buildCtx := context.WithoutCancel(ctx)
	ch := c.builds.DoChan(buildKey, func() (any, error) {
		return c.compile(buildCtx, fresh)
	})
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("waiting for dictionary build: %w", ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			err := res.Err
			if !errors.Is(err, ErrUnavailable) {
				err = fmt.Errorf("%w: %v", ErrUnavailable, err)
			}
			return nil, err
		}
		return res.Val.(*Index), nil
	}
}

func (c *Cache) compile(ctx context.Context, fresh bool) (*Index, error) {
	if idx := c.current.Load(); idx != nil && !fresh {
		return idx, nil
	}
	c.publishMu.Lock()
	epoch := c.epoch
	c.publishMu.Unlock()

	loadCtx, cancel := context.WithTimeout(ctx, c.opts.loadTimeout())
	defer cancel()
	snap, err := c.source.LoadDictionary(loadCtx)
	if err != nil {
		stats.DictionaryBuildCounter.WithLabelValues("unavailable").Inc()
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	idx, err := Compile(snap, c.opts, c.logger)
	if err != nil {
		stats.DictionaryBuildCounter.WithLabelValues("failed").Inc()
		return nil, err
	}
	idx.Generation = c.generation.Add(1)

	c.publishMu.Lock()
	published := c.epoch == epoch
	if published {
		c.current.Store(idx)
		stats.DictionaryGeneration.Set(float64(idx.Generation))
		stats.DictionaryRules.WithLabelValues("phrase").Set(float64(len(idx.PhraseRules)))
		stats.DictionaryRules.WithLabelValues("token").Set(float64(len(idx.TokenRules)))
		stats.DictionaryRules.WithLabelValues("conflict").Set(float64(len(idx.Rules)))
	}
	c.publishMu.Unlock()

	stats.DictionaryBuildCounter.WithLabelValues("ok").Inc()
	c.logger.Info("dictionary compiled",
		"generation", idx.Generation,
		"published", published,
		"entries", idx.Entries,
		"phrase_rules", len(idx.PhraseRules),
		"token_rules", len(idx.TokenRules),
		"conflict_rules", len(idx.Rules),
		"ambiguities", len(idx.Ambiguities))
	return idx, nil
}
