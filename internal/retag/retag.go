// Package retag recomputes standard tags for stored documents after the
// dictionary changes.
package retag

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/example/tagcanon/internal/stats"
	"github.com/example/tagcanon/internal/store"
	"github.com/example/tagcanon/internal/tagnorm"
)

// Store is the document access the job needs; *store.Store satisfies it.
type Store interface {
	ListDocumentsAfter(ctx context.Context, afterID int64, limit int) ([]store.Document, error)
	SetStandardTags(ctx context.Context, id int64, tags []string) error
}

type Options struct {
	Workers   int
	BatchSize int
	// DryRun reports changes without writing them.
	DryRun bool
}

// Change is one document whose standard tags differ from what is stored.
type Change struct {
	ID     int64
	Before []string
	After  []string
}

type Stats struct {
	Scanned   int
	Changed   int
	Unchanged int
	Failed    int
}

type Job struct {
	engine *tagnorm.Engine
	store  Store
	opts   Options
	logger *slog.Logger

	// OnChange, when set, is called for every changed document. Calls are
	// serialized.
	OnChange func(Change)
}

func New(engine *tagnorm.Engine, st Store, opts Options, logger *slog.Logger) *Job {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stdout, nil))
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.BatchSize < 1 {
		opts.BatchSize = 200
	}
	return &Job{engine: engine, store: st, opts: opts, logger: logger}
}

// Run walks every document in id order. A dictionary that cannot be loaded
// aborts the run; a failed write is counted and the run continues.
func (j *Job) Run(ctx context.Context) (Stats, error) {
	var st Stats
	if err := j.engine.WarmUpCache(ctx); err != nil {
		stats.RetagCounter.WithLabelValues("aborted").Inc()
		return st, fmt.Errorf("retag: %w", err)
	}

	var mu sync.Mutex
	var after int64
	for {
		if err := ctx.Err(); err != nil {
			return st, fmt.Errorf("retag: stopped after id %d: %w", after, err)
		}
		docs, err := j.store.ListDocumentsAfter(ctx, after, j.opts.BatchSize)
		if err != nil {
			return st, fmt.Errorf("retag: list documents after %d: %w", after, err)
		}
		if len(docs) == 0 {
			break
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(j.opts.Workers)
		for i := range docs {
			doc := &docs[i]
			g.Go(func() error {
				outcome, change, err := j.retagOne(gctx, doc)
				if err != nil {
					return err
				}
				stats.RetagCounter.WithLabelValues(outcome).Inc()

				mu.Lock()
				defer mu.Unlock()
				st.Scanned++
				switch outcome {
				case "changed":
					st.Changed++
					if j.OnChange != nil {
						j.OnChange(change)
					}
				case "unchanged":
					st.Unchanged++
				default:
					st.Failed++
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return st, fmt.Errorf("retag: %w", err)
		}

		after = docs[len(docs)-1].ID
		j.logger.Debug("retag batch done", "after", after, "scanned", st.Scanned)
	}

	j.logger.Info("retag finished", "scanned", st.Scanned, "changed", st.Changed, "unchanged", st.Unchanged, "failed", st.Failed, "dry_run", j.opts.DryRun)
	return st, nil
}

func (j *Job) retagOne(ctx context.Context, doc *store.Document) (string, Change, error) {
	tags, err := j.engine.NormalizeTagsWithDescription(ctx, doc.RawTags, doc.Description)
	if err != nil {
		return "", Change{}, fmt.Errorf("document %d: %w", doc.ID, err)
	}
	before := store.CleanTags(doc.StandardTags)
	after := store.CleanTags(tags)
	if slices.Equal(before, after) {
		return "unchanged", Change{}, nil
	}
	change := Change{ID: doc.ID, Before: before, After: after}
	if j.opts.DryRun {
		return "changed", change, nil
	}
	if err := j.store.SetStandardTags(ctx, doc.ID, after); err != nil {
		j.logger.Warn("retag write failed", "id", doc.ID, "error", err)
		return "failed", change, nil
	}
	return "changed", change, nil
}
