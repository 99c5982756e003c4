package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/example/tagcanon/internal/dictionary"
	"github.com/example/tagcanon/internal/retag"
	"github.com/example/tagcanon/internal/store"
	"github.com/example/tagcanon/internal/tagnorm"
)

var (
	retagDryRun  bool
	retagWorkers int
	retagBatch   int
)

var retagCmd = &cobra.Command{
	Use:   "retag",
	Short: "Recompute standard tags for stored documents",
	Long:  "Walks every stored document, recomputes its standard tags from raw tags and description, and writes back the ones that changed. The dictionary may come from --snapshot or --dictionary; documents always come from MySQL.",
	RunE:  runRetag,
}

func init() {
	f := retagCmd.Flags()
	f.BoolVar(&retagDryRun, "dry-run", false, "Report changes without writing them")
	f.IntVar(&retagWorkers, "workers", 4, "Documents classified concurrently")
	f.IntVar(&retagBatch, "batch", 200, "Documents fetched per page")
}

func runRetag(cmd *cobra.Command, args []string) error {
	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()
	st := store.New(db)

	var engine *tagnorm.Engine
	if snapshotFlag != "" || dictionaryFlag != "" {
		e, closeFn, err := openEngine()
		if err != nil {
			return err
		}
		defer closeFn()
		engine = e
	} else {
		engine = tagnorm.NewFromSource(st, dictionary.Options{ShortTokenMax: shortTokenMaxFlag}, newLogger())
	}

	job := retag.New(engine, st, retag.Options{Workers: retagWorkers, BatchSize: retagBatch, DryRun: retagDryRun}, newLogger())
	out := cmd.OutOrStdout()
	job.OnChange = func(c retag.Change) {
		fmt.Fprintf(out, "%d\t[%s] -> [%s]\n", c.ID, strings.Join(c.Before, ", "), strings.Join(c.After, ", "))
	}

	stats, err := job.Run(cmd.Context())
	if err != nil {
		return err
	}
	mode := "written"
	if retagDryRun {
		mode = "dry run"
	}
	fmt.Fprintf(out, "scanned %d, changed %d (%s), unchanged %d, failed %d\n", stats.Scanned, stats.Changed, mode, stats.Unchanged, stats.Failed)
	if stats.Failed > 0 {
		return fmt.Errorf("%d documents could not be written", stats.Failed)
	}
	return nil
}
