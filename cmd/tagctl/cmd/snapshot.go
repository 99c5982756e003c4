package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/example/tagcanon/internal/dictionary"
	"github.com/example/tagcanon/internal/snapshot"
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Manage offline dictionary snapshots",
}

var snapshotExportCmd = &cobra.Command{
	Use:   "export FILE",
	Short: "Freeze the current dictionary into a bbolt file",
	Long:  "Loads the dictionary from MySQL or --dictionary, checks that it compiles, and writes it to FILE. Use the file later with --snapshot.",
	Args:  cobra.ExactArgs(1),
	RunE:  runSnapshotExport,
}

var snapshotInspectCmd = &cobra.Command{
	Use:   "inspect FILE",
	Short: "Summarize a snapshot file",
	Args:  cobra.ExactArgs(1),
	RunE:  runSnapshotInspect,
}

func init() {
	snapshotCmd.AddCommand(snapshotExportCmd)
	snapshotCmd.AddCommand(snapshotInspectCmd)
}

func runSnapshotExport(cmd *cobra.Command, args []string) error {
	if snapshotFlag != "" {
		return fmt.Errorf("--snapshot cannot be the export source")
	}
	src, closeFn, err := openSource()
	if err != nil {
		return err
	}
	defer closeFn()

	snap, err := src.LoadDictionary(cmd.Context())
	if err != nil {
		return err
	}
	idx, err := dictionary.Compile(snap, dictionary.Options{ShortTokenMax: shortTokenMaxFlag}, newLogger())
	if err != nil {
		return err
	}
	if err := snapshot.Write(args[0], snap); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %s: %d rows (%d active), %d conflict rules\n", args[0], len(snap.Rows), idx.Entries, len(snap.Rules))
	return nil
}

func runSnapshotInspect(cmd *cobra.Command, args []string) error {
	snap, info, err := snapshot.Read(args[0])
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "created %s\n", info.CreatedAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(out, "rows %d, conflict rules %d\n", info.Entries, info.Rules)

	idx, err := dictionary.Compile(snap, dictionary.Options{ShortTokenMax: shortTokenMaxFlag}, newLogger())
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "compiles: %d active entries, %d standard tags, %d ambiguities\n", idx.Entries, len(idx.Categories), len(idx.Ambiguities))
	return nil
}
