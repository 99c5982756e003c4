package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var (
	normalizeDescription string
	normalizeExplain     bool
)

var normalizeCmd = &cobra.Command{
	Use:   "normalize TAG...",
	Short: "Map raw tags to standard tags",
	Long:  "Prints the standard tags for the given raw tags, one per line. With --explain prints the full audit trail as JSON.",
	Args:  cobra.ArbitraryArgs,
	RunE:  runNormalize,
}

func init() {
	normalizeCmd.Flags().StringVarP(&normalizeDescription, "description", "d", "", "Description text to scan as well")
	normalizeCmd.Flags().BoolVar(&normalizeExplain, "explain", false, "Print which raw tag produced which standard tag")
}

func runNormalize(cmd *cobra.Command, args []string) error {
	engine, closeFn, err := openEngine()
	if err != nil {
		return err
	}
	defer closeFn()
	ctx := cmd.Context()

	if normalizeExplain {
		ex, err := engine.Explain(ctx, args, normalizeDescription)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(ex)
	}

	tags, err := engine.NormalizeTagsWithDescription(ctx, args, normalizeDescription)
	if err != nil {
		return err
	}
	if len(tags) > 0 {
		fmt.Fprintln(cmd.OutOrStdout(), strings.Join(tags, "\n"))
	}
	return nil
}
