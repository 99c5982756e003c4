package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/example/tagcanon/internal/matcher"
)

var extractPhrases bool

var extractCmd = &cobra.Command{
	Use:   "extract [TEXT]",
	Short: "Extract standard tags from a description",
	Long:  "Reads the description from the argument or stdin and prints the standard tags it signals. Conflict rules are not applied.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runExtract,
}

func init() {
	extractCmd.Flags().BoolVar(&extractPhrases, "phrases", false, "Print the candidate phrases instead of tags")
}

func runExtract(cmd *cobra.Command, args []string) error {
	var text string
	if len(args) == 1 {
		text = args[0]
	} else {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return err
		}
		text = string(data)
	}

	if extractPhrases {
		for _, p := range matcher.ExtractPhrases(text) {
			fmt.Fprintln(cmd.OutOrStdout(), p)
		}
		return nil
	}

	engine, closeFn, err := openEngine()
	if err != nil {
		return err
	}
	defer closeFn()
	tags, err := engine.ExtractTagsFromDescription(cmd.Context(), text)
	if err != nil {
		return err
	}
	if len(tags) > 0 {
		fmt.Fprintln(cmd.OutOrStdout(), strings.Join(tags, "\n"))
	}
	return nil
}
