package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/example/tagcanon/internal/dictionary"
)

var (
	checkStrict bool
	exportOut   string
)

var dictionaryCmd = &cobra.Command{
	Use:   "dictionary",
	Short: "Inspect the tag dictionary",
}

var dictionaryCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Compile the dictionary and report ambiguous triggers",
	Long:  "Compiles the dictionary from its source and lists triggers claimed by more than one standard tag. With --strict any ambiguity is an error.",
	Args:  cobra.NoArgs,
	RunE:  runDictionaryCheck,
}

var dictionaryExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the dictionary and conflict rules as YAML",
	Args:  cobra.NoArgs,
	RunE:  runDictionaryExport,
}

func init() {
	dictionaryCheckCmd.Flags().BoolVar(&checkStrict, "strict", false, "Fail when any trigger is ambiguous")
	dictionaryExportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "Output file (default stdout)")
	dictionaryCmd.AddCommand(dictionaryCheckCmd)
	dictionaryCmd.AddCommand(dictionaryExportCmd)
}

func runDictionaryCheck(cmd *cobra.Command, args []string) error {
	engine, closeFn, err := openEngine()
	if err != nil {
		return err
	}
	defer closeFn()

	idx, err := engine.LoadDictionary(cmd.Context(), true)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "entries %d, standard tags %d, phrase rules %d, token rules %d, conflict rules %d\n",
		idx.Entries, len(idx.Categories), len(idx.PhraseRules), len(idx.TokenRules), len(idx.Rules))
	for _, a := range idx.Ambiguities {
		fmt.Fprintf(out, "ambiguous %q -> %s (also %s)\n", a.Trigger, a.Chosen, strings.Join(a.Rejected, ", "))
	}
	if checkStrict && len(idx.Ambiguities) > 0 {
		return fmt.Errorf("%d ambiguous triggers", len(idx.Ambiguities))
	}
	return nil
}

func runDictionaryExport(cmd *cobra.Command, args []string) error {
	src, closeFn, err := openSource()
	if err != nil {
		return err
	}
	defer closeFn()

	snap, err := src.LoadDictionary(cmd.Context())
	if err != nil {
		return err
	}
	data, err := dictionary.MarshalYAML(snap)
	if err != nil {
		return err
	}
	if exportOut == "" {
		_, err = cmd.OutOrStdout().Write(data)
		return err
	}
	return os.WriteFile(exportOut, data, 0o644)
}
