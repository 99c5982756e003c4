// tagctl classifies tags from the command line and runs dictionary
// maintenance jobs.
package main

import (
	"os"

	"github.com/example/tagcanon/cmd/tagctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
