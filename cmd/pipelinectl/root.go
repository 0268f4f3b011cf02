// Command pipelinectl is a one-shot CLI for driving the translation
// pipeline without standing up the HTTP control plane: submit a chapter
// range as a batch and wait for it to finish, printing a summary.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "pipelinectl",
	Short: "Drive the webtoon translation pipeline from the command line",
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
