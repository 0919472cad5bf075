// Package main is the adjutant daemon entry point.
//
// Adjutant connects messaging surfaces to a model provider, runs a
// serialized agent loop per conversation, and gates sensitive tool calls
// behind human approval.
//
// Start the daemon:
//
//	adjutant serve --config adjutant.yaml
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:           "adjutant",
		Short:         "Personal agent daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(buildServeCmd())
	root.AddCommand(buildCheckConfigCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
