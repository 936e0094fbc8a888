package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"tracewatch/internal/killer"
	"tracewatch/internal/logging"
	"tracewatch/internal/proctable"
)

func init() {
	rootCmd.AddCommand(cmdKillAnalytics)
}

var cmdKillAnalytics = &cobra.Command{
	Use:   "kill-analytics",
	Short: "Send SIGTERM to every running analytics process",
	RunE: func(cmd *cobra.Command, args []string) error {
		table := lister()
		if table == nil {
			fs, err := proctable.NewProcFS()
			if err != nil {
				return err
			}
			table = fs
		}
		hits, err := killer.New(table, logging.Log).KillAll(cmd.Context())

		patterns := make([]string, 0, len(hits))
		for p := range hits {
			patterns = append(patterns, p)
		}
		sort.Strings(patterns)
		for _, p := range patterns {
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d\n", p, hits[p])
		}
		return err
	},
}
