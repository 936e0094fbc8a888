package main

import (
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(cmdStrace)
}

var cmdStrace = &cobra.Command{
	Use:   "strace <options-file>",
	Short: "Trace every process matching the options file's pattern",
	Long: `Reads a JSON or YAML options file with process_regex, first_match_only and
output_dir, then attaches strace to each matching process as it appears. With
first_match_only the command returns once those traces have finished;
otherwise it runs until interrupted.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return controller().Trace(cmd.Context(), args[0])
	},
}
