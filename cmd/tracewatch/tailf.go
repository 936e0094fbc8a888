package main

import (
	"fmt"
	"regexp"

	"github.com/spf13/cobra"

	"tracewatch/internal/logging"
	"tracewatch/internal/tailf"
)

func init() {
	rootCmd.AddCommand(cmdTailf)
}

var cmdTailf = &cobra.Command{
	Use:   "tailf <dir> <regex>",
	Short: "Log the lines of new files in a directory whose names match regex",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		pattern, err := regexp.Compile(args[1])
		if err != nil {
			return fmt.Errorf("invalid file name pattern: %w", err)
		}
		return tailf.New(args[0], pattern, logging.Log).Run(cmd.Context())
	},
}
