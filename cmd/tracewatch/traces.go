package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"tracewatch/internal/app"
)

var (
	tracesPIDs    []int
	tracesStates  []string
	tracesSearch  string
	tracesTimeout int
)

func init() {
	rootCmd.AddCommand(cmdTraces)

	cmdTraces.Flags().IntSliceVar(&tracesPIDs, "pid", nil, "Only traces attached to this pid (repeatable)")
	cmdTraces.Flags().StringSliceVar(&tracesStates, "state", nil, "Only traces in this state: running, finished, failed (repeatable)")
	cmdTraces.Flags().StringVar(&tracesSearch, "search", "", "Substring to look for in the traced command")
	cmdTraces.Flags().IntVar(&tracesTimeout, "timeout", 3, "Timeout in seconds for contacting the agent")
}

var cmdTraces = &cobra.Command{
	Use:   "traces",
	Short: "List the traces of the running agent",
	RunE: func(cmd *cobra.Command, args []string) error {
		traces, err := controller().Traces(cmd.Context(), app.TracesParams{
			Filters: app.TraceFilters{
				PIDs:       tracesPIDs,
				States:     tracesStates,
				TextSearch: tracesSearch,
			},
			Timeout: time.Duration(tracesTimeout) * time.Second,
		})
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if len(traces) == 0 {
			fmt.Fprintln(out, "No traces recorded")
			return nil
		}
		for _, t := range traces {
			fmt.Fprintf(out, "[id=%d] pid=%d state=%s started=%s output=%s cmd=%s",
				t.ID, t.PID, t.State, humanize.Time(t.StartedAt), t.OutputPath, t.Command)
			if t.Error != "" {
				fmt.Fprintf(out, " error=%q", t.Error)
			}
			fmt.Fprintln(out)
		}
		return nil
	},
}
