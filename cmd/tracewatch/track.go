package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"tracewatch/internal/config"
	"tracewatch/internal/monitor"
)

var (
	trackInterval time.Duration
	trackOptions  string
	trackLogDir   string
)

func init() {
	rootCmd.AddCommand(cmdTrack)

	cmdTrack.Flags().DurationVar(&trackInterval, "interval", time.Second, "Time between samples")
	cmdTrack.Flags().StringVar(&trackOptions, "options", "", "Optional JSON/YAML file with an interval key (seconds)")
	cmdTrack.Flags().StringVar(&trackLogDir, "log-dir", monitor.DefaultLogDir, "Directory for the tracker's own log file; empty logs to stdout only")
}

var cmdTrack = &cobra.Command{
	Use:       "track <" + strings.Join(monitor.Kinds(), "|") + ">",
	Short:     "Log host statistics on an interval",
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: monitor.Kinds(),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, err := config.LoadTracker(trackOptions, trackInterval)
		if err != nil {
			return err
		}
		kind := args[0]

		if kind == monitor.KindPorts {
			tracker := monitor.NewPortTracker(opts.Interval, nil)
			log, closer, err := monitor.OpenLog(tracker.Name(), trackLogDir)
			if err != nil {
				return fmt.Errorf("open tracker log: %w", err)
			}
			defer closer.Close()
			tracker.Log = log
			return tracker.Run(cmd.Context())
		}

		sampler, err := monitor.NewSampler(kind)
		if err != nil {
			return err
		}
		log, closer, err := monitor.OpenLog(sampler.Name(), trackLogDir)
		if err != nil {
			return fmt.Errorf("open tracker log: %w", err)
		}
		defer closer.Close()
		return monitor.Run(cmd.Context(), sampler, opts.Interval, log)
	},
}
