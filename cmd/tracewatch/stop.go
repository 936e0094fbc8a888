package main

import (
	"fmt"
	"os"
	"time"

	"github.com/briandowns/spinner"
	"github.com/spf13/cobra"
)

var stopForce bool

func init() {
	rootCmd.AddCommand(cmdStop, cmdStatus)
	cmdStop.Flags().BoolVarP(&stopForce, "force", "f", false, "Send SIGKILL if the agent ignores SIGTERM")
}

var cmdStop = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running trace agent",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctrl := controller()
		st, err := ctrl.Status()
		if err != nil {
			return err
		}
		if !st.Running {
			fmt.Fprintln(cmd.OutOrStdout(), "Agent is not running")
			return nil
		}

		spin := spinner.New(spinner.CharSets[21], 120*time.Millisecond, spinner.WithWriter(os.Stderr))
		spin.Suffix = fmt.Sprintf(" Stopping agent (pid %d)...", st.PID)
		spin.Start()
		err = ctrl.StopAgent(stopForce)
		spin.Stop()
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Agent stopped")
		return nil
	},
}

var cmdStatus = &cobra.Command{
	Use:   "status",
	Short: "Show whether a trace agent is running",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := controller().Status()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		switch {
		case !st.Running:
			fmt.Fprintf(out, "Agent is not running (socket %s)\n", st.Socket)
		case st.PID > 0:
			fmt.Fprintf(out, "Agent running (pid %d, socket %s)\n", st.PID, st.Socket)
		default:
			fmt.Fprintf(out, "Agent running (socket %s)\n", st.Socket)
		}
		return nil
	},
}
