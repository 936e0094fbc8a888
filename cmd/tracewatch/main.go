package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"tracewatch/internal/agent"
	"tracewatch/internal/app"
	"tracewatch/internal/logging"
	"tracewatch/internal/proctable"
)

var (
	logJSON     bool
	verbose     bool
	usePgrep    bool
	metricsAddr string
)

var rootCmd = &cobra.Command{
	Use:   "tracewatch [command]",
	Short: "tracewatch: guest-side process tracing and host analytics",
	Long: `tracewatch attaches strace to processes matching a pattern as they appear,
and collects host statistics (ports, cpu, memory, disks, network) on an interval.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logging.Init("tracewatch", logJSON, verbose)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", true, "Emit JSON log records")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&usePgrep, "pgrep", false, "Scan the process table with pgrep instead of /proc")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics of the trace agent on this address")
}

// controllerAPI is the subset of app.App the commands use.
type controllerAPI interface {
	Ping(ctx context.Context, timeout time.Duration) (string, error)
	Traces(ctx context.Context, params app.TracesParams) ([]app.Trace, error)
	Status() (app.AgentStatus, error)
	StopAgent(force bool) error
	Trace(ctx context.Context, optionsPath string) error
}

var controllerFactory = func() controllerAPI {
	return app.New(app.Options{
		Log:         logging.Log,
		Lister:      lister(),
		MetricsAddr: metricsAddr,
	})
}

func controller() controllerAPI {
	return controllerFactory()
}

// lister returns the pgrep lister when requested, nil (procfs) otherwise.
func lister() proctable.Lister {
	if usePgrep {
		return proctable.Pgrep{}
	}
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		reportError(logging.Log, err)
		os.Exit(1)
	}
}

// reportError logs err unless the agent has already reported it.
func reportError(log *logrus.Entry, err error) {
	var logged *agent.LoggedError
	if errors.As(err, &logged) {
		return
	}
	log.WithError(err).Error("command failed")
}
