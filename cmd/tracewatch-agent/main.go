package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"tracewatch/internal/agent"
	"tracewatch/internal/logging"
	"tracewatch/internal/proctable"
)

func main() {
	pgrep := flag.Bool("pgrep", false, "Scan the process table with pgrep instead of /proc")
	noSocket := flag.Bool("no-socket", false, "Do not serve the trace catalog on the control socket")
	metricsAddr := flag.String("metrics-addr", "", "Serve Prometheus metrics on this address")
	verbose := flag.Bool("verbose", false, "Enable debug logging")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] <options-file>\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	logging.Init("strace", true, *verbose)
	log := logging.Log

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	deps := agent.Deps{
		Log:           log,
		Registerer:    prometheus.DefaultRegisterer,
		ControlSocket: !*noSocket,
		MetricsAddr:   *metricsAddr,
	}
	if *pgrep {
		deps.Lister = proctable.Pgrep{}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := agent.RunFile(ctx, flag.Arg(0), deps); err != nil {
		stop()
		os.Exit(1)
	}
}
