package app

import (
	"github.com/sirupsen/logrus"

	"tracewatch/internal/proctable"
)

// Options configures the top-level controller.
type Options struct {
	Log *logrus.Entry
	// Lister overrides the process table used by agents; nil reads /proc.
	Lister proctable.Lister
	// MetricsAddr is handed to agents started through Trace.
	MetricsAddr string
}

// App exposes high-level operations that the CLI/TUI can reuse.
type App struct {
	log         *logrus.Entry
	lister      proctable.Lister
	metricsAddr string
}

// New constructs the shared controller facade.
func New(opts Options) *App {
	log := opts.Log
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &App{log: log, lister: opts.Lister, metricsAddr: opts.MetricsAddr}
}

// Log returns the controller's logger.
func (a *App) Log() *logrus.Entry {
	return a.log
}
