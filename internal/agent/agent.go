// Package agent runs process discovery and trace supervision side by side.
package agent

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"tracewatch/internal/config"
	"tracewatch/internal/daemon"
	"tracewatch/internal/proctable"
	"tracewatch/internal/registry"
	"tracewatch/internal/tracer"
	"tracewatch/internal/watcher"
)

// SnapshotFile is the trace catalog written into the output directory.
const SnapshotFile = "traces.json"

// Deps are the collaborators of an Agent. Zero values select the real ones.
type Deps struct {
	Lister     proctable.Lister
	Launcher   tracer.Launcher
	Registerer prometheus.Registerer
	Log        *logrus.Entry

	// ControlSocket serves the trace catalog on the daemon socket.
	ControlSocket bool
	// MetricsAddr serves /metrics when set, e.g. "127.0.0.1:9464".
	MetricsAddr string
}

// Agent owns one watcher/supervisor pair.
type Agent struct {
	cfg     config.Strace
	deps    Deps
	log     *logrus.Entry
	reg     *registry.Registry
	watcher *watcher.Watcher
	sup     *tracer.Supervisor
}

// New wires an agent for cfg.
func New(cfg config.Strace, deps Deps) (*Agent, error) {
	if deps.Log == nil {
		deps.Log = logrus.NewEntry(logrus.StandardLogger())
	}
	if deps.Lister == nil {
		lister, err := proctable.NewProcFS()
		if err != nil {
			return nil, err
		}
		deps.Lister = lister
	}
	if deps.Launcher == nil {
		deps.Launcher = tracer.ExecLauncher{}
	}
	log := deps.Log.WithField("output_dir", cfg.OutputDir)

	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	reg, err := registry.New(filepath.Join(cfg.OutputDir, SnapshotFile), log)
	if err != nil {
		return nil, err
	}

	exclude := append([]string(nil), cfg.Exclude...)
	if self := filepath.Base(os.Args[0]); self != "" && self != "." {
		exclude = append(exclude, self)
	}

	w, err := watcher.New(watcher.Options{
		Pattern:        cfg.Pattern,
		Exclude:        exclude,
		FirstMatchOnly: cfg.FirstMatchOnly,
		Interval:       cfg.PollInterval,
		OutputDir:      cfg.OutputDir,
	}, deps.Lister, log, deps.Registerer)
	if err != nil {
		return nil, err
	}

	sup, err := tracer.New(tracer.Options{
		Command:          cfg.Command(),
		OutputDir:        cfg.OutputDir,
		FirstMatchOnly:   cfg.FirstMatchOnly,
		DiscoveryStopped: w.Stopped,
		SweepInterval:    cfg.SweepInterval,
	}, deps.Launcher, reg, log, deps.Registerer)
	if err != nil {
		return nil, err
	}

	return &Agent{cfg: cfg, deps: deps, log: log, reg: reg, watcher: w, sup: sup}, nil
}

// Registry exposes the trace catalog.
func (a *Agent) Registry() *registry.Registry { return a.reg }

// Watcher exposes the process watcher.
func (a *Agent) Watcher() *watcher.Watcher { return a.watcher }

// Run blocks until the supervisor is done: in first-match-only mode once the
// first traces are reaped, otherwise until ctx is cancelled. Cancellation is
// a clean exit.
func (a *Agent) Run(ctx context.Context) error {
	if a.deps.ControlSocket {
		srv, err := daemon.Serve(a.reg, a.log)
		switch {
		case errors.Is(err, daemon.ErrAlreadyRunning):
			a.log.Warn("another agent owns the control socket, running without one")
		case err != nil:
			a.log.WithError(err).Warn("cannot open control socket, running without one")
		default:
			defer srv.Close()
		}
	}
	if a.deps.MetricsAddr != "" {
		stop := a.serveMetrics()
		defer stop()
	}

	a.log.WithFields(logrus.Fields{
		"process_regex":    a.cfg.ProcessRegex,
		"first_match_only": a.cfg.FirstMatchOnly,
	}).Info("trace agent started")

	watchCtx, stopWatch := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		err := a.watcher.Run(watchCtx, func(_ context.Context, m proctable.Process) {
			// traces outlive the watcher, so they are bound to the outer ctx
			_, _ = a.sup.Spawn(ctx, m)
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			a.log.WithError(err).Error("process discovery ended")
		}
	}()

	err := a.sup.Run(ctx)
	stopWatch()
	wg.Wait()
	// a match emitted while the supervisor was shutting down
	a.sup.Shutdown()

	counts := a.reg.Counts()
	a.log.WithFields(logrus.Fields{
		"finished": counts[registry.StateFinished],
		"failed":   counts[registry.StateFailed],
		"running":  counts[registry.StateRunning],
	}).Info("trace agent stopped")

	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (a *Agent) serveMetrics() func() {
	gatherer := prometheus.DefaultGatherer
	if g, ok := a.deps.Registerer.(prometheus.Gatherer); ok {
		gatherer = g
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: a.deps.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.WithError(err).Warn("metrics endpoint stopped")
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

// LoggedError is an error RunFile has already reported at fatal level.
type LoggedError struct {
	Err error
}

func (e *LoggedError) Error() string { return e.Err.Error() }

func (e *LoggedError) Unwrap() error { return e.Err }

// RunFile loads the options file at path and runs an agent for it. A
// configuration failure is logged once at fatal level and returned as a
// *LoggedError; nothing is spawned.
func RunFile(ctx context.Context, path string, deps Deps) error {
	if deps.Log == nil {
		deps.Log = logrus.NewEntry(logrus.StandardLogger())
	}
	cfg, err := config.LoadStrace(path)
	if err != nil {
		deps.Log.WithError(err).WithField("options_file", path).Log(logrus.FatalLevel, "invalid trace options")
		return &LoggedError{Err: err}
	}
	a, err := New(cfg, deps)
	if err != nil {
		deps.Log.WithError(err).Log(logrus.FatalLevel, "cannot start trace agent")
		return &LoggedError{Err: err}
	}
	return a.Run(ctx)
}
