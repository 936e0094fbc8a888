// Package tracer launches trace processes against discovered pids and reaps
// them once they finish.
package tracer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"tracewatch/internal/proctable"
	"tracewatch/internal/registry"
)

const (
	defaultWaitInterval  = 5 * time.Second
	defaultSweepInterval = 30 * time.Second
	defaultShutdownGrace = 10 * time.Second
)

// Options configures a Supervisor.
type Options struct {
	// Command is the trace binary followed by its options, without -o and -p.
	Command   []string
	OutputDir string
	// FirstMatchOnly lets Run return once discovery stopped and every trace
	// has been reaped.
	FirstMatchOnly bool
	// DiscoveryStopped reports the watcher's stop flag. Nil means stopped.
	DiscoveryStopped func() bool

	WaitInterval  time.Duration
	SweepInterval time.Duration
	ShutdownGrace time.Duration
	// Env for trace processes; defaults to the agent's environment with TZ=UTC.
	Env []string
}

var errTraceAbandoned = errors.New("trace did not exit before shutdown")

// Supervisor owns every running trace until its completion is logged.
type Supervisor struct {
	opts     Options
	launcher Launcher
	queue    *Queue
	reg      *registry.Registry
	log      *logrus.Entry
	m        *metrics
}

// New builds a supervisor. reg and promReg may be nil.
func New(opts Options, launcher Launcher, reg *registry.Registry, log *logrus.Entry, promReg prometheus.Registerer) (*Supervisor, error) {
	if len(opts.Command) == 0 {
		return nil, errors.New("tracer: trace command is required")
	}
	if opts.OutputDir == "" {
		return nil, errors.New("tracer: output directory is required")
	}
	if launcher == nil {
		launcher = ExecLauncher{}
	}
	if opts.WaitInterval <= 0 {
		opts.WaitInterval = defaultWaitInterval
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = defaultSweepInterval
	}
	if opts.ShutdownGrace <= 0 {
		opts.ShutdownGrace = defaultShutdownGrace
	}
	if opts.Env == nil {
		opts.Env = append(os.Environ(), "TZ=UTC")
	}
	m, err := newMetrics(promReg)
	if err != nil {
		return nil, err
	}
	return &Supervisor{
		opts:     opts,
		launcher: launcher,
		queue:    NewQueue(),
		reg:      reg,
		log:      log,
		m:        m,
	}, nil
}

// Pending returns the number of traces waiting to be re-checked.
func (s *Supervisor) Pending() int {
	return s.queue.Len()
}

// Spawn attaches a trace to match and enqueues it. A launch failure is
// logged and the unit is never enqueued.
func (s *Supervisor) Spawn(ctx context.Context, match proctable.Process) (*Unit, error) {
	log := s.log.WithFields(logrus.Fields{"pid": match.PID, "command": match.Command})

	if err := os.MkdirAll(s.opts.OutputDir, 0o755); err != nil {
		err = fmt.Errorf("create output dir %s: %w", s.opts.OutputDir, err)
		s.spawnFailed(log, match, "", err)
		return nil, err
	}

	name := proctable.Basename(match.Command)
	if name == "" || name == "." || name == "/" {
		name = strconv.Itoa(match.PID)
	}
	output := filepath.Join(s.opts.OutputDir, name+".trace")

	argv := make([]string, 0, len(s.opts.Command)+4)
	argv = append(argv, s.opts.Command...)
	argv = append(argv, "-o", output, "-p", strconv.Itoa(match.PID))
	log.WithField("argv", strings.Join(argv, " ")).Debug("trace to execute")

	h, err := s.launcher.Launch(ctx, argv, s.opts.Env)
	if err != nil {
		err = fmt.Errorf("start trace: %w", err)
		s.spawnFailed(log, match, output, err)
		return nil, err
	}

	u := &Unit{
		PID:        match.PID,
		Command:    match.Command,
		OutputPath: output,
		Started:    time.Now(),
		handle:     h,
	}
	if s.reg != nil {
		id, err := s.reg.Track(match.PID, match.Command, output)
		if err != nil {
			log.WithError(err).Warn("cannot record trace in registry")
		}
		u.ID = id
	}
	s.m.spawned.Inc()
	s.m.active.Inc()
	s.queue.Push(u)
	log.WithFields(logrus.Fields{"tracer_pid": h.Pid(), "output": output}).Info("trace started")
	return u, nil
}

func (s *Supervisor) spawnFailed(log *logrus.Entry, match proctable.Process, output string, err error) {
	s.m.spawnFailures.Inc()
	log.WithError(err).Error("cannot start trace")
	if s.reg == nil {
		return
	}
	id, terr := s.reg.Track(match.PID, match.Command, output)
	if terr != nil {
		log.WithError(terr).Warn("cannot record trace in registry")
		return
	}
	s.reg.Complete(id, -1, err)
}

// Sweep checks out every queued unit, logs the finished ones and puts the
// still running ones back. It returns the reaped units.
func (s *Supervisor) Sweep() []*Unit {
	checkedOut := s.queue.Drain()
	var finished, running []*Unit
	for _, u := range checkedOut {
		if u.handle.Exited() {
			finished = append(finished, u)
		} else {
			running = append(running, u)
		}
	}
	s.queue.PushAll(running)

	for _, u := range finished {
		s.reap(u)
	}
	return finished
}

func (s *Supervisor) reap(u *Unit) {
	res := u.handle.Result()
	log := s.log.WithFields(logrus.Fields{
		"pid":        u.PID,
		"tracer_pid": u.handle.Pid(),
	})
	if len(res.Stdout) > 0 {
		log.WithFields(logrus.Fields{"fd": "stdout", "msg": string(res.Stdout)}).Info("executed trace output")
	}
	if len(res.Stderr) > 0 {
		log.WithFields(logrus.Fields{"fd": "stderr", "msg": string(res.Stderr)}).Info("executed trace output")
	}

	done := log.WithFields(logrus.Fields{
		"exit_code": res.ExitCode,
		"output":    u.OutputPath,
		"duration":  time.Since(u.Started).Round(time.Millisecond).String(),
	})
	if res.Err != nil {
		done.WithError(res.Err).Warn("trace ended abnormally")
	} else {
		done.Info("trace finished")
	}

	if s.reg != nil && u.ID != 0 {
		s.reg.Complete(u.ID, res.ExitCode, res.Err)
	}
	s.m.reaped.Inc()
	s.m.active.Dec()
}

// Run waits for the first trace, then sweeps every SweepInterval. In
// first-match-only mode it returns nil once discovery has stopped and the
// queue is empty; otherwise it runs until ctx is cancelled, at which point
// remaining traces are terminated and reaped.
func (s *Supervisor) Run(ctx context.Context) error {
	if err := s.waitForWork(ctx); err != nil {
		return s.shutdown(err)
	}
	for {
		s.Sweep()
		if s.finished() {
			s.log.Debug("all traces reaped, supervisor exiting")
			return nil
		}
		select {
		case <-ctx.Done():
			return s.shutdown(ctx.Err())
		case <-time.After(s.opts.SweepInterval):
		}
	}
}

func (s *Supervisor) waitForWork(ctx context.Context) error {
	ticker := time.NewTicker(s.opts.WaitInterval)
	defer ticker.Stop()
	for {
		if s.queue.Len() > 0 || s.finished() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.queue.Notify():
		case <-ticker.C:
		}
	}
}

func (s *Supervisor) finished() bool {
	if !s.opts.FirstMatchOnly || s.queue.Len() > 0 {
		return false
	}
	return s.opts.DiscoveryStopped == nil || s.opts.DiscoveryStopped()
}

// Shutdown terminates and reaps whatever is still queued.
func (s *Supervisor) Shutdown() {
	_ = s.shutdown(nil)
}

// shutdown terminates every queued trace. Traces still alive after the
// grace period are killed; each unit ends up reaped or recorded as failed.
func (s *Supervisor) shutdown(cause error) error {
	units := s.queue.Drain()
	if len(units) == 0 {
		return cause
	}
	for _, u := range units {
		if err := u.handle.Terminate(); err != nil {
			s.log.WithError(err).WithField("pid", u.PID).Warn("cannot terminate trace")
		}
	}
	stubborn := s.awaitExit(units)
	for _, u := range stubborn {
		s.log.WithField("pid", u.PID).Warn("trace ignored SIGTERM, killing it")
		if err := u.handle.Kill(); err != nil {
			s.log.WithError(err).WithField("pid", u.PID).Warn("cannot kill trace")
		}
	}
	for _, u := range s.awaitExit(stubborn) {
		s.abandon(u)
	}
	return cause
}

// awaitExit reaps units as they exit within the grace period and returns
// the ones still running.
func (s *Supervisor) awaitExit(units []*Unit) []*Unit {
	grace := time.NewTimer(s.opts.ShutdownGrace)
	defer grace.Stop()
	expired := false
	var alive []*Unit
	for _, u := range units {
		if !expired {
			select {
			case <-u.handle.Done():
			case <-grace.C:
				expired = true
			}
		}
		if u.handle.Exited() {
			s.reap(u)
			continue
		}
		alive = append(alive, u)
	}
	return alive
}

// abandon records a unit that outlived shutdown as failed.
func (s *Supervisor) abandon(u *Unit) {
	s.log.WithFields(logrus.Fields{
		"pid":        u.PID,
		"tracer_pid": u.handle.Pid(),
	}).Error("trace did not exit before shutdown")
	if s.reg != nil && u.ID != 0 {
		s.reg.Complete(u.ID, -1, errTraceAbandoned)
	}
	s.m.reaped.Inc()
	s.m.active.Dec()
}
