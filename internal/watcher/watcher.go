// Package watcher polls the process table for newly appeared processes.
package watcher

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"tracewatch/internal/proctable"
)

const defaultPollInterval = time.Second

// Options configures a Watcher.
type Options struct {
	Pattern        *regexp.Regexp
	Exclude        []string
	FirstMatchOnly bool
	Interval       time.Duration
	// OutputDir receives command_info.log. Empty disables it.
	OutputDir string
}

// EmitFunc receives each newly confirmed match, in observation order.
type EmitFunc func(ctx context.Context, match proctable.Process)

// Watcher discovers processes matching a pattern, each (pid, command) pair
// exactly once.
type Watcher struct {
	opts    Options
	lister  proctable.Lister
	log     *logrus.Entry
	seen    *SeenRegistry
	stopped atomic.Bool

	polls   prometheus.Counter
	matches prometheus.Counter
}

// New builds a watcher. reg may be nil.
func New(opts Options, lister proctable.Lister, log *logrus.Entry, reg prometheus.Registerer) (*Watcher, error) {
	if opts.Pattern == nil {
		return nil, errors.New("watcher: pattern is required")
	}
	if lister == nil {
		return nil, errors.New("watcher: lister is required")
	}
	if opts.Interval <= 0 {
		opts.Interval = defaultPollInterval
	}
	w := &Watcher{
		opts:   opts,
		lister: lister,
		log:    log.WithField("process_regex", opts.Pattern.String()),
		seen:   NewSeenRegistry(),
		polls: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracewatch_watcher_polls_total",
			Help: "Process table polls performed.",
		}),
		matches: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracewatch_watcher_matches_total",
			Help: "New (pid, command) pairs discovered.",
		}),
	}
	if reg != nil {
		for _, c := range []prometheus.Collector{w.polls, w.matches} {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}
	return w, nil
}

// Stopped reports whether discovery has ceased (first-match-only mode).
func (w *Watcher) Stopped() bool {
	return w.stopped.Load()
}

// Seen exposes the registry of acted-upon pairs.
func (w *Watcher) Seen() *SeenRegistry {
	return w.seen
}

// Run polls until the context ends or the stop flag is raised.
func (w *Watcher) Run(ctx context.Context, emit EmitFunc) error {
	ticker := time.NewTicker(w.opts.Interval)
	defer ticker.Stop()
	for !w.Stopped() {
		w.Poll(ctx, emit)
		if w.Stopped() {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	w.log.Debug("process discovery stopped")
	return nil
}

// Poll performs one pass over the process table and returns the new matches.
func (w *Watcher) Poll(ctx context.Context, emit EmitFunc) []proctable.Process {
	w.polls.Inc()
	procs, err := w.lister.Match(ctx, w.opts.Pattern)
	if err != nil {
		w.log.WithError(err).Debug("process poll failed, treating as no matches")
		return nil
	}
	if len(procs) == 0 {
		w.log.Debug("no matching processes")
		return nil
	}

	var fresh []proctable.Process
	for _, p := range procs {
		if w.excluded(p.Command) {
			continue
		}
		if !w.seen.Record(p.PID, p.Command) {
			continue
		}
		fresh = append(fresh, p)
	}
	if len(fresh) == 0 {
		return nil
	}

	for _, p := range fresh {
		w.matches.Inc()
		w.log.WithFields(logrus.Fields{"pid": p.PID, "command": p.Command}).Debug("new matching process")
		if emit != nil {
			emit(ctx, p)
		}
		if w.opts.OutputDir != "" {
			if err := appendCommandInfo(w.opts.OutputDir, p.PID, p.Command); err != nil {
				w.log.WithError(err).WithField("pid", p.PID).Error("cannot write command info")
			}
		}
	}

	if w.opts.FirstMatchOnly {
		w.stopped.Store(true)
	}
	return fresh
}

func (w *Watcher) excluded(command string) bool {
	for _, ex := range w.opts.Exclude {
		if ex != "" && strings.Contains(command, ex) {
			return true
		}
	}
	return false
}
