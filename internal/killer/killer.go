// Package killer stops every analytics process running on the guest.
package killer

import (
	"context"
	"errors"
	"os"
	"regexp"
	"syscall"

	"github.com/sirupsen/logrus"

	"tracewatch/internal/proctable"
)

// DefaultPatterns match the command lines of every analytics tool.
var DefaultPatterns = []string{
	"tcpdump",
	"tracewatch track",
	"tracewatch strace",
	"tracewatch-agent",
	"strace",
	"tracewatch tailf",
	"tail -f",
}

// SignalFunc delivers sig to pid.
type SignalFunc func(pid int, sig syscall.Signal) error

// Killer sends SIGTERM to processes matching its patterns.
type Killer struct {
	Patterns []string
	Lister   proctable.Lister
	Signal   SignalFunc
	Log      *logrus.Entry
}

// New returns a killer over the default patterns and the live process table.
func New(lister proctable.Lister, log *logrus.Entry) *Killer {
	return &Killer{
		Patterns: DefaultPatterns,
		Lister:   lister,
		Signal:   syscall.Kill,
		Log:      log,
	}
}

// KillAll signals every match of every pattern and returns how many
// processes each pattern hit. A pid is signalled at most once.
func (k *Killer) KillAll(ctx context.Context) (map[string]int, error) {
	hits := make(map[string]int)
	signalled := make(map[int]bool)
	self := os.Getpid()
	var errs []error
	for _, p := range k.Patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		procs, err := k.Lister.Match(ctx, re)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		for _, proc := range procs {
			if proc.PID == self || signalled[proc.PID] {
				continue
			}
			if err := k.Signal(proc.PID, syscall.SIGTERM); err != nil {
				if !errors.Is(err, syscall.ESRCH) {
					k.Log.WithError(err).WithField("pid", proc.PID).Warn("cannot signal process")
				}
				continue
			}
			signalled[proc.PID] = true
			hits[p]++
		}
		if hits[p] > 0 {
			k.Log.Debugf("Sent SIGTERM to at least one process matching '%s'", p)
		}
	}
	return hits, errors.Join(errs...)
}
