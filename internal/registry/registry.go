package registry

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// Registry is a threadsafe in-memory catalog of spawned traces.
type Registry struct {
	mu     sync.RWMutex
	nextID TraceID
	byID   map[TraceID]*Trace
	byPID  map[int][]TraceID

	log    *logrus.Entry
	saveMu sync.Mutex

	// Where to snapshot. If empty, snapshotting is disabled.
	SnapshotPath string
}

// New loads snapshot if present and returns a ready registry.
func New(snapshotPath string, log *logrus.Entry) (*Registry, error) {
	r := &Registry{
		nextID:       1,
		byID:         make(map[TraceID]*Trace),
		byPID:        make(map[int][]TraceID),
		log:          log,
		SnapshotPath: snapshotPath,
	}
	if snapshotPath != "" {
		if err := r.loadSnapshot(snapshotPath); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Track registers a trace attached to pid as running.
func (r *Registry) Track(pid int, command, outputPath string) (TraceID, error) {
	if pid <= 0 {
		return 0, errors.New("pid must be > 0")
	}

	r.mu.Lock()
	id := r.nextID
	r.nextID++
	r.byID[id] = &Trace{
		ID:         id,
		PID:        pid,
		Command:    command,
		OutputPath: outputPath,
		State:      StateRunning,
		StartedAt:  now(),
	}
	r.byPID[pid] = append(r.byPID[pid], id)
	r.mu.Unlock()

	r.maybeSave()
	return id, nil
}

// Complete records the terminal state of a trace. A nil failure with any
// exit code is finished; a non-nil failure is failed. Completing an already
// completed trace is a no-op and returns false.
func (r *Registry) Complete(id TraceID, exitCode int, failure error) bool {
	r.mu.Lock()
	t := r.byID[id]
	if t == nil || t.State != StateRunning {
		r.mu.Unlock()
		return false
	}
	t.ExitCode = exitCode
	t.FinishedAt = now()
	t.State = StateFinished
	if failure != nil {
		t.State = StateFailed
		t.Error = failure.Error()
	}
	r.mu.Unlock()

	r.maybeSave()
	return true
}

// Get returns a copy of a Trace by ID.
func (r *Registry) Get(id TraceID) (Trace, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t := r.byID[id]
	if t == nil {
		return Trace{}, false
	}
	return *t, true
}

// Counts returns the number of traces per state.
func (r *Registry) Counts() map[State]int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[State]int, 3)
	for _, t := range r.byID {
		out[t.State]++
	}
	return out
}

// List returns matching traces, sorted by ID asc.
func (r *Registry) List(f ListFilter) []Trace {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var ids []TraceID
	if len(f.PIDs) > 0 {
		for _, pid := range f.PIDs {
			ids = append(ids, r.byPID[pid]...)
		}
	} else {
		ids = make([]TraceID, 0, len(r.byID))
		for id := range r.byID {
			ids = append(ids, id)
		}
	}

	if len(f.States) > 0 {
		want := make(map[State]struct{}, len(f.States))
		for _, s := range f.States {
			want[s] = struct{}{}
		}
		ids = filterIDs(ids, func(id TraceID) bool {
			_, ok := want[r.byID[id].State]
			return ok
		})
	}

	if s := strings.TrimSpace(f.TextSearch); s != "" {
		ids = filterIDs(ids, func(id TraceID) bool {
			return strings.Contains(r.byID[id].Command, s)
		})
	}

	out := make([]Trace, 0, len(ids))
	for _, id := range ids {
		out = append(out, *r.byID[id])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// maybeSave performs a best-effort snapshot write if a path is configured.
func (r *Registry) maybeSave() {
	if r.SnapshotPath == "" {
		return
	}
	r.saveMu.Lock()
	defer r.saveMu.Unlock()
	if err := r.saveSnapshot(r.SnapshotPath); err != nil && r.log != nil {
		r.log.WithError(err).Warn("trace registry snapshot failed")
	}
}

func filterIDs(ids []TraceID, keep func(TraceID) bool) []TraceID {
	dst := ids[:0]
	for _, id := range ids {
		if keep(id) {
			dst = append(dst, id)
		}
	}
	return dst
}

// ParseState validates a user supplied state name.
func ParseState(s string) (State, error) {
	switch st := State(strings.ToLower(strings.TrimSpace(s))); st {
	case StateRunning, StateFinished, StateFailed:
		return st, nil
	default:
		return "", fmt.Errorf("unknown trace state %q", s)
	}
}
