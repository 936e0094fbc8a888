package registry

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
)

// Snapshot schema versioning for forward-compatibility.
const snapshotVersion = 1

type snapshot struct {
	Version int     `json:"version"`
	NextID  uint64  `json:"next_id"`
	Traces  []Trace `json:"traces"`
	Created int64   `json:"created_unix"`
}

// loadSnapshot restores a previous run's catalog. Traces that were still
// running when that run ended are marked failed; their handles are gone.
func (r *Registry) loadSnapshot(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	var s snapshot
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID = TraceID(s.NextID)
	if r.nextID == 0 {
		r.nextID = 1
	}
	r.byID = make(map[TraceID]*Trace)
	r.byPID = make(map[int][]TraceID)

	for i := range s.Traces {
		t := s.Traces[i]
		if t.State == StateRunning {
			t.State = StateFailed
			t.Error = "agent restarted before trace completed"
		}
		r.byID[t.ID] = &t
		r.byPID[t.PID] = append(r.byPID[t.PID], t.ID)
		if t.ID >= r.nextID {
			r.nextID = t.ID + 1
		}
	}
	return nil
}

func (r *Registry) saveSnapshot(path string) error {
	tmp := path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	r.mu.RLock()
	s := snapshot{
		Version: snapshotVersion,
		NextID:  uint64(r.nextID),
		Created: now().Unix(),
	}
	s.Traces = make([]Trace, 0, len(r.byID))
	for _, t := range r.byID {
		s.Traces = append(s.Traces, *t)
	}
	r.mu.RUnlock()

	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
