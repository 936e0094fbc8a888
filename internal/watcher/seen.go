package watcher

// SeenRegistry records which commands have been acted upon per pid. It only
// grows; pids are assumed not to be recycled during one run. It is owned by
// the watcher goroutine and is not safe for concurrent use.
type SeenRegistry struct {
	byPID map[int]map[string]struct{}
}

// NewSeenRegistry returns an empty registry.
func NewSeenRegistry() *SeenRegistry {
	return &SeenRegistry{byPID: make(map[int]map[string]struct{})}
}

// Seen reports whether (pid, command) was already recorded.
func (s *SeenRegistry) Seen(pid int, command string) bool {
	_, ok := s.byPID[pid][command]
	return ok
}

// Record adds (pid, command) and reports whether it was new.
func (s *SeenRegistry) Record(pid int, command string) bool {
	cmds, ok := s.byPID[pid]
	if !ok {
		cmds = make(map[string]struct{})
		s.byPID[pid] = cmds
	}
	if _, dup := cmds[command]; dup {
		return false
	}
	cmds[command] = struct{}{}
	return true
}

// Len returns the number of recorded pairs.
func (s *SeenRegistry) Len() int {
	n := 0
	for _, cmds := range s.byPID {
		n += len(cmds)
	}
	return n
}
