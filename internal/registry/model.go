package registry

import "time"

// TraceID is an internal stable identifier for spawned traces.
type TraceID uint64

// State is the lifecycle stage of a trace.
type State string

const (
	StateRunning  State = "running"
	StateFinished State = "finished"
	StateFailed   State = "failed"
)

// Trace holds one spawned trace. It is immutable outside registry methods.
type Trace struct {
	ID         TraceID   `json:"id"`
	PID        int       `json:"pid"`
	Command    string    `json:"command"`
	OutputPath string    `json:"output_path"`
	State      State     `json:"state"`
	ExitCode   int       `json:"exit_code"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
}

// ListFilter allows narrowing the registry query.
type ListFilter struct {
	PIDs       []int
	States     []State
	TextSearch string // naive substring search over Command
}
