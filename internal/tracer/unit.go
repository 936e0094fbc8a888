package tracer

import (
	"time"

	"tracewatch/internal/registry"
)

// Unit is one running trace, owned by the supervisor until reaped.
type Unit struct {
	ID         registry.TraceID
	PID        int
	Command    string
	OutputPath string
	Started    time.Time

	handle Handle
}

// TracerPID returns the pid of the trace process itself.
func (u *Unit) TracerPID() int {
	return u.handle.Pid()
}
