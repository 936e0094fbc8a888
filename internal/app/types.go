package app

import (
	"fmt"
	"strings"

	"tracewatch/internal/registry"
)

// Trace mirrors the agent's registry entry.
type Trace = registry.Trace

// TraceFilters aggregates selectors for the traces listing.
type TraceFilters struct {
	PIDs       []int
	States     []string
	TextSearch string
}

func (f TraceFilters) toRegistry() (registry.ListFilter, error) {
	out := registry.ListFilter{TextSearch: strings.TrimSpace(f.TextSearch)}
	for _, pid := range f.PIDs {
		if pid <= 0 {
			return out, fmt.Errorf("invalid pid filter: %d", pid)
		}
		out.PIDs = append(out.PIDs, pid)
	}
	for _, s := range f.States {
		st, err := registry.ParseState(s)
		if err != nil {
			return out, err
		}
		out.States = append(out.States, st)
	}
	return out, nil
}
