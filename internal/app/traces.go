package app

import (
	"context"
	"fmt"
	"time"

	"tracewatch/internal/daemon"
)

// TracesParams defines filters and timeout.
type TracesParams struct {
	Filters TraceFilters
	Timeout time.Duration
}

// Traces fetches the running agent's trace catalog.
func (a *App) Traces(ctx context.Context, params TracesParams) ([]Trace, error) {
	filter, err := params.Filters.toRegistry()
	if err != nil {
		return nil, err
	}

	var traces []Trace
	err = a.withClient(ctx, params.Timeout, func(ctx context.Context, client daemon.AgentClient) error {
		resp, err := client.ListTraces(ctx, daemon.FilterToStruct(filter))
		if err != nil {
			return fmt.Errorf("agent list RPC failed: %w", err)
		}
		traces = make([]Trace, 0, len(resp.GetValues()))
		for _, v := range resp.GetValues() {
			t, err := daemon.TraceFromStruct(v.GetStructValue())
			if err != nil {
				return fmt.Errorf("decode trace: %w", err)
			}
			traces = append(traces, t)
		}
		return nil
	})
	return traces, err
}
