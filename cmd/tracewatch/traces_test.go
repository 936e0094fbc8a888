package main

import (
	"context"
	"strings"
	"testing"
	"time"

	"tracewatch/internal/app"
	"tracewatch/internal/registry"
)

func TestTracesPrintsCatalog(t *testing.T) {
	withController(t, &stubController{
		tracesFunc: func(ctx context.Context, params app.TracesParams) ([]app.Trace, error) {
			if params.Timeout != 3*time.Second {
				t.Fatalf("expected timeout 3s, got %v", params.Timeout)
			}
			if len(params.Filters.States) != 1 || params.Filters.States[0] != "failed" {
				t.Fatalf("unexpected filters %+v", params.Filters)
			}
			return []app.Trace{{
				ID: 2, PID: 88, Command: "/usr/sbin/sshd -D", OutputPath: "/out/sshd.trace",
				State: registry.StateFailed, Error: "exit status 1", StartedAt: time.Now(),
			}}, nil
		},
	})
	buf := withOutput(t, cmdTraces)

	tracesStates = []string{"failed"}
	t.Cleanup(func() { tracesStates = nil })

	if err := cmdTraces.RunE(cmdTraces, nil); err != nil {
		t.Fatalf("RunE error: %v", err)
	}
	got := buf.String()
	for _, want := range []string{"[id=2] pid=88 state=failed", "output=/out/sshd.trace", `error="exit status 1"`} {
		if !strings.Contains(got, want) {
			t.Fatalf("output %q lacks %q", got, want)
		}
	}
}

func TestTracesEmpty(t *testing.T) {
	withController(t, &stubController{
		tracesFunc: func(context.Context, app.TracesParams) ([]app.Trace, error) { return nil, nil },
	})
	buf := withOutput(t, cmdTraces)

	if err := cmdTraces.RunE(cmdTraces, nil); err != nil {
		t.Fatalf("RunE error: %v", err)
	}
	if got := buf.String(); got != "No traces recorded\n" {
		t.Fatalf("unexpected output %q", got)
	}
}

func TestStopWhenNotRunning(t *testing.T) {
	stub := &stubController{}
	withController(t, stub)
	buf := withOutput(t, cmdStop)

	if err := cmdStop.RunE(cmdStop, nil); err != nil {
		t.Fatalf("RunE error: %v", err)
	}
	if stub.stopped {
		t.Fatal("StopAgent should not be called when no agent runs")
	}
	if got := buf.String(); got != "Agent is not running\n" {
		t.Fatalf("unexpected output %q", got)
	}
}

func TestStopRunningAgent(t *testing.T) {
	stub := &stubController{status: app.AgentStatus{Running: true, PID: 1234}}
	withController(t, stub)
	buf := withOutput(t, cmdStop)

	if err := cmdStop.RunE(cmdStop, nil); err != nil {
		t.Fatalf("RunE error: %v", err)
	}
	if !stub.stopped {
		t.Fatal("expected StopAgent to be called")
	}
	if got := buf.String(); got != "Agent stopped\n" {
		t.Fatalf("unexpected output %q", got)
	}
}
