package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"tracewatch/internal/daemon"
)

var (
	agentIsRunning  = daemon.IsRunning
	dialAgentClient = defaultDial
)

func defaultDial(ctx context.Context) (daemon.AgentClient, io.Closer, error) {
	client, conn, err := daemon.Dial(ctx)
	if err != nil {
		return nil, nil, err
	}
	return client, conn, nil
}

func resetAgentDeps() {
	agentIsRunning = daemon.IsRunning
	dialAgentClient = defaultDial
}

// ErrAgentNotRunning is returned when no agent answers on the control socket.
var ErrAgentNotRunning = errors.New("agent is not running")

func (a *App) withClient(ctx context.Context, timeout time.Duration, fn func(context.Context, daemon.AgentClient) error) error {
	if timeout <= 0 {
		return errors.New("timeout must be greater than 0")
	}
	if !agentIsRunning() {
		return ErrAgentNotRunning
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client, conn, err := dialAgentClient(ctx)
	if err != nil {
		return fmt.Errorf("connect to agent: %w", err)
	}
	if conn != nil {
		defer conn.Close()
	}

	return fn(ctx, client)
}
