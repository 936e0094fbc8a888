package app

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"tracewatch/internal/agent"
	"tracewatch/internal/daemon"
)

// AgentStatus represents current information about the agent process.
type AgentStatus struct {
	Running bool
	PID     int
	Socket  string
}

// Status returns whether an agent is running and its PID if known.
func (a *App) Status() (AgentStatus, error) {
	st := AgentStatus{Socket: daemon.SocketPath()}
	if !agentIsRunning() {
		return st, nil
	}
	st.Running = true
	pid, err := daemon.RunningPID()
	if err != nil {
		return st, err
	}
	st.PID = pid
	return st, nil
}

var stopRunningAgent = daemon.StopRunningAgent

// StopAgent attempts to stop the running agent.
func (a *App) StopAgent(force bool) error {
	return stopRunningAgent(force)
}

// Trace runs a trace agent for the options file until it is done. The agent
// serves its catalog on the control socket when it is free.
func (a *App) Trace(ctx context.Context, optionsPath string) error {
	return agent.RunFile(ctx, optionsPath, agent.Deps{
		Log:           a.log,
		Lister:        a.lister,
		Registerer:    prometheus.DefaultRegisterer,
		ControlSocket: true,
		MetricsAddr:   a.metricsAddr,
	})
}
