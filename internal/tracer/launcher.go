package tracer

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"syscall"
	"time"
)

// Handle is a launched trace process.
type Handle interface {
	Pid() int
	// Exited reports, without blocking, whether the process has ended.
	Exited() bool
	// Done is closed when the process has ended.
	Done() <-chan struct{}
	// Result returns captured output and exit status. Only valid once Exited.
	Result() Result
	// Terminate asks the process to stop.
	Terminate() error
	// Kill stops the process unconditionally.
	Kill() error
}

// Result is the captured outcome of a finished trace.
type Result struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
	Err      error
}

// Launcher starts trace processes.
type Launcher interface {
	Launch(ctx context.Context, argv, env []string) (Handle, error)
}

// ExecLauncher launches traces with os/exec, capturing both output channels.
type ExecLauncher struct {
	// WaitDelay bounds how long output pipes may stay open after the process
	// is killed on context cancellation.
	WaitDelay time.Duration
}

// Launch starts argv. The process is sent SIGTERM when ctx is cancelled.
func (l ExecLauncher) Launch(ctx context.Context, argv, env []string) (Handle, error) {
	if len(argv) == 0 {
		return nil, errors.New("empty trace command")
	}
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Env = env
	h := &execHandle{cmd: cmd, done: make(chan struct{})}
	cmd.Stdout = &h.stdout
	cmd.Stderr = &h.stderr
	cmd.Cancel = func() error { return cmd.Process.Signal(syscall.SIGTERM) }
	cmd.WaitDelay = l.WaitDelay
	if cmd.WaitDelay <= 0 {
		cmd.WaitDelay = 5 * time.Second
	}

	if err := cmd.Start(); err != nil {
		return nil, err
	}
	go h.wait()
	return h, nil
}

type execHandle struct {
	cmd    *exec.Cmd
	stdout bytes.Buffer
	stderr bytes.Buffer
	done   chan struct{}
	result Result
}

func (h *execHandle) wait() {
	err := h.cmd.Wait()
	h.result = Result{
		Stdout:   h.stdout.Bytes(),
		Stderr:   h.stderr.Bytes(),
		ExitCode: h.cmd.ProcessState.ExitCode(),
	}
	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		h.result.Err = err
	}
	close(h.done)
}

func (h *execHandle) Pid() int { return h.cmd.Process.Pid }

func (h *execHandle) Exited() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

func (h *execHandle) Done() <-chan struct{} { return h.done }

func (h *execHandle) Result() Result {
	<-h.done
	return h.result
}

func (h *execHandle) Terminate() error {
	err := h.cmd.Process.Signal(syscall.SIGTERM)
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}

func (h *execHandle) Kill() error {
	err := h.cmd.Process.Kill()
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}
