package daemon

import (
	"errors"
	"fmt"
	"net"
	"os"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"

	"tracewatch/internal/registry"
)

// ErrAlreadyRunning is returned by Serve when another agent answers on the
// control socket.
var ErrAlreadyRunning = errors.New("another agent owns the control socket")

// agentAlive is replaced in tests.
var agentAlive = IsRunning

// Server wraps the gRPC control server and its UNIX listener.
type Server struct {
	srv  *grpc.Server
	ln   net.Listener
	path string
	log  *logrus.Entry
}

// Serve binds the control socket and serves the registry on it.
func Serve(reg *registry.Registry, log *logrus.Entry) (*Server, error) {
	if reg == nil {
		return nil, errors.New("daemon: registry is required")
	}
	if err := EnsureRuntimeDir(); err != nil {
		return nil, fmt.Errorf("create runtime dir: %w", err)
	}
	path := SocketPath()

	if _, err := os.Stat(path); err == nil {
		if agentAlive() {
			return nil, ErrAlreadyRunning
		}
		log.WithField("socket", path).Debug("removing stale control socket")
		if err := os.Remove(path); err != nil {
			return nil, err
		}
	}

	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, err
	}
	if err := os.Chmod(path, 0o600); err != nil {
		ln.Close()
		return nil, err
	}

	s := &Server{srv: grpc.NewServer(), ln: ln, path: path, log: log}
	registerAgentServer(s.srv, &service{reg: reg})
	if err := WritePID(os.Getpid()); err != nil {
		s.Close()
		return nil, err
	}
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			log.WithError(err).Error("control server stopped")
		}
	}()
	log.WithField("socket", path).Info("control socket listening")
	return s, nil
}

// Path returns the socket path the server is bound to.
func (s *Server) Path() string { return s.path }

// Close stops the server and unlinks the socket and pid file.
func (s *Server) Close() error {
	if s.srv != nil {
		s.srv.Stop()
	}
	if s.path != "" {
		if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	return RemovePID()
}

// StopRunningAgent sends SIGTERM to the agent in the pid file and, with
// force, SIGKILL when it does not exit in time.
func StopRunningAgent(force bool) error {
	pid, err := RunningPID()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			if agentAlive() {
				return fmt.Errorf("agent is running but PID file %q is missing; stop it manually", PIDPath())
			}
			return nil
		}
		return fmt.Errorf("unable to read agent PID: %w", err)
	}
	if pid == os.Getpid() {
		return errors.New("refusing to stop current process")
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	if err := sendSignal(proc, syscall.SIGTERM); err != nil {
		return err
	}
	if waitForShutdown(3 * time.Second) {
		return nil
	}
	if !force {
		return fmt.Errorf("agent process %d did not exit after SIGTERM", pid)
	}
	if err := sendSignal(proc, syscall.SIGKILL); err != nil {
		return err
	}
	if waitForShutdown(2 * time.Second) {
		return nil
	}
	return fmt.Errorf("agent process %d did not exit after SIGKILL", pid)
}

func sendSignal(proc *os.Process, sig syscall.Signal) error {
	if err := proc.Signal(sig); err != nil {
		if errors.Is(err, os.ErrProcessDone) {
			_ = RemovePID()
			return nil
		}
		return err
	}
	return nil
}

var errStillRunning = errors.New("agent still running")

func waitForShutdown(timeout time.Duration) bool {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 50 * time.Millisecond
	b.MaxInterval = 500 * time.Millisecond
	b.MaxElapsedTime = timeout

	err := backoff.Retry(func() error {
		if agentAlive() {
			return errStillRunning
		}
		return nil
	}, b)
	if err != nil {
		return false
	}
	_ = RemovePID()
	return true
}
