package daemon

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"tracewatch/internal/registry"
)

func testLog() *logrus.Entry {
	logger, _ := logtest.NewNullLogger()
	return logrus.NewEntry(logger)
}

func useSocketDir(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "tw")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	t.Setenv(EnvSocket, filepath.Join(dir, SocketBaseName))
	return dir
}

func seededRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	reg, err := registry.New("", nil)
	require.NoError(t, err)
	a, err := reg.Track(101, "/usr/bin/mysqld --port 3306", "/tmp/out/mysqld.trace")
	require.NoError(t, err)
	_, err = reg.Track(202, "nginx: worker", "/tmp/out/nginx:.trace")
	require.NoError(t, err)
	require.True(t, reg.Complete(a, 0, nil))
	return reg
}

func TestSocketPathPrecedence(t *testing.T) {
	t.Setenv(EnvSocket, "")
	t.Setenv(EnvRuntimeDir, "/var/run/tw")
	assert.Equal(t, "/var/run/tw/"+SocketBaseName, SocketPath())
	assert.Equal(t, "/var/run/tw/"+pidFileName, PIDPath())

	t.Setenv(EnvSocket, "/tmp/explicit.sock")
	assert.Equal(t, "/tmp/explicit.sock", SocketPath())
}

func TestPIDFileLifecycle(t *testing.T) {
	useSocketDir(t)

	_, err := RunningPID()
	require.ErrorIs(t, err, os.ErrNotExist)

	require.NoError(t, WritePID(4242))
	pid, err := RunningPID()
	require.NoError(t, err)
	assert.Equal(t, 4242, pid)

	require.NoError(t, RemovePID())
	require.NoError(t, RemovePID())
}

func TestServeAnswersPingAndListTraces(t *testing.T) {
	dir := useSocketDir(t)
	srv, err := Serve(seededRegistry(t), testLog())
	require.NoError(t, err)
	defer srv.Close()

	pid, err := RunningPID()
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client, conn, err := Dial(ctx)
	require.NoError(t, err)
	defer conn.Close()

	pong, err := client.Ping(ctx, &emptypb.Empty{})
	require.NoError(t, err)
	assert.Equal(t, "pong", pong.GetValue())

	all, err := client.ListTraces(ctx, FilterToStruct(registry.ListFilter{}))
	require.NoError(t, err)
	require.Len(t, all.GetValues(), 2)

	running, err := client.ListTraces(ctx, FilterToStruct(registry.ListFilter{States: []registry.State{registry.StateRunning}}))
	require.NoError(t, err)
	require.Len(t, running.GetValues(), 1)
	tr, err := TraceFromStruct(running.GetValues()[0].GetStructValue())
	require.NoError(t, err)
	assert.Equal(t, 202, tr.PID)
	assert.Equal(t, registry.StateRunning, tr.State)
	assert.True(t, tr.FinishedAt.IsZero())

	_, err = client.ListTraces(ctx, &structpb.Struct{Fields: map[string]*structpb.Value{
		FilterStates: structpb.NewListValue(&structpb.ListValue{Values: []*structpb.Value{structpb.NewStringValue("zombie")}}),
	}})
	require.Error(t, err)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	assert.True(t, IsRunning())

	_, err = Serve(seededRegistry(t), testLog())
	assert.ErrorIs(t, err, ErrAlreadyRunning)

	require.NoError(t, srv.Close())
	_, err = os.Stat(filepath.Join(dir, SocketBaseName))
	assert.True(t, errors.Is(err, os.ErrNotExist))
	_, err = os.Stat(PIDPath())
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestServeReplacesStaleSocket(t *testing.T) {
	dir := useSocketDir(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, SocketBaseName), nil, 0o600))

	srv, err := Serve(seededRegistry(t), testLog())
	require.NoError(t, err)
	defer srv.Close()
	assert.Equal(t, filepath.Join(dir, SocketBaseName), srv.Path())
}

func TestTraceStructRoundTrip(t *testing.T) {
	started := time.Date(2024, 3, 1, 12, 0, 0, 500, time.UTC)
	in := registry.Trace{
		ID: 7, PID: 99, Command: "sshd -D", OutputPath: "/o/sshd.trace",
		State: registry.StateFailed, ExitCode: 1, Error: "exit status 1",
		StartedAt: started, FinishedAt: started.Add(time.Minute),
	}
	st, err := TraceToStruct(in)
	require.NoError(t, err)
	out, err := TraceFromStruct(st)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestFilterStructRoundTrip(t *testing.T) {
	in := registry.ListFilter{
		PIDs:       []int{1, 2},
		States:     []registry.State{registry.StateFinished},
		TextSearch: "mysql",
	}
	out, err := FilterFromStruct(FilterToStruct(in))
	require.NoError(t, err)
	assert.Equal(t, in, out)

	empty, err := FilterFromStruct(nil)
	require.NoError(t, err)
	assert.Equal(t, registry.ListFilter{}, empty)
}

func TestStopRunningAgentWithoutPIDFile(t *testing.T) {
	useSocketDir(t)
	orig := agentAlive
	t.Cleanup(func() { agentAlive = orig })

	agentAlive = func() bool { return false }
	assert.NoError(t, StopRunningAgent(false))

	agentAlive = func() bool { return true }
	assert.Error(t, StopRunningAgent(false))
}

func TestStopRunningAgentRefusesSelf(t *testing.T) {
	useSocketDir(t)
	require.NoError(t, WritePID(os.Getpid()))
	assert.EqualError(t, StopRunningAgent(true), "refusing to stop current process")
}

func TestDialPathNoListener(t *testing.T) {
	dir := useSocketDir(t)
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	_, _, err := DialPath(ctx, filepath.Join(dir, "absent.sock"))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
