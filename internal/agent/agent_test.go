package agent

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tracewatch/internal/config"
	"tracewatch/internal/proctable"
	"tracewatch/internal/registry"
	"tracewatch/internal/tracer"
	"tracewatch/internal/watcher"
)

type tableLister struct {
	mu    sync.Mutex
	procs []proctable.Process
}

func (l *tableLister) Match(_ context.Context, re *regexp.Regexp) ([]proctable.Process, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []proctable.Process
	for _, p := range l.procs {
		if re.MatchString(p.Command) {
			out = append(out, p)
		}
	}
	return out, nil
}

type stubHandle struct {
	pid  int
	once sync.Once
	done chan struct{}
	res  tracer.Result
}

func (h *stubHandle) finish(res tracer.Result) {
	h.once.Do(func() {
		h.res = res
		close(h.done)
	})
}

func (h *stubHandle) Pid() int              { return h.pid }
func (h *stubHandle) Done() <-chan struct{} { return h.done }
func (h *stubHandle) Result() tracer.Result { <-h.done; return h.res }
func (h *stubHandle) Terminate() error      { h.finish(tracer.Result{ExitCode: -1}); return nil }
func (h *stubHandle) Kill() error           { h.finish(tracer.Result{ExitCode: -1}); return nil }

func (h *stubHandle) Exited() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// stubLauncher finishes every trace at once unless hold is set.
type stubLauncher struct {
	mu    sync.Mutex
	argv  [][]string
	hold  bool
	fail  error
	count int
}

func (l *stubLauncher) Launch(_ context.Context, argv, _ []string) (tracer.Handle, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.argv = append(l.argv, argv)
	if l.fail != nil {
		return nil, l.fail
	}
	l.count++
	h := &stubHandle{pid: 9000 + l.count, done: make(chan struct{})}
	if !l.hold {
		h.finish(tracer.Result{Stdout: []byte("attached\n")})
	}
	return h, nil
}

func (l *stubLauncher) calls() [][]string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([][]string(nil), l.argv...)
}

func writeOptions(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "strace_options.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func testConfig(t *testing.T, out, pattern string, firstMatchOnly bool) config.Strace {
	t.Helper()
	return config.Strace{
		ProcessRegex:   pattern,
		Pattern:        regexp.MustCompile(pattern),
		FirstMatchOnly: firstMatchOnly,
		OutputDir:      out,
		Options:        []string{"-ff"},
		Exclude:        config.DefaultExclude,
		StracePath:     "strace",
		PollInterval:   10 * time.Millisecond,
		SweepInterval:  10 * time.Millisecond,
	}
}

func testDeps(lister proctable.Lister, launcher tracer.Launcher) (Deps, *logtest.Hook) {
	logger, hook := logtest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	return Deps{
		Lister:     lister,
		Launcher:   launcher,
		Registerer: prometheus.NewRegistry(),
		Log:        logrus.NewEntry(logger),
	}, hook
}

func TestRunFileMissingOutputDirIsFatal(t *testing.T) {
	path := writeOptions(t, "process_regex: mysqld\nfirst_match_only: true\n")
	launcher := &stubLauncher{}
	deps, hook := testDeps(&tableLister{}, launcher)

	err := RunFile(context.Background(), path, deps)
	require.Error(t, err)

	var fatal int
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.FatalLevel {
			fatal++
		}
	}
	assert.Equal(t, 1, fatal)
	assert.Empty(t, launcher.calls())
}

func TestRunFileUnreadableIsFatal(t *testing.T) {
	deps, hook := testDeps(&tableLister{}, &stubLauncher{})
	err := RunFile(context.Background(), filepath.Join(t.TempDir(), "missing.json"), deps)
	var logged *LoggedError
	require.ErrorAs(t, err, &logged)
	assert.ErrorIs(t, err, os.ErrNotExist)
	require.Len(t, hook.AllEntries(), 1)
	assert.Equal(t, logrus.FatalLevel, hook.LastEntry().Level)
}

func TestRunFileFirstMatchOnly(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out")
	path := writeOptions(t, `{"process_regex": "mysqld", "first_match_only": true, "output_dir": "`+out+`", "options": "-f", "poll_interval": 0.01, "sweep_interval": 0.01}`)
	lister := &tableLister{procs: []proctable.Process{
		{PID: 100, Command: "/usr/sbin/mysqld --user=mysql"},
		{PID: 101, Command: "strace -p 100 mysqld"},
		{PID: 102, Command: "tail -f /var/log/mysqld.log"},
	}}
	launcher := &stubLauncher{}
	deps, _ := testDeps(lister, launcher)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, RunFile(ctx, path, deps))
	require.NoError(t, ctx.Err(), "agent should exit on its own")

	calls := launcher.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, []string{"strace", "-f", "-o", filepath.Join(out, "mysqld.trace"), "-p", "100"}, calls[0])

	info, err := os.ReadFile(filepath.Join(out, watcher.CommandInfoFile))
	require.NoError(t, err)
	assert.Equal(t, "100,/usr/sbin/mysqld --user=mysql\n", string(info))

	_, err = os.Stat(filepath.Join(out, SnapshotFile))
	require.NoError(t, err)
	reg, err := registry.New(filepath.Join(out, SnapshotFile), nil)
	require.NoError(t, err)
	traces := reg.List(registry.ListFilter{})
	require.Len(t, traces, 1)
	assert.Equal(t, registry.StateFinished, traces[0].State)
}

func TestRunContinuousStopsOnCancel(t *testing.T) {
	out := t.TempDir()
	lister := &tableLister{procs: []proctable.Process{
		{PID: 200, Command: "nginx: master process"},
		{PID: 201, Command: "nginx: worker process"},
	}}
	launcher := &stubLauncher{hold: true}
	deps, _ := testDeps(lister, launcher)
	reg := deps.Registerer.(*prometheus.Registry)

	a, err := New(testConfig(t, out, "nginx", false), deps)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	require.Eventually(t, func() bool { return len(launcher.calls()) == 2 }, 5*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("agent did not stop after cancel")
	}

	counts := a.Registry().Counts()
	assert.Equal(t, 0, counts[registry.StateRunning])
	assert.Equal(t, 2, counts[registry.StateFinished])
	assert.Equal(t, 2, a.Watcher().Seen().Len())

	families, err := reg.Gather()
	require.NoError(t, err)
	var reaped float64
	for _, mf := range families {
		if mf.GetName() == "tracewatch_traces_reaped_total" {
			reaped = mf.GetMetric()[0].GetCounter().GetValue()
		}
	}
	assert.Equal(t, 2.0, reaped)
}

func TestRunSpawnFailureDoesNotHang(t *testing.T) {
	out := t.TempDir()
	lister := &tableLister{procs: []proctable.Process{{PID: 300, Command: "/opt/app/server"}}}
	launcher := &stubLauncher{fail: errors.New("strace: not found")}
	deps, hook := testDeps(lister, launcher)

	a, err := New(testConfig(t, out, "server", true), deps)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, a.Run(ctx))
	require.NoError(t, ctx.Err())

	assert.Equal(t, 1, a.Registry().Counts()[registry.StateFailed])
	var logged bool
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.ErrorLevel && e.Data[logrus.ErrorKey] != nil {
			logged = true
		}
	}
	assert.True(t, logged)
}
