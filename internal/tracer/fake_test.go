package tracer

import (
	"context"
	"errors"
	"sync"
)

type fakeHandle struct {
	pid    int
	once   sync.Once
	done   chan struct{}
	result Result

	ignoreTerm bool
	ignoreKill bool
}

func newFakeHandle(pid int) *fakeHandle {
	return &fakeHandle{pid: pid, done: make(chan struct{})}
}

func (f *fakeHandle) finish(res Result) {
	f.once.Do(func() {
		f.result = res
		close(f.done)
	})
}

func (f *fakeHandle) Pid() int              { return f.pid }
func (f *fakeHandle) Done() <-chan struct{} { return f.done }
func (f *fakeHandle) Result() Result        { <-f.done; return f.result }

func (f *fakeHandle) Exited() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

func (f *fakeHandle) Terminate() error {
	if !f.ignoreTerm {
		f.finish(Result{ExitCode: -1})
	}
	return nil
}

func (f *fakeHandle) Kill() error {
	if !f.ignoreKill {
		f.finish(Result{ExitCode: -1, Stderr: []byte("killed\n")})
	}
	return nil
}

type launchCall struct {
	argv []string
	env  []string
}

type fakeLauncher struct {
	mu      sync.Mutex
	calls   []launchCall
	handles []*fakeHandle
	fail    error
	nextPID int
}

func (l *fakeLauncher) Launch(_ context.Context, argv, env []string) (Handle, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, launchCall{argv: argv, env: env})
	if l.fail != nil {
		return nil, l.fail
	}
	l.nextPID++
	h := newFakeHandle(5000 + l.nextPID)
	l.handles = append(l.handles, h)
	return h, nil
}

func (l *fakeLauncher) handle(i int) *fakeHandle {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.handles[i]
}

var errNoStrace = errors.New(`exec: "strace": executable file not found in $PATH`)
