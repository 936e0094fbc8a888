package app

import (
	"errors"
	"testing"
)

func TestAppStatusNotRunning(t *testing.T) {
	stubAgent(t, false, nil)

	st, err := New(Options{}).Status()
	if err != nil {
		t.Fatalf("Status returned error: %v", err)
	}
	if st.Running || st.PID != 0 {
		t.Fatalf("unexpected status %+v", st)
	}
	if st.Socket == "" {
		t.Fatal("expected socket path in status")
	}
}

func TestAppStopAgentForwardsForce(t *testing.T) {
	orig := stopRunningAgent
	t.Cleanup(func() { stopRunningAgent = orig })

	var gotForce bool
	stopRunningAgent = func(force bool) error {
		gotForce = force
		return errors.New("still alive")
	}
	if err := New(Options{}).StopAgent(true); err == nil || err.Error() != "still alive" {
		t.Fatalf("expected stop error, got %v", err)
	}
	if !gotForce {
		t.Fatal("expected force to be forwarded")
	}
}
