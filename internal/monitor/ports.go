package monitor

import (
	"context"
	"fmt"
	"sort"
	"syscall"
	"time"

	"github.com/shirou/gopsutil/v4/net"
	"github.com/sirupsen/logrus"
)

// ListenFunc returns the current listening sockets, one line each.
type ListenFunc func(ctx context.Context) ([]string, error)

// PortTracker logs the listening sockets once, then every change.
type PortTracker struct {
	List     ListenFunc
	Interval time.Duration
	Log      *logrus.Entry
}

// NewPortTracker lists sockets through gopsutil.
func NewPortTracker(interval time.Duration, log *logrus.Entry) *PortTracker {
	return &PortTracker{List: listeningSockets, Interval: interval, Log: log}
}

// Name is the tracker's log file stem.
func (*PortTracker) Name() string { return "port_tracking" }

// Run logs INITIAL entries, then ADDED and DELETED deltas every interval.
func (t *PortTracker) Run(ctx context.Context) error {
	if t.Interval <= 0 {
		return fmt.Errorf("interval must be positive, got %s", t.Interval)
	}
	old, err := t.List(ctx)
	if err != nil {
		return fmt.Errorf("list listening sockets: %w", err)
	}
	sort.Strings(old)
	for _, line := range old {
		t.Log.Debugf("INITIAL: %s", line)
	}

	ticker := time.NewTicker(t.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		cur, err := t.List(ctx)
		if err != nil {
			t.Log.WithError(err).Warn("cannot list listening sockets")
			continue
		}
		added, deleted := Diff(old, cur)
		for _, line := range deleted {
			t.Log.Debugf("DELETED: %s", line)
		}
		for _, line := range added {
			t.Log.Debugf("ADDED:   %s", line)
		}
		old = cur
	}
}

// Diff returns the sorted lines only in cur and only in old.
func Diff(old, cur []string) (added, deleted []string) {
	was := make(map[string]struct{}, len(old))
	for _, l := range old {
		was[l] = struct{}{}
	}
	is := make(map[string]struct{}, len(cur))
	for _, l := range cur {
		is[l] = struct{}{}
		if _, ok := was[l]; !ok {
			added = append(added, l)
		}
	}
	for _, l := range old {
		if _, ok := is[l]; !ok {
			deleted = append(deleted, l)
		}
	}
	sort.Strings(added)
	sort.Strings(deleted)
	return added, deleted
}

func listeningSockets(ctx context.Context) ([]string, error) {
	conns, err := net.ConnectionsWithContext(ctx, "inet")
	if err != nil {
		return nil, err
	}
	var out []string
	for _, c := range conns {
		if line, ok := socketLine(c); ok {
			out = append(out, line)
		}
	}
	return out, nil
}

// socketLine renders listening TCP sockets and unconnected UDP sockets.
func socketLine(c net.ConnectionStat) (string, bool) {
	var proto string
	switch {
	case c.Type == syscall.SOCK_STREAM && c.Status == "LISTEN":
		proto = "tcp"
	case c.Type == syscall.SOCK_DGRAM && c.Raddr.Port == 0:
		proto = "udp"
	default:
		return "", false
	}
	if c.Family == syscall.AF_INET6 {
		proto += "6"
	}
	return fmt.Sprintf("%-5s %s:%d pid=%d", proto, c.Laddr.IP, c.Laddr.Port, c.Pid), true
}
