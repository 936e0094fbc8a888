// Package proctable lists host processes whose command line matches a
// regular expression.
package proctable

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/prometheus/procfs"
)

// Process is one match from the process table.
type Process struct {
	PID     int
	Command string
}

// Lister finds processes whose full command line matches pattern.
type Lister interface {
	Match(ctx context.Context, pattern *regexp.Regexp) ([]Process, error)
}

// ProcFS lists processes straight from a procfs mount.
type ProcFS struct {
	fs   procfs.FS
	self int
}

var _ Lister = (*ProcFS)(nil)

// NewProcFS opens the default /proc mount.
func NewProcFS() (*ProcFS, error) {
	fs, err := procfs.NewDefaultFS()
	if err != nil {
		return nil, fmt.Errorf("open procfs: %w", err)
	}
	return &ProcFS{fs: fs, self: os.Getpid()}, nil
}

// NewProcFSAt opens a procfs mounted at mountPoint.
func NewProcFSAt(mountPoint string) (*ProcFS, error) {
	fs, err := procfs.NewFS(mountPoint)
	if err != nil {
		return nil, fmt.Errorf("open procfs %s: %w", mountPoint, err)
	}
	return &ProcFS{fs: fs, self: os.Getpid()}, nil
}

// Match walks every process and returns those matching pattern, sorted by pid.
// Processes that exit mid-walk are skipped.
func (p *ProcFS) Match(ctx context.Context, pattern *regexp.Regexp) ([]Process, error) {
	procs, err := p.fs.AllProcs()
	if err != nil {
		return nil, fmt.Errorf("list processes: %w", err)
	}

	var out []Process
	for _, proc := range procs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if proc.PID == p.self {
			continue
		}
		cmd := commandOf(proc)
		if cmd == "" || !pattern.MatchString(cmd) {
			continue
		}
		out = append(out, Process{PID: proc.PID, Command: cmd})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PID < out[j].PID })
	return out, nil
}

func commandOf(proc procfs.Proc) string {
	if args, err := proc.CmdLine(); err == nil && len(args) > 0 {
		return strings.Join(args, " ")
	}
	// kernel threads have no cmdline
	comm, err := proc.Comm()
	if err != nil {
		return ""
	}
	return comm
}
