package proctable

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
)

// Pgrep lists processes by shelling out to pgrep.
type Pgrep struct {
	// Path to the pgrep binary; "pgrep" when empty.
	Path string
}

var _ Lister = Pgrep{}

// Match runs `pgrep -a -f <pattern>`. Exit status 1 means nothing matched.
func (p Pgrep) Match(ctx context.Context, pattern *regexp.Regexp) ([]Process, error) {
	bin := p.Path
	if bin == "" {
		bin = "pgrep"
	}
	cmd := exec.CommandContext(ctx, bin, "-a", "-f", pattern.String())
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
			return nil, nil
		}
		return nil, fmt.Errorf("pgrep %q: %w: %s", pattern.String(), err, strings.TrimSpace(stderr.String()))
	}
	procs := ParsePgrep(string(out))
	for i := range procs {
		if procs[i].Command == "" {
			procs[i].Command = CommandLine(procs[i].PID)
		}
	}
	return procs, nil
}

// ParsePgrep parses `<pid> <command...>` lines. Malformed lines are skipped.
func ParsePgrep(output string) []Process {
	var out []Process
	for _, line := range strings.Split(strings.TrimSpace(output), "\n") {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		pid, err := strconv.Atoi(fields[0])
		if err != nil || pid <= 0 {
			continue
		}
		out = append(out, Process{PID: pid, Command: strings.Join(fields[1:], " ")})
	}
	return out
}
