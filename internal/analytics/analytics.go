// Package analytics plans analytics collection on experiment guests. Every
// operation only records scheduled entries on a Node; setup steps run at
// most once per Analytics value.
package analytics

import (
	"encoding/json"
	"fmt"
	"strconv"

	"tracewatch/internal/config"
	"tracewatch/internal/monitor"
	"tracewatch/internal/once"
)

const (
	// Dir holds analytics binaries and logs on the guest.
	Dir = "/opt/analytics"
	// Binary is where the tracewatch CLI is dropped.
	Binary = Dir + "/tracewatch"

	DefaultTcpdumpOptions = "-U -w /opt/analytics/pcaps/tmp.pcap -Z root"
	// TraceFileRegex matches the per-thread files written by strace -ff.
	TraceFileRegex = `trace\.[0-9]+`
)

// tailfKey makes the directory the uniqueness key of TailfDir.
var tailfKey = once.Selector{Positions: []int{1}}

// Analytics decorates a Node with analytics operations.
type Analytics struct {
	node    *Node
	history once.History
}

// New prepares the guest: the analytics directory and the tracewatch binary.
func New(node *Node) *Analytics {
	node.RunExecutable(-101, "mkdir", "-p "+Dir)
	node.DropFile(-100, Binary, "tracewatch", true)
	return &Analytics{node: node}
}

// Node returns the decorated node.
func (a *Analytics) Node() *Node { return a.node }

// StraceOutputDir is where Strace at time writes trace files.
func StraceOutputDir(time int, tailf bool) string {
	if tailf {
		return fmt.Sprintf("%s/traces/tailf_dirs/%d", Dir, time)
	}
	return fmt.Sprintf("%s/traces/no_tailf_dirs/%d", Dir, time)
}

// Strace schedules a trace agent for processRegex at time. An empty options
// string selects the default strace options. With tailf the trace files are
// also followed from one second earlier.
func (a *Analytics) Strace(time int, processRegex, options string, firstMatchOnly, tailf bool) error {
	if options == "" {
		options = config.DefaultStraceOptions
	}
	outputDir := StraceOutputDir(time, tailf)
	payload, err := json.Marshal(config.StraceDocument{
		ProcessRegex:   processRegex,
		FirstMatchOnly: firstMatchOnly,
		OutputDir:      outputDir,
		Options:        options,
	})
	if err != nil {
		return err
	}
	a.node.AddVMResource(time, "tracewatch strace", string(payload))

	if tailf {
		if _, err := a.TailfDir(max(1, time-1), outputDir, TraceFileRegex); err != nil {
			return err
		}
	}
	return nil
}

// TailfDir schedules following new files in directory whose names match
// regex. It is scheduled at most once per directory and reports whether it
// was.
func (a *Analytics) TailfDir(time int, directory, regex string) (bool, error) {
	if time < 1 {
		return false, fmt.Errorf("tailf time must be >= 1, got %d", time)
	}
	key := tailfKey.Key([]any{time, directory, regex}, nil)
	return a.history.DoUnique("tailf_dir", key, func() error {
		a.node.RunExecutable(time, Binary, "tailf "+directory+" "+regex)
		return nil
	})
}

// InstallTcpdump schedules the tcpdump installation once.
func (a *Analytics) InstallTcpdump() bool {
	ran, _ := a.history.Do("install_tcpdump", func() error {
		a.node.Install(-55, "tcpdump")
		return nil
	})
	return ran
}

// RunTcpdump schedules a packet capture once. An empty options string
// selects DefaultTcpdumpOptions.
func (a *Analytics) RunTcpdump(options string, install bool) bool {
	ran, _ := a.history.Do("run_tcpdump", func() error {
		if install {
			a.InstallTcpdump()
		}
		if options == "" {
			options = DefaultTcpdumpOptions
		}
		a.node.RunExecutable(-1, "mkdir", "-p "+Dir+"/pcaps")
		a.node.RunExecutable(1, "tcpdump", options)
		return nil
	})
	return ran
}

func (a *Analytics) track(kind string, intervalSec int) bool {
	ran, _ := a.history.Do("track_"+kind, func() error {
		a.node.RunExecutable(1, Binary, "track "+kind+" --interval "+strconv.Itoa(intervalSec)+"s --log-dir "+Dir)
		return nil
	})
	return ran
}

// AddPortTracking schedules listening-socket tracking once.
func (a *Analytics) AddPortTracking(intervalSec int) bool {
	return a.track(monitor.KindPorts, intervalSec)
}

// AddCPUTracking schedules per-cpu usage tracking once.
func (a *Analytics) AddCPUTracking(intervalSec int) bool {
	return a.track(monitor.KindCPU, intervalSec)
}

// AddSystemMemoryTracking schedules memory tracking once.
func (a *Analytics) AddSystemMemoryTracking(intervalSec int) bool {
	return a.track(monitor.KindMemory, intervalSec)
}

// AddDiskUsageTracking schedules per-partition usage tracking once.
func (a *Analytics) AddDiskUsageTracking(intervalSec int) bool {
	return a.track(monitor.KindDiskUsage, intervalSec)
}

// AddDiskIOTracking schedules per-disk IO tracking once.
func (a *Analytics) AddDiskIOTracking(intervalSec int) bool {
	return a.track(monitor.KindDiskIO, intervalSec)
}

// AddNetworkIOTracking schedules per-NIC IO tracking once.
func (a *Analytics) AddNetworkIOTracking(intervalSec int) bool {
	return a.track(monitor.KindNetIO, intervalSec)
}
