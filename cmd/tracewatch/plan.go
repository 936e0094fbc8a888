package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"tracewatch/internal/analytics"
)

// planFlags selects the analytics scheduled by `tracewatch plan`. Zero
// intervals leave a tracker out.
type planFlags struct {
	node string

	straceTime     int
	straceRegex    string
	straceOptions  string
	firstMatchOnly bool
	noTailf        bool

	tcpdump        bool
	tcpdumpOptions string
	installTcpdump bool

	ports, cpu, memory, diskUsage, diskIO, netIO int

	tailfDirs []string
}

var planOpts planFlags

func init() {
	rootCmd.AddCommand(cmdPlan)

	f := cmdPlan.Flags()
	f.StringVar(&planOpts.node, "node", "guest", "Name of the guest being planned")
	f.IntVar(&planOpts.straceTime, "strace-time", 1, "Experiment second at which the trace agent starts")
	f.StringVar(&planOpts.straceRegex, "strace", "", "Schedule a trace agent for processes matching this regex")
	f.StringVar(&planOpts.straceOptions, "strace-options", "", "strace options (default \"-ff -tt -s 1024\")")
	f.BoolVar(&planOpts.firstMatchOnly, "first-match-only", true, "Stop discovery after the first match")
	f.BoolVar(&planOpts.noTailf, "no-tailf", false, "Do not follow the trace files")
	f.BoolVar(&planOpts.tcpdump, "tcpdump", false, "Schedule a packet capture")
	f.StringVar(&planOpts.tcpdumpOptions, "tcpdump-options", "", "tcpdump options")
	f.BoolVar(&planOpts.installTcpdump, "install-tcpdump", false, "Install tcpdump before capturing")
	f.IntVar(&planOpts.ports, "ports", 0, "Port tracking interval in seconds")
	f.IntVar(&planOpts.cpu, "cpu", 0, "CPU tracking interval in seconds")
	f.IntVar(&planOpts.memory, "memory", 0, "Memory tracking interval in seconds")
	f.IntVar(&planOpts.diskUsage, "disk-usage", 0, "Disk usage tracking interval in seconds")
	f.IntVar(&planOpts.diskIO, "disk-io", 0, "Disk IO tracking interval in seconds")
	f.IntVar(&planOpts.netIO, "net-io", 0, "Network IO tracking interval in seconds")
	f.StringArrayVar(&planOpts.tailfDirs, "tailf", nil, "dir=regex to follow from second 1 (repeatable)")
}

type planDocument struct {
	Node     string            `yaml:"node"`
	Schedule []analytics.Entry `yaml:"schedule"`
}

var cmdPlan = &cobra.Command{
	Use:   "plan",
	Short: "Print the analytics schedule for a guest as YAML",
	RunE: func(cmd *cobra.Command, args []string) error {
		node, err := buildPlan(planOpts)
		if err != nil {
			return err
		}
		enc := yaml.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent(2)
		if err := enc.Encode(planDocument{Node: node.Name, Schedule: node.Schedule()}); err != nil {
			return err
		}
		return enc.Close()
	},
}

func buildPlan(opts planFlags) (*analytics.Node, error) {
	a := analytics.New(analytics.NewNode(opts.node))
	if opts.straceRegex != "" {
		if err := a.Strace(opts.straceTime, opts.straceRegex, opts.straceOptions, opts.firstMatchOnly, !opts.noTailf); err != nil {
			return nil, err
		}
	}
	for _, arg := range opts.tailfDirs {
		dir, regex, ok := strings.Cut(arg, "=")
		if !ok || dir == "" {
			return nil, fmt.Errorf("invalid --tailf %q, want dir=regex", arg)
		}
		if _, err := a.TailfDir(1, dir, regex); err != nil {
			return nil, err
		}
	}
	if opts.tcpdump {
		a.RunTcpdump(opts.tcpdumpOptions, opts.installTcpdump)
	}
	trackers := []struct {
		interval int
		add      func(int) bool
	}{
		{opts.ports, a.AddPortTracking},
		{opts.cpu, a.AddCPUTracking},
		{opts.memory, a.AddSystemMemoryTracking},
		{opts.diskUsage, a.AddDiskUsageTracking},
		{opts.diskIO, a.AddDiskIOTracking},
		{opts.netIO, a.AddNetworkIOTracking},
	}
	for _, t := range trackers {
		if t.interval > 0 {
			t.add(t.interval)
		}
	}
	return a.Node(), nil
}
