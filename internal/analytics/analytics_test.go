package analytics

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tracewatch/internal/config"
)

func executables(n *Node, program string) []Entry {
	var out []Entry
	for _, e := range n.Schedule() {
		if e.Kind == KindExecutable && e.Name == program {
			out = append(out, e)
		}
	}
	return out
}

func TestNewSchedulesSetup(t *testing.T) {
	a := New(NewNode("host.root.net"))
	sched := a.Node().Schedule()
	require.Len(t, sched, 2)
	assert.Equal(t, Entry{Time: -101, Kind: KindExecutable, Name: "mkdir", Args: "-p /opt/analytics"}, sched[0])
	assert.Equal(t, KindDropFile, sched[1].Kind)
	assert.Equal(t, Binary, sched[1].Destination)
	assert.True(t, sched[1].Executable)
}

func TestStraceSchedulesAgentAndTailf(t *testing.T) {
	a := New(NewNode("db"))
	require.NoError(t, a.Strace(60, "mysqld", "", true, true))

	var res []Entry
	for _, e := range a.Node().Schedule() {
		if e.Kind == KindVMResource {
			res = append(res, e)
		}
	}
	require.Len(t, res, 1)
	assert.Equal(t, 60, res[0].Time)

	var doc config.StraceDocument
	require.NoError(t, json.Unmarshal([]byte(res[0].Args), &doc))
	assert.Equal(t, config.StraceDocument{
		ProcessRegex:   "mysqld",
		FirstMatchOnly: true,
		OutputDir:      "/opt/analytics/traces/tailf_dirs/60",
		Options:        "-ff -tt -s 1024",
	}, doc)

	// the payload must load as a valid options file
	cfg, err := config.ParseStrace([]byte(res[0].Args))
	require.NoError(t, err)
	assert.Equal(t, []string{"-ff", "-tt", "-s", "1024"}, cfg.Options)

	tails := executables(a.Node(), Binary)
	require.Len(t, tails, 1)
	assert.Equal(t, 59, tails[0].Time)
	assert.Equal(t, `tailf /opt/analytics/traces/tailf_dirs/60 trace\.[0-9]+`, tails[0].Args)
}

func TestStraceWithoutTailf(t *testing.T) {
	a := New(NewNode("db"))
	require.NoError(t, a.Strace(1, "sshd", "-f", false, false))
	assert.Empty(t, executables(a.Node(), Binary))
}

func TestStraceAtTimeOneTailsFromOne(t *testing.T) {
	a := New(NewNode("db"))
	require.NoError(t, a.Strace(1, "sshd", "", true, true))
	tails := executables(a.Node(), Binary)
	require.Len(t, tails, 1)
	assert.Equal(t, 1, tails[0].Time)
}

func TestTailfDirOncePerDirectory(t *testing.T) {
	a := New(NewNode("web"))

	ran, err := a.TailfDir(5, "/var/log/app", `.*\.log`)
	require.NoError(t, err)
	assert.True(t, ran)

	ran, err = a.TailfDir(9, "/var/log/app", `other`)
	require.NoError(t, err)
	assert.False(t, ran)

	ran, err = a.TailfDir(9, "/var/log/other", `.*`)
	require.NoError(t, err)
	assert.True(t, ran)

	assert.Len(t, executables(a.Node(), Binary), 2)

	_, err = a.TailfDir(0, "/tmp", ".*")
	assert.Error(t, err)
}

func TestTrackersRunOnce(t *testing.T) {
	a := New(NewNode("web"))
	adders := []func(int) bool{
		a.AddPortTracking,
		a.AddCPUTracking,
		a.AddSystemMemoryTracking,
		a.AddDiskUsageTracking,
		a.AddDiskIOTracking,
		a.AddNetworkIOTracking,
	}
	for _, add := range adders {
		assert.True(t, add(1))
		assert.False(t, add(5))
	}
	tracks := executables(a.Node(), Binary)
	require.Len(t, tracks, len(adders))
	assert.Equal(t, "track ports --interval 1s --log-dir /opt/analytics", tracks[0].Args)
}

func TestRunTcpdumpOnce(t *testing.T) {
	a := New(NewNode("gw"))
	assert.True(t, a.RunTcpdump("", true))
	assert.False(t, a.RunTcpdump("-i eth0", true))
	assert.False(t, a.InstallTcpdump())

	dumps := executables(a.Node(), "tcpdump")
	require.Len(t, dumps, 1)
	assert.Equal(t, DefaultTcpdumpOptions, dumps[0].Args)

	var installs int
	for _, e := range a.Node().Schedule() {
		if e.Kind == KindInstall {
			installs++
		}
	}
	assert.Equal(t, 1, installs)
}

func TestScheduleIsStableByTime(t *testing.T) {
	n := NewNode("x")
	n.RunExecutable(5, "b", "")
	n.RunExecutable(-1, "a", "")
	n.RunExecutable(5, "c", "")
	sched := n.Schedule()
	assert.Equal(t, []string{"a", "b", "c"}, []string{sched[0].Name, sched[1].Name, sched[2].Name})
}
