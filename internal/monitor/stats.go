package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/net"
	"github.com/sirupsen/logrus"
)

const recordPrefix = "analytics."

type cpuSampler struct{}

func (cpuSampler) Name() string { return "cpu_tracking" }

func (cpuSampler) Sample(ctx context.Context) (logrus.Fields, error) {
	percents, err := cpu.PercentWithContext(ctx, 0, true)
	if err != nil {
		return nil, err
	}
	return cpuFields(time.Now(), percents), nil
}

func cpuFields(at time.Time, percents []float64) logrus.Fields {
	fields := logrus.Fields{"date": at.UTC().Format("2006-01-02T15:04:05.000000")}
	for i, p := range percents {
		fields[fmt.Sprintf("cpu%d", i)] = p
	}
	return fields
}

type memorySampler struct{}

func (memorySampler) Name() string { return "system_memory_tracking" }

func (s memorySampler) Sample(ctx context.Context) (logrus.Fields, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return nil, err
	}
	return flatten(recordPrefix+s.Name(), vm)
}

type diskUsageSampler struct{}

func (diskUsageSampler) Name() string { return "disk_usage_tracking" }

func (s diskUsageSampler) Sample(ctx context.Context) (logrus.Fields, error) {
	parts, err := disk.PartitionsWithContext(ctx, false)
	if err != nil {
		return nil, err
	}
	fields := logrus.Fields{}
	for _, p := range parts {
		usage, err := disk.UsageWithContext(ctx, p.Mountpoint)
		if err != nil {
			continue
		}
		if err := merge(fields, recordPrefix+s.Name()+"."+p.Mountpoint, usage); err != nil {
			return nil, err
		}
	}
	return fields, nil
}

type diskIOSampler struct{}

func (diskIOSampler) Name() string { return "disk_io_tracking" }

func (s diskIOSampler) Sample(ctx context.Context) (logrus.Fields, error) {
	counters, err := disk.IOCountersWithContext(ctx)
	if err != nil {
		return nil, err
	}
	fields := logrus.Fields{}
	for name, c := range counters {
		if err := merge(fields, recordPrefix+s.Name()+"."+name, c); err != nil {
			return nil, err
		}
	}
	return fields, nil
}

type netIOSampler struct{}

func (netIOSampler) Name() string { return "network_io_tracking" }

func (s netIOSampler) Sample(ctx context.Context) (logrus.Fields, error) {
	counters, err := net.IOCountersWithContext(ctx, true)
	if err != nil {
		return nil, err
	}
	fields := logrus.Fields{}
	for _, c := range counters {
		if err := merge(fields, recordPrefix+s.Name()+"."+c.Name, c); err != nil {
			return nil, err
		}
	}
	return fields, nil
}

// flatten turns a gopsutil stat into prefix.<json field> entries.
func flatten(prefix string, stat any) (logrus.Fields, error) {
	fields := logrus.Fields{}
	return fields, merge(fields, prefix, stat)
}

func merge(dst logrus.Fields, prefix string, stat any) error {
	raw, err := json.Marshal(stat)
	if err != nil {
		return err
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return err
	}
	for k, v := range m {
		dst[prefix+"."+k] = v
	}
	return nil
}
