// Package monitor samples host statistics on an interval and logs one record
// per sample.
package monitor

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"tracewatch/internal/logging"
)

// DefaultLogDir is where trackers keep their own record files.
const DefaultLogDir = "/opt/analytics"

// Tracker kinds.
const (
	KindPorts     = "ports"
	KindCPU       = "cpu"
	KindMemory    = "memory"
	KindDiskUsage = "disk-usage"
	KindDiskIO    = "disk-io"
	KindNetIO     = "net-io"
)

// Sampler takes one snapshot of some host statistic.
type Sampler interface {
	// Name is the record prefix and log file stem, e.g. cpu_tracking.
	Name() string
	Sample(ctx context.Context) (logrus.Fields, error)
}

var samplers = map[string]func() Sampler{
	KindCPU:       func() Sampler { return cpuSampler{} },
	KindMemory:    func() Sampler { return memorySampler{} },
	KindDiskUsage: func() Sampler { return diskUsageSampler{} },
	KindDiskIO:    func() Sampler { return diskIOSampler{} },
	KindNetIO:     func() Sampler { return netIOSampler{} },
}

// Kinds lists every tracker kind, ports included.
func Kinds() []string {
	out := []string{KindPorts}
	for k := range samplers {
		out = append(out, k)
	}
	sort.Strings(out[1:])
	return out
}

// NewSampler returns the sampler for a stats kind.
func NewSampler(kind string) (Sampler, error) {
	mk, ok := samplers[kind]
	if !ok {
		return nil, fmt.Errorf("unknown tracker %q", kind)
	}
	return mk(), nil
}

// OpenLog returns a JSON logger writing to stdout and, when dir is set, to
// <dir>/<name>.log. The returned closer releases the file.
func OpenLog(name, dir string) (*logrus.Entry, io.Closer, error) {
	if dir == "" {
		return logging.NewFileLogger(name, os.Stdout), io.NopCloser(nil), nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, nil, err
	}
	f, err := os.OpenFile(filepath.Join(dir, name+".log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, err
	}
	return logging.NewFileLogger(name, io.MultiWriter(os.Stdout, f)), f, nil
}

// Run samples every interval until ctx ends. A failed sample is logged and
// skipped.
func Run(ctx context.Context, s Sampler, interval time.Duration, log *logrus.Entry) error {
	if interval <= 0 {
		return fmt.Errorf("interval must be positive, got %s", interval)
	}
	log.Debugf("Starting %s", s.Name())
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		fields, err := s.Sample(ctx)
		if err != nil {
			log.WithError(err).Warn("sample failed")
		} else {
			log.WithFields(fields).Info(s.Name())
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
