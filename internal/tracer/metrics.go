package tracer

import "github.com/prometheus/client_golang/prometheus"

type metrics struct {
	spawned       prometheus.Counter
	spawnFailures prometheus.Counter
	reaped        prometheus.Counter
	active        prometheus.Gauge
}

func newMetrics(reg prometheus.Registerer) (*metrics, error) {
	m := &metrics{
		spawned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracewatch_traces_spawned_total",
			Help: "Trace processes started.",
		}),
		spawnFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracewatch_trace_spawn_failures_total",
			Help: "Trace processes that failed to start.",
		}),
		reaped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracewatch_traces_reaped_total",
			Help: "Trace processes whose completion was logged.",
		}),
		active: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tracewatch_traces_active",
			Help: "Trace processes currently running.",
		}),
	}
	if reg == nil {
		return m, nil
	}
	for _, c := range []prometheus.Collector{m.spawned, m.spawnFailures, m.reaped, m.active} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}
