package tracer

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/qtdlabs/muletrace/internal/promreg"
)

var (
	tracesRun = promreg.Auto().NewCounter(prometheus.CounterOpts{
		Name: "muletrace_traces_run_total",
		Help: "Total number of account traversals run",
	})
	edgesDiscovered = promreg.Auto().NewCounter(prometheus.CounterOpts{
		Name: "muletrace_trace_edges_discovered_total",
		Help: "Total number of transfer edges discovered by traversals",
	})
)
