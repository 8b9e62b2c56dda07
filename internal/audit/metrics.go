package audit

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/qtdlabs/muletrace/internal/promreg"
)

var (
	committedAppends = promreg.Auto().NewCounterVec(prometheus.CounterOpts{
		Name: "muletrace_audit_appends_committed_total",
		Help: "Total number of audit records committed, by kind",
	}, []string{"kind"})
	failedAppends = promreg.Auto().NewCounterVec(prometheus.CounterOpts{
		Name: "muletrace_audit_appends_failed_total",
		Help: "Total number of audit appends that failed after classification, by kind",
	}, []string{"kind"})
	contentionRetries = promreg.Auto().NewCounter(prometheus.CounterOpts{
		Name: "muletrace_audit_contention_retries_total",
		Help: "Total number of audit writes retried due to lock contention",
	})
)
