package ingest

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/qtdlabs/muletrace/internal/promreg"
)

var (
	registeredTransfers = promreg.Auto().NewCounter(prometheus.CounterOpts{
		Name: "muletrace_ingest_transfers_registered_total",
		Help: "Total number of streamed transfers registered into the ledger",
	})
	duplicateTransfers = promreg.Auto().NewCounter(prometheus.CounterOpts{
		Name: "muletrace_ingest_transfers_duplicate_total",
		Help: "Total number of streamed transfers skipped as duplicates",
	})
	rejectedTransfers = promreg.Auto().NewCounter(prometheus.CounterOpts{
		Name: "muletrace_ingest_transfers_rejected_total",
		Help: "Total number of streamed transfers rejected",
	})
)
