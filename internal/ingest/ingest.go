package ingest

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/hedisam/pipeline/chans"

	"github.com/qtdlabs/muletrace/internal/ledger"
)

// Registrar is the slice of the ledger the feed writes to.
type Registrar interface {
	RegisterEdge(txnID, fromAccount, toAccount string, amount float64) (ledger.Edge, error)
}

// Transfer is one observed transfer to be registered.
type Transfer struct {
	TxnID       string
	FromAccount string
	ToAccount   string
	Amount      float64
}

// Stats summarizes one feed run.
type Stats struct {
	Registered int `json:"registered"`
	Duplicates int `json:"duplicates"`
	Rejected   int `json:"rejected"`
}

// Feed registers transfers streamed by an external adapter, e.g. the
// transaction simulator behind the demo command.
type Feed struct {
	logger    *logrus.Logger
	registrar Registrar
}

func New(logger *logrus.Logger, registrar Registrar) *Feed {
	return &Feed{
		logger:    logger,
		registrar: registrar,
	}
}

// Run consumes transfers until the channel is closed or ctx is cancelled.
// Duplicate and invalid transfers are counted and skipped rather than
// stopping the stream.
func (f *Feed) Run(ctx context.Context, in <-chan Transfer) Stats {
	var stats Stats
	for transfer := range chans.ReceiveOrDoneSeq(ctx, in) {
		logger := f.logger.WithFields(logrus.Fields{
			"txn_id": transfer.TxnID,
			"from":   transfer.FromAccount,
			"to":     transfer.ToAccount,
		})

		_, err := f.registrar.RegisterEdge(transfer.TxnID, transfer.FromAccount, transfer.ToAccount, transfer.Amount)
		if err != nil {
			switch {
			case errors.Is(err, ledger.ErrDuplicateEdge):
				logger.Warn("Skipping already registered transfer")
				stats.Duplicates++
				duplicateTransfers.Inc()
			case errors.Is(err, ledger.ErrInvalidAmount):
				logger.WithField("amount", transfer.Amount).Warn("Skipping transfer with invalid amount")
				stats.Rejected++
				rejectedTransfers.Inc()
			default:
				logger.WithError(err).Error("Failed to register streamed transfer")
				stats.Rejected++
				rejectedTransfers.Inc()
			}
			continue
		}

		stats.Registered++
		registeredTransfers.Inc()
		logger.Debug("Registered streamed transfer")
	}

	return stats
}
