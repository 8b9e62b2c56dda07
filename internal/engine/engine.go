// Package engine implements the fraud-response flows: detection, freezing,
// recovery, instant reversal and transfer registration. Every action is
// durably recorded in the audit store; when the audit path itself fails, the
// failure falls back to the in-memory emergency log instead of recursing.
package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/qtdlabs/muletrace/internal/audit"
	"github.com/qtdlabs/muletrace/internal/emergency"
	"github.com/qtdlabs/muletrace/internal/ledger"
	"github.com/qtdlabs/muletrace/internal/score"
	"github.com/qtdlabs/muletrace/internal/tracer"
)

const (
	// fraudThreshold is the score above which a transaction is flagged.
	fraudThreshold = 0.6
	// recoveryThreshold is the advisory probability above which a recovery
	// attempt is considered successful.
	recoveryThreshold = 0.5

	// DefaultCurrency is used when a freeze does not name one.
	DefaultCurrency = "INR"
	// DefaultFreezeReason is used when a freeze does not name one.
	DefaultFreezeReason = "suspected_fraud"
)

// recovery actions proposed alongside a recovery attempt.
var recoveryActions = []string{"freeze_related_accounts", "notify_banks", "submit_legal_request"}

// AuditStore is the slice of the audit store the engine writes to.
type AuditStore interface {
	Append(ctx context.Context, payload audit.Payload) (int64, error)
}

// Ledger is the slice of the transfer ledger the engine uses.
type Ledger interface {
	RegisterEdge(txnID, fromAccount, toAccount string, amount float64) (ledger.Edge, error)
	Get(txnID string) (ledger.Edge, error)
}

// Tracer runs bounded traversals over the ledger.
type Tracer interface {
	TraceFromAccount(startAccount string, maxHops int) (*tracer.AccountTrace, error)
	TraceFromTransaction(txnID string, maxDepth int) (*tracer.TransactionTrace, error)
}

// Detection is the outcome of scoring one transaction.
type Detection struct {
	TxnID    string  `json:"txn_id"`
	IsFraud  bool    `json:"is_fraud"`
	Score    float64 `json:"score"`
	RecordID int64   `json:"record_id"`
}

// Freeze is the outcome of earmarking a suspected amount.
type Freeze struct {
	TxnID    string  `json:"txn_id"`
	Frozen   bool    `json:"frozen"`
	Amount   float64 `json:"frozen_amount"`
	Currency string  `json:"currency"`
	Reason   string  `json:"reason"`
	RecordID int64   `json:"record_id"`
}

// Recovery is the outcome of an advisory-scored recovery attempt.
type Recovery struct {
	TxnID       string   `json:"txn_id"`
	Recovered   bool     `json:"recovered"`
	SuccessProb float64  `json:"success_prob"`
	Actions     []string `json:"actions"`
	RecordID    int64    `json:"record_id"`
}

// Reversal is the outcome of an instant revert attempt.
type Reversal struct {
	TxnID         string  `json:"txn_id"`
	Reversed      bool    `json:"reversed"`
	ReversalTxnID string  `json:"reversal_txn_id,omitempty"`
	Amount        float64 `json:"amount,omitempty"`
	Advisory      float64 `json:"advisory,omitempty"`
	RecordID      int64   `json:"record_id,omitempty"`
}

// Registration is the outcome of registering one transfer.
type Registration struct {
	TxnID      string `json:"txn_id"`
	Registered bool   `json:"registered"`
}

type Engine struct {
	logger    *logrus.Logger
	ledger    Ledger
	tracer    Tracer
	audit     AuditStore
	scorer    score.Scorer
	emergency *emergency.Log
}

func New(logger *logrus.Logger, l Ledger, t Tracer, a AuditStore, s score.Scorer, e *emergency.Log) *Engine {
	return &Engine{
		logger:    logger,
		ledger:    l,
		tracer:    t,
		audit:     a,
		scorer:    s,
		emergency: e,
	}
}

// DetectTransaction scores the transaction and durably records the verdict.
func (e *Engine) DetectTransaction(ctx context.Context, txnID string) (*Detection, error) {
	scored, err := e.scorer.Score(ctx, txnID)
	if err != nil {
		e.noteFailure(ctx, "detect_transaction", err)
		return nil, fmt.Errorf("detect transaction %q: %w", txnID, err)
	}

	isFraud := scored > fraudThreshold
	recordID, err := e.audit.Append(ctx, audit.DetectionPayload{
		TxnID:   txnID,
		IsFraud: isFraud,
		Score:   scored,
	})
	if err != nil {
		e.noteAuditFailure("detect_transaction", err)
		return nil, fmt.Errorf("detect transaction %q: %w", txnID, err)
	}

	e.logger.WithFields(logrus.Fields{
		"txn_id":   txnID,
		"is_fraud": isFraud,
		"score":    scored,
	}).Info("Detection recorded")

	return &Detection{
		TxnID:    txnID,
		IsFraud:  isFraud,
		Score:    scored,
		RecordID: recordID,
	}, nil
}

// FreezeTransaction earmarks the suspected amount associated with txnID.
// Only the suspected amount is held, not the whole transfer.
func (e *Engine) FreezeTransaction(ctx context.Context, txnID string, amount float64, reason, currency string) (*Freeze, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("freeze transaction %q: %w", txnID, ledger.ErrInvalidAmount)
	}
	if reason == "" {
		reason = DefaultFreezeReason
	}
	if currency == "" {
		currency = DefaultCurrency
	}

	recordID, err := e.audit.Append(ctx, audit.FreezePayload{
		TxnID:    txnID,
		Amount:   amount,
		Currency: currency,
		Reason:   reason,
	})
	if err != nil {
		e.noteAuditFailure("freeze_transaction", err)
		return nil, fmt.Errorf("freeze transaction %q: %w", txnID, err)
	}

	e.logger.WithFields(logrus.Fields{
		"txn_id":        txnID,
		"frozen_amount": amount,
		"reason":        reason,
	}).Info("Freeze recorded")

	return &Freeze{
		TxnID:    txnID,
		Frozen:   true,
		Amount:   amount,
		Currency: currency,
		Reason:   reason,
		RecordID: recordID,
	}, nil
}

// RecoverTransaction attempts an advisory-scored recovery and records the
// attempt whether or not it succeeds.
func (e *Engine) RecoverTransaction(ctx context.Context, txnID string) (*Recovery, error) {
	scored, err := e.scorer.Score(ctx, txnID)
	if err != nil {
		e.noteFailure(ctx, "recover_transaction", err)
		return nil, fmt.Errorf("recover transaction %q: %w", txnID, err)
	}

	successProb := 1 - scored
	success := successProb > recoveryThreshold
	recordID, err := e.audit.Append(ctx, audit.RecoveryPayload{
		TxnID:       txnID,
		Success:     success,
		SuccessProb: successProb,
		Actions:     recoveryActions,
	})
	if err != nil {
		e.noteAuditFailure("recover_transaction", err)
		return nil, fmt.Errorf("recover transaction %q: %w", txnID, err)
	}

	return &Recovery{
		TxnID:       txnID,
		Recovered:   success,
		SuccessProb: successProb,
		Actions:     recoveryActions,
		RecordID:    recordID,
	}, nil
}

// InstantRevert attempts an immediate reversal of txnID. When the transfer
// is in the ledger the registered amount (or the requested portion of it) is
// reversed; otherwise a synthetic advisory attempt is made. A requestedAmount
// of zero means the full registered amount.
func (e *Engine) InstantRevert(ctx context.Context, txnID string, requestedAmount float64) (*Reversal, error) {
	edge, err := e.ledger.Get(txnID)
	if err != nil && !errors.Is(err, ledger.ErrNotFound) {
		e.noteFailure(ctx, "instant_revert", err)
		return nil, fmt.Errorf("instant revert %q: %w", txnID, err)
	}

	if err == nil {
		amount := requestedAmount
		if amount <= 0 {
			amount = edge.Amount
		}
		return e.revertLedgered(ctx, edge, amount)
	}

	return e.revertSynthetic(ctx, txnID, requestedAmount)
}

func (e *Engine) revertLedgered(ctx context.Context, edge ledger.Edge, amount float64) (*Reversal, error) {
	reversalTxnID := "rev_" + uuid.NewString()
	recordID, err := e.audit.Append(ctx, audit.ReversalPayload{
		TxnID:         edge.TxnID,
		ReversalTxnID: reversalTxnID,
		Amount:        amount,
		OrigFrom:      edge.FromAccount,
		OrigTo:        edge.ToAccount,
		Method:        "instant_revert",
	})
	if err != nil {
		e.noteAuditFailure("instant_revert", err)
		return nil, fmt.Errorf("instant revert %q: %w", edge.TxnID, err)
	}

	_, err = e.audit.Append(ctx, audit.RecoveryPayload{
		TxnID:         edge.TxnID,
		Success:       true,
		SuccessProb:   1,
		ReversalTxnID: reversalTxnID,
		Amount:        amount,
	})
	if err != nil {
		e.noteAuditFailure("instant_revert", err)
		return nil, fmt.Errorf("instant revert %q: record recovery: %w", edge.TxnID, err)
	}

	e.logger.WithFields(logrus.Fields{
		"txn_id":          edge.TxnID,
		"reversal_txn_id": reversalTxnID,
		"amount":          amount,
	}).Info("Instant revert recorded")

	return &Reversal{
		TxnID:         edge.TxnID,
		Reversed:      true,
		ReversalTxnID: reversalTxnID,
		Amount:        amount,
		RecordID:      recordID,
	}, nil
}

func (e *Engine) revertSynthetic(ctx context.Context, txnID string, requestedAmount float64) (*Reversal, error) {
	scored, err := e.scorer.Score(ctx, txnID)
	if err != nil {
		e.noteFailure(ctx, "instant_revert", err)
		return nil, fmt.Errorf("instant revert %q: %w", txnID, err)
	}
	advisory := 1 - scored

	if advisory <= recoveryThreshold {
		_, err = e.audit.Append(ctx, audit.RecoveryPayload{
			TxnID:       txnID,
			Success:     false,
			SuccessProb: advisory,
		})
		if err != nil {
			e.noteAuditFailure("instant_revert", err)
			return nil, fmt.Errorf("instant revert %q: record recovery: %w", txnID, err)
		}
		return &Reversal{
			TxnID:    txnID,
			Reversed: false,
			Advisory: advisory,
		}, nil
	}

	reversalTxnID := "rev_" + uuid.NewString()
	recordID, err := e.audit.Append(ctx, audit.ReversalPayload{
		TxnID:         txnID,
		ReversalTxnID: reversalTxnID,
		Amount:        requestedAmount,
		Method:        "synthetic_instant_revert",
	})
	if err != nil {
		e.noteAuditFailure("instant_revert", err)
		return nil, fmt.Errorf("instant revert %q: %w", txnID, err)
	}
	_, err = e.audit.Append(ctx, audit.RecoveryPayload{
		TxnID:         txnID,
		Success:       true,
		SuccessProb:   advisory,
		ReversalTxnID: reversalTxnID,
		Amount:        requestedAmount,
	})
	if err != nil {
		e.noteAuditFailure("instant_revert", err)
		return nil, fmt.Errorf("instant revert %q: record recovery: %w", txnID, err)
	}

	return &Reversal{
		TxnID:         txnID,
		Reversed:      true,
		ReversalTxnID: reversalTxnID,
		Amount:        requestedAmount,
		Advisory:      advisory,
		RecordID:      recordID,
	}, nil
}

// RegisterTransfer registers a transfer edge and records a best-effort trace
// of the direct hop. Duplicate and validation failures are normal outcomes
// returned to the caller, never routed through failure notes.
func (e *Engine) RegisterTransfer(ctx context.Context, txnID, fromAccount, toAccount string, amount float64) (*Registration, error) {
	edge, err := e.ledger.RegisterEdge(txnID, fromAccount, toAccount, amount)
	if err != nil {
		return nil, fmt.Errorf("register transfer: %w", err)
	}

	_, err = e.audit.Append(ctx, audit.TracePayload{
		Account: edge.FromAccount,
		Path:    []string{edge.FromAccount, edge.ToAccount},
	})
	if err != nil {
		// registration already took effect; losing this convenience trace
		// must not fail the call
		e.logger.WithField("txn_id", txnID).WithError(err).Warn("Failed to record registration trace")
	}

	return &Registration{
		TxnID:      txnID,
		Registered: true,
	}, nil
}

// TraceAccount traverses downstream flows from the account and persists the
// resulting path as a trace record.
func (e *Engine) TraceAccount(ctx context.Context, account string, maxHops int) (*tracer.AccountTrace, error) {
	trace, err := e.tracer.TraceFromAccount(account, maxHops)
	if err != nil {
		return nil, fmt.Errorf("trace account %q: %w", account, err)
	}

	_, err = e.audit.Append(ctx, audit.TracePayload{
		Account: account,
		Path:    trace.Path(),
	})
	if err != nil {
		e.noteAuditFailure("trace_account", err)
		return nil, fmt.Errorf("trace account %q: %w", account, err)
	}

	return trace, nil
}

// TraceTransaction traverses the flows downstream of a transaction's
// recipient without persisting the result.
func (e *Engine) TraceTransaction(_ context.Context, txnID string, maxDepth int) (*tracer.TransactionTrace, error) {
	trace, err := e.tracer.TraceFromTransaction(txnID, maxDepth)
	if err != nil {
		return nil, fmt.Errorf("trace transaction %q: %w", txnID, err)
	}
	return trace, nil
}

// noteFailure durably records an unexpected internal fault. If the audit
// path is what failed, it falls back to the emergency log.
func (e *Engine) noteFailure(ctx context.Context, op string, cause error) {
	_, err := e.audit.Append(ctx, audit.FailureNotePayload{
		Op:     op,
		Detail: cause.Error(),
	})
	if err != nil {
		e.logger.WithField("op", op).WithError(err).Error("Failed to record failure note")
		e.emergency.Record(op, cause.Error())
	}
}

// noteAuditFailure records an audit-path failure to the emergency log only;
// appending a failure note about a failing audit store would recurse.
func (e *Engine) noteAuditFailure(op string, cause error) {
	e.emergency.Record(op, cause.Error())
	e.logger.WithField("op", op).WithError(cause).Error("Audit path unavailable, failure kept in emergency log")
}
