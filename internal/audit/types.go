package audit

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrInvalidPayload is returned when a payload fails write-time validation.
	ErrInvalidPayload = errors.New("invalid audit payload")
	// ErrContention is returned when a write keeps hitting concurrent-writer
	// lock conflicts past the retry ceiling.
	ErrContention = errors.New("storage contention")
	// ErrStorageFatal is returned for non-transient storage failures. It is
	// never retried.
	ErrStorageFatal = errors.New("storage failure")
	// ErrMalformedRecord is returned when a persisted payload cannot be
	// decoded. The whole fetch fails rather than skipping the bad record.
	ErrMalformedRecord = errors.New("malformed audit record")
)

// Kind identifies one of the eight append-only record kinds.
type Kind string

const (
	KindDetection   Kind = "detection"
	KindTrace       Kind = "trace"
	KindAlert       Kind = "alert"
	KindReport      Kind = "report"
	KindFreeze      Kind = "freeze"
	KindRecovery    Kind = "recovery"
	KindReversal    Kind = "reversal"
	KindFailureNote Kind = "failure_note"
)

var kindToTable = map[Kind]string{
	KindDetection:   "detections",
	KindTrace:       "traces",
	KindAlert:       "alerts",
	KindReport:      "reports",
	KindFreeze:      "freezes",
	KindRecovery:    "recoveries",
	KindReversal:    "reversals",
	KindFailureNote: "failure_notes",
}

// Payload is the tagged variant carried by an audit record. Each kind has a
// typed payload validated before it is written, so malformed data is caught
// at write time rather than at read time.
type Payload interface {
	Kind() Kind
	Validate() error
}

type DetectionPayload struct {
	TxnID   string  `json:"txn_id"`
	IsFraud bool    `json:"is_fraud"`
	Score   float64 `json:"score"`
}

func (DetectionPayload) Kind() Kind { return KindDetection }

func (p DetectionPayload) Validate() error {
	if p.TxnID == "" {
		return fmt.Errorf("%w: detection requires a txn id", ErrInvalidPayload)
	}
	if p.Score < 0 || p.Score > 1 {
		return fmt.Errorf("%w: detection score %f out of [0, 1]", ErrInvalidPayload, p.Score)
	}
	return nil
}

type TracePayload struct {
	Account string   `json:"account"`
	Path    []string `json:"path"`
}

func (TracePayload) Kind() Kind { return KindTrace }

func (p TracePayload) Validate() error {
	if p.Account == "" {
		return fmt.Errorf("%w: trace requires an account", ErrInvalidPayload)
	}
	if len(p.Path) == 0 {
		return fmt.Errorf("%w: trace requires a non-empty path", ErrInvalidPayload)
	}
	return nil
}

type AlertPayload struct {
	AlertID string `json:"alert_id"`
	Message string `json:"message"`
}

func (AlertPayload) Kind() Kind { return KindAlert }

func (p AlertPayload) Validate() error {
	if p.Message == "" {
		return fmt.Errorf("%w: alert requires a message", ErrInvalidPayload)
	}
	return nil
}

type ReportPayload struct {
	CaseID      string `json:"case_id"`
	ReferenceID string `json:"reference_id"`
	Status      string `json:"status"`
}

func (ReportPayload) Kind() Kind { return KindReport }

func (p ReportPayload) Validate() error {
	if p.CaseID == "" {
		return fmt.Errorf("%w: report requires a case id", ErrInvalidPayload)
	}
	return nil
}

type FreezePayload struct {
	TxnID    string  `json:"txn_id"`
	Amount   float64 `json:"frozen_amount"`
	Currency string  `json:"currency"`
	Reason   string  `json:"reason"`
}

func (FreezePayload) Kind() Kind { return KindFreeze }

func (p FreezePayload) Validate() error {
	if p.TxnID == "" {
		return fmt.Errorf("%w: freeze requires a txn id", ErrInvalidPayload)
	}
	if p.Amount <= 0 {
		return fmt.Errorf("%w: freeze amount must be greater than zero", ErrInvalidPayload)
	}
	return nil
}

type RecoveryPayload struct {
	TxnID         string   `json:"txn_id"`
	Success       bool     `json:"success"`
	SuccessProb   float64  `json:"success_prob"`
	Actions       []string `json:"actions,omitempty"`
	ReversalTxnID string   `json:"reversal_txn_id,omitempty"`
	Amount        float64  `json:"amount,omitempty"`
}

func (RecoveryPayload) Kind() Kind { return KindRecovery }

func (p RecoveryPayload) Validate() error {
	if p.TxnID == "" {
		return fmt.Errorf("%w: recovery requires a txn id", ErrInvalidPayload)
	}
	return nil
}

type ReversalPayload struct {
	TxnID         string  `json:"txn_id"`
	ReversalTxnID string  `json:"reversal_txn_id"`
	Amount        float64 `json:"amount"`
	OrigFrom      string  `json:"orig_from,omitempty"`
	OrigTo        string  `json:"orig_to,omitempty"`
	Method        string  `json:"method"`
}

func (ReversalPayload) Kind() Kind { return KindReversal }

func (p ReversalPayload) Validate() error {
	if p.TxnID == "" || p.ReversalTxnID == "" {
		return fmt.Errorf("%w: reversal requires original and reversal txn ids", ErrInvalidPayload)
	}
	return nil
}

type FailureNotePayload struct {
	Op     string `json:"op"`
	Detail string `json:"detail"`
}

func (FailureNotePayload) Kind() Kind { return KindFailureNote }

func (p FailureNotePayload) Validate() error {
	if p.Op == "" {
		return fmt.Errorf("%w: failure note requires an operation name", ErrInvalidPayload)
	}
	return nil
}

// Record is one committed audit entry. Ids are assigned by the store and are
// monotonically increasing and gap-free per kind.
type Record struct {
	ID        int64           `json:"id"`
	Kind      Kind            `json:"kind"`
	CreatedAt float64         `json:"created_at"`
	Payload   json.RawMessage `json:"payload"`
}

// TraceRecord is a decoded persisted trace.
type TraceRecord struct {
	ID        int64    `json:"id"`
	Account   string   `json:"account"`
	Path      []string `json:"path"`
	CreatedAt float64  `json:"created_at"`
}
