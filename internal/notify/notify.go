// Package notify formats and forwards alert and case-report payloads,
// recording each one in the audit store.
package notify

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/qtdlabs/muletrace/internal/audit"
)

// AuditStore is the slice of the audit store the notifier writes to.
type AuditStore interface {
	Append(ctx context.Context, payload audit.Payload) (int64, error)
}

// Alert is an emitted scam alert.
type Alert struct {
	AlertID  string `json:"alert_id"`
	Message  string `json:"message"`
	RecordID int64  `json:"record_id"`
}

// CaseReport is a case submission to the authorities' intake channel.
type CaseReport struct {
	CaseID      string `json:"case_id"`
	ReferenceID string `json:"reference_id"`
	Status      string `json:"status"`
	RecordID    int64  `json:"record_id"`
}

type Notifier struct {
	logger *logrus.Logger
	audit  AuditStore
}

func New(logger *logrus.Logger, auditStore AuditStore) *Notifier {
	return &Notifier{
		logger: logger,
		audit:  auditStore,
	}
}

// SendAlert emits a scam alert and records it.
func (n *Notifier) SendAlert(ctx context.Context, message string) (*Alert, error) {
	alertID := uuid.NewString()
	recordID, err := n.audit.Append(ctx, audit.AlertPayload{
		AlertID: alertID,
		Message: message,
	})
	if err != nil {
		return nil, fmt.Errorf("send alert: %w", err)
	}

	n.logger.WithFields(logrus.Fields{
		"alert_id":  alertID,
		"record_id": recordID,
	}).Warnf("Scam alert: %s", message)

	return &Alert{
		AlertID:  alertID,
		Message:  message,
		RecordID: recordID,
	}, nil
}

// ReportCase submits a case report and records it.
func (n *Notifier) ReportCase(ctx context.Context, caseID string) (*CaseReport, error) {
	referenceID := uuid.NewString()
	recordID, err := n.audit.Append(ctx, audit.ReportPayload{
		CaseID:      caseID,
		ReferenceID: referenceID,
		Status:      "submitted",
	})
	if err != nil {
		return nil, fmt.Errorf("report case %q: %w", caseID, err)
	}

	n.logger.WithFields(logrus.Fields{
		"case_id":      caseID,
		"reference_id": referenceID,
	}).Info("Case report submitted")

	return &CaseReport{
		CaseID:      caseID,
		ReferenceID: referenceID,
		Status:      "submitted",
		RecordID:    recordID,
	}, nil
}
