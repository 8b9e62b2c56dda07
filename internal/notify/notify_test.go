package notify_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qtdlabs/muletrace/internal/audit"
	"github.com/qtdlabs/muletrace/internal/notify"
)

type stubAuditStore struct {
	appended []audit.Payload
	nextID   int64
	err      error
}

func (s *stubAuditStore) Append(_ context.Context, payload audit.Payload) (int64, error) {
	if s.err != nil {
		return 0, s.err
	}
	s.appended = append(s.appended, payload)
	s.nextID++
	return s.nextID, nil
}

func TestSendAlert(t *testing.T) {
	store := &stubAuditStore{}
	notifier := notify.New(logrus.New(), store)

	alert, err := notifier.SendAlert(context.Background(), "mule chain detected from muleA")
	require.NoError(t, err)
	assert.Equal(t, "mule chain detected from muleA", alert.Message)
	assert.Equal(t, int64(1), alert.RecordID)
	_, err = uuid.Parse(alert.AlertID)
	assert.NoError(t, err)

	require.Len(t, store.appended, 1)
	payload, ok := store.appended[0].(audit.AlertPayload)
	require.True(t, ok)
	assert.Equal(t, alert.AlertID, payload.AlertID)
	assert.Equal(t, alert.Message, payload.Message)
}

func TestSendAlertAppendFails(t *testing.T) {
	store := &stubAuditStore{err: errors.New("disk gone")}
	notifier := notify.New(logrus.New(), store)

	_, err := notifier.SendAlert(context.Background(), "whatever")
	require.Error(t, err)
	assert.ErrorContains(t, err, "disk gone")
}

func TestReportCase(t *testing.T) {
	store := &stubAuditStore{}
	notifier := notify.New(logrus.New(), store)

	report, err := notifier.ReportCase(context.Background(), "case-42")
	require.NoError(t, err)
	assert.Equal(t, "case-42", report.CaseID)
	assert.Equal(t, "submitted", report.Status)
	assert.Equal(t, int64(1), report.RecordID)
	_, err = uuid.Parse(report.ReferenceID)
	assert.NoError(t, err)

	require.Len(t, store.appended, 1)
	payload, ok := store.appended[0].(audit.ReportPayload)
	require.True(t, ok)
	assert.Equal(t, "case-42", payload.CaseID)
	assert.Equal(t, report.ReferenceID, payload.ReferenceID)
	assert.Equal(t, "submitted", payload.Status)
}

func TestReportCaseAppendFails(t *testing.T) {
	store := &stubAuditStore{err: errors.New("storage sealed")}
	notifier := notify.New(logrus.New(), store)

	_, err := notifier.ReportCase(context.Background(), "case-42")
	require.Error(t, err)
	assert.ErrorContains(t, err, "storage sealed")
}
