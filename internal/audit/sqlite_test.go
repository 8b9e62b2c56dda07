package audit_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/qtdlabs/muletrace/internal/audit"
)

func openTestStore(t *testing.T, opts ...audit.Option) (*audit.Store, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "audit.db")
	store, err := audit.Open(logrus.New(), path, opts...)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store, path
}

func TestOpenConfiguresWALJournal(t *testing.T) {
	store, path := openTestStore(t)

	_, err := store.Append(context.Background(), audit.AlertPayload{Message: "first"})
	require.NoError(t, err)

	// WAL mode is persisted in the database file, so a fresh plain
	// connection reads it back
	raw, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer raw.Close()

	var mode string
	require.NoError(t, raw.QueryRow(`PRAGMA journal_mode`).Scan(&mode))
	assert.Equal(t, "wal", mode)
}

func TestAppendFetchRoundTrip(t *testing.T) {
	store, _ := openTestStore(t)
	ctx := context.Background()

	payload := audit.DetectionPayload{
		TxnID:   "T1",
		IsFraud: true,
		Score:   0.91,
	}
	id, err := store.Append(ctx, payload)
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)

	records, err := store.FetchRecent(ctx, audit.KindDetection, 1)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, id, records[0].ID)
	assert.Equal(t, audit.KindDetection, records[0].Kind)
	assert.Greater(t, records[0].CreatedAt, float64(0))

	var decoded audit.DetectionPayload
	require.NoError(t, json.Unmarshal(records[0].Payload, &decoded))
	assert.Equal(t, payload, decoded)
}

func TestAppendIDsGapFreePerKind(t *testing.T) {
	store, _ := openTestStore(t)
	ctx := context.Background()

	for i := range 3 {
		id, err := store.Append(ctx, audit.DetectionPayload{TxnID: fmt.Sprintf("T%d", i), Score: 0.5})
		require.NoError(t, err)
		assert.Equal(t, int64(i+1), id)
	}
	for i := range 2 {
		id, err := store.Append(ctx, audit.AlertPayload{Message: fmt.Sprintf("alert %d", i)})
		require.NoError(t, err)
		assert.Equal(t, int64(i+1), id)
	}
}

func TestAppendValidation(t *testing.T) {
	tests := map[string]struct {
		payload audit.Payload
	}{
		"nil payload":               {payload: nil},
		"detection without txn":     {payload: audit.DetectionPayload{Score: 0.5}},
		"detection score too large": {payload: audit.DetectionPayload{TxnID: "T1", Score: 1.5}},
		"trace without account":     {payload: audit.TracePayload{Path: []string{"a"}}},
		"trace with empty path":     {payload: audit.TracePayload{Account: "acct-a"}},
		"alert without message":     {payload: audit.AlertPayload{}},
		"freeze with zero amount":   {payload: audit.FreezePayload{TxnID: "T1"}},
		"reversal without ids":      {payload: audit.ReversalPayload{Amount: 10}},
		"failure note without op":   {payload: audit.FailureNotePayload{Detail: "boom"}},
	}

	store, _ := openTestStore(t)
	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := store.Append(context.Background(), test.payload)
			require.Error(t, err)
			assert.ErrorIs(t, err, audit.ErrInvalidPayload)
		})
	}
}

func TestFetchRecentOrderAndLimit(t *testing.T) {
	store, _ := openTestStore(t)
	ctx := context.Background()

	for i := range 5 {
		_, err := store.Append(ctx, audit.FreezePayload{
			TxnID:  fmt.Sprintf("T%d", i),
			Amount: float64(100 * (i + 1)),
		})
		require.NoError(t, err)
	}

	records, err := store.FetchRecent(ctx, audit.KindFreeze, 3)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, int64(5), records[0].ID)
	assert.Equal(t, int64(4), records[1].ID)
	assert.Equal(t, int64(3), records[2].ID)

	records, err = store.FetchRecent(ctx, audit.KindFreeze, 100)
	require.NoError(t, err)
	assert.Len(t, records, 5)

	_, err = store.FetchRecent(ctx, audit.KindFreeze, -1)
	require.Error(t, err)
	assert.ErrorIs(t, err, audit.ErrInvalidPayload)

	_, err = store.FetchRecent(ctx, audit.Kind("bogus"), 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, audit.ErrInvalidPayload)
}

func TestFetchTraces(t *testing.T) {
	store, _ := openTestStore(t)
	ctx := context.Background()

	_, err := store.Append(ctx, audit.TracePayload{Account: "muleA", Path: []string{"muleA", "muleB"}})
	require.NoError(t, err)
	_, err = store.Append(ctx, audit.TracePayload{Account: "other", Path: []string{"other", "muleC"}})
	require.NoError(t, err)
	_, err = store.Append(ctx, audit.TracePayload{Account: "muleA", Path: []string{"muleA", "muleB", "muleC"}})
	require.NoError(t, err)

	traces, err := store.FetchTraces(ctx, "muleA")
	require.NoError(t, err)
	require.Len(t, traces, 2)
	assert.Equal(t, []string{"muleA", "muleB", "muleC"}, traces[0].Path)
	assert.Equal(t, []string{"muleA", "muleB"}, traces[1].Path)
	assert.Greater(t, traces[0].ID, traces[1].ID)

	traces, err = store.FetchTraces(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, traces)
}

func TestMalformedRecordFailsWholeFetch(t *testing.T) {
	store, path := openTestStore(t)
	ctx := context.Background()

	_, err := store.Append(ctx, audit.TracePayload{Account: "muleA", Path: []string{"muleA", "muleB"}})
	require.NoError(t, err)

	// corrupt a row behind the store's back
	raw, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer raw.Close()
	_, err = raw.Exec(`INSERT INTO traces (account_id, payload, created_at) VALUES ('muleA', '{not json', 1.0)`)
	require.NoError(t, err)

	_, err = store.FetchTraces(ctx, "muleA")
	require.Error(t, err)
	assert.ErrorIs(t, err, audit.ErrMalformedRecord)

	_, err = store.FetchRecent(ctx, audit.KindTrace, 10)
	require.Error(t, err)
	assert.ErrorIs(t, err, audit.ErrMalformedRecord)
}

func TestAppendToClosedStoreIsFatal(t *testing.T) {
	store, _ := openTestStore(t)
	require.NoError(t, store.Close())

	_, err := store.Append(context.Background(), audit.AlertPayload{Message: "too late"})
	require.Error(t, err)
	assert.ErrorIs(t, err, audit.ErrStorageFatal)
}

func TestConcurrentAppends(t *testing.T) {
	const writers = 20

	store, _ := openTestStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make([]error, writers)
	for i := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = store.Append(ctx, audit.AlertPayload{
				Message: fmt.Sprintf("alert %d", i),
			})
		}()
	}
	wg.Wait()

	var successes int
	for _, err := range errs {
		if err == nil {
			successes++
			continue
		}
		assert.ErrorIs(t, err, audit.ErrContention)
	}

	records, err := store.FetchRecent(ctx, audit.KindAlert, writers)
	require.NoError(t, err)
	assert.Len(t, records, successes)

	seenIDs := make(map[int64]struct{}, len(records))
	seenMessages := make(map[string]struct{}, len(records))
	for _, rec := range records {
		seenIDs[rec.ID] = struct{}{}
		var decoded audit.AlertPayload
		require.NoError(t, json.Unmarshal(rec.Payload, &decoded))
		seenMessages[decoded.Message] = struct{}{}
	}
	assert.Len(t, seenIDs, successes)
	assert.Len(t, seenMessages, successes)
}

func TestAppendContentionExhaustsRetries(t *testing.T) {
	store, path := openTestStore(t,
		audit.WithBusyTimeout(0),
		audit.WithBaseDelay(time.Millisecond),
		audit.WithRetryCeiling(2),
	)
	ctx := context.Background()

	// hold the write lock from a second connection
	raw, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer raw.Close()
	tx, err := raw.Begin()
	require.NoError(t, err)
	_, err = tx.Exec(`INSERT INTO alerts (payload, created_at) VALUES ('{}', 1.0)`)
	require.NoError(t, err)

	_, err = store.Append(ctx, audit.AlertPayload{Message: "blocked"})
	require.Error(t, err)
	assert.ErrorIs(t, err, audit.ErrContention)

	// once the lock is released the append goes through
	require.NoError(t, tx.Rollback())
	id, err := store.Append(ctx, audit.AlertPayload{Message: "unblocked"})
	require.NoError(t, err)
	assert.Greater(t, id, int64(0))
}

func TestAppendStopsOnCancelledContext(t *testing.T) {
	store, _ := openTestStore(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := store.Append(ctx, audit.AlertPayload{Message: "cancelled"})
	if err != nil {
		assert.NotErrorIs(t, err, audit.ErrContention)
	}
}
