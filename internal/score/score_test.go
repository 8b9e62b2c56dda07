package score_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qtdlabs/muletrace/internal/score"
)

func TestHeuristicScore(t *testing.T) {
	scorer := score.Heuristic{}
	ctx := context.Background()

	txnIDs := []string{
		"",
		"T1",
		"T2",
		"a-very-long-transaction-identifier-beyond-twenty-chars",
		// multi-byte runes straddling the character cap
		"txn-0123456789abcdeéπ漢字-and-more",
		"漢字だけの取引識別子がとても長い場合でも安定して採点される",
	}
	for _, txnID := range txnIDs {
		t.Run(fmt.Sprintf("txn %q", txnID), func(t *testing.T) {
			got, err := scorer.Score(ctx, txnID)
			require.NoError(t, err)
			assert.GreaterOrEqual(t, got, float64(0))
			assert.LessOrEqual(t, got, float64(1))

			// deterministic per id
			again, err := scorer.Score(ctx, txnID)
			require.NoError(t, err)
			assert.Equal(t, got, again)
		})
	}
}

func TestHeuristicScoreDistinguishesIDs(t *testing.T) {
	scorer := score.Heuristic{}
	ctx := context.Background()

	a, err := scorer.Score(ctx, "T1")
	require.NoError(t, err)
	b, err := scorer.Score(ctx, "T2")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestRemoteScore(t *testing.T) {
	tests := map[string]struct {
		handler     http.HandlerFunc
		expected    float64
		expectedErr string
	}{
		"ok": {
			handler: func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPost, r.Method)
				assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
				_, _ = w.Write([]byte(`{"score": 0.73}`))
			},
			expected: 0.73,
		},
		"missing score field": {
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(`{}`))
			},
			expectedErr: "carries no score",
		},
		"score out of range": {
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(`{"score": 1.7}`))
			},
			expectedErr: "out of [0, 1]",
		},
		"unexpected status": {
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			},
			expectedErr: "unexpected status",
		},
		"invalid body": {
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(`not json`))
			},
			expectedErr: "decode scoring response",
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(test.handler)
			defer srv.Close()

			scorer := score.NewRemote(logrus.New(), srv.Client(), srv.URL)
			got, err := scorer.Score(context.Background(), "T1")
			if test.expectedErr != "" {
				require.Error(t, err)
				assert.ErrorContains(t, err, test.expectedErr)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, test.expected, got)
		})
	}
}

func TestRemoteScoreSendsTxnID(t *testing.T) {
	var received string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			TxnID string `json:"txn_id"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		received = body.TxnID
		_, _ = w.Write([]byte(`{"score": 0.5}`))
	}))
	defer srv.Close()

	scorer := score.NewRemote(logrus.New(), srv.Client(), srv.URL)
	_, err := scorer.Score(context.Background(), "txn-under-review")
	require.NoError(t, err)
	assert.Equal(t, "txn-under-review", received)
}

func TestRemoteScoreCancelledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"score": 0.5}`))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	scorer := score.NewRemote(logrus.New(), srv.Client(), srv.URL)
	_, err := scorer.Score(ctx, "T1")
	require.Error(t, err)
}
