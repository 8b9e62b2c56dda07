package tracer

import (
	"errors"
	"fmt"
	"iter"
	"slices"

	"github.com/sirupsen/logrus"

	"github.com/qtdlabs/muletrace/internal/ledger"
)

var (
	// ErrInvalidHopBound is returned for negative hop bounds.
	ErrInvalidHopBound = errors.New("hop bound must not be negative")
)

// EdgeSource is the slice of the ledger the tracer reads.
type EdgeSource interface {
	OutgoingEdges(account string) iter.Seq[ledger.Edge]
	Get(txnID string) (ledger.Edge, error)
}

// AccountTrace is the subgraph reachable from a start account.
type AccountTrace struct {
	StartAccount string        `json:"start_account"`
	Edges        []ledger.Edge `json:"txns"`
	HopsSearched int           `json:"hops_searched"`
}

// Path returns the involved accounts in discovery order, starting with the
// traced account.
func (t *AccountTrace) Path() []string {
	path := []string{t.StartAccount}
	seen := map[string]struct{}{t.StartAccount: {}}
	for edge := range slices.Values(t.Edges) {
		if _, ok := seen[edge.ToAccount]; ok {
			continue
		}
		seen[edge.ToAccount] = struct{}{}
		path = append(path, edge.ToAccount)
	}
	return path
}

// TransactionTrace wraps an AccountTrace rooted at a transaction's recipient.
type TransactionTrace struct {
	TxnID        string        `json:"txn_id"`
	Found        bool          `json:"found"`
	StartAccount string        `json:"start_account,omitempty"`
	Edges        []ledger.Edge `json:"txns"`
	HopsSearched int           `json:"hops_searched"`
}

type Tracer struct {
	logger *logrus.Logger
	edges  EdgeSource
}

func New(logger *logrus.Logger, edges EdgeSource) *Tracer {
	return &Tracer{
		logger: logger,
		edges:  edges,
	}
}

// TraceFromAccount runs a bounded breadth-first expansion over the ledger's
// transfer edges starting at the given account. Each hop expands the current
// frontier of accounts to their immediate recipients; no transaction is
// visited twice and no account is expanded twice within a call. An expansion
// round that discovers no new edge ends the traversal and is not counted, so
// HopsSearched reflects the rounds that actually grew the subgraph.
func (t *Tracer) TraceFromAccount(startAccount string, maxHops int) (*AccountTrace, error) {
	if maxHops < 0 {
		return nil, fmt.Errorf("trace from account %q: %w", startAccount, ErrInvalidHopBound)
	}

	visitedAccounts := map[string]struct{}{startAccount: {}}
	visitedTxns := make(map[string]struct{})
	frontier := []string{startAccount}

	var result []ledger.Edge
	var hops int
	for len(frontier) > 0 && hops < maxHops {
		var next []string
		var discovered bool
		for account := range slices.Values(frontier) {
			for edge := range t.edges.OutgoingEdges(account) {
				if _, ok := visitedTxns[edge.TxnID]; ok {
					continue
				}
				visitedTxns[edge.TxnID] = struct{}{}
				result = append(result, edge)
				discovered = true

				if _, ok := visitedAccounts[edge.ToAccount]; !ok {
					visitedAccounts[edge.ToAccount] = struct{}{}
					next = append(next, edge.ToAccount)
				}
			}
		}
		if !discovered {
			break
		}
		frontier = next
		hops++
	}

	t.logger.WithFields(logrus.Fields{
		"start_account": startAccount,
		"edges":         len(result),
		"hops_searched": hops,
	}).Debug("Traced account subgraph")
	tracesRun.Inc()
	edgesDiscovered.Add(float64(len(result)))

	return &AccountTrace{
		StartAccount: startAccount,
		Edges:        result,
		HopsSearched: hops,
	}, nil
}

// TraceFromTransaction traces the flows downstream of a transaction's
// recipient. Unknown transaction ids are a normal outcome reported with
// Found set to false, not an error.
func (t *Tracer) TraceFromTransaction(txnID string, maxDepth int) (*TransactionTrace, error) {
	edge, err := t.edges.Get(txnID)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return &TransactionTrace{
				TxnID: txnID,
				Found: false,
				Edges: []ledger.Edge{},
			}, nil
		}
		return nil, fmt.Errorf("trace from transaction %q: %w", txnID, err)
	}

	trace, err := t.TraceFromAccount(edge.ToAccount, maxDepth)
	if err != nil {
		return nil, fmt.Errorf("trace from transaction %q: %w", txnID, err)
	}

	return &TransactionTrace{
		TxnID:        txnID,
		Found:        true,
		StartAccount: trace.StartAccount,
		Edges:        trace.Edges,
		HopsSearched: trace.HopsSearched,
	}, nil
}
