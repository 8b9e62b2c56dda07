package ledger

import (
	"errors"
	"fmt"
	"iter"
	"slices"
	"sync"
	"time"
)

var (
	// ErrNotFound is returned when a transaction id is not in the ledger.
	ErrNotFound = errors.New("transaction not found")
	// ErrDuplicateEdge is returned when a transaction id is already registered.
	ErrDuplicateEdge = errors.New("transaction already registered")
	// ErrInvalidAmount is returned for non-positive transfer amounts.
	ErrInvalidAmount = errors.New("amount must be greater than zero")
)

const (
	// DefaultMemSize is the default map size used for the edge maps.
	DefaultMemSize = 100
)

// Edge is one registered transfer between two accounts.
type Edge struct {
	TxnID       string    `json:"txn_id"`
	FromAccount string    `json:"from"`
	ToAccount   string    `json:"to"`
	Amount      float64   `json:"amount"`
	CreatedAt   time.Time `json:"created_at"`
}

type config struct {
	memSize int
	now     func() time.Time
}

type Option func(*config)

// WithMemSize allows us to specify a custom mem size for the edge maps.
func WithMemSize(memSize int) Option {
	return func(c *config) {
		if memSize >= 0 {
			c.memSize = memSize
		}
	}
}

// WithClock overrides the timestamp source. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(c *config) {
		if now != nil {
			c.now = now
		}
	}
}

// Store holds the current set of known transfer edges keyed by transaction id.
// Edges are immutable once registered.
type Store struct {
	edges  map[string]Edge
	byFrom map[string][]string
	now    func() time.Time
	mu     sync.RWMutex
}

func New(opts ...Option) *Store {
	cfg := &config{memSize: DefaultMemSize, now: time.Now}
	for opt := range slices.Values(opts) {
		opt(cfg)
	}

	return &Store{
		edges:  make(map[string]Edge, cfg.memSize),
		byFrom: make(map[string][]string, cfg.memSize),
		now:    cfg.now,
	}
}

// RegisterEdge inserts a new transfer edge. Registering an existing
// transaction id fails with ErrDuplicateEdge; exactly one of two concurrent
// registrations of the same id succeeds.
func (s *Store) RegisterEdge(txnID, fromAccount, toAccount string, amount float64) (Edge, error) {
	if amount <= 0 {
		return Edge{}, fmt.Errorf("register edge %q: %w", txnID, ErrInvalidAmount)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.edges[txnID]; ok {
		return Edge{}, fmt.Errorf("register edge %q: %w", txnID, ErrDuplicateEdge)
	}

	edge := Edge{
		TxnID:       txnID,
		FromAccount: fromAccount,
		ToAccount:   toAccount,
		Amount:      amount,
		CreatedAt:   s.now(),
	}
	s.edges[txnID] = edge
	s.byFrom[fromAccount] = append(s.byFrom[fromAccount], txnID)

	return edge, nil
}

// Get returns the edge registered under txnID.
func (s *Store) Get(txnID string) (Edge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	edge, ok := s.edges[txnID]
	if !ok {
		return Edge{}, fmt.Errorf("get edge %q: %w", txnID, ErrNotFound)
	}
	return edge, nil
}

// OutgoingEdges returns a restartable sequence of the edges whose sender is
// the given account, in registration order. The sequence iterates over a
// point-in-time copy taken when OutgoingEdges is called; registrations that
// land during iteration are not observed.
func (s *Store) OutgoingEdges(account string) iter.Seq[Edge] {
	s.mu.RLock()
	txnIDs := s.byFrom[account]
	edges := make([]Edge, 0, len(txnIDs))
	for id := range slices.Values(txnIDs) {
		edges = append(edges, s.edges[id])
	}
	s.mu.RUnlock()

	return slices.Values(edges)
}

// Len returns the number of registered edges.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.edges)
}
