package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
	sqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const (
	// DefaultRetryCeiling is the number of retries attempted on write
	// contention before the append fails with ErrContention.
	DefaultRetryCeiling = 8
	// DefaultBaseDelay is the initial backoff delay between contended writes.
	DefaultBaseDelay = 10 * time.Millisecond
	// DefaultBusyTimeout is how long the storage engine itself waits on a
	// locked database before reporting SQLITE_BUSY.
	DefaultBusyTimeout = 5 * time.Second
)

type config struct {
	retryCeiling uint64
	baseDelay    time.Duration
	busyTimeout  time.Duration
	now          func() time.Time
}

type Option func(*config)

// WithRetryCeiling overrides the contention retry ceiling.
func WithRetryCeiling(ceiling uint64) Option {
	return func(c *config) {
		c.retryCeiling = ceiling
	}
}

// WithBaseDelay overrides the initial backoff delay. The delay doubles each
// attempt.
func WithBaseDelay(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.baseDelay = d
		}
	}
}

// WithBusyTimeout overrides the storage engine's own lock wait.
func WithBusyTimeout(d time.Duration) Option {
	return func(c *config) {
		if d >= 0 {
			c.busyTimeout = d
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

// Store is the append-only audit store. Every record kind lives in its own
// table so committed ids stay gap-free per kind. The database runs in WAL
// mode with relaxed synchronous flushing: a hard crash immediately after a
// reported-successful write may lose that write, which is acceptable for a
// near-real-time forensic log.
type Store struct {
	logger       *logrus.Logger
	db           *sql.DB
	retryCeiling uint64
	baseDelay    time.Duration
	now          func() time.Time
}

// Open opens (creating if needed) the audit database at the given path.
func Open(logger *logrus.Logger, path string, opts ...Option) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("open audit store: %w: storage path is required", ErrStorageFatal)
	}

	cfg := &config{
		retryCeiling: DefaultRetryCeiling,
		baseDelay:    DefaultBaseDelay,
		busyTimeout:  DefaultBusyTimeout,
		now:          time.Now,
	}
	for opt := range slices.Values(opts) {
		opt(cfg)
	}

	cleanPath := filepath.Clean(path)
	if dir := filepath.Dir(cleanPath); dir != "." {
		err := os.MkdirAll(dir, 0o755)
		if err != nil {
			return nil, fmt.Errorf("open audit store: %w: create storage dir: %v", ErrStorageFatal, err)
		}
	}

	dsn := fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(%d)",
		cleanPath, cfg.busyTimeout.Milliseconds())
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open audit store: %w: %v", ErrStorageFatal, err)
	}
	err = db.Ping()
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open audit store: %w: ping: %v", ErrStorageFatal, err)
	}

	s := &Store{
		logger:       logger,
		db:           db,
		retryCeiling: cfg.retryCeiling,
		baseDelay:    cfg.baseDelay,
		now:          cfg.now,
	}
	err = s.createSchema()
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) createSchema() error {
	for kind, table := range kindToTable {
		var stmt string
		if kind == KindTrace {
			stmt = `CREATE TABLE IF NOT EXISTS traces (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				account_id TEXT NOT NULL,
				payload TEXT NOT NULL,
				created_at REAL NOT NULL
			)`
		} else {
			stmt = fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				payload TEXT NOT NULL,
				created_at REAL NOT NULL
			)`, table)
		}
		_, err := s.db.Exec(stmt)
		if err != nil {
			return fmt.Errorf("open audit store: %w: create table %s: %v", ErrStorageFatal, table, err)
		}
	}

	_, err := s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_traces_account ON traces (account_id)`)
	if err != nil {
		return fmt.Errorf("open audit store: %w: create traces index: %v", ErrStorageFatal, err)
	}

	return nil
}

// Append validates, encodes and durably commits one record, returning the
// assigned id. Lock contention is retried with exponential backoff up to the
// retry ceiling, then surfaced as ErrContention; non-transient failures are
// surfaced immediately as ErrStorageFatal and never retried. The retry loop
// stops early when ctx is cancelled.
func (s *Store) Append(ctx context.Context, payload Payload) (int64, error) {
	if payload == nil {
		return 0, fmt.Errorf("append audit record: %w: nil payload", ErrInvalidPayload)
	}
	err := payload.Validate()
	if err != nil {
		return 0, fmt.Errorf("append %s record: %w", payload.Kind(), err)
	}
	table, ok := kindToTable[payload.Kind()]
	if !ok {
		return 0, fmt.Errorf("append audit record: %w: unknown kind %q", ErrInvalidPayload, payload.Kind())
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("append %s record: %w: encode payload: %v", payload.Kind(), ErrInvalidPayload, err)
	}
	createdAt := epochSeconds(s.now())

	kindLabel := string(payload.Kind())
	id, err := backoff.RetryWithData(func() (int64, error) {
		id, err := s.insert(ctx, table, payload, data, createdAt)
		if err != nil {
			if isContentionError(err) {
				contentionRetries.Inc()
				s.logger.WithField("kind", kindLabel).WithError(err).Debug("Audit write hit lock contention, retrying...")
				return 0, err
			}
			return 0, backoff.Permanent(fmt.Errorf("%w: %v", ErrStorageFatal, err))
		}
		return id, nil
	}, backoff.WithContext(backoff.WithMaxRetries(s.newBackoff(), s.retryCeiling), ctx))
	if err != nil {
		failedAppends.WithLabelValues(kindLabel).Inc()
		if isContentionError(err) {
			return 0, fmt.Errorf("append %s record: %w: retry ceiling exhausted: %v", payload.Kind(), ErrContention, err)
		}
		return 0, fmt.Errorf("append %s record: %w", payload.Kind(), err)
	}

	committedAppends.WithLabelValues(kindLabel).Inc()
	return id, nil
}

func (s *Store) insert(ctx context.Context, table string, payload Payload, data []byte, createdAt float64) (int64, error) {
	var res sql.Result
	var err error
	if trace, ok := payload.(TracePayload); ok {
		res, err = s.db.ExecContext(ctx,
			`INSERT INTO traces (account_id, payload, created_at) VALUES (?, ?, ?)`,
			trace.Account, string(data), createdAt)
	} else {
		res, err = s.db.ExecContext(ctx,
			fmt.Sprintf(`INSERT INTO %s (payload, created_at) VALUES (?, ?)`, table),
			string(data), createdAt)
	}
	if err != nil {
		return 0, err
	}

	return res.LastInsertId()
}

func (s *Store) newBackoff() *backoff.ExponentialBackOff {
	return backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(s.baseDelay),
		backoff.WithMultiplier(2),
		backoff.WithRandomizationFactor(0.2),
		backoff.WithMaxElapsedTime(0),
	)
}

// FetchRecent returns up to limit records of the given kind, newest first by
// id. Reads never retry and fail fast on any error.
func (s *Store) FetchRecent(ctx context.Context, kind Kind, limit int) ([]Record, error) {
	table, ok := kindToTable[kind]
	if !ok {
		return nil, fmt.Errorf("fetch recent records: %w: unknown kind %q", ErrInvalidPayload, kind)
	}
	if limit < 0 {
		return nil, fmt.Errorf("fetch recent %s records: %w: negative limit", kind, ErrInvalidPayload)
	}

	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT id, payload, created_at FROM %s ORDER BY id DESC LIMIT ?`, table), limit)
	if err != nil {
		return nil, fmt.Errorf("fetch recent %s records: %w: %v", kind, ErrStorageFatal, err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		var payload string
		err = rows.Scan(&rec.ID, &payload, &rec.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("fetch recent %s records: %w: scan: %v", kind, ErrStorageFatal, err)
		}
		if !json.Valid([]byte(payload)) {
			return nil, fmt.Errorf("fetch recent %s records: %w: record %d", kind, ErrMalformedRecord, rec.ID)
		}
		rec.Kind = kind
		rec.Payload = json.RawMessage(payload)
		records = append(records, rec)
	}
	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("fetch recent %s records: %w: %v", kind, ErrStorageFatal, err)
	}

	return records, nil
}

// FetchTraces returns every persisted trace for the given account, newest
// first. A record that cannot be decoded fails the whole fetch.
func (s *Store) FetchTraces(ctx context.Context, account string) ([]TraceRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, account_id, payload, created_at FROM traces WHERE account_id = ? ORDER BY id DESC`, account)
	if err != nil {
		return nil, fmt.Errorf("fetch traces for %q: %w: %v", account, ErrStorageFatal, err)
	}
	defer rows.Close()

	var traces []TraceRecord
	for rows.Next() {
		var trace TraceRecord
		var payload string
		err = rows.Scan(&trace.ID, &trace.Account, &payload, &trace.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("fetch traces for %q: %w: scan: %v", account, ErrStorageFatal, err)
		}
		var decoded TracePayload
		err = json.Unmarshal([]byte(payload), &decoded)
		if err != nil {
			return nil, fmt.Errorf("fetch traces for %q: %w: record %d: %v", account, ErrMalformedRecord, trace.ID, err)
		}
		trace.Path = decoded.Path
		traces = append(traces, trace)
	}
	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("fetch traces for %q: %w: %v", account, ErrStorageFatal, err)
	}

	return traces, nil
}

func isContentionError(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	code := sqliteErr.Code()
	return code == sqlite3.SQLITE_BUSY || code == sqlite3.SQLITE_LOCKED
}

func epochSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}
