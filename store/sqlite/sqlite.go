/*
Package sqlite provides the SQLite-backed implementation of ledger.Store.

PURPOSE:
  The single embedded database of the rental ledger. Holds every table of
  the data model, applies forward-only migrations at open time, and exposes
  the two rental views the reconciliation engine compares.

INTERFACES IMPLEMENTED:
  ledger.Store: reads + WithTx scope
  ledger.Tx:    reads + named writes (inside WithTx)

SINGLE WRITER:
  The pool is capped at one connection and WithTx holds a mutex, so at most
  one writer scope exists in this process. Transactions begin IMMEDIATE; if
  another process holds the write lock past the busy timeout, the operation
  fails with ledger.ErrContention.

ESCAPE HATCHES:
  Exec, FetchOne and FetchAll run arbitrary SQL. They exist for batch
  scripts and tests that need to stage drift; services never use them.

WAL MODE:
  The database is opened with WAL and foreign keys on.

USAGE:
  store, err := sqlite.New("./alquileres.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - schema.go: Tables and additive column migrations
  - views.go: View-A / View-B and audit queries
  - ledger/store.go: Interface definitions
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"github.com/warp/rental-ledger/ledger"
)

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// conn carries every query. Bound to the pool for Store, to a *sql.Tx inside WithTx.
type conn struct {
	q queryer
}

// Store implements ledger.Store using SQLite.
type Store struct {
	*conn
	db  *sql.DB
	mu  sync.Mutex
	log zerolog.Logger
}

var (
	_ ledger.Store = (*Store)(nil)
	_ ledger.Tx    = (*conn)(nil)
)

// Option configures New.
type Option func(*options)

type options struct {
	busyTimeoutMS int
	log           zerolog.Logger
}

// WithBusyTimeout sets how long to wait for another writer before failing.
func WithBusyTimeout(ms int) Option {
	return func(o *options) { o.busyTimeoutMS = ms }
}

// WithLogger sets the logger used for migration events.
func WithLogger(log zerolog.Logger) Option {
	return func(o *options) { o.log = log }
}

// New opens the database at dbPath and migrates it.
// Use ":memory:" for an in-memory database.
func New(dbPath string, opts ...Option) (*Store, error) {
	o := options{busyTimeoutMS: 2000, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(&o)
	}

	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=%d&_txlock=immediate",
		dbPath, o.busyTimeoutMS)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := &Store{conn: &conn{q: db}, db: db, log: o.log}
	if err := store.migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// =============================================================================
// TRANSACTIONAL SCOPE (ledger.Store interface)
// =============================================================================

// WithTx executes fn within a database transaction. Errors returned by fn
// pass through unchanged; the transaction is rolled back.
func (s *Store) WithTx(ctx context.Context, fn func(tx ledger.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storeErr("begin transaction", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&conn{q: sqlTx}); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return storeErr("commit transaction", err)
	}
	return nil
}

// =============================================================================
// RAW ACCESS
// =============================================================================

// Exec runs a statement and returns the number of rows affected.
func (c *conn) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := c.q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, storeErr("exec", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, storeErr("rows affected", err)
	}
	return n, nil
}

// FetchOne returns the first row of query as a column map, or nil if empty.
func (c *conn) FetchOne(ctx context.Context, query string, args ...any) (map[string]any, error) {
	rows, err := c.FetchAll(ctx, query, args...)
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return rows[0], nil
}

// FetchAll returns every row of query as column maps.
func (c *conn) FetchAll(ctx context.Context, query string, args ...any) ([]map[string]any, error) {
	rows, err := c.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeErr("query", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, storeErr("columns", err)
	}

	var out []map[string]any
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, storeErr("scan", err)
		}
		row := make(map[string]any, len(cols))
		for i, col := range cols {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
				continue
			}
			row[col] = values[i]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("iterate", err)
	}
	return out, nil
}

// Helper functions

// storeErr tags a driver error with ErrContention or ErrStore.
func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var sqlErr sqlite3.Error
	if errors.As(err, &sqlErr) && (sqlErr.Code == sqlite3.ErrBusy || sqlErr.Code == sqlite3.ErrLocked) {
		return fmt.Errorf("%s: %w: %w", op, ledger.ErrContention, err)
	}
	return fmt.Errorf("%s: %w: %w", op, ledger.ErrStore, err)
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func ptrString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func ptrID[T ~int64](n sql.NullInt64) *T {
	if !n.Valid {
		return nil
	}
	id := T(n.Int64)
	return &id
}
