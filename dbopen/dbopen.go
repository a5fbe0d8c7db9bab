// Package dbopen opens the SQLite databases behind the credits ledger, the
// job history and the observability store.
//
// Every connection gets the same pragmas:
//
//	foreign_keys = ON
//	journal_mode = WAL
//	busy_timeout = 10000
//	synchronous  = NORMAL
//
// Stores pass their DDL with WithSchema; tests use OpenMemory.
package dbopen

import (
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"
)

const driverName = "sqlite"

type config struct {
	busyTimeout int
	synchronous string
	txLock      string
	mkdirAll    bool
	schemas     []string
}

func defaults() config {
	return config{
		busyTimeout: 10_000,
		synchronous: "NORMAL",
		txLock:      "immediate",
	}
}

// Option customises Open behaviour.
type Option func(*config)

// WithBusyTimeout sets PRAGMA busy_timeout in milliseconds.
func WithBusyTimeout(ms int) Option { return func(c *config) { c.busyTimeout = ms } }

// WithSynchronous sets PRAGMA synchronous.
func WithSynchronous(mode string) Option { return func(c *config) { c.synchronous = mode } }

// WithTxLock sets how transactions begin: "deferred", "immediate" (the
// default) or "exclusive". Immediate transactions take the write lock up
// front, so concurrent read-modify-write transactions queue on
// busy_timeout instead of failing with SQLITE_BUSY on lock upgrade.
func WithTxLock(mode string) Option { return func(c *config) { c.txLock = mode } }

// WithMkdirAll creates the parent directory of the database file.
func WithMkdirAll() Option { return func(c *config) { c.mkdirAll = true } }

// WithSchema queues DDL to run once the pragmas are set. Statements must be
// idempotent (CREATE ... IF NOT EXISTS) since they run on every open.
func WithSchema(s string) Option { return func(c *config) { c.schemas = append(c.schemas, s) } }

// Open opens the SQLite database at path.
func Open(path string, opts ...Option) (*sql.DB, error) {
	cfg := defaults()
	for _, o := range opts {
		o(&cfg)
	}

	if cfg.mkdirAll && path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("dbopen: mkdir: %w", err)
		}
	}

	db, err := sql.Open(driverName, dsn(path, &cfg))
	if err != nil {
		return nil, fmt.Errorf("dbopen: open: %w", err)
	}
	if err := setup(db, &cfg); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// OpenMemory opens an in-memory database for tests and closes it on cleanup.
// A single connection is kept because each ":memory:" connection is its own
// database.
func OpenMemory(t testing.TB, opts ...Option) *sql.DB {
	t.Helper()
	db, err := Open(":memory:", opts...)
	if err != nil {
		t.Fatalf("dbopen.OpenMemory: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

// dsn attaches the pragmas as _pragma parameters so the driver applies them
// to every pooled connection, not only the first.
func dsn(path string, cfg *config) string {
	q := url.Values{}
	for _, p := range []string{
		"foreign_keys(1)",
		"journal_mode(WAL)",
		fmt.Sprintf("busy_timeout(%d)", cfg.busyTimeout),
		fmt.Sprintf("synchronous(%s)", cfg.synchronous),
	} {
		q.Add("_pragma", p)
	}
	q.Set("_txlock", cfg.txLock)
	return path + "?" + q.Encode()
}

func setup(db *sql.DB, cfg *config) error {
	for _, s := range cfg.schemas {
		if _, err := db.Exec(s); err != nil {
			return fmt.Errorf("dbopen: exec schema: %w", err)
		}
	}
	if err := db.Ping(); err != nil {
		return fmt.Errorf("dbopen: ping: %w", err)
	}
	return nil
}
