package sqlstore

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/ValentinKolb/hashserv/lib/store"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/mattn/go-sqlite3"
)

var Logger = logger.GetLogger("store")

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - Fresh database
// 1 - Initial schema
// 2 - taskhash_lookup covers created, so the earliest match needs no sort
const currentSchemaVersion = 2

// gcMarkKey is the config entry holding the active gc mark
const gcMarkKey = "gc-mark"

// Store is the SQLite implementation of store.IStore.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Option configures a Store
type Option func(*Store)

// WithClock replaces the time source used for the created column
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// Open creates or opens a SQLite database at the given path.
// Applies required pragmas and migrations automatically.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode (balance durability/performance)
//   - 5-second busy timeout for lock contention
//   - Foreign key enforcement (gc tags are removed with their record)
func Open(path string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// One connection: the server has a single writer and ":memory:" databases
	// exist per connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	s := &Store{db: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}

	Logger.Infof("opened database %s (schema version %d)", path, currentSchemaVersion)
	return s, nil
}

// NewFactory returns a store.Factory opening the database at path
func NewFactory(path string, opts ...Option) store.Factory {
	return func() (store.IStore, error) {
		return Open(path, opts...)
	}
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// applySchema creates tables if they don't exist and runs migrations.
func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	if err := runMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// runMigrations applies incremental schema migrations based on user_version.
func runMigrations(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	if version < 2 {
		if err := migrateToV2(db); err != nil {
			return err
		}
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}

	return nil
}

// migrateToV2 rebuilds taskhash_lookup for databases created with the
// (method, taskhash) only index.
func migrateToV2(db *sql.DB) error {
	var hasCreated bool
	rows, err := db.Query(`PRAGMA index_info(taskhash_lookup)`)
	if err != nil {
		return fmt.Errorf("migrate to v2: %w", err)
	}
	for rows.Next() {
		var seqno, cid int
		var name string
		if err := rows.Scan(&seqno, &cid, &name); err != nil {
			rows.Close()
			return fmt.Errorf("migrate to v2: %w", err)
		}
		if name == "created" {
			hasCreated = true
		}
	}
	rows.Close()

	if hasCreated {
		return nil
	}

	_, err = db.Exec(`
		DROP INDEX IF EXISTS taskhash_lookup;
		CREATE INDEX taskhash_lookup ON tasks (method, taskhash, created);
	`)
	if err != nil {
		return fmt.Errorf("migrate to v2: %w", err)
	}
	return nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// wrapErr converts a database error to a *store.Error
func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}

	var storeErr *store.Error
	if errors.As(err, &storeErr) {
		return storeErr
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
		return store.Errorf(store.RetCConstraint, "%s: %v", op, sqliteErr)
	}

	Logger.Errorf("%s failed: %v", op, err)
	return store.Errorf(store.RetCInternalError, "%s: %v", op, err)
}

// withTx runs fn inside a transaction, committing on success
func (s *Store) withTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapErr(op, err)
	}

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return wrapErr(op, err)
	}

	if err := tx.Commit(); err != nil {
		return wrapErr(op, err)
	}
	return nil
}

// nullString stores empty strings as NULL
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
