// Package sqlitekv adapts github.com/mattn/go-sqlite3 into a
// [kvstore.Store]: a second, swappable backend materializing spec.md's
// Open Question about "the SQL variant" the original repository also
// shipped. Each column family is a table keyed by a BLOB PRIMARY KEY, so
// `ORDER BY key` / `ORDER BY key DESC` give the same byte-ordered
// prefix/reverse scans the bbolt adapter gets from a bucket cursor.
package sqlitekv

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3" // sqlite3 driver

	"github.com/calvinalkan/messlog/internal/kvstore"
)

const sqliteBusyTimeout = 10000 // milliseconds

var columnFamilies = []kvstore.CF{kvstore.Global, kvstore.Stream}

// Store adapts a single SQLite database file into [kvstore.Store].
type Store struct {
	db *sql.DB
}

// Open opens (creating and migrating if absent) a SQLite database at
// path, one table per column family, created idempotently via
// `CREATE TABLE IF NOT EXISTS` — there is exactly one fixed schema here,
// so no versioned migration driver is needed.
func Open(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("sqlitekv: path is empty")
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("sqlitekv: open %s: %w", path, err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("sqlitekv: ping: %w", err)
	}

	if err := applyPragmas(ctx, db); err != nil {
		_ = db.Close()

		return nil, err
	}

	if err := createTables(ctx, db); err != nil {
		_ = db.Close()

		return nil, err
	}

	return &Store{db: db}, nil
}

func applyPragmas(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, fmt.Sprintf(`
		PRAGMA busy_timeout = %d;
		PRAGMA journal_mode = WAL;
		PRAGMA synchronous = FULL;
	`, sqliteBusyTimeout))
	if err != nil {
		return fmt.Errorf("sqlitekv: apply pragmas: %w", err)
	}

	return nil
}

func createTables(ctx context.Context, db *sql.DB) error {
	for _, cf := range columnFamilies {
		stmt := fmt.Sprintf(
			`CREATE TABLE IF NOT EXISTS %s (key BLOB PRIMARY KEY, value BLOB NOT NULL)`,
			tableName(cf),
		)

		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sqlitekv: create table %s: %w", cf, err)
		}
	}

	return nil
}

func tableName(cf kvstore.CF) string {
	return "cf_" + string(cf)
}

// Get implements [kvstore.Store].
func (s *Store) Get(cf kvstore.CF, key []byte) ([]byte, error) {
	query := fmt.Sprintf("SELECT value FROM %s WHERE key = ?", tableName(cf))

	var value []byte

	err := s.db.QueryRow(query, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, kvstore.ErrNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("sqlitekv: get: %w", err)
	}

	return value, nil
}

// NewBatch implements [kvstore.Store].
func (s *Store) NewBatch() kvstore.Batch {
	return &batch{db: s.db}
}

// Close implements [kvstore.Store].
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("sqlitekv: close: %w", err)
	}

	return nil
}

type batchPut struct {
	cf    kvstore.CF
	key   []byte
	value []byte
}

type batch struct {
	db  *sql.DB
	ops []batchPut
}

func (b *batch) Put(cf kvstore.CF, key, value []byte) {
	b.ops = append(b.ops, batchPut{cf: cf, key: key, value: value})
}

// Commit applies every buffered Put inside a single *sql.Tx, which
// SQLite commits as one all-or-nothing unit (spec §4.3 step 7).
func (b *batch) Commit() error {
	tx, err := b.db.Begin()
	if err != nil {
		return fmt.Errorf("sqlitekv: begin commit: %w", err)
	}

	for _, op := range b.ops {
		stmt := fmt.Sprintf(
			`INSERT INTO %s (key, value) VALUES (?, ?)
			 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
			tableName(op.cf),
		)

		if _, err := tx.Exec(stmt, op.key, op.value); err != nil {
			_ = tx.Rollback()

			return fmt.Errorf("sqlitekv: put %s: %w", op.cf, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlitekv: commit: %w", err)
	}

	return nil
}

// Scan implements [kvstore.Store].
func (s *Store) Scan(cf kvstore.CF, start []byte) kvstore.Iterator {
	var (
		rows *sql.Rows
		err  error
	)

	if len(start) == 0 {
		rows, err = s.db.Query(fmt.Sprintf("SELECT key, value FROM %s ORDER BY key ASC", tableName(cf)))
	} else {
		rows, err = s.db.Query(
			fmt.Sprintf("SELECT key, value FROM %s WHERE key >= ? ORDER BY key ASC", tableName(cf)),
			start,
		)
	}

	if err != nil {
		return &rowsIterator{err: fmt.Errorf("sqlitekv: scan: %w", err)}
	}

	return &rowsIterator{rows: rows}
}

// ScanReverse implements [kvstore.Store].
func (s *Store) ScanReverse(cf kvstore.CF, start []byte) kvstore.Iterator {
	var (
		rows *sql.Rows
		err  error
	)

	if len(start) == 0 {
		rows, err = s.db.Query(fmt.Sprintf("SELECT key, value FROM %s ORDER BY key DESC", tableName(cf)))
	} else {
		rows, err = s.db.Query(
			fmt.Sprintf("SELECT key, value FROM %s WHERE key <= ? ORDER BY key DESC", tableName(cf)),
			start,
		)
	}

	if err != nil {
		return &rowsIterator{err: fmt.Errorf("sqlitekv: scan reverse: %w", err)}
	}

	return &rowsIterator{rows: rows}
}

type rowsIterator struct {
	rows  *sql.Rows
	key   []byte
	value []byte
	valid bool
	err   error
}

func (it *rowsIterator) Valid() bool { return it.valid && it.err == nil }

func (it *rowsIterator) Next() {
	if it.err != nil || it.rows == nil {
		it.valid = false

		return
	}

	if !it.rows.Next() {
		it.valid = false

		if err := it.rows.Err(); err != nil {
			it.err = fmt.Errorf("sqlitekv: iterate: %w", err)
		}

		return
	}

	if err := it.rows.Scan(&it.key, &it.value); err != nil {
		it.valid = false
		it.err = fmt.Errorf("sqlitekv: scan row: %w", err)

		return
	}

	it.valid = true
}

func (it *rowsIterator) Key() []byte   { return it.key }
func (it *rowsIterator) Value() []byte { return it.value }
func (it *rowsIterator) Err() error    { return it.err }

func (it *rowsIterator) Close() error {
	if it.rows == nil {
		return nil
	}

	if err := it.rows.Close(); err != nil {
		return fmt.Errorf("sqlitekv: close iterator: %w", err)
	}

	return nil
}
