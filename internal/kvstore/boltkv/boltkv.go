// Package boltkv adapts go.etcd.io/bbolt into a [kvstore.Store]: the
// default, production-grade backend. bbolt buckets are messlog's column
// families; Cursor.Seek/Next/Prev gives native byte-ordered prefix and
// reverse scans; db.Update gives the all-or-nothing two-key batch commit
// spec §4.3 step 7 requires, backed by bbolt's own mmap+fsync durability.
package boltkv

import (
	"fmt"
	"path/filepath"

	bolt "go.etcd.io/bbolt"

	"github.com/calvinalkan/messlog/internal/kvstore"
	"github.com/calvinalkan/messlog/pkg/fs"
)

var columnFamilies = []kvstore.CF{kvstore.Global, kvstore.Stream}

// Store adapts a single bbolt database file into [kvstore.Store], with
// one bucket per column family.
type Store struct {
	db *bolt.DB
}

// Open opens (creating if absent) a bbolt database at path, using real
// the same way the teacher's store opens its SQLite index and WAL file:
// ensure the parent directory exists before handing off to the driver.
func Open(path string, real fs.FS) (*Store, error) {
	if err := real.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("boltkv: mkdir parent of %s: %w", path, err)
	}

	db, err := bolt.Open(path, 0o644, nil)
	if err != nil {
		return nil, fmt.Errorf("boltkv: open %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, cf := range columnFamilies {
			if _, err := tx.CreateBucketIfNotExists([]byte(cf)); err != nil {
				return fmt.Errorf("create bucket %s: %w", cf, err)
			}
		}

		return nil
	})
	if err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("boltkv: init buckets: %w", err)
	}

	return &Store{db: db}, nil
}

// Get implements [kvstore.Store].
func (s *Store) Get(cf kvstore.CF, key []byte) ([]byte, error) {
	var value []byte

	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(cf))
		if b == nil {
			return kvstore.ErrNotFound
		}

		v := b.Get(key)
		if v == nil {
			return kvstore.ErrNotFound
		}

		value = append([]byte(nil), v...)

		return nil
	})
	if err != nil {
		return nil, err
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
		return fmt.Errorf("boltkv: close: %w", err)
	}

	return nil
}

type batchPut struct {
	cf    kvstore.CF
	key   []byte
	value []byte
}

type batch struct {
	db  *bolt.DB
	ops []batchPut
}

func (b *batch) Put(cf kvstore.CF, key, value []byte) {
	b.ops = append(b.ops, batchPut{cf: cf, key: key, value: value})
}

// Commit applies every buffered Put inside a single bbolt read-write
// transaction, which bbolt itself commits as one fsync'd unit.
func (b *batch) Commit() error {
	err := b.db.Update(func(tx *bolt.Tx) error {
		for _, op := range b.ops {
			bucket := tx.Bucket([]byte(op.cf))
			if bucket == nil {
				return fmt.Errorf("boltkv: unknown column family %s", op.cf)
			}

			if err := bucket.Put(op.key, op.value); err != nil {
				return fmt.Errorf("boltkv: put %s: %w", op.cf, err)
			}
		}

		return nil
	})
	if err != nil {
		return fmt.Errorf("boltkv: commit: %w", err)
	}

	return nil
}

// Scan implements [kvstore.Store].
func (s *Store) Scan(cf kvstore.CF, start []byte) kvstore.Iterator {
	tx, err := s.db.Begin(false)
	if err != nil {
		return &errIterator{err: fmt.Errorf("boltkv: begin scan: %w", err)}
	}

	bucket := tx.Bucket([]byte(cf))
	if bucket == nil {
		_ = tx.Rollback()

		return &errIterator{err: fmt.Errorf("boltkv: unknown column family %s", cf)}
	}

	c := bucket.Cursor()

	return &cursorIterator{tx: tx, cursor: c, start: start, reverse: false}
}

// ScanReverse implements [kvstore.Store].
func (s *Store) ScanReverse(cf kvstore.CF, start []byte) kvstore.Iterator {
	tx, err := s.db.Begin(false)
	if err != nil {
		return &errIterator{err: fmt.Errorf("boltkv: begin reverse scan: %w", err)}
	}

	bucket := tx.Bucket([]byte(cf))
	if bucket == nil {
		_ = tx.Rollback()

		return &errIterator{err: fmt.Errorf("boltkv: unknown column family %s", cf)}
	}

	c := bucket.Cursor()

	return &cursorIterator{tx: tx, cursor: c, start: start, reverse: true}
}

// cursorIterator wraps a bbolt cursor bound to its own read transaction,
// which keeps iterating safe even while the writer commits new batches —
// bbolt readers see a consistent mmap snapshot for the transaction's
// lifetime.
type cursorIterator struct {
	tx      *bolt.Tx
	cursor  *bolt.Cursor
	start   []byte
	reverse bool
	started bool
	key     []byte
	value   []byte
	valid   bool
	err     error
}

func (it *cursorIterator) Valid() bool { return it.valid && it.err == nil }

func (it *cursorIterator) Next() {
	if it.err != nil {
		it.valid = false

		return
	}

	var k, v []byte

	if !it.started {
		it.started = true
		k, v = it.first()
	} else if it.reverse {
		k, v = it.cursor.Prev()
	} else {
		k, v = it.cursor.Next()
	}

	if k == nil {
		it.valid = false

		return
	}

	it.key = append([]byte(nil), k...)
	it.value = append([]byte(nil), v...)
	it.valid = true
}

func (it *cursorIterator) first() ([]byte, []byte) {
	if len(it.start) == 0 {
		if it.reverse {
			return it.cursor.Last()
		}

		return it.cursor.First()
	}

	if !it.reverse {
		return it.cursor.Seek(it.start)
	}

	k, v := it.cursor.Seek(it.start)
	if k == nil {
		return it.cursor.Last()
	}

	if string(k) == string(it.start) {
		return k, v
	}

	// Seek landed on the first key > start; step back for <= start.
	return it.cursor.Prev()
}

func (it *cursorIterator) Key() []byte   { return it.key }
func (it *cursorIterator) Value() []byte { return it.value }
func (it *cursorIterator) Err() error    { return it.err }

func (it *cursorIterator) Close() error {
	if err := it.tx.Rollback(); err != nil {
		return fmt.Errorf("boltkv: close iterator: %w", err)
	}

	return nil
}

// errIterator is an already-failed iterator, for setup errors that occur
// before any cursor exists.
type errIterator struct{ err error }

func (it *errIterator) Valid() bool    { return false }
func (it *errIterator) Next()          {}
func (it *errIterator) Key() []byte    { return nil }
func (it *errIterator) Value() []byte  { return nil }
func (it *errIterator) Err() error     { return it.err }
func (it *errIterator) Close() error   { return nil }
