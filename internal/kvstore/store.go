// Package kvstore defines the ordered key-value collaborator messlog's
// write and read paths assume but never implement directly: atomic
// multi-key batches across named column families, prefix iteration,
// reverse iteration, and point lookups, with crash-safe durability left to
// the adapter.
package kvstore

import "errors"

// ErrNotFound is returned by [Store.Get] when the key is absent.
var ErrNotFound = errors.New("kvstore: key not found")

// ErrClosed is returned by the memkv adapter's Get and Batch.Commit once its
// [Store] is closed.
var ErrClosed = errors.New("kvstore: store is closed")

// CF names a column family: an independent ordered key space within one
// Store. messlog uses exactly two: Global and Stream.
type CF string

const (
	// Global holds GlobalKey -> GlobalRecord rows (spec §6).
	Global CF = "global"
	// Stream holds StreamKey -> StreamRecord rows (spec §6).
	Stream CF = "stream"
)

// Store is the KV collaborator boundary. Implementations must apply a
// [Batch] as an all-or-nothing unit and must give byte-lexicographic
// ordering within a column family, since both GlobalKey and StreamKey
// encodings rely on their byte order matching their logical order.
type Store interface {
	// Get performs a point lookup. Returns [ErrNotFound] if key is absent
	// from cf.
	Get(cf CF, key []byte) ([]byte, error)

	// NewBatch returns an empty batch bound to this store.
	NewBatch() Batch

	// Scan returns a forward iterator over cf, starting at the first key
	// >= start (or the first key in cf, if start is nil).
	Scan(cf CF, start []byte) Iterator

	// ScanReverse returns a reverse iterator over cf, starting at the last
	// key <= start (or the last key in cf, if start is nil).
	ScanReverse(cf CF, start []byte) Iterator

	// Close releases resources held by the store. What later operations
	// return depends on the adapter: memkv's Get and Batch.Commit return
	// [ErrClosed] while its Scan and ScanReverse still read the rows it
	// holds; boltkv and sqlitekv return their driver's own error.
	Close() error
}

// Batch buffers Put operations across one or more column families. Commit
// applies every buffered Put atomically: all of it is durable, or none of
// it is (spec §4.3 step 7, "atomic commit").
//
// A Batch is not safe for concurrent use; messlog's single-writer actor
// never shares one across goroutines.
type Batch interface {
	// Put buffers a write. Last write for a given (cf, key) pair wins if
	// Put is called more than once for the same key before Commit.
	Put(cf CF, key, value []byte)

	// Commit applies every buffered Put as one atomic unit.
	Commit() error
}

// Iterator is a lazy cursor over a single column family, advancing in
// either ascending ([Store.Scan]) or descending ([Store.ScanReverse])
// byte order. Callers must check Valid before reading Key/Value, and must
// call Close when done to release any underlying cursor/transaction.
//
// A decode or I/O failure ends iteration (Valid becomes false) and is
// reported by Err, mirroring spec §4.4's "errors surfaced as items in the
// iterator, not silently skipped" contract one layer up, in the codec
// that wraps this cursor.
type Iterator interface {
	// Valid reports whether Key/Value currently reference a live entry.
	Valid() bool

	// Next advances the cursor. Calling Next when !Valid is a no-op.
	Next()

	// Key returns the current entry's key. Only valid while Valid().
	Key() []byte

	// Value returns the current entry's value. Only valid while Valid().
	Value() []byte

	// Err returns the first error that stopped iteration, if any.
	Err() error

	// Close releases the cursor.
	Close() error
}
