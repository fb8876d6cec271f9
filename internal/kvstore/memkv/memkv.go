// Package memkv is an in-memory [kvstore.Store] used by messlog's unit
// and property tests so P1-P7 run without any file I/O — the same role
// the teacher's fs test doubles play for filesystem-dependent tests, kept
// outside _test.go because it is shared across multiple test packages.
package memkv

import (
	"bytes"
	"sort"
	"sync"

	"github.com/calvinalkan/messlog/internal/kvstore"
)

type row struct {
	key   []byte
	value []byte
}

type cf struct {
	rows []row // sorted by key, ascending
}

func (c *cf) search(key []byte) (idx int, found bool) {
	idx = sort.Search(len(c.rows), func(i int) bool {
		return bytes.Compare(c.rows[i].key, key) >= 0
	})

	found = idx < len(c.rows) && bytes.Equal(c.rows[idx].key, key)

	return idx, found
}

func (c *cf) put(key, value []byte) {
	idx, found := c.search(key)

	k := append([]byte(nil), key...)
	v := append([]byte(nil), value...)

	if found {
		c.rows[idx].value = v

		return
	}

	c.rows = append(c.rows, row{})
	copy(c.rows[idx+1:], c.rows[idx:])
	c.rows[idx] = row{key: k, value: v}
}

func (c *cf) get(key []byte) ([]byte, bool) {
	idx, found := c.search(key)
	if !found {
		return nil, false
	}

	return c.rows[idx].value, true
}

// Store is a sorted-slice-per-column-family [kvstore.Store].
type Store struct {
	mu     sync.RWMutex
	cfs    map[kvstore.CF]*cf
	closed bool
}

// New constructs an empty in-memory store.
func New() *Store {
	return &Store{cfs: make(map[kvstore.CF]*cf)}
}

func (s *Store) cfFor(name kvstore.CF) *cf {
	c, ok := s.cfs[name]
	if !ok {
		c = &cf{}
		s.cfs[name] = c
	}

	return c
}

// Get implements [kvstore.Store].
func (s *Store) Get(name kvstore.CF, key []byte) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, kvstore.ErrClosed
	}

	c, ok := s.cfs[name]
	if !ok {
		return nil, kvstore.ErrNotFound
	}

	v, ok := c.get(key)
	if !ok {
		return nil, kvstore.ErrNotFound
	}

	return append([]byte(nil), v...), nil
}

// NewBatch implements [kvstore.Store].
func (s *Store) NewBatch() kvstore.Batch {
	return &batch{store: s}
}

// Close implements [kvstore.Store].
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true

	return nil
}

type batchPut struct {
	cf    kvstore.CF
	key   []byte
	value []byte
}

type batch struct {
	store *Store
	ops   []batchPut
}

func (b *batch) Put(cf kvstore.CF, key, value []byte) {
	b.ops = append(b.ops, batchPut{cf: cf, key: key, value: value})
}

func (b *batch) Commit() error {
	b.store.mu.Lock()
	defer b.store.mu.Unlock()

	if b.store.closed {
		return kvstore.ErrClosed
	}

	for _, op := range b.ops {
		b.store.cfFor(op.cf).put(op.key, op.value)
	}

	return nil
}

// Scan implements [kvstore.Store].
func (s *Store) Scan(name kvstore.CF, start []byte) kvstore.Iterator {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.cfs[name]
	if !ok {
		return &sliceIter{}
	}

	rows := append([]row(nil), c.rows...)

	idx := 0
	if len(start) > 0 {
		idx = sort.Search(len(rows), func(i int) bool {
			return bytes.Compare(rows[i].key, start) >= 0
		})
	}

	return &sliceIter{rows: rows[idx:], pos: -1}
}

// ScanReverse implements [kvstore.Store].
func (s *Store) ScanReverse(name kvstore.CF, start []byte) kvstore.Iterator {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.cfs[name]
	if !ok {
		return &sliceIter{}
	}

	rows := append([]row(nil), c.rows...)

	end := len(rows)

	if len(start) > 0 {
		end = sort.Search(len(rows), func(i int) bool {
			return bytes.Compare(rows[i].key, start) > 0
		})
	}

	reversed := make([]row, end)
	for i := 0; i < end; i++ {
		reversed[i] = rows[end-1-i]
	}

	return &sliceIter{rows: reversed, pos: -1}
}

type sliceIter struct {
	rows   []row
	pos    int
	closed bool
}

func (it *sliceIter) Valid() bool {
	return !it.closed && it.pos >= 0 && it.pos < len(it.rows)
}

func (it *sliceIter) Next() {
	if it.closed {
		return
	}

	if it.pos < len(it.rows) {
		it.pos++
	}
}

func (it *sliceIter) Key() []byte {
	if !it.Valid() {
		return nil
	}

	return it.rows[it.pos].key
}

func (it *sliceIter) Value() []byte {
	if !it.Valid() {
		return nil
	}

	return it.rows[it.pos].value
}

func (it *sliceIter) Err() error {
	return nil
}

func (it *sliceIter) Close() error {
	it.closed = true

	return nil
}
