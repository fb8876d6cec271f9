package bbpp

import (
	"errors"
	"sync/atomic"
)

// ErrRangeFull reports that growing the write range would run past its
// bound (the buffer end in one-range mode, the read range's head in
// two-range mode).
var ErrRangeFull = errors.New("bbpp: range full")

// ErrRangeEmpty reports that shrinking the read range by the requested
// amount would run past its tail.
var ErrRangeEmpty = errors.New("bbpp: range empty")

// cacheLineSize pads each atomic index onto its own cache line so a
// writer advancing tail and a reader polling head never false-share.
const cacheLineSize = 64

// index is a cache-line-padded monotonically-adjusted offset into the
// arena.
type index struct {
	v atomic.Uint64
	_ [cacheLineSize - 8]byte
}

func (i *index) get() uint64          { return i.v.Load() }
func (i *index) set(v uint64)         { i.v.Store(v) }
func (i *index) add(n uint64) uint64  { return i.v.Add(n) }

// Range is a [head, tail) span of arena offsets. head is only ever
// advanced by popping; tail only ever advanced by pushing.
type Range struct {
	head index
	tail index
}

// Head returns the current head offset.
func (r *Range) Head() uint64 { return r.head.get() }

// Tail returns the current tail offset.
func (r *Range) Tail() uint64 { return r.tail.get() }

// Len returns tail - head.
func (r *Range) Len() uint64 { return r.Tail() - r.Head() }

// IsEmpty reports whether the range is empty.
func (r *Range) IsEmpty() bool { return r.Len() == 0 }

func (r *Range) reset() {
	r.head.set(0)
	r.tail.set(0)
}

// Ranges holds the one-or-two active spans of a BBPP arena: r1 is always
// the read range; r0 is the write range while split, unused otherwise.
// Only the BBPP's single writer lease may call split/merge/grow/shrink.
type Ranges struct {
	capacity uint64
	isSplit  atomic.Bool
	r0, r1   Range
}

func newRanges(capacity uint64) *Ranges {
	return &Ranges{capacity: capacity}
}

// Read returns the read range: r1, always.
func (rs *Ranges) Read() *Range { return &rs.r1 }

// Write returns the current write range: r0 while split, r1 otherwise.
func (rs *Ranges) Write() *Range {
	if rs.isSplit.Load() {
		return &rs.r0
	}

	return &rs.r1
}

// IsSplit reports whether the arena is currently in two-range mode.
func (rs *Ranges) IsSplit() bool { return rs.isSplit.Load() }

// split enters two-range mode, resetting r0 to become the new write range.
// A no-op if already split.
func (rs *Ranges) split() {
	if rs.isSplit.Load() {
		return
	}

	rs.r0.reset()
	rs.isSplit.Store(true)
}

// merge collapses two-range mode back to one, once the read range (r1)
// has fully drained: r1 takes on r0's bounds and r0 resets. A no-op if
// not currently split.
func (rs *Ranges) merge() {
	if !rs.isSplit.Load() {
		return
	}

	rs.r1.head.set(rs.r0.Head())
	rs.r1.tail.set(rs.r0.Tail())
	rs.r0.reset()
	rs.isSplit.Store(false)
}

// grow extends the write range's tail by n bytes, bounded by the buffer
// end (one-range mode) or the read range's head (two-range mode, so the
// write range can never overtake the still-draining read range).
func (rs *Ranges) grow(n uint64) error {
	w := rs.Write()
	end := w.Tail()

	var bound uint64
	if rs.isSplit.Load() {
		bound = rs.Read().Head()
	} else {
		bound = rs.capacity
	}

	if end+n > bound {
		return ErrRangeFull
	}

	w.tail.add(n)

	return nil
}

// shrink advances the read range's head by n bytes, merging the ranges
// back to one if the read range has become empty.
func (rs *Ranges) shrink(n uint64) error {
	r := rs.Read()
	start := r.Head()
	end := r.Tail()

	if start+n > end {
		return ErrRangeEmpty
	}

	r.head.add(n)

	if r.IsEmpty() {
		rs.merge()
	}

	return nil
}

// size returns the total number of live bytes across both ranges.
func (rs *Ranges) size() uint64 {
	if rs.isSplit.Load() {
		return rs.r0.Len() + rs.r1.Len()
	}

	return rs.r1.Len()
}
