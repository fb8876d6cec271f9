package bbpp

import "github.com/calvinalkan/messlog/internal/protector"

// Iterator traverses the entries currently staged in a BBPP, in FIFO
// order, crossing from the read range into the write range when split.
// It takes no protector and is only safe to use when no concurrent writer
// can reclaim the entries it visits (e.g. in tests, or from within the
// single-writer actor itself).
type Iterator struct {
	bbpp *BBPP
	idx  uint64
	done bool
}

// Iter returns an unprotected iterator starting at the current read head.
func (b *BBPP) Iter() *Iterator {
	return &Iterator{bbpp: b, idx: b.ranges.Read().Head()}
}

// Next returns the next entry and advances, or ok=false once exhausted.
func (it *Iterator) Next() (item []byte, ok bool) {
	if it.done {
		return nil, false
	}

	item = it.bbpp.ReadAt(it.idx)
	if len(item) == 0 {
		it.done = true

		return nil, false
	}

	next, ok := it.bbpp.nextLiveOffset(it.idx + lenSize + uint64(len(item)))
	if !ok {
		it.done = true
	} else {
		it.idx = next
	}

	return item, true
}

// nextLiveOffset resolves the cursor position following an entry ending at
// next, reporting whether the cursor may continue. next is normally still
// inside the read range; but when it lands exactly on the read range's
// Tail() and the ring is split, the live data continues at the write
// range's Head() — physically offset 0, per Ranges.split() — not at
// whatever arithmetic offset next happens to be, so the cursor must jump
// there explicitly instead of being tested for containment. The read-range
// test is strict on Head(): an entry read from the read range always ends
// after its head, while an entry read from the write range ends at or before
// it, so the end of a write-range entry is never taken for a read-range
// offset (which would replay read-range entries after newer ones).
func (b *BBPP) nextLiveOffset(next uint64) (uint64, bool) {
	r := b.ranges.Read()
	if next > r.Head() && next < r.Tail() {
		return next, true
	}

	if !b.ranges.IsSplit() {
		return 0, false
	}

	w := b.ranges.Write()
	if next == r.Tail() {
		next = w.Head()
	}

	if next >= w.Head() && next < w.Tail() {
		return next, true
	}

	return 0, false
}

// Reader is a protected consumer lease: it holds a protector slot
// published with its current position, so the writer will not reclaim any
// entry it has not yet passed (spec §4.5, "reader lease").
type Reader struct {
	bbpp     *BBPP
	borrowed *protector.Borrowed
	idx      uint64
	done     bool
}

// NewReader acquires a protector and starts a protected reader at the
// current read head, blocking if the protector pool is momentarily
// exhausted.
func (b *BBPP) NewReader() *Reader {
	borrowed := b.protectors.BlockingGet()
	head := b.ranges.Read().Head()
	borrowed.Publish(head)

	return &Reader{bbpp: b, borrowed: borrowed, idx: head}
}

// Next returns the next entry and advances the published protector index,
// or ok=false once exhausted.
func (r *Reader) Next() (item []byte, ok bool) {
	if r.done {
		return nil, false
	}

	item = r.bbpp.ReadAt(r.idx)
	if len(item) == 0 {
		r.done = true

		return nil, false
	}

	next, ok := r.bbpp.nextLiveOffset(r.idx + lenSize + uint64(len(item)))
	if !ok {
		r.done = true
	} else {
		r.idx = next
		r.borrowed.Publish(next)
	}

	return item, true
}

// Release returns the reader's protector slot to the pool, unblocking the
// writer and any waiters on [protector.Pool.BlockingGet].
func (r *Reader) Release() {
	r.borrowed.Release()
}
