// Package bbpp implements a bipartite ring buffer: an in-process,
// fixed-capacity byte arena with a single write lease and many concurrent
// reader leases, reclaiming space by popping the oldest entries once no
// reader's protector still observes them (spec §4.5).
package bbpp

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/calvinalkan/messlog/internal/protector"
)

// lenSize is the width of the length prefix preceding every entry. The
// arena is in-process only, never persisted, so there is no need to match
// the big-endian framing the on-disk codecs use.
const lenSize = 8

// ErrEntryTooBig reports that a value can never fit the arena, regardless
// of how much is reclaimed.
var ErrEntryTooBig = errors.New("bbpp: entry too big for arena")

// ErrInconceivable reports that the arena was fully drained and the entry
// still didn't fit — meaning a caller should have rejected it earlier with
// [ErrEntryTooBig].
var ErrInconceivable = errors.New("bbpp: entry does not fit even after full drain")

// ErrWriterLeased reports that another writer already holds the lease.
var ErrWriterLeased = errors.New("bbpp: writer lease already held")

// DefaultFreeRatio is the headroom a [BBPP] keeps after every push by
// popping additional oldest entries.
const DefaultFreeRatio = 0.1

// BBPP is a single-producer, multi-consumer staging ring of
// variable-length byte entries.
type BBPP struct {
	capacity  uint64
	buf       []byte
	ranges    *Ranges
	freeRatio float64

	protectors *protector.Pool

	writerLeased atomic.Bool
}

// New constructs a BBPP with the given byte capacity, backed by a
// protector pool of protectorSlots hazard-pointer slots for reader leases.
func New(capacity uint64, protectorSlots int) *BBPP {
	return &BBPP{
		capacity:   capacity,
		buf:        make([]byte, capacity),
		ranges:     newRanges(capacity),
		freeRatio:  DefaultFreeRatio,
		protectors: protector.New(protectorSlots),
	}
}

// SetFreeRatio overrides the default headroom ratio. Must be called before
// any push, and never concurrently with one.
func (b *BBPP) SetFreeRatio(ratio float64) {
	b.freeRatio = ratio
}

// Capacity returns the arena's total byte capacity.
func (b *BBPP) Capacity() uint64 { return b.capacity }

// Size returns the number of live bytes currently staged.
func (b *BBPP) Size() uint64 { return b.ranges.size() }

// IsSplit reports whether the arena is currently in two-range mode.
func (b *BBPP) IsSplit() bool { return b.ranges.IsSplit() }

// ReadHead returns the current read range's head offset.
func (b *BBPP) ReadHead() uint64 { return b.ranges.Read().Head() }

// ReadTail returns the current read range's tail offset.
func (b *BBPP) ReadTail() uint64 { return b.ranges.Read().Tail() }

// WriteTail returns the current write range's tail offset.
func (b *BBPP) WriteTail() uint64 { return b.ranges.Write().Tail() }

// TryWriter acquires the single writer lease. Returns [ErrWriterLeased] if
// another writer already holds it.
func (b *BBPP) TryWriter() error {
	if !b.writerLeased.CompareAndSwap(false, true) {
		return ErrWriterLeased
	}

	return nil
}

// ReleaseWriter releases the writer lease.
func (b *BBPP) ReleaseWriter() {
	b.writerLeased.Store(false)
}

func (b *BBPP) readLenAt(offset uint64) uint64 {
	return binary.LittleEndian.Uint64(b.buf[offset : offset+lenSize])
}

// ReadAt returns the payload slice of the entry starting at offset. The
// returned slice aliases the arena and is only valid while the entry
// remains unreclaimed (i.e. while a protector guards offset).
func (b *BBPP) ReadAt(offset uint64) []byte {
	n := b.readLenAt(offset)
	start := offset + lenSize

	return b.buf[start : start+n]
}

// tryReserve validates and returns the offset of a contiguous lenSize+n
// byte span in the current write range, without advancing the range.
func (b *BBPP) tryReserve(n uint64) (uint64, error) {
	full := lenSize + n
	if full >= b.capacity {
		return 0, ErrEntryTooBig
	}

	if b.ranges.IsSplit() {
		w := b.ranges.Write()
		r := b.ranges.Read()

		wEnd := w.Tail()
		if wEnd+full <= r.Head() {
			return wEnd, nil
		}

		return 0, ErrRangeFull
	}

	w := b.ranges.Write()

	wEnd := w.Tail()
	if wEnd+full <= b.capacity {
		return wEnd, nil
	}

	return 0, ErrRangeFull
}

// TryPush reserves space for val in the current write range and writes
// it, without popping anything. Returns [ErrRangeFull] if the write range
// has no room, [ErrEntryTooBig] if val could never fit regardless of
// reclamation.
func (b *BBPP) TryPush(val []byte) error {
	offset, err := b.tryReserve(uint64(len(val)))
	if err != nil {
		return err
	}

	full := lenSize + uint64(len(val))

	binary.LittleEndian.PutUint64(b.buf[offset:offset+lenSize], uint64(len(val)))
	copy(b.buf[offset+lenSize:offset+full], val)

	if err := b.ranges.grow(full); err != nil {
		return fmt.Errorf("bbpp: reserved space but grow failed, arena invariant broken: %w", err)
	}

	return nil
}

// pushOne pushes val, splitting into two-range mode and popping oldest
// entries until it fits if the write range is full. Returns the indexes
// popped to make room, or [ErrRangeFull] if a reader's protector holds the
// oldest entry that would have to be popped.
func (b *BBPP) pushOne(val []byte) ([]uint64, error) {
	err := b.TryPush(val)
	if err == nil {
		return nil, nil
	}

	if !errors.Is(err, ErrRangeFull) {
		return nil, err
	}

	b.ranges.split()

	var popped []uint64

	for {
		idx, ok := b.TryPop()
		if !ok {
			if r := b.ranges.Read(); r.Head() < r.Tail() {
				// The oldest live entry is held by a reader's protector:
				// back-pressure, not a full drain.
				return nil, ErrRangeFull
			}

			return nil, ErrInconceivable
		}

		popped = append(popped, idx)

		err := b.TryPush(val)
		if err == nil {
			return popped, nil
		}

		if !errors.Is(err, ErrRangeFull) {
			return nil, err
		}
	}
}

// Push appends val, reclaiming oldest entries as needed to make room, and
// then continues popping while [BBPP.IsBelowRatio] holds so the arena
// keeps its configured headroom. Returns every index popped in the
// process, in the order they were popped.
func (b *BBPP) Push(val []byte) ([]uint64, error) {
	popped, err := b.pushOne(val)
	if err != nil {
		return nil, err
	}

	for b.IsBelowRatio() {
		idx, ok := b.TryPop()
		if !ok {
			break
		}

		popped = append(popped, idx)
	}

	return popped, nil
}

// IsBelowRatio reports whether free space has fallen under the configured
// free ratio.
func (b *BBPP) IsBelowRatio() bool {
	size := float64(b.ranges.size())
	capacity := float64(b.capacity)

	return 1.0-(size/capacity) < b.freeRatio
}

// TryPop reclaims the oldest entry, returning its offset. Returns
// ok=false if the read range is empty or if a protector still guards the
// oldest entry's byte span (spec §4.6 safety contract, P6).
func (b *BBPP) TryPop() (uint64, bool) {
	r := b.ranges.Read()

	start := r.Head()
	end := r.Tail()

	if start >= end {
		return 0, false
	}

	entryLen := b.readLenAt(start)
	full := lenSize + entryLen

	if _, _, protected := b.protectors.ProtectedRange(start, start+full); protected {
		return 0, false
	}

	if err := b.ranges.shrink(full); err != nil {
		return 0, false
	}

	return start, true
}
