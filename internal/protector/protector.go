// Package protector implements a fixed-size hazard-pointer pool: a bank of
// published reader indexes that a single writer consults before reclaiming
// (popping) entries from a shared ring buffer (spec §4.6).
//
// This is the standardized variant per spec §9's Open Questions: messlog
// uses hazard pointers, not a range-atomics-only scheme.
package protector

import (
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
)

// Unprotected is the sentinel slot value meaning "not currently guarding any
// index."
const Unprotected = ^uint64(0) // math.MaxUint64, avoiding the import for one constant

// ErrPoolExhausted reports that every slot in the pool is currently held.
// Returned by [Pool.TryGet]; [Pool.BlockingGet] instead waits for a release.
var ErrPoolExhausted = errors.New("protector: pool exhausted")

// Protection is the decoded state of a single slot: either Unprotected or
// ProtectedFrom a published index.
type Protection struct {
	index     uint64
	protected bool
}

// ProtectedFrom constructs a Protection reporting a published index.
func ProtectedFrom(index uint64) Protection {
	return Protection{index: index, protected: true}
}

// IsProtected reports whether p guards an index.
func (p Protection) IsProtected() bool {
	return p.protected
}

// Index returns the guarded index. Only meaningful when [Protection.IsProtected].
func (p Protection) Index() uint64 {
	return p.index
}

// cacheLineSize is sized to push each slot's atomic onto its own cache line,
// preventing false sharing between readers pinning unrelated slots.
const cacheLineSize = 64

// slot is a single cache-line-aligned hazard pointer. The zero value starts
// Unprotected.
type slot struct {
	state atomic.Uint64
	_     [cacheLineSize - 8]byte
}

func newSlot() *slot {
	s := &slot{}
	s.state.Store(Unprotected)

	return s
}

// Pool is a fixed-capacity bank of hazard-pointer slots shared by a single
// writer and many concurrent readers.
//
// The zero value is not usable; construct with [New].
type Pool struct {
	slots []*slot

	mu       sync.Mutex
	cond     *sync.Cond
	released bool // sticky release flag consumed and cleared by waiters
}

// New returns a Pool with capacity slots. A capacity <= 0 defaults to
// runtime.GOMAXPROCS(0), sizing the pool to the number of reader threads
// the runtime expects to schedule concurrently.
func New(capacity int) *Pool {
	if capacity <= 0 {
		capacity = runtime.GOMAXPROCS(0)
	}

	p := &Pool{slots: make([]*slot, capacity)}
	for i := range p.slots {
		p.slots[i] = newSlot()
	}

	p.cond = sync.NewCond(&p.mu)

	return p
}

// Capacity returns the number of slots in the pool.
func (p *Pool) Capacity() int {
	return len(p.slots)
}

// Borrowed is a handle on an acquired slot. The caller must call
// [Borrowed.Publish] to advertise the index it is about to read from, and
// must call [Borrowed.Release] (typically via defer) exactly once when done.
type Borrowed struct {
	pool *Pool
	slot *slot
	done bool
}

// Publish advertises index as the position this reader is observing. The
// writer's [Pool.ProtectedRange] will not reclaim any entry overlapping a
// published index until it is released.
func (b *Borrowed) Publish(index uint64) {
	b.slot.state.Store(index)
}

// Release returns the slot to the pool and wakes any blocked waiter. Safe to
// call multiple times; only the first call has effect.
func (b *Borrowed) Release() {
	if b.done {
		return
	}

	b.done = true
	b.slot.state.Store(Unprotected)
	b.pool.signalReleased()
}

func (p *Pool) signalReleased() {
	p.mu.Lock()
	p.released = true
	p.mu.Unlock()
	p.cond.Signal()
}

// TryGet acquires a free slot without blocking. Returns [ErrPoolExhausted] if
// every slot is currently held.
func (p *Pool) TryGet() (*Borrowed, error) {
	for _, s := range p.slots {
		if s.state.CompareAndSwap(Unprotected, 0) {
			return &Borrowed{pool: p, slot: s}, nil
		}
	}

	return nil, ErrPoolExhausted
}

// BlockingGet acquires a free slot, waiting for a release if the pool is
// currently full.
func (p *Pool) BlockingGet() *Borrowed {
	for {
		if b, err := p.TryGet(); err == nil {
			return b
		}

		p.mu.Lock()
		for !p.released {
			p.cond.Wait()
		}

		p.released = false
		p.mu.Unlock()
	}
}

// MinimumProtected returns the minimum ProtectedFrom index among slots whose
// published index falls within [lo, hi), or an unprotected [Protection] if
// none do.
func (p *Pool) MinimumProtected(lo, hi uint64) Protection {
	min := Protection{}
	found := false

	for _, s := range p.slots {
		v := s.state.Load()
		if v == Unprotected {
			continue
		}

		if v < lo || v >= hi {
			continue
		}

		if !found || v < min.index {
			min = ProtectedFrom(v)
			found = true
		}
	}

	return min
}

// ProtectedRange returns the sub-range of [lo, hi) that is still guarded by
// at least one protector, or ok=false if none guard any part of it. A writer
// reclaiming entries must not advance past protectedRange.lo when one is
// returned.
func (p *Pool) ProtectedRange(lo, hi uint64) (protectedLo, protectedHi uint64, ok bool) {
	min := p.MinimumProtected(lo, hi)
	if !min.IsProtected() {
		return 0, 0, false
	}

	return min.Index(), hi, true
}
