// Package hlc implements a hybrid logical clock: a 64-bit tick that is
// strictly non-decreasing across the process and stays loosely aligned to
// wall-clock time.
//
// The high 48 bits encode elapsed 50ms ticks since [epoch]; the low 16 bits
// are a logical counter that advances when the wall clock does not (or goes
// backwards). Total monotonicity is the only hard guarantee; wall-clock
// alignment is best-effort.
package hlc

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"
)

// epoch anchors the wall-clock component. Using a fixed epoch (rather than
// the Unix epoch) keeps the 48-bit wall-clock field from overflowing for
// centuries at 50ms resolution.
var epoch = time.Date(2020, time.January, 1, 0, 0, 0, 0, time.UTC)

const (
	resolution  = 50 * time.Millisecond
	offsetBits  = 16
	offsetMask  = 1<<offsetBits - 1
	maxWallTime = 1<<(64-offsetBits) - 1
)

// ErrOffsetOverflow reports that more than 2^16 ticks were observed inside a
// single 50ms wall-clock bucket. This is not expected at realistic write
// rates and is treated as a fatal condition by [Clock.Next].
var ErrOffsetOverflow = errors.New("hlc: logical offset overflow")

// Tick is a single HLC value: a wall-clock bucket in the high 48 bits and a
// logical offset in the low 16 bits.
type Tick uint64

// NewTick builds a Tick from a wall-clock bucket and logical offset.
func NewTick(wall uint64, offset uint16) Tick {
	return Tick(wall<<offsetBits | uint64(offset))
}

// Wall returns the 48-bit wall-clock bucket component.
func (t Tick) Wall() uint64 {
	return uint64(t) >> offsetBits
}

// Offset returns the 16-bit logical offset component.
func (t Tick) Offset() uint16 {
	return uint16(uint64(t) & offsetMask)
}

// Uint64 returns the tick's raw 64-bit encoding, as persisted in the `ord`
// field of a record.
func (t Tick) Uint64() uint64 {
	return uint64(t)
}

// TickFromUint64 decodes a previously-persisted `ord` value back into a Tick.
func TickFromUint64(v uint64) Tick {
	return Tick(v)
}

// wallBucket converts a wall-clock reading into the encoder's 50ms bucket
// count since [epoch]. Times before the epoch clamp to zero.
func wallBucket(now time.Time) uint64 {
	d := now.Sub(epoch)
	if d < 0 {
		return 0
	}

	bucket := uint64(d / resolution)
	if bucket > maxWallTime {
		bucket = maxWallTime
	}

	return bucket
}

// Clock is a process-wide hybrid logical clock. The zero value is not usable;
// call [New].
//
// Clock is safe for concurrent use: [Clock.Next] and [Clock.Observe] are
// CAS-loops over a single atomic word, so a concurrent Observe racing a Next
// can never be silently lost the way a plain store would lose it.
type Clock struct {
	last atomic.Uint64
	now  func() time.Time
}

// New returns a Clock seeded at the zero tick. Use [Clock.SeedFrom] to
// restore a high-water mark recovered from persisted storage before serving
// any writes, so `ord` does not regress across a process restart.
func New() *Clock {
	return &Clock{now: time.Now}
}

// SeedFrom advances the clock's high-water mark to at least t without
// otherwise perturbing it. Intended to be called once at engine startup with
// the `ord` of the most recently committed global record, if any.
func (c *Clock) SeedFrom(t Tick) {
	c.Observe(t)
}

// Last returns the current high-water mark.
func (c *Clock) Last() Tick {
	return Tick(c.last.Load())
}

// Observe advances the clock's high-water mark to t if t is newer than the
// current value. It never regresses last. Safe for concurrent use; losing
// races with other Observe/Next callers are retried via CAS.
func (c *Clock) Observe(t Tick) {
	for {
		cur := c.last.Load()
		if uint64(t) <= cur {
			return
		}

		if c.last.CompareAndSwap(cur, uint64(t)) {
			return
		}
	}
}

// Next computes a new tick strictly greater than every previously issued
// tick and at least as large as the current wall-clock reading, and advances
// the clock's high-water mark to it.
//
// If the wall clock has not advanced since the last tick (or has gone
// backwards), the logical offset is bumped instead. If the offset would
// overflow 16 bits within a single 50ms bucket, Next returns
// [ErrOffsetOverflow] without advancing last — callers should treat this as
// fatal, since it signals a write rate far outside realistic operation.
func (c *Clock) Next() (Tick, error) {
	wall := wallBucket(c.now())

	for {
		cur := Tick(c.last.Load())

		var next Tick
		switch {
		case wall > cur.Wall():
			next = NewTick(wall, 0)
		case wall == cur.Wall():
			if cur.Offset() == offsetMask {
				return 0, fmt.Errorf("next: bucket %d: %w", wall, ErrOffsetOverflow)
			}

			next = NewTick(wall, cur.Offset()+1)
		default: // wall < cur.Wall(): clock went backwards, absorb via offset bump
			if cur.Offset() == offsetMask {
				return 0, fmt.Errorf("next: bucket %d: %w", cur.Wall(), ErrOffsetOverflow)
			}

			next = NewTick(cur.Wall(), cur.Offset()+1)
		}

		if c.last.CompareAndSwap(uint64(cur), uint64(next)) {
			return next, nil
		}
		// Lost the race to a concurrent Next/Observe; re-read and retry.
	}
}
