package codec

import "fmt"

// relaxedBit tags the high bit of an encoded stream position to distinguish
// Serial from Relaxed (spec §3). The remaining 63 bits carry the sequence
// number, which is ample: a stream would need 2^63 appends before this
// becomes a real constraint.
const relaxedBit = uint64(1) << 63

// StreamPos is a tagged per-stream position. Serial positions are strict:
// the only valid successor of n is n+1, and they are what is ever persisted.
// Relaxed positions are monotonic but tolerate gaps; they exist only as
// internal sentinel probes (e.g. [MaxStreamPos]) and are never written to
// storage (spec §9 Open Questions).
type StreamPos struct {
	n       uint64
	relaxed bool
}

// Serial constructs a strict sequential stream position.
func Serial(n uint64) StreamPos {
	return StreamPos{n: n, relaxed: false}
}

// Relaxed constructs a monotonic, gap-tolerant stream position.
func Relaxed(n uint64) StreamPos {
	return StreamPos{n: n, relaxed: true}
}

// MaxStreamPos returns the largest possible Relaxed value, used to seek to
// the tail of a stream's key range via reverse scan (spec §4.3 step 2).
func MaxStreamPos() StreamPos {
	return Relaxed(relaxedBit - 1)
}

// N returns the numeric sequence component, irrespective of variant.
func (p StreamPos) N() uint64 {
	return p.n
}

// IsRelaxed reports whether p is the Relaxed variant.
func (p StreamPos) IsRelaxed() bool {
	return p.relaxed
}

// Next returns the canonical successor of a Serial position: n+1. Calling
// Next on a Relaxed position still returns n+1, Serial — Relaxed values are
// never advanced in place, only probed.
func (p StreamPos) Next() StreamPos {
	return Serial(p.n + 1)
}

// Equal reports whether two positions have the same variant and number.
func (p StreamPos) Equal(o StreamPos) bool {
	return p.n == o.n && p.relaxed == o.relaxed
}

// String renders p for diagnostics, e.g. "Serial(3)" or "Relaxed(7)".
func (p StreamPos) String() string {
	if p.relaxed {
		return fmt.Sprintf("Relaxed(%d)", p.n)
	}

	return fmt.Sprintf("Serial(%d)", p.n)
}

// encode packs p into the single u64 persisted as part of a StreamKey: the
// high bit carries the variant tag, the low 63 bits carry n.
func (p StreamPos) encode() uint64 {
	if p.relaxed {
		return relaxedBit | (p.n &^ relaxedBit)
	}

	return p.n &^ relaxedBit
}

// decodeStreamPos is the inverse of encode.
func decodeStreamPos(v uint64) StreamPos {
	if v&relaxedBit != 0 {
		return Relaxed(v &^ relaxedBit)
	}

	return Serial(v)
}

// EncodeStreamPos exposes the StreamKey position encoding for callers (e.g.
// record codecs) that store an encoded stream position as a scalar field
// rather than as part of a key.
func EncodeStreamPos(p StreamPos) uint64 {
	return p.encode()
}

// DecodeStreamPos is the exported inverse of [EncodeStreamPos].
func DecodeStreamPos(v uint64) StreamPos {
	return decodeStreamPos(v)
}
