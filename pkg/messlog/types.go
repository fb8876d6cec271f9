// Package messlog implements an embedded, append-only event-log storage
// engine: every write is published to two views, a monotonically numbered
// global stream and a named per-stream substream, as a single atomic
// two-key commit validated against the stream's expected tail position.
//
// The underlying key-value engine is an external collaborator
// ([github.com/calvinalkan/messlog/internal/kvstore]); this package owns
// the write/read discipline, the hybrid logical clock, and the
// single-writer actor that serializes commits.
package messlog

import (
	"github.com/calvinalkan/messlog/internal/codec"
)

// StreamPos is a per-stream position: either a strict Serial slot (the only
// kind ever persisted) or a Relaxed, gap-tolerant sentinel used internally
// to probe a stream's tail.
type StreamPos struct {
	inner codec.StreamPos
}

// Serial constructs a strict, sequential stream position.
func Serial(n uint64) StreamPos { return StreamPos{inner: codec.Serial(n)} }

// Relaxed constructs a monotonic, gap-tolerant stream position.
func Relaxed(n uint64) StreamPos { return StreamPos{inner: codec.Relaxed(n)} }

// N returns the numeric sequence component, irrespective of variant.
func (p StreamPos) N() uint64 { return p.inner.N() }

// IsRelaxed reports whether p is the Relaxed variant.
func (p StreamPos) IsRelaxed() bool { return p.inner.IsRelaxed() }

// Next returns the canonical Serial successor: n+1.
func (p StreamPos) Next() StreamPos { return StreamPos{inner: p.inner.Next()} }

// Equal reports whether two positions share the same variant and number.
func (p StreamPos) Equal(o StreamPos) bool { return p.inner.Equal(o.inner) }

// String renders p for diagnostics, e.g. "Serial(3)".
func (p StreamPos) String() string { return p.inner.String() }

// Position identifies where a committed record landed in both views.
type Position struct {
	Global uint64
	Stream StreamPos
}

// Source tags which view a [Message] was fetched through. It carries no
// wire meaning — both record variants are always written together — and
// exists purely so tests and diagnostics can tell global scans and stream
// scans apart.
type Source int

const (
	// SourceGlobal marks a Message decoded from the global column family.
	SourceGlobal Source = iota
	// SourceStream marks a Message decoded from the stream column family.
	SourceStream
)

func (s Source) String() string {
	switch s {
	case SourceGlobal:
		return "GlobalView"
	case SourceStream:
		return "StreamView"
	default:
		return "Unknown"
	}
}

// Message is the merged read-side projection of either record variant,
// used uniformly by every reader entry point.
type Message struct {
	ID             string
	StreamName     string
	GlobalPosition uint64
	StreamPosition StreamPos
	MessageType    string
	Data           []byte
	Metadata       []byte // nil means "no metadata" (spec I5)
	Ord            uint64
	Source         Source
}

// WriteMessage is the input to a single append. ExpectedPosition is the
// caller's belief about the stream's current tail: nil means "this is the
// first write to the stream." ID may be empty, in which case a fresh
// UUIDv7 is generated.
type WriteMessage struct {
	ID               string
	StreamName       string
	MessageType      string
	Data             []byte
	Metadata         []byte
	ExpectedPosition *StreamPos
}

// Limit clamping, per spec §4.4: a missing (zero) limit becomes DefaultLimit,
// negative limits become MinLimit, oversized limits clamp to MaxLimit.
const (
	DefaultLimit = 1000
	MaxLimit     = 10000
	MinLimit     = 1
)

// clampLimit applies spec §4.4's clamp: an unspecified limit (the zero
// value of a plain int, since Go has no typed-optional request field here)
// defaults to DefaultLimit; an explicitly negative limit clamps up to
// MinLimit; anything above MaxLimit clamps down to it.
func clampLimit(n int) int {
	switch {
	case n == 0:
		return DefaultLimit
	case n < 0:
		return MinLimit
	case n > MaxLimit:
		return MaxLimit
	default:
		return n
	}
}
