package messlog

import "errors"

// ErrWrongStreamPosition reports an optimistic-concurrency conflict: the
// caller's expected tail position for a stream no longer matches the
// stream's actual tail. Callers retry after re-reading the stream.
var ErrWrongStreamPosition = errors.New("messlog: wrong stream position")

// ErrParseKey reports a corrupt or non-conforming key encountered while
// decoding a row during a read. Fatal for that row only; readers surface it
// as a per-item error rather than aborting the whole scan.
var ErrParseKey = errors.New("messlog: parse key")

// ErrDeser reports a record codec failure on decode. Fatal for the row it
// was read from.
var ErrDeser = errors.New("messlog: deserialize record")

// ErrSer reports a record codec failure on encode. Fatal for the write
// request that produced it.
var ErrSer = errors.New("messlog: serialize record")

// ErrRead reports an underlying KV iterator failure encountered mid-scan.
// Surfaced per-item; the caller decides whether to keep consuming the rest
// of the iterator.
var ErrRead = errors.New("messlog: read error")

// ErrCancelled reports that the engine actor is shutting down. Terminal:
// once observed, the actor accepts no further requests.
var ErrCancelled = errors.New("messlog: cancelled")

// ErrInconceivable reports a logic invariant violated inside the engine —
// a programmer error, not a caller mistake. Terminal; callers should treat
// it as fatal and surface it for diagnosis rather than retry.
var ErrInconceivable = errors.New("messlog: inconceivable")

var errNilStore = errors.New("messlog: store is nil")

// WrongStreamPositionError carries the stream, the position the caller
// expected, and the position the engine actually found, for callers that
// need the detail beyond [ErrWrongStreamPosition].
type WrongStreamPositionError struct {
	Stream   string
	Expected *StreamPos // nil if the caller expected a brand-new stream
	Got      *StreamPos // nil if the stream does not exist yet
}

func (e *WrongStreamPositionError) Error() string {
	expected := "none"
	if e.Expected != nil {
		expected = e.Expected.String()
	}

	got := "none"
	if e.Got != nil {
		got = e.Got.String()
	}

	return "messlog: wrong stream position for " + e.Stream + ": expected " + expected + ", got " + got
}

func (e *WrongStreamPositionError) Unwrap() error {
	return ErrWrongStreamPosition
}
