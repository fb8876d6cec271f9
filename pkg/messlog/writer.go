package messlog

import (
	"fmt"

	"github.com/calvinalkan/messlog/internal/codec"
	"github.com/calvinalkan/messlog/internal/hlc"
	"github.com/calvinalkan/messlog/internal/kvstore"
	"github.com/google/uuid"
)

// writer is the single-writer append path (spec §4.3). It is not safe for
// concurrent use by design — the engine actor is the only caller that may
// ever invoke [writer.write], which is what makes lastGlobal a sound cache
// rather than a shared mutable static (spec §9 design note).
type writer struct {
	store      kvstore.Store
	clock      *hlc.Clock
	lastGlobal uint64 // 0 means "unknown, must resolve from storage"
}

func newWriter(store kvstore.Store, clock *hlc.Clock) *writer {
	return &writer{store: store, clock: clock}
}

// write runs the full §4.3 pipeline: resolve next global position, validate
// the caller's expected stream position, stamp an HLC tick, and commit both
// record variants as a single atomic batch. It returns the encoded global
// record value alongside the position so the engine actor can stage it into
// the in-process staging ring (spec §4.5) without a second KV read.
func (w *writer) write(msg WriteMessage) (Position, []byte, error) {
	if err := codec.ValidateStreamName(msg.StreamName); err != nil {
		return Position{}, nil, fmt.Errorf("write: %w", err)
	}

	id := msg.ID
	if id == "" {
		generated, err := uuid.NewV7()
		if err != nil {
			return Position{}, nil, fmt.Errorf("write: generate id: %w", err)
		}

		id = generated.String()
	}

	nextGlobal, err := w.resolveNextGlobal()
	if err != nil {
		return Position{}, nil, fmt.Errorf("write: %w", err)
	}

	nextStream, err := w.resolveNextStreamPosition(msg.StreamName, msg.ExpectedPosition)
	if err != nil {
		return Position{}, nil, err // already wrapped/typed below
	}

	ord, err := w.clock.Next()
	if err != nil {
		return Position{}, nil, fmt.Errorf("write: %w", err)
	}

	globalRec := codec.GlobalRecord{
		ID:             id,
		StreamName:     msg.StreamName,
		StreamPosition: codec.EncodeStreamPos(nextStream.inner),
		MessageType:    msg.MessageType,
		Data:           msg.Data,
		Metadata:       msg.Metadata,
		Ord:            ord.Uint64(),
	}

	streamRec := codec.StreamRecord{
		GlobalPosition: nextGlobal,
		ID:             id,
		MessageType:    msg.MessageType,
		Data:           msg.Data,
		Metadata:       msg.Metadata,
		Ord:            ord.Uint64(),
	}

	globalKey := codec.GlobalKey(nextGlobal)
	streamKey := codec.StreamKey{Name: msg.StreamName, Position: nextStream.inner}
	encodedGlobal := codec.EncodeGlobalRecord(globalRec)

	batch := w.store.NewBatch()
	batch.Put(kvstore.Global, globalKey.Bytes(), encodedGlobal)
	batch.Put(kvstore.Stream, streamKey.Bytes(), codec.EncodeStreamRecord(streamRec))

	if err := batch.Commit(); err != nil {
		// No cache update on failure (spec §4.3 step 9): lastGlobal keeps
		// the last committed position, which nothing has moved past.
		return Position{}, nil, fmt.Errorf("write: commit: %w", err)
	}

	w.lastGlobal = nextGlobal

	return Position{Global: nextGlobal, Stream: nextStream}, encodedGlobal, nil
}

// resolveNextGlobal returns the position the next record should occupy,
// reverse-scanning storage while no write has committed through this writer
// yet (lastGlobal is still 0); afterwards it uses the cached lastGlobal.
func (w *writer) resolveNextGlobal() (uint64, error) {
	if w.lastGlobal != 0 {
		return w.lastGlobal + 1, nil
	}

	it := w.store.ScanReverse(kvstore.Global, nil)
	defer func() { _ = it.Close() }()

	it.Next()
	if !it.Valid() {
		if err := it.Err(); err != nil {
			return 0, fmt.Errorf("%w: %w", ErrRead, err)
		}

		return 1, nil
	}

	last, err := codec.ParseGlobalKey(it.Key())
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrParseKey, err)
	}

	return uint64(last) + 1, nil
}

// resolveNextStreamPosition reverse-scans the stream column family from the
// stream's sentinel max key to find its current tail, validates it against
// expected, and returns the position the new record should occupy.
func (w *writer) resolveNextStreamPosition(name string, expected *StreamPos) (StreamPos, error) {
	last, err := w.lastStreamPosition(name)
	if err != nil {
		return StreamPos{}, err
	}

	switch {
	case expected == nil && last == nil:
		return Serial(0), nil
	case expected != nil && last != nil && expected.Equal(*last):
		return expected.Next(), nil
	default:
		return StreamPos{}, &WrongStreamPositionError{Stream: name, Expected: expected, Got: last}
	}
}

// lastStreamPosition returns the current tail of name's Serial sequence, or
// nil if the stream has no records yet. A reverse scan landing on a
// different stream's row (byte-prefix aliasing, e.g. "s1" vs "s12") is
// rejected by the exact name-equality check spec §4.3's "tie-breaks" note
// describes.
func (w *writer) lastStreamPosition(name string) (*StreamPos, error) {
	it := w.store.ScanReverse(kvstore.Stream, codec.MaxStreamKey(name).Bytes())
	defer func() { _ = it.Close() }()

	it.Next()
	if !it.Valid() {
		if err := it.Err(); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrRead, err)
		}

		return nil, nil
	}

	key, err := codec.ParseStreamKey(it.Key())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParseKey, err)
	}

	if key.Name != name {
		return nil, nil
	}

	pos := StreamPos{inner: key.Position}

	return &pos, nil
}
