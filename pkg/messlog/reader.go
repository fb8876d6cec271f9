package messlog

import (
	"bytes"
	"fmt"

	"github.com/calvinalkan/messlog/internal/codec"
	"github.com/calvinalkan/messlog/internal/kvstore"
)

// reader implements the three §4.4 read entry points against a
// [kvstore.Store]. Unlike writer, reader holds no cached state, so nothing
// in it needs serializing; the engine actor still runs reads on its single
// loop, one request at a time, interleaved with writes.
type reader struct {
	store kvstore.Store
}

func newReader(store kvstore.Store) *reader {
	return &reader{store: store}
}

// Item is one slot of a materialized read result: either a decoded Message
// or the error encountered decoding that particular row. Per-item errors
// never abort the rest of the scan (spec §4.4, §7 propagation policy).
type Item struct {
	Message Message
	Err     error
}

// GlobalMessages scans the global column family forward starting at
// globalPos (1-origin; 0 and 1 both start at the first record), optionally
// filtering by stream name, up to limit items.
func (r *reader) GlobalMessages(globalPos uint64, streamFilter string, limit int) []Item {
	limit = clampLimit(limit)

	start := codec.GlobalKey(globalPos)
	if globalPos == 0 {
		start = codec.GlobalKey(1)
	}

	it := r.store.Scan(kvstore.Global, start.Bytes())
	defer func() { _ = it.Close() }()

	items := make([]Item, 0, limit)

	for len(items) < limit {
		it.Next()
		if !it.Valid() {
			if err := it.Err(); err != nil {
				items = append(items, Item{Err: fmt.Errorf("%w: %w", ErrRead, err)})
			}

			break
		}

		key, rec, err := decodeGlobalRow(it.Key(), it.Value())
		if err != nil {
			items = append(items, Item{Err: err})

			continue
		}

		if streamFilter != "" && rec.StreamName != streamFilter {
			continue
		}

		items = append(items, Item{Message: globalRecordToMessage(key, rec)})
	}

	return items
}

// StreamMessages scans the stream column family forward over name's
// contiguous prefix range, starting at streamPos (nil means from the
// beginning), up to limit items. The scan stops as soon as a decoded key's
// name diverges from name — the "take_while" terminator of spec §4.4 — and
// that terminator never itself becomes an error item.
func (r *reader) StreamMessages(name string, streamPos *StreamPos, limit int) []Item {
	limit = clampLimit(limit)

	start := codec.StreamPrefix(name)
	if streamPos != nil {
		after := streamPos.Next()
		start = codec.StreamKey{Name: name, Position: after.inner}.Bytes()
	}

	it := r.store.Scan(kvstore.Stream, start)
	defer func() { _ = it.Close() }()

	prefix := codec.StreamPrefix(name)
	items := make([]Item, 0, limit)

	for len(items) < limit {
		it.Next()
		if !it.Valid() {
			if err := it.Err(); err != nil {
				items = append(items, Item{Err: fmt.Errorf("%w: %w", ErrRead, err)})
			}

			break
		}

		if !bytes.HasPrefix(it.Key(), prefix) {
			break
		}

		key, rec, err := decodeStreamRow(it.Key(), it.Value())
		if err != nil {
			items = append(items, Item{Err: err})

			continue
		}

		items = append(items, Item{Message: streamRecordToMessage(key, rec)})
	}

	return items
}

// LatestInStream returns the most recently appended record in name, or
// (Message{}, false, nil) if the stream has no records yet.
func (r *reader) LatestInStream(name string) (Message, bool, error) {
	it := r.store.ScanReverse(kvstore.Stream, codec.MaxStreamKey(name).Bytes())
	defer func() { _ = it.Close() }()

	it.Next()
	if !it.Valid() {
		if err := it.Err(); err != nil {
			return Message{}, false, fmt.Errorf("%w: %w", ErrRead, err)
		}

		return Message{}, false, nil
	}

	key, rec, err := decodeStreamRow(it.Key(), it.Value())
	if err != nil {
		return Message{}, false, err
	}

	if key.Name != name {
		return Message{}, false, nil
	}

	return streamRecordToMessage(key, rec), true, nil
}

func decodeGlobalRow(k, v []byte) (codec.GlobalKey, codec.GlobalRecord, error) {
	key, err := codec.ParseGlobalKey(k)
	if err != nil {
		return 0, codec.GlobalRecord{}, fmt.Errorf("%w: %w", ErrParseKey, err)
	}

	rec, err := codec.DecodeGlobalRecord(v)
	if err != nil {
		return 0, codec.GlobalRecord{}, fmt.Errorf("%w: %w", ErrDeser, err)
	}

	return key, rec, nil
}

func decodeStreamRow(k, v []byte) (codec.StreamKey, codec.StreamRecord, error) {
	key, err := codec.ParseStreamKey(k)
	if err != nil {
		return codec.StreamKey{}, codec.StreamRecord{}, fmt.Errorf("%w: %w", ErrParseKey, err)
	}

	rec, err := codec.DecodeStreamRecord(v)
	if err != nil {
		return codec.StreamKey{}, codec.StreamRecord{}, fmt.Errorf("%w: %w", ErrDeser, err)
	}

	return key, rec, nil
}

func globalRecordToMessage(key codec.GlobalKey, rec codec.GlobalRecord) Message {
	return Message{
		ID:             rec.ID,
		StreamName:     rec.StreamName,
		GlobalPosition: uint64(key),
		StreamPosition: StreamPos{inner: codec.DecodeStreamPos(rec.StreamPosition)},
		MessageType:    rec.MessageType,
		Data:           rec.Data,
		Metadata:       nonEmpty(rec.Metadata),
		Ord:            rec.Ord,
		Source:         SourceGlobal,
	}
}

func streamRecordToMessage(key codec.StreamKey, rec codec.StreamRecord) Message {
	return Message{
		ID:             rec.ID,
		StreamName:     key.Name,
		GlobalPosition: rec.GlobalPosition,
		StreamPosition: StreamPos{inner: key.Position},
		MessageType:    rec.MessageType,
		Data:           rec.Data,
		Metadata:       nonEmpty(rec.Metadata),
		Ord:            rec.Ord,
		Source:         SourceStream,
	}
}

// nonEmpty maps a zero-length metadata slice to nil, per spec I5 ("empty
// metadata bytes mean no metadata").
func nonEmpty(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}

	return b
}
