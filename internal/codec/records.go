package codec

import (
	"errors"
	"fmt"
	"hash/crc32"
)

// ErrDeser reports a record codec failure on decode. Fatal for the row it
// was read from.
var ErrDeser = errors.New("codec: deserialize record")

// ErrSer reports a record codec failure on encode. Fatal for the write
// request that produced it.
var ErrSer = errors.New("codec: serialize record")

// recordCRC is computed over the encoded body (excluding the trailing CRC
// field itself) and appended to every record, the same integrity framing
// [crc32.MakeTable] gives the slotcache SLC1 header format.
var recordCRC = crc32.MakeTable(crc32.Castagnoli)

// GlobalRecord is the value stored at a GlobalKey (spec §3).
type GlobalRecord struct {
	ID             string
	StreamName     string
	StreamPosition uint64 // encoded StreamPos, see [EncodeStreamPos]
	MessageType    string
	Data           []byte
	Metadata       []byte
	Ord            uint64
}

// StreamRecord is the value stored at a StreamKey (spec §3).
type StreamRecord struct {
	GlobalPosition uint64
	ID             string
	MessageType    string
	Data           []byte
	Metadata       []byte
	Ord            uint64
}

// field encoding format, applied uniformly to every variable-length field:
// a big-endian uint32 length prefix followed by that many raw bytes.
// Fixed-width scalar fields are encoded big-endian, matching the key codec.

// EncodeGlobalRecord serializes r in field-declaration order: id, stream
// name, stream position, message type, data, metadata, ord, followed by a
// CRC32C trailer. This is a byte-for-byte contract (spec §4.2, §6).
func EncodeGlobalRecord(r GlobalRecord) []byte {
	size := 4 + len(r.ID) + 4 + len(r.StreamName) + 8 + 4 + len(r.MessageType) +
		4 + len(r.Data) + 4 + len(r.Metadata) + 8 + 4
	buf := make([]byte, 0, size)

	buf = appendString(buf, r.ID)
	buf = appendString(buf, r.StreamName)
	buf = appendUint64(buf, r.StreamPosition)
	buf = appendString(buf, r.MessageType)
	buf = appendBytes(buf, r.Data)
	buf = appendBytes(buf, r.Metadata)
	buf = appendUint64(buf, r.Ord)

	return appendCRC(buf)
}

// DecodeGlobalRecord is the inverse of [EncodeGlobalRecord]. Any truncation,
// length overrun, or CRC mismatch is [ErrDeser].
func DecodeGlobalRecord(b []byte) (GlobalRecord, error) {
	body, err := verifyCRC(b)
	if err != nil {
		return GlobalRecord{}, err
	}

	var r GlobalRecord

	dec := decoder{buf: body}
	r.ID = dec.string()
	r.StreamName = dec.string()
	r.StreamPosition = dec.uint64()
	r.MessageType = dec.string()
	r.Data = dec.bytes()
	r.Metadata = dec.bytes()
	r.Ord = dec.uint64()

	if dec.err != nil {
		return GlobalRecord{}, fmt.Errorf("%w: global record: %w", ErrDeser, dec.err)
	}

	if !dec.exhausted() {
		return GlobalRecord{}, fmt.Errorf("%w: global record: %d trailing bytes", ErrDeser, dec.remaining())
	}

	return r, nil
}

// EncodeStreamRecord serializes r in field-declaration order: global
// position, id, message type, data, metadata, ord, followed by a CRC32C
// trailer.
func EncodeStreamRecord(r StreamRecord) []byte {
	size := 8 + 4 + len(r.ID) + 4 + len(r.MessageType) + 4 + len(r.Data) +
		4 + len(r.Metadata) + 8 + 4
	buf := make([]byte, 0, size)

	buf = appendUint64(buf, r.GlobalPosition)
	buf = appendString(buf, r.ID)
	buf = appendString(buf, r.MessageType)
	buf = appendBytes(buf, r.Data)
	buf = appendBytes(buf, r.Metadata)
	buf = appendUint64(buf, r.Ord)

	return appendCRC(buf)
}

// DecodeStreamRecord is the inverse of [EncodeStreamRecord].
func DecodeStreamRecord(b []byte) (StreamRecord, error) {
	body, err := verifyCRC(b)
	if err != nil {
		return StreamRecord{}, err
	}

	var r StreamRecord

	dec := decoder{buf: body}
	r.GlobalPosition = dec.uint64()
	r.ID = dec.string()
	r.MessageType = dec.string()
	r.Data = dec.bytes()
	r.Metadata = dec.bytes()
	r.Ord = dec.uint64()

	if dec.err != nil {
		return StreamRecord{}, fmt.Errorf("%w: stream record: %w", ErrDeser, dec.err)
	}

	if !dec.exhausted() {
		return StreamRecord{}, fmt.Errorf("%w: stream record: %d trailing bytes", ErrDeser, dec.remaining())
	}

	return r, nil
}

func appendCRC(buf []byte) []byte {
	sum := crc32.Checksum(buf, recordCRC)

	return appendUint32(buf, sum)
}

func verifyCRC(b []byte) ([]byte, error) {
	if len(b) < 4 {
		return nil, fmt.Errorf("%w: record too short for CRC trailer (%d bytes)", ErrDeser, len(b))
	}

	body := b[:len(b)-4]
	trailer := b[len(b)-4:]

	want := crc32.Checksum(body, recordCRC)
	got := getUint32BE(trailer)

	if want != got {
		return nil, fmt.Errorf("%w: crc mismatch: computed %08x, stored %08x", ErrDeser, want, got)
	}

	return body, nil
}

func appendString(buf []byte, s string) []byte {
	buf = appendUint32(buf, uint32(len(s)))

	return append(buf, s...)
}

func appendBytes(buf []byte, b []byte) []byte {
	buf = appendUint32(buf, uint32(len(b)))

	return append(buf, b...)
}

func appendUint32(buf []byte, v uint32) []byte {
	return append(buf, byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}

func appendUint64(buf []byte, v uint64) []byte {
	var tmp [8]byte
	putUint64BE(tmp[:], v)

	return append(buf, tmp[:]...)
}

func getUint32BE(b []byte) uint32 {
	_ = b[3]

	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

// decoder walks a byte slice left to right, accumulating the first error
// encountered so call sites can chain field reads without checking after
// every call (mirrors the cursor style of slotcache's header decode helpers).
type decoder struct {
	buf []byte
	err error
}

func (d *decoder) remaining() int {
	return len(d.buf)
}

func (d *decoder) exhausted() bool {
	return d.err == nil && len(d.buf) == 0
}

func (d *decoder) take(n int) []byte {
	if d.err != nil {
		return nil
	}

	if n < 0 || n > len(d.buf) {
		d.err = fmt.Errorf("need %d bytes, have %d", n, len(d.buf))

		return nil
	}

	out := d.buf[:n]
	d.buf = d.buf[n:]

	return out
}

func (d *decoder) uint32() uint32 {
	b := d.take(4)
	if d.err != nil {
		return 0
	}

	return getUint32BE(b)
}

func (d *decoder) uint64() uint64 {
	b := d.take(8)
	if d.err != nil {
		return 0
	}

	return getUint64BE(b)
}

func (d *decoder) string() string {
	n := d.uint32()

	b := d.take(int(n))
	if d.err != nil {
		return ""
	}

	return string(b)
}

func (d *decoder) bytes() []byte {
	n := d.uint32()

	b := d.take(int(n))
	if d.err != nil {
		return nil
	}

	out := make([]byte, len(b))
	copy(out, b)

	return out
}
