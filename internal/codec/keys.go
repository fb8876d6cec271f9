// Package codec implements the stable key and record encodings used to
// persist the engine's two views: the global stream (keyed by position) and
// per-stream substreams (keyed by name + position).
//
// All encodings here are a byte-for-byte contract: changing field order,
// field count, or the wire format is a breaking change (spec §4.2, §6).
package codec

import (
	"errors"
	"fmt"
	"unicode/utf8"
)

// ErrParseKey reports a corrupt or non-conforming key encountered during
// decode. Fatal for the row it was read from; callers surface it per-item
// rather than aborting the whole scan.
var ErrParseKey = errors.New("codec: parse key")

// streamSep is the fixed separator byte between a stream name and its
// encoded position. Stream names must not contain it.
const streamSep = '|'

// ValidateStreamName reports whether name is a legal stream name: non-empty
// UTF-8 that does not contain the key separator byte.
func ValidateStreamName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: stream name is empty", ErrParseKey)
	}

	for i := 0; i < len(name); i++ {
		if name[i] == streamSep {
			return fmt.Errorf("%w: stream name %q contains reserved separator %q", ErrParseKey, name, streamSep)
		}
	}

	return nil
}

// GlobalKey is the 8-byte big-endian encoding of a 1-origin global position.
// Its byte ordering equals its numerical ordering, which is what a KV
// collaborator's byte-order prefix scan relies on for §4.4's global scan.
type GlobalKey uint64

// GlobalKeyLen is the fixed encoded length of a GlobalKey.
const GlobalKeyLen = 8

// Bytes encodes k as an 8-byte big-endian slice.
func (k GlobalKey) Bytes() []byte {
	buf := make([]byte, GlobalKeyLen)
	putUint64BE(buf, uint64(k))

	return buf
}

// AppendBytes appends k's encoding to buf and returns the extended slice.
func (k GlobalKey) AppendBytes(buf []byte) []byte {
	var tmp [GlobalKeyLen]byte
	putUint64BE(tmp[:], uint64(k))

	return append(buf, tmp[:]...)
}

// ParseGlobalKey decodes an 8-byte big-endian global key. It requires
// exactly 8 bytes; any other length is [ErrParseKey].
func ParseGlobalKey(b []byte) (GlobalKey, error) {
	if len(b) != GlobalKeyLen {
		return 0, fmt.Errorf("%w: global key length %d, want %d", ErrParseKey, len(b), GlobalKeyLen)
	}

	return GlobalKey(getUint64BE(b)), nil
}

// StreamKey is the decoded form of a stream-family key:
// utf8(name) || 0x7C || be64(encoded stream position).
type StreamKey struct {
	Name     string
	Position StreamPos
}

// Bytes encodes k as name_bytes || 0x7C || be64(encoded position).
func (k StreamKey) Bytes() []byte {
	buf := make([]byte, 0, len(k.Name)+1+GlobalKeyLen)
	buf = append(buf, k.Name...)
	buf = append(buf, streamSep)

	var tmp [GlobalKeyLen]byte
	putUint64BE(tmp[:], k.Position.encode())
	buf = append(buf, tmp[:]...)

	return buf
}

// streamKeyMinLen is the shortest possible encoding: a single-byte name,
// the separator, and the 8-byte position.
const streamKeyMinLen = 1 + 1 + GlobalKeyLen

// ParseStreamKey decodes a stream-family key. It requires length >= 10 with
// the separator byte at len-9 and a non-empty name prefix; the name must be
// valid UTF-8. Any violation is [ErrParseKey].
func ParseStreamKey(b []byte) (StreamKey, error) {
	if len(b) < streamKeyMinLen {
		return StreamKey{}, fmt.Errorf("%w: stream key length %d < %d", ErrParseKey, len(b), streamKeyMinLen)
	}

	sepIdx := len(b) - 1 - GlobalKeyLen
	if b[sepIdx] != streamSep {
		return StreamKey{}, fmt.Errorf("%w: stream key missing separator at offset %d", ErrParseKey, sepIdx)
	}

	name := b[:sepIdx]
	if len(name) == 0 {
		return StreamKey{}, fmt.Errorf("%w: stream key has empty name", ErrParseKey)
	}

	if !utf8.Valid(name) {
		return StreamKey{}, fmt.Errorf("%w: stream key name is not valid UTF-8", ErrParseKey)
	}

	pos := decodeStreamPos(getUint64BE(b[sepIdx+1:]))

	return StreamKey{Name: string(name), Position: pos}, nil
}

// MaxStreamKey returns the sentinel key used to seek to the tail of a
// stream's key range: name || 0x7C || be64(Relaxed max). Decoding the first
// key found scanning backwards from this sentinel yields the stream's
// current last position (spec §4.3 step 2).
func MaxStreamKey(name string) StreamKey {
	return StreamKey{Name: name, Position: MaxStreamPos()}
}

// StreamPrefix returns the byte prefix (name || 0x7C) common to every key
// belonging to name. Because a valid stream name never contains the
// separator byte, this prefix range can never alias a different, longer stream name
// (spec §4.3 "tie-breaks").
func StreamPrefix(name string) []byte {
	buf := make([]byte, 0, len(name)+1)
	buf = append(buf, name...)
	buf = append(buf, streamSep)

	return buf
}

func putUint64BE(buf []byte, v uint64) {
	_ = buf[7]
	buf[0] = byte(v >> 56)
	buf[1] = byte(v >> 48)
	buf[2] = byte(v >> 40)
	buf[3] = byte(v >> 32)
	buf[4] = byte(v >> 24)
	buf[5] = byte(v >> 16)
	buf[6] = byte(v >> 8)
	buf[7] = byte(v)
}

func getUint64BE(buf []byte) uint64 {
	_ = buf[7]

	return uint64(buf[0])<<56 | uint64(buf[1])<<48 | uint64(buf[2])<<40 | uint64(buf[3])<<32 |
		uint64(buf[4])<<24 | uint64(buf[5])<<16 | uint64(buf[6])<<8 | uint64(buf[7])
}
