package messlog

import (
	"testing"

	"github.com/calvinalkan/messlog/internal/kvstore/memkv"
)

func Test_LatestInStream_AfterFirstWrite(t *testing.T) {
	t.Parallel()

	store := memkv.New()
	w := newWriter(store, newTestClock())

	if _, _, err := w.write(WriteMessage{
		ID:          "I1",
		StreamName:  "s1",
		MessageType: "T",
		Data:        []byte("d"),
		Metadata:    []byte("m"),
	}); err != nil {
		t.Fatalf("write: %v", err)
	}

	r := newReader(store)

	msg, ok, err := r.LatestInStream("s1")
	if err != nil {
		t.Fatalf("latest: %v", err)
	}

	if !ok {
		t.Fatal("latest: expected a message")
	}

	if msg.GlobalPosition != 1 {
		t.Errorf("global position = %d, want 1", msg.GlobalPosition)
	}

	if !msg.StreamPosition.Equal(Serial(0)) {
		t.Errorf("stream position = %v, want Serial(0)", msg.StreamPosition)
	}

	if string(msg.Data) != "d" {
		t.Errorf("data = %q, want %q", msg.Data, "d")
	}

	if string(msg.Metadata) != "m" {
		t.Errorf("metadata = %q, want %q", msg.Metadata, "m")
	}
}

func Test_Metadata_EmptyBytesElideToNil(t *testing.T) {
	t.Parallel()

	store := memkv.New()
	w := newWriter(store, newTestClock())

	if _, _, err := w.write(WriteMessage{StreamName: "s1", Data: []byte("d"), Metadata: []byte{}}); err != nil {
		t.Fatalf("write: %v", err)
	}

	r := newReader(store)

	msg, ok, err := r.LatestInStream("s1")
	if err != nil {
		t.Fatalf("latest: %v", err)
	}

	if !ok {
		t.Fatal("expected a message")
	}

	if msg.Metadata != nil {
		t.Errorf("metadata = %v, want nil", msg.Metadata)
	}
}

func Test_LatestInStream_ReturnsFalse_WhenStreamDoesNotExist(t *testing.T) {
	t.Parallel()

	store := memkv.New()
	w := newWriter(store, newTestClock())

	if _, _, err := w.write(WriteMessage{StreamName: "other", Data: []byte("d")}); err != nil {
		t.Fatalf("write: %v", err)
	}

	r := newReader(store)

	_, ok, err := r.LatestInStream("missing")
	if err != nil {
		t.Fatalf("latest: %v", err)
	}

	if ok {
		t.Fatal("expected no message")
	}
}

func Test_GlobalMessages_StreamFilter(t *testing.T) {
	t.Parallel()

	store := memkv.New()
	w := newWriter(store, newTestClock())

	for i := 0; i < 3; i++ {
		if _, _, err := w.write(WriteMessage{StreamName: "a", Data: []byte("a")}); err != nil {
			t.Fatalf("write a: %v", err)
		}

		if _, _, err := w.write(WriteMessage{StreamName: "b", Data: []byte("b")}); err != nil {
			t.Fatalf("write b: %v", err)
		}
	}

	r := newReader(store)

	items := r.GlobalMessages(1, "a", 100)
	if len(items) != 3 {
		t.Fatalf("got %d items, want 3", len(items))
	}

	for _, it := range items {
		if it.Err != nil {
			t.Fatalf("item error: %v", it.Err)
		}

		if it.Message.StreamName != "a" {
			t.Fatalf("leaked stream %q", it.Message.StreamName)
		}
	}
}

func Test_StreamMessages_After_SkipsUpToAndIncludingPosition(t *testing.T) {
	t.Parallel()

	store := memkv.New()
	w := newWriter(store, newTestClock())

	for i := 0; i < 3; i++ {
		var expected *StreamPos
		if i > 0 {
			p := Serial(uint64(i - 1))
			expected = &p
		}

		if _, _, err := w.write(WriteMessage{StreamName: "s1", Data: []byte{byte(i)}, ExpectedPosition: expected}); err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
	}

	r := newReader(store)

	after := Serial(0)
	items := r.StreamMessages("s1", &after, 100)

	if len(items) != 2 {
		t.Fatalf("got %d items, want 2", len(items))
	}

	if items[0].Message.StreamPosition.N() != 1 {
		t.Errorf("first item stream pos = %d, want 1", items[0].Message.StreamPosition.N())
	}
}
