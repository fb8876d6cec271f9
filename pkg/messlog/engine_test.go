package messlog

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/calvinalkan/messlog/internal/kvstore/memkv"
)

func Test_Engine_PutMessage_AndFetchGlobal(t *testing.T) {
	t.Parallel()

	e, err := Open(memkv.New())
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	t.Cleanup(func() {
		e.Kill()
		e.Wait()
	})

	ctx := context.Background()

	pos, err := e.PutMessage(ctx, WriteMessage{StreamName: "s1", Data: []byte("d")})
	if err != nil {
		t.Fatalf("put: %v", err)
	}

	if pos.Global != 1 {
		t.Fatalf("global = %d, want 1", pos.Global)
	}

	items, err := e.FetchMessages(ctx, NewGlobalRead(1).Build())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}

	if len(items) != 1 {
		t.Fatalf("got %d items, want 1", len(items))
	}

	if items[0].Err != nil {
		t.Fatalf("item error: %v", items[0].Err)
	}

	if string(items[0].Message.Data) != "d" {
		t.Fatalf("data = %q, want %q", items[0].Message.Data, "d")
	}
}

func Test_Engine_FetchMessages_StreamAt_ReturnsLatest(t *testing.T) {
	t.Parallel()

	e, err := Open(memkv.New())
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	t.Cleanup(func() {
		e.Kill()
		e.Wait()
	})

	ctx := context.Background()

	if _, err := e.PutMessage(ctx, WriteMessage{StreamName: "s1", Data: []byte("1")}); err != nil {
		t.Fatalf("put 1: %v", err)
	}

	if _, err := e.PutMessage(ctx, WriteMessage{StreamName: "s1", Data: []byte("2"), ExpectedPosition: serialPtr(0)}); err != nil {
		t.Fatalf("put 2: %v", err)
	}

	items, err := e.FetchMessages(ctx, NewStreamAtRead("s1"))
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}

	if len(items) != 1 {
		t.Fatalf("got %d items, want 1", len(items))
	}

	if string(items[0].Message.Data) != "2" {
		t.Fatalf("data = %q, want %q", items[0].Message.Data, "2")
	}
}

func Test_Engine_Kill_RejectsSubsequentRequests(t *testing.T) {
	t.Parallel()

	e, err := Open(memkv.New())
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	e.Kill()
	e.Wait()

	_, err = e.PutMessage(context.Background(), WriteMessage{StreamName: "s1", Data: []byte("d")})
	if !errors.Is(err, ErrCancelled) {
		t.Fatalf("got %v, want ErrCancelled", err)
	}
}

func Test_Engine_ConcurrentWrites_GlobalPositionsAreGaplessAndUnique(t *testing.T) {
	t.Parallel()

	e, err := Open(memkv.New())
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	t.Cleanup(func() {
		e.Kill()
		e.Wait()
	})

	const writers = 8

	const perWriter = 25

	var wg sync.WaitGroup

	positions := make(chan uint64, writers*perWriter)

	for i := 0; i < writers; i++ {
		wg.Add(1)

		go func(i int) {
			defer wg.Done()

			ctx := context.Background()

			for j := 0; j < perWriter; j++ {
				pos, err := e.PutMessage(ctx, WriteMessage{StreamName: "shared", Data: []byte{byte(i), byte(j)}})
				if err != nil {
					t.Errorf("put: %v", err)

					return
				}

				positions <- pos.Global
			}
		}(i)
	}

	wg.Wait()
	close(positions)

	seen := make(map[uint64]bool)

	for p := range positions {
		if seen[p] {
			t.Fatalf("duplicate global position %d", p)
		}

		seen[p] = true
	}

	want := writers * perWriter
	if len(seen) != want {
		t.Fatalf("got %d unique positions, want %d", len(seen), want)
	}

	for i := 1; i <= want; i++ {
		if !seen[uint64(i)] {
			t.Fatalf("gap at global position %d", i)
		}
	}
}
