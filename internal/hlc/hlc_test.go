package hlc_test

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/calvinalkan/messlog/internal/hlc"
)

func Test_Next_StrictlyIncreases_AcrossConsecutiveCalls(t *testing.T) {
	t.Parallel()

	c := hlc.New()

	a, err := c.Next()
	if err != nil {
		t.Fatalf("next: %v", err)
	}

	b, err := c.Next()
	if err != nil {
		t.Fatalf("next: %v", err)
	}

	if b <= a {
		t.Fatalf("expected strictly increasing ticks, got a=%d b=%d", a, b)
	}
}

// Contract: a wall clock that runs backwards must never regress Last; the
// logical offset absorbs the regression instead.
func Test_Next_AbsorbsBackwardsClock(t *testing.T) {
	t.Parallel()

	c := hlc.New()

	forward := time.Date(2026, 1, 1, 0, 0, 1, 0, time.UTC)
	backward := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

	hackClockNow(t, c, forward)

	first, err := c.Next()
	if err != nil {
		t.Fatalf("next: %v", err)
	}

	hackClockNow(t, c, backward)

	second, err := c.Next()
	if err != nil {
		t.Fatalf("next: %v", err)
	}

	if second <= first {
		t.Fatalf("last regressed: first=%d second=%d", first, second)
	}

	if c.Last() != second {
		t.Fatalf("last = %d, want %d", c.Last(), second)
	}
}

func Test_Observe_NeverRegressesLast(t *testing.T) {
	t.Parallel()

	c := hlc.New()

	first, err := c.Next()
	if err != nil {
		t.Fatalf("next: %v", err)
	}

	c.Observe(hlc.NewTick(0, 0))
	if c.Last() != first {
		t.Fatalf("observe regressed last: %d != %d", c.Last(), first)
	}

	higher := hlc.NewTick(first.Wall()+10, 0)
	c.Observe(higher)

	if c.Last() != higher {
		t.Fatalf("observe did not advance: got %d want %d", c.Last(), higher)
	}
}

// P5: across any interleaving of Observe and Next, Last is non-decreasing.
func Test_Property_ConcurrentObserveAndNext_LastNeverRegresses(t *testing.T) {
	t.Parallel()

	c := hlc.New()

	const goroutines = 16
	const iterations = 200

	var wg sync.WaitGroup

	for g := 0; g < goroutines; g++ {
		wg.Add(1)

		go func(seed uint64) {
			defer wg.Done()

			for i := 0; i < iterations; i++ {
				if i%2 == 0 {
					_, _ = c.Next()
				} else {
					c.Observe(hlc.NewTick(seed+uint64(i), 0))
				}
			}
		}(uint64(g) * 1000)
	}

	prev := uint64(0)
	done := make(chan struct{})

	go func() {
		defer close(done)

		for i := 0; i < iterations*goroutines; i++ {
			cur := c.Last().Uint64()
			if cur < prev {
				t.Errorf("last regressed: %d -> %d", prev, cur)
			}

			prev = cur
		}
	}()

	wg.Wait()
	<-done
}

func Test_Next_OffsetOverflow_IsFatal(t *testing.T) {
	t.Parallel()

	c := hlc.New()
	hackClockNow(t, c, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

	for i := 0; i < 1<<16; i++ {
		if _, err := c.Next(); err != nil {
			t.Fatalf("unexpected error at iteration %d: %v", i, err)
		}
	}

	_, err := c.Next()
	if !errors.Is(err, hlc.ErrOffsetOverflow) {
		t.Fatalf("expected ErrOffsetOverflow, got %v", err)
	}
}

// hackClockNow pins the clock's wall-time source to a fixed instant so tests
// are deterministic. Uses the unexported now field via a same-package test
// helper defined in export_test.go.
func hackClockNow(t *testing.T, c *hlc.Clock, at time.Time) {
	t.Helper()
	hlc.SetNowForTest(c, at)
}
