package clocks

import (
	"sync"
	"testing"
)

func TestLamportIncrement(t *testing.T) {
	c := NewLamport(0)
	if ts := c.Increment(); ts != 1 {
		t.Error("Expected first increment to return 1, got", ts)
	}
	if ts := c.Increment(); ts != 2 {
		t.Error("Expected second increment to return 2, got", ts)
	}
	if ts := c.Time(); ts != 2 {
		t.Error("Expected time to be 2, got", ts)
	}
}

func TestLamportUpdateTakesMax(t *testing.T) {
	c := NewLamport(0)
	if ts := c.Update(5); ts != 6 {
		t.Error("Expected update with 5 to return 6, got", ts)
	}
	// A stale remote timestamp must still advance the clock.
	if ts := c.Update(2); ts != 7 {
		t.Error("Expected update with 2 to return 7, got", ts)
	}
}

func TestLamportConcurrentIncrements(t *testing.T) {
	c := NewLamport(0)
	numGoroutines := 10
	numIncrements := 100

	var wg sync.WaitGroup
	wg.Add(numGoroutines)
	for i := 0; i < numGoroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < numIncrements; j++ {
				c.Increment()
			}
		}()
	}
	wg.Wait()

	if ts := c.Time(); ts != uint64(numGoroutines*numIncrements) {
		t.Errorf("Expected time to be %d, got %d", numGoroutines*numIncrements, ts)
	}
}
