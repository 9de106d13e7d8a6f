package clocks

import (
	"testing"

	"github.com/DistributedClocks/GoVector/govec/vclock"
)

func vc(pairs map[string]uint64) vclock.VClock {
	return vclock.VClock(pairs)
}

func TestVectorIncrement(t *testing.T) {
	v := NewVector("A", []string{"A", "B", "C"})

	snap := v.Increment()
	if ticks, _ := snap.FindTicks("A"); ticks != 1 {
		t.Error("Expected A's slot to be 1, got", ticks)
	}
	if ticks, _ := snap.FindTicks("B"); ticks != 0 {
		t.Error("Expected B's slot to stay 0, got", ticks)
	}
}

func TestVectorUpdateMergesAndTicks(t *testing.T) {
	v := NewVector("A", []string{"A", "B", "C"})
	v.Increment()

	snap := v.Update(vc(map[string]uint64{"A": 0, "B": 3, "C": 1}))
	if ticks, _ := snap.FindTicks("A"); ticks != 2 {
		t.Error("Expected A's slot to be 2 after merge+tick, got", ticks)
	}
	if ticks, _ := snap.FindTicks("B"); ticks != 3 {
		t.Error("Expected B's slot to be 3, got", ticks)
	}
	if ticks, _ := snap.FindTicks("C"); ticks != 1 {
		t.Error("Expected C's slot to be 1, got", ticks)
	}
}

func TestVectorSnapshotIsACopy(t *testing.T) {
	v := NewVector("A", []string{"A", "B"})
	snap := v.Snapshot()
	snap.Set("A", 42)

	if ticks, _ := v.Snapshot().FindTicks("A"); ticks != 0 {
		t.Error("Mutating a snapshot must not affect the clock; A's slot is", ticks)
	}
}

func TestCompare(t *testing.T) {
	cases := []struct {
		name     string
		a, b     vclock.VClock
		expected Ordering
	}{
		{"equal", vc(map[string]uint64{"A": 1, "B": 1}), vc(map[string]uint64{"A": 1, "B": 1}), Concurrent},
		{"before", vc(map[string]uint64{"A": 1, "B": 1}), vc(map[string]uint64{"A": 2, "B": 1}), Before},
		{"after", vc(map[string]uint64{"A": 2, "B": 1}), vc(map[string]uint64{"A": 1, "B": 1}), After},
		{"concurrent", vc(map[string]uint64{"A": 2, "B": 1}), vc(map[string]uint64{"A": 1, "B": 2}), Concurrent},
		{"missing slot counts as zero", vc(map[string]uint64{"A": 1}), vc(map[string]uint64{"A": 1, "B": 2}), Before},
		{"missing zero slot is equal", vc(map[string]uint64{"A": 1}), vc(map[string]uint64{"A": 1, "B": 0}), Concurrent},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := Compare(c.a, c.b); got != c.expected {
				t.Errorf("Compare(%v, %v) = %v, expected %v", c.a, c.b, got, c.expected)
			}
		})
	}
}
