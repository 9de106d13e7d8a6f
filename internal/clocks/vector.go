package clocks

import (
	"sync"

	"github.com/DistributedClocks/GoVector/govec/vclock"
)

// Ordering is the result of comparing two vector timestamps.
type Ordering int

const (
	// Before means every slot of the left vector is <= the right one's, with
	// at least one strictly less.
	Before Ordering = iota
	// After is the symmetric of Before.
	After
	// Concurrent means neither vector precedes the other.
	Concurrent
)

func (o Ordering) String() string {
	switch o {
	case Before:
		return "BEFORE"
	case After:
		return "AFTER"
	default:
		return "CONCURRENT"
	}
}

// Vector is a vector logical clock with one slot per group member.
//
// The slot map is a [vclock.VClock]; the clock owns its own copy and only
// ever hands out snapshots, so callers may not mutate the clock through a
// returned vector. Safe for concurrent use, for the same reason as [Lamport].
type Vector struct {
	mu   sync.Mutex
	self string
	vc   vclock.VClock
}

// NewVector constructs a vector clock owned by self, with one zeroed slot
// per member. Self must be one of the members.
func NewVector(self string, members []string) *Vector {
	vc := vclock.New()
	for _, m := range members {
		vc.Set(m, 0)
	}
	vc.Set(self, 0)
	return &Vector{self: self, vc: vc}
}

// Increment ticks the owning process's slot and returns a snapshot of the
// new vector.
func (v *Vector) Increment() vclock.VClock {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.vc.Tick(v.self)
	return v.vc.Copy()
}

// Update merges a received vector into the clock (slot-wise maximum, no
// slot ever decreasing), then ticks the owner's own slot. Returns a
// snapshot of the new vector.
func (v *Vector) Update(received vclock.VClock) vclock.VClock {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.vc.Merge(received)
	v.vc.Tick(v.self)
	return v.vc.Copy()
}

// Snapshot returns a copy of the current vector without advancing the clock.
func (v *Vector) Snapshot() vclock.VClock {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.vc.Copy()
}

// Compare returns the causal ordering of a relative to b. Used for
// diagnostics and for the Ricart-Agrawala priority comparison; grant
// decisions on concurrent vectors fall back to the process-number
// tie-break, which is the caller's concern.
func Compare(a, b vclock.VClock) Ordering {
	aLess, bLess := false, false
	for id, av := range a {
		bv, _ := b.FindTicks(id)
		if av < bv {
			aLess = true
		} else if av > bv {
			bLess = true
		}
	}
	for id, bv := range b {
		if _, found := a.FindTicks(id); !found && bv > 0 {
			// Slot unknown to a counts as zero.
			aLess = true
		}
	}
	switch {
	case aLess && !bLess:
		return Before
	case bLess && !aLess:
		return After
	default:
		return Concurrent
	}
}
