package process

import (
	"fmt"
)

// Kind distinguishes the two roles of the system's actors.
type Kind string

const (
	// Coordinator owns and hands off the inter-group token.
	Coordinator Kind = "COORDINATOR"
	// Worker contends for the shared resource within its group.
	Worker Kind = "WORKER"
)

// Group identifies one of the two worker groups.
type Group string

const (
	// GroupA runs Lamport's mutual exclusion algorithm.
	GroupA Group = "A"
	// GroupB runs Ricart-Agrawala's mutual exclusion algorithm.
	GroupB Group = "B"
)

// WorkersPerGroup is the fixed number of workers in each group.
const WorkersPerGroup = 3

// ID identifies one actor of the system. It is immutable, assigned at
// creation, and used both as the ordering key for tie-breaks and as the
// addressing key for sockets.
type ID struct {
	Kind   Kind  `json:"kind"`
	Group  Group `json:"group"`
	Number int   `json:"number"`
}

// NewCoordinator returns the id of the coordinator of the given group.
func NewCoordinator(group Group) ID {
	return ID{Kind: Coordinator, Group: group, Number: 0}
}

// NewWorker returns the id of the n-th worker (1-based) of the given group.
func NewWorker(group Group, number int) ID {
	return ID{Kind: Worker, Group: group, Number: number}
}

func (id ID) String() string {
	if id.Kind == Coordinator {
		return fmt.Sprintf("C%s", id.Group)
	}
	return fmt.Sprintf("W%s%d", id.Group, id.Number)
}

// Validate reports whether the id designates an actor of the fixed topology.
func (id ID) Validate() error {
	if id.Group != GroupA && id.Group != GroupB {
		return fmt.Errorf("unknown group %q", id.Group)
	}
	switch id.Kind {
	case Coordinator:
		if id.Number != 0 {
			return fmt.Errorf("coordinator number must be 0, got %d", id.Number)
		}
	case Worker:
		if id.Number < 1 || id.Number > WorkersPerGroup {
			return fmt.Errorf("worker number must be in [1, %d], got %d", WorkersPerGroup, id.Number)
		}
	default:
		return fmt.Errorf("unknown process kind %q", id.Kind)
	}
	return nil
}

// LessThan reports whether the id strictly precedes the other in tie-break
// order. Tie-breaks only ever compare workers of the same group, so the
// worker number alone defines the order.
func (id ID) LessThan(other ID) bool {
	return id.Number < other.Number
}

// Port derives the actor's port from the given base port. The scheme is
// fixed: coordinators at base and base+1, then the two blocks of three
// worker ports.
func (id ID) Port(base uint16) uint16 {
	groupOffset := uint16(0)
	if id.Group == GroupB {
		groupOffset = 1
	}
	if id.Kind == Coordinator {
		return base + groupOffset
	}
	return base + 2 + groupOffset*WorkersPerGroup + uint16(id.Number-1)
}

// PeerCoordinator returns the id of the other group's coordinator.
func PeerCoordinator(group Group) ID {
	if group == GroupA {
		return NewCoordinator(GroupB)
	}
	return NewCoordinator(GroupA)
}

// WorkersOf returns the ids of the three workers of a group, in dispatch
// order (1, 2, 3).
func WorkersOf(group Group) []ID {
	workers := make([]ID, 0, WorkersPerGroup)
	for n := 1; n <= WorkersPerGroup; n++ {
		workers = append(workers, NewWorker(group, n))
	}
	return workers
}

// Peers returns the ids of the other workers of the same group.
func (id ID) Peers() []ID {
	peers := make([]ID, 0, WorkersPerGroup-1)
	for _, w := range WorkersOf(id.Group) {
		if w != id {
			peers = append(peers, w)
		}
	}
	return peers
}
