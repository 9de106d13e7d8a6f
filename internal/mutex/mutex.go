package mutex

import (
	"errors"

	"dmx/internal/messages"
	"dmx/internal/process"
)

var errClosed = errors.New("mutex closed")

/*
Mutex is the strategy interface of the group mutual-exclusion protocols.

A worker is driven by one Mutex instance, selected per group at
construction: Lamport's algorithm for group A, Ricart-Agrawala's for
group B.
*/
type Mutex interface {
	/*
		Request permission to enter the critical section. Blocks until both
		group peers have allowed entry according to the protocol.

		Returns a release function that must be called when the critical
		section is done. Release blocks until the protocol has finished
		releasing, so that a new request cannot overtake the release.
	*/
	Request() (release func(), err error)
	// Close stops the protocol goroutine.
	Close()
}

// OutgoingMessage is a protocol message together with its destination.
type OutgoingMessage struct {
	// The destination of the message.
	Destination process.ID
	// The message to send.
	Message messages.Message
}

// NetWrapper contains the means of communication between a mutex instance
// and the network, keeping the protocol oblivious to the underlying
// transport. Helpful for testing, in particular.
type NetWrapper struct {
	// The channel on which the mutex instance will send messages to the network.
	IntoNet chan<- OutgoingMessage
	// The channel on which the mutex instance will receive messages from the network.
	FromNet <-chan messages.Message
	// Reports peers that could not be reached while delivering a protocol
	// message. The mutex stops waiting for such a peer's ACK for the
	// current round (degraded liveness). May be nil if the transport never
	// fails.
	Unreachable <-chan process.ID
}
