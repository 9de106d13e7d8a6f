package channel

import "errors"

// Error taxonomy of the coordination core. Callers match with errors.Is.
var (
	// ErrUnreachablePeer is returned by Send once every attempt at reaching
	// the destination has failed.
	ErrUnreachablePeer = errors.New("peer unreachable")
	// ErrReceiveTimeout is returned by Receive when no well-formed message
	// arrived within the timeout.
	ErrReceiveTimeout = errors.New("receive timed out")
	// ErrProtocolError marks a malformed or out-of-sequence message. Such
	// messages are logged and dropped, never crashing the actor.
	ErrProtocolError = errors.New("protocol error")
	// ErrCoordinationFailure is surfaced when an actor's wait budget is
	// exhausted; the actor halts its participation while peers keep running.
	ErrCoordinationFailure = errors.New("coordination failure")
	// ErrClosed is returned on use of a closed channel endpoint.
	ErrClosed = errors.New("channel closed")
)
