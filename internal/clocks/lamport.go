package clocks

import "sync"

// Lamport is a scalar logical clock.
//
// It is safe for concurrent use: within an actor, the message-listening path
// and the request-issuing path both advance the clock.
type Lamport struct {
	mu   sync.Mutex
	time uint64
}

// NewLamport constructs a new scalar clock starting at the given value.
func NewLamport(initial uint64) *Lamport {
	return &Lamport{time: initial}
}

// Increment advances the clock by one local event and returns the new time.
// It must be called before sending a message or performing a local event.
func (c *Lamport) Increment() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.time++
	return c.time
}

// Update merges a received timestamp into the clock, setting it to
// max(local, received)+1, and returns the new time. It must be called on
// every message receipt, before processing the message's payload.
func (c *Lamport) Update(received uint64) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.time = max(c.time, received) + 1
	return c.time
}

// Time returns the current time without advancing the clock.
func (c *Lamport) Time() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.time
}
