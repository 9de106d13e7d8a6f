package coordinator

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"dmx/internal/channel"
	"dmx/internal/clocks"
	"dmx/internal/config"
	"dmx/internal/dispatcher"
	"dmx/internal/logging"
	"dmx/internal/messages"
	"dmx/internal/process"
)

// State of the coordinator's cyclic state machine.
type State int

const (
	// AwaitToken blocks until the peer coordinator hands over the token.
	AwaitToken State = iota
	// HoldToken owns the token; the group's round is about to start.
	HoldToken
	// Dispatch releases the next not-yet-completed worker.
	Dispatch
	// AwaitCompletion blocks for the dispatched worker's DONE.
	AwaitCompletion
	// Handoff passes the token to the peer coordinator.
	Handoff
)

func (s State) String() string {
	switch s {
	case AwaitToken:
		return "AWAIT_TOKEN"
	case HoldToken:
		return "HOLD_TOKEN"
	case Dispatch:
		return "DISPATCH"
	case AwaitCompletion:
		return "AWAIT_COMPLETION"
	case Handoff:
		return "HANDOFF"
	default:
		return "INVALID"
	}
}

/*
Coordinator owns its group's side of the inter-group token and sequences
the group's three workers through the shared resource, one at a time.

The coordinator layer alone would serialize resource access; the per-group
mutex protocols still run among the workers, as the system is required to
demonstrate both levels.
*/
type Coordinator struct {
	logger *logging.Logger
	conf   config.Config

	self    process.ID
	peer    process.ID
	workers []process.ID

	ch    channel.Channel
	clock *clocks.Lamport

	// Fed by the dispatcher's handlers.
	tokens chan messages.Message
	dones  chan messages.Message

	hasToken bool
	pending  []process.ID
	active   *process.ID

	closeChan chan struct{}
	closeOnce sync.Once
}

// New constructs a coordinator for the given group. startsWithToken must be
// true for exactly one of the two coordinators (group A in the reference
// deployment).
func New(logger *logging.Logger, conf config.Config, group process.Group, ch channel.Channel, d dispatcher.Dispatcher, startsWithToken bool) *Coordinator {
	c := &Coordinator{
		logger:    logger,
		conf:      conf,
		self:      process.NewCoordinator(group),
		peer:      process.PeerCoordinator(group),
		workers:   process.WorkersOf(group),
		ch:        ch,
		clock:     clocks.NewLamport(0),
		tokens:    make(chan messages.Message, 1),
		dones:     make(chan messages.Message, process.WorkersPerGroup),
		hasToken:  startsWithToken,
		closeChan: make(chan struct{}),
	}

	d.Register(messages.Token, func(msg messages.Message) { c.tokens <- msg })
	d.Register(messages.Done, func(msg messages.Message) { c.dones <- msg })

	return c
}

// Run drives the state machine until the coordinator is stopped or its
// participation fails. It only ever returns a nil error on Close.
func (c *Coordinator) Run() error {
	state := AwaitToken
	if c.hasToken {
		c.logger.Info("Starting as initial token holder")
		state = HoldToken
	}

	for {
		select {
		case <-c.closeChan:
			return nil
		default:
		}

		var err error
		switch state {
		case AwaitToken:
			state, err = c.awaitToken()
		case HoldToken:
			c.pending = append([]process.ID(nil), c.workers...)
			state = Dispatch
		case Dispatch:
			state, err = c.dispatchNext()
		case AwaitCompletion:
			state, err = c.awaitCompletion()
		case Handoff:
			state, err = c.handoff()
		}
		if err != nil {
			if errors.Is(err, channel.ErrClosed) {
				return nil
			}
			c.logger.Error("Halting participation: ", err)
			return err
		}
	}
}

// Blocks until the peer coordinator hands the token over.
func (c *Coordinator) awaitToken() (State, error) {
	c.logger.Info("Awaiting token from ", c.peer)
	for {
		select {
		case msg := <-c.tokens:
			c.clock.Update(msg.Timestamp.Scalar)
			if msg.Sender != c.peer {
				c.logger.Warnf("%v: TOKEN from unexpected sender %v; dropping it", channel.ErrProtocolError, msg.Sender)
				continue
			}
			c.logger.Info("Received token")
			c.hasToken = true
			return HoldToken, nil
		case <-c.closeChan:
			return AwaitToken, channel.ErrClosed
		}
	}
}

// Selects the next not-yet-completed worker, in fixed order 1, 2, 3, and
// releases it with a GRANT.
func (c *Coordinator) dispatchNext() (State, error) {
	next := c.pending[0]
	c.pending = c.pending[1:]
	c.active = &next

	ts := c.clock.Increment()
	c.logger.Info("Granting the coordination slot to ", next)
	if err := c.ch.Send(messages.NewTo(messages.Grant, c.self, next, messages.ScalarTime(ts)), next); err != nil {
		if errors.Is(err, channel.ErrClosed) {
			return Dispatch, err
		}
		// A worker that cannot be reached is skipped for this round;
		// liveness degrades but the round goes on.
		c.logger.Error("Cannot grant to ", next, ": ", err)
		c.active = nil
		if len(c.pending) > 0 {
			return Dispatch, nil
		}
		return Handoff, nil
	}
	return AwaitCompletion, nil
}

// Blocks for the dispatched worker's DONE, re-entering the wait on timeout
// until the wait budget is exceeded.
func (c *Coordinator) awaitCompletion() (State, error) {
	c.logger.Info("Awaiting completion of ", *c.active)
	for attempt := 0; attempt < c.conf.MaxRetries; attempt++ {
		select {
		case msg := <-c.dones:
			c.clock.Update(msg.Timestamp.Scalar)
			if c.active == nil || msg.Sender != *c.active {
				c.logger.Warnf("%v: DONE from %v while awaiting %v; dropping it", channel.ErrProtocolError, msg.Sender, c.active)
				continue
			}
			c.logger.Info("Worker ", msg.Sender, " completed")
			c.active = nil
			if len(c.pending) > 0 {
				return Dispatch, nil
			}
			return Handoff, nil
		case <-time.After(c.conf.DoneTimeout):
			c.logger.Warnf("%v waiting for DONE from %v (attempt %d/%d)", channel.ErrReceiveTimeout, *c.active, attempt+1, c.conf.MaxRetries)
		case <-c.closeChan:
			return AwaitCompletion, channel.ErrClosed
		}
	}
	return AwaitCompletion, fmt.Errorf("no DONE from %v within the wait budget: %w", *c.active, channel.ErrCoordinationFailure)
}

// Passes the token to the peer coordinator. The channel's own retry loop
// provides the fixed-backoff retransmissions; a completed send is the
// transport-level acknowledgement. An unreachable peer coordinator is
// fatal: no alternate holder exists.
func (c *Coordinator) handoff() (State, error) {
	ts := c.clock.Increment()
	c.logger.Info("All workers completed; handing the token to ", c.peer)
	if err := c.ch.Send(messages.NewTo(messages.Token, c.self, c.peer, messages.ScalarTime(ts)), c.peer); err != nil {
		if errors.Is(err, channel.ErrClosed) {
			return Handoff, err
		}
		return Handoff, fmt.Errorf("token handoff to %v failed, token is lost: %w", c.peer, err)
	}
	c.hasToken = false
	return AwaitToken, nil
}

// Close stops the coordinator. The current blocking wait is abandoned; no
// further message is sent.
func (c *Coordinator) Close() {
	c.closeOnce.Do(func() { close(c.closeChan) })
}
