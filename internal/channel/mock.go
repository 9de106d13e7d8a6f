package channel

import (
	"sync"
	"time"

	"dmx/internal/messages"
	"dmx/internal/process"
)

// DestinedMessage is a message together with its destination, as
// intercepted by a mock endpoint.
type DestinedMessage struct {
	Message messages.Message
	To      process.ID
}

// Mock is an in-memory Channel that records sent messages and lets tests
// inject receptions.
type Mock struct {
	self process.ID

	// Sent receives every message passed to Send, in order.
	Sent chan DestinedMessage

	inbox chan messages.Message

	mu       sync.Mutex
	failures map[process.ID]error

	closeChan chan struct{}
	closeOnce sync.Once
}

// NewMock creates a mock endpoint for the given actor.
func NewMock(self process.ID) *Mock {
	return &Mock{
		self:      self,
		Sent:      make(chan DestinedMessage, 100),
		inbox:     make(chan messages.Message, 100),
		failures:  make(map[process.ID]error),
		closeChan: make(chan struct{}),
	}
}

// FailSendsTo makes every send to the given destination fail with err.
// Passing a nil error restores delivery.
func (m *Mock) FailSendsTo(dest process.ID, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failures, dest)
	} else {
		m.failures[dest] = err
	}
}

// Send records the message on the Sent channel.
func (m *Mock) Send(msg messages.Message, dest process.ID) error {
	m.mu.Lock()
	err := m.failures[dest]
	m.mu.Unlock()
	if err != nil {
		return err
	}
	select {
	case m.Sent <- DestinedMessage{Message: msg, To: dest}:
		return nil
	case <-m.closeChan:
		return ErrClosed
	}
}

// Receive blocks until an injected message is available or the timeout
// elapses.
func (m *Mock) Receive(timeout time.Duration) (messages.Message, error) {
	select {
	case msg := <-m.inbox:
		return msg, nil
	case <-time.After(timeout):
		return messages.Message{}, ErrReceiveTimeout
	case <-m.closeChan:
		return messages.Message{}, ErrClosed
	}
}

// Inbox exposes the stream of injected messages.
func (m *Mock) Inbox() <-chan messages.Message {
	return m.inbox
}

// SimulateReception injects a message as if it arrived from the network.
func (m *Mock) SimulateReception(msg messages.Message) {
	select {
	case m.inbox <- msg:
	case <-m.closeChan:
	}
}

// InterceptSent returns the next sent message, blocking until one is
// available.
func (m *Mock) InterceptSent() DestinedMessage {
	return <-m.Sent
}

// Close shuts the mock down.
func (m *Mock) Close() {
	m.closeOnce.Do(func() { close(m.closeChan) })
}

// Network is a bus of mock endpoints routing sends directly into the
// destination's inbox. It lets tests run several actors in one process
// without sockets.
type Network struct {
	mu        sync.Mutex
	endpoints map[process.ID]*networkEndpoint
}

// NewNetwork creates an empty in-memory network.
func NewNetwork() *Network {
	return &Network{endpoints: make(map[process.ID]*networkEndpoint)}
}

// Endpoint returns the channel endpoint of the given actor, creating it on
// first use.
func (n *Network) Endpoint(id process.ID) Channel {
	n.mu.Lock()
	defer n.mu.Unlock()
	if ep, ok := n.endpoints[id]; ok {
		return ep
	}
	ep := &networkEndpoint{net: n, mock: NewMock(id)}
	n.endpoints[id] = ep
	return ep
}

func (n *Network) deliver(msg messages.Message, dest process.ID) error {
	n.mu.Lock()
	ep, ok := n.endpoints[dest]
	n.mu.Unlock()
	if !ok {
		return ErrUnreachablePeer
	}
	ep.mock.SimulateReception(msg)
	return nil
}

type networkEndpoint struct {
	net  *Network
	mock *Mock
}

func (ep *networkEndpoint) Send(msg messages.Message, dest process.ID) error {
	return ep.net.deliver(msg, dest)
}

func (ep *networkEndpoint) Receive(timeout time.Duration) (messages.Message, error) {
	return ep.mock.Receive(timeout)
}

func (ep *networkEndpoint) Inbox() <-chan messages.Message {
	return ep.mock.Inbox()
}

func (ep *networkEndpoint) Close() {
	ep.mock.Close()
}
