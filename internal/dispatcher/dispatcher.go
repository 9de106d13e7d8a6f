package dispatcher

import (
	"dmx/internal/channel"
	"dmx/internal/logging"
	"dmx/internal/messages"
)

// Handler is any function capable of handling a dispatched message.
type Handler func(msg messages.Message)

// Dispatcher routes messages received on an actor's channel endpoint to the
// appropriate handlers, by message type. Within a worker this is what lets
// the mutex protocol run concurrently with the grant-driven worker loop.
type Dispatcher interface {
	// Register a handler for a given message type.
	Register(t messages.Type, handler Handler)
	// Close the dispatcher, cleaning up resources.
	Close()
}

type registration struct {
	msgType messages.Type
	handler Handler
}

// Local implementation of the Dispatcher interface. Hiding the
// implementation behind an interface allows for easier testing of modules
// using the dispatcher.
type dispatcherImpl struct {
	logger *logging.Logger

	registrations chan registration

	closeChan chan struct{}
}

// New constructs a dispatcher pumping from the given channel endpoint.
func New(logger *logging.Logger, ch channel.Channel) Dispatcher {
	d := &dispatcherImpl{
		logger:        logger,
		registrations: make(chan registration),
		closeChan:     make(chan struct{}),
	}

	go d.dispatch(ch.Inbox())

	return d
}

/*
Main goroutine that maintains the handlers and dispatches messages to them.

Handlers can be registered dynamically during the execution, so they are
dynamic state that must be maintained in a thread-safe way; they are
therefore owned by this single goroutine, and registrations arrive as
instructions through a channel.
*/
func (d *dispatcherImpl) dispatch(inbox <-chan messages.Message) {
	handlers := make(map[messages.Type]Handler)
	for {
		select {
		case reg := <-d.registrations:
			if _, ok := handlers[reg.msgType]; ok {
				d.logger.Warn("Handler already registered for ", reg.msgType, ". Overwriting it...")
			}
			handlers[reg.msgType] = reg.handler
		case msg, ok := <-inbox:
			if !ok {
				return
			}
			handler, exists := handlers[msg.Type]
			if !exists {
				// ProtocolError semantics: out-of-sequence message, drop.
				d.logger.Warnf("%v: no handler for %v from %v; dropping it", channel.ErrProtocolError, msg, msg.Sender)
				continue
			}
			d.logger.Infof("Dispatching %v from %v", msg, msg.Sender)
			handler(msg)
		case <-d.closeChan:
			return
		}
	}
}

func (d *dispatcherImpl) isClosed() bool {
	select {
	case <-d.closeChan:
		return true
	default:
		return false
	}
}

func (d *dispatcherImpl) Register(t messages.Type, handler Handler) {
	if d.isClosed() {
		d.logger.Warn("Dispatcher is closed, not registering handler")
		return
	}
	d.registrations <- registration{msgType: t, handler: handler}
}

func (d *dispatcherImpl) Close() {
	close(d.closeChan)
}
