package worker

import (
	"errors"

	"dmx/internal/channel"
	"dmx/internal/dispatcher"
	"dmx/internal/logging"
	"dmx/internal/messages"
	"dmx/internal/mutex"
	"dmx/internal/process"
)

/*
Bridges a mutex instance and the worker's channel endpoint.

Incoming REQUEST/ACK/RELEASE messages are routed by the dispatcher into the
mutex's FromNet channel; outgoing protocol messages are forwarded to the
channel, and peers that turn out to be unreachable are reported back to the
mutex so it can degrade the round instead of waiting forever.
*/
func newMutexNetWrapper(log *logging.Logger, ch channel.Channel, d dispatcher.Dispatcher) mutex.NetWrapper {
	netToMutex := make(chan messages.Message, 16)
	mutexToNet := make(chan mutex.OutgoingMessage, 16)
	unreachable := make(chan process.ID, 4)

	forward := func(msg messages.Message) { netToMutex <- msg }
	d.Register(messages.Request, forward)
	d.Register(messages.Ack, forward)
	d.Register(messages.Release, forward)

	go func() {
		for out := range mutexToNet {
			if err := ch.Send(out.Message, out.Destination); err != nil {
				if errors.Is(err, channel.ErrClosed) {
					return
				}
				log.Error("Error sending mutex message: ", err)
				if errors.Is(err, channel.ErrUnreachablePeer) {
					unreachable <- out.Destination
				}
			}
		}
	}()

	return mutex.NetWrapper{
		IntoNet:     mutexToNet,
		FromNet:     netToMutex,
		Unreachable: unreachable,
	}
}
