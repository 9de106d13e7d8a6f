package worker

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"dmx/internal/channel"
	"dmx/internal/clocks"
	"dmx/internal/config"
	"dmx/internal/dispatcher"
	"dmx/internal/ioutils"
	"dmx/internal/logging"
	"dmx/internal/messages"
	"dmx/internal/mutex"
	"dmx/internal/process"
)

// DisplayFunc is the critical-section payload: it is invoked once per
// resource-use iteration, exactly DisplayCount times per grant.
type DisplayFunc func(iteration int)

/*
Worker drives one of the six worker processes through repeated
(wait-for-turn, run mutex protocol, use resource, release) cycles.

The outer turn comes as a GRANT from the group's coordinator; the inner
contention among the group's workers runs through the injected mutex
strategy (Lamport for group A, Ricart-Agrawala for group B).
*/
type Worker struct {
	logger *logging.Logger
	conf   config.Config

	self        process.ID
	coordinator process.ID

	ch    channel.Channel
	mtx   mutex.Mutex
	clock *clocks.Lamport

	grants  chan messages.Message
	display DisplayFunc

	closeChan chan struct{}
	closeOnce sync.Once
}

// New constructs a worker. A nil display installs the default, which
// prints the worker's identity line to the given stream.
func New(logger *logging.Logger, conf config.Config, self process.ID, ch channel.Channel, d dispatcher.Dispatcher, stream ioutils.IOStream, display DisplayFunc) (*Worker, error) {
	if err := self.Validate(); err != nil {
		return nil, err
	}
	if self.Kind != process.Worker {
		return nil, fmt.Errorf("%v is not a worker id", self)
	}

	w := &Worker{
		logger:      logger,
		conf:        conf,
		self:        self,
		coordinator: process.NewCoordinator(self.Group),
		ch:          ch,
		clock:       clocks.NewLamport(0),
		grants:      make(chan messages.Message, 1),
		display:     display,
		closeChan:   make(chan struct{}),
	}

	if w.display == nil {
		w.display = func(iteration int) {
			stream.Println(fmt.Sprintf("I'm worker %v (%d/%d)", self, iteration, conf.DisplayCount))
		}
	}

	d.Register(messages.Grant, func(msg messages.Message) { w.grants <- msg })

	net := newMutexNetWrapper(logger.WithPostfix("net"), ch, d)
	mutexLogger := logger.WithPostfix("mtx")
	switch self.Group {
	case process.GroupA:
		w.mtx = mutex.NewLamport(mutexLogger, net, self, self.Peers())
	case process.GroupB:
		w.mtx = mutex.NewRicartAgrawala(mutexLogger, net, self, self.Peers())
	}

	return w, nil
}

// Run cycles until the worker is stopped: wait for the coordinator's
// GRANT, acquire the group mutex, use the resource for the configured
// number of iterations, release, and notify the coordinator with DONE.
func (w *Worker) Run() error {
	for {
		w.logger.Info("Waiting for the coordination slot")
		select {
		case msg := <-w.grants:
			w.clock.Update(msg.Timestamp.Scalar)
			if msg.Sender != w.coordinator {
				w.logger.Warnf("%v: GRANT from %v, expected %v; dropping it", channel.ErrProtocolError, msg.Sender, w.coordinator)
				continue
			}
		case <-w.closeChan:
			return nil
		}

		w.logger.Info("Slot granted; contending for the resource")
		release, err := w.mtx.Request()
		if err != nil {
			select {
			case <-w.closeChan:
				// The mutex only fails once closed, which Close does.
				return nil
			default:
			}
			return err
		}

		w.useResource()
		release()

		select {
		case <-w.closeChan:
			// Stopped mid-round: send nothing further.
			return nil
		default:
		}

		if err := w.notifyDone(); err != nil {
			if errors.Is(err, channel.ErrClosed) {
				return nil
			}
			w.logger.Error("Halting participation: ", err)
			return err
		}
	}
}

// The critical section: the only place the shared resource is used.
func (w *Worker) useResource() {
	for i := 1; i <= w.conf.DisplayCount; i++ {
		w.display(i)
		select {
		case <-time.After(w.conf.DisplayInterval):
		case <-w.closeChan:
			return
		}
	}
}

// Reports completion to the coordinator. Losing the DONE would stall the
// whole group's round, so an unreachable coordinator is fatal for this
// worker.
func (w *Worker) notifyDone() error {
	ts := w.clock.Increment()
	w.logger.Info("Round complete; notifying ", w.coordinator)
	err := w.ch.Send(messages.NewTo(messages.Done, w.self, w.coordinator, messages.ScalarTime(ts)), w.coordinator)
	if err != nil && !errors.Is(err, channel.ErrClosed) {
		return fmt.Errorf("cannot report completion: %w: %v", channel.ErrCoordinationFailure, err)
	}
	return err
}

// Close stops the worker. The current blocking call is abandoned after its
// timeout; no further message is sent.
func (w *Worker) Close() {
	w.closeOnce.Do(func() {
		close(w.closeChan)
		w.mtx.Close()
	})
}
