package worker

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"dmx/internal/channel"
	"dmx/internal/config"
	"dmx/internal/dispatcher"
	"dmx/internal/ioutils"
	"dmx/internal/logging"
	"dmx/internal/messages"
	"dmx/internal/process"
)

var (
	ca  = process.NewCoordinator(process.GroupA)
	wa1 = process.NewWorker(process.GroupA, 1)
	wa2 = process.NewWorker(process.GroupA, 2)
	wa3 = process.NewWorker(process.GroupA, 3)
)

func newLogger() *logging.Logger {
	return logging.NewStdLogger("test")
}

func testConfig() config.Config {
	conf := config.Default()
	conf.DisplayCount = 2
	conf.DisplayInterval = time.Millisecond
	return conf
}

type workerHarness struct {
	mock   *channel.Mock
	w      *Worker
	runErr chan error

	mu         sync.Mutex
	iterations []int
}

func startWorker(t *testing.T, conf config.Config) *workerHarness {
	t.Helper()
	mock := channel.NewMock(wa1)
	d := dispatcher.New(newLogger(), mock)

	h := &workerHarness{mock: mock, runErr: make(chan error, 1)}
	w, err := New(newLogger(), conf, wa1, mock, d, nil, func(iteration int) {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.iterations = append(h.iterations, iteration)
	})
	if err != nil {
		t.Fatal("Error creating worker:", err)
	}
	h.w = w

	go func() { h.runErr <- w.Run() }()

	t.Cleanup(func() {
		w.Close()
		d.Close()
		mock.Close()
	})
	return h
}

func (h *workerHarness) displayed() []int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]int(nil), h.iterations...)
}

// Collects n sent messages and checks the expected (type, destination)
// pairs are all present, in arbitrary order.
func expectSentSet(t *testing.T, mock *channel.Mock, expected map[process.ID]messages.Type, timeout time.Duration) {
	t.Helper()
	to := time.After(timeout)

	received := []channel.DestinedMessage{}
	for i := 0; i < len(expected); i++ {
		select {
		case sent := <-mock.Sent:
			received = append(received, sent)
		case <-to:
			t.Fatalf("Expected %v, got only %v", expected, received)
		}
	}

	for dest, msgType := range expected {
		found := false
		for _, a := range received {
			if a.To == dest && a.Message.Type == msgType {
				found = true
				break
			}
		}
		if !found {
			t.Fatalf("Expected %v to %v among %v", msgType, dest, received)
		}
	}
}

func TestFullRound(t *testing.T) {
	h := startWorker(t, testConfig())

	h.mock.SimulateReception(messages.NewTo(messages.Grant, ca, wa1, messages.ScalarTime(1)))

	// The grant triggers the mutex protocol: one REQUEST per peer.
	expectSentSet(t, h.mock, map[process.ID]messages.Type{
		wa2: messages.Request,
		wa3: messages.Request,
	}, 2*time.Second)

	h.mock.SimulateReception(messages.NewTo(messages.Ack, wa2, wa1, messages.ScalarTime(2)))
	h.mock.SimulateReception(messages.NewTo(messages.Ack, wa3, wa1, messages.ScalarTime(2)))

	// Once both peers acknowledge: use the resource, release, notify.
	sentByDest := map[process.ID]messages.Type{}
	to := time.After(5 * time.Second)
	for i := 0; i < 3; i++ {
		select {
		case sent := <-h.mock.Sent:
			sentByDest[sent.To] = sent.Message.Type
		case <-to:
			t.Fatalf("Expected RELEASEs and DONE, got only %v", sentByDest)
		}
	}
	if sentByDest[wa2] != messages.Release || sentByDest[wa3] != messages.Release {
		t.Error("Expected a RELEASE to each peer, got", sentByDest)
	}
	if sentByDest[ca] != messages.Done {
		t.Error("Expected a DONE to the coordinator, got", sentByDest)
	}

	if got := h.displayed(); len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Error("Expected display iterations [1 2], got", got)
	}
}

func TestGrantFromUnexpectedSenderIsDropped(t *testing.T) {
	h := startWorker(t, testConfig())

	// Only the group's coordinator may release the worker.
	h.mock.SimulateReception(messages.NewTo(messages.Grant, wa2, wa1, messages.ScalarTime(1)))

	select {
	case sent := <-h.mock.Sent:
		t.Fatal("Expected the grant to be dropped ; yet the worker sent", sent)
	case <-time.After(300 * time.Millisecond):
	}

	h.mock.SimulateReception(messages.NewTo(messages.Grant, ca, wa1, messages.ScalarTime(2)))
	expectSentSet(t, h.mock, map[process.ID]messages.Type{
		wa2: messages.Request,
		wa3: messages.Request,
	}, 2*time.Second)
}

func TestUnreachableCoordinatorIsFatal(t *testing.T) {
	h := startWorker(t, testConfig())
	h.mock.FailSendsTo(ca, channel.ErrUnreachablePeer)

	h.mock.SimulateReception(messages.NewTo(messages.Grant, ca, wa1, messages.ScalarTime(1)))
	expectSentSet(t, h.mock, map[process.ID]messages.Type{
		wa2: messages.Request,
		wa3: messages.Request,
	}, 2*time.Second)
	h.mock.SimulateReception(messages.NewTo(messages.Ack, wa2, wa1, messages.ScalarTime(2)))
	h.mock.SimulateReception(messages.NewTo(messages.Ack, wa3, wa1, messages.ScalarTime(2)))

	select {
	case err := <-h.runErr:
		if !errors.Is(err, channel.ErrCoordinationFailure) {
			t.Error("Expected ErrCoordinationFailure, got", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Worker never gave up after failing to report completion")
	}
}

func TestCloseStopsRun(t *testing.T) {
	h := startWorker(t, testConfig())

	h.w.Close()

	select {
	case err := <-h.runErr:
		if err != nil {
			t.Error("Expected a nil error on close, got", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run never returned after Close")
	}
}

func TestDefaultDisplayPrintsIdentity(t *testing.T) {
	conf := testConfig()
	mock := channel.NewMock(wa1)
	d := dispatcher.New(newLogger(), mock)
	stream := ioutils.NewMockStream()

	w, err := New(newLogger(), conf, wa1, mock, d, stream, nil)
	if err != nil {
		t.Fatal("Error creating worker:", err)
	}
	go w.Run()
	t.Cleanup(func() {
		w.Close()
		d.Close()
		mock.Close()
	})

	mock.SimulateReception(messages.NewTo(messages.Grant, ca, wa1, messages.ScalarTime(1)))
	expectSentSet(t, mock, map[process.ID]messages.Type{
		wa2: messages.Request,
		wa3: messages.Request,
	}, 2*time.Second)
	mock.SimulateReception(messages.NewTo(messages.Ack, wa2, wa1, messages.ScalarTime(2)))
	mock.SimulateReception(messages.NewTo(messages.Ack, wa3, wa1, messages.ScalarTime(2)))

	lines := make(chan string, conf.DisplayCount)
	go func() {
		for i := 0; i < conf.DisplayCount; i++ {
			lines <- stream.InterceptNextPrintln()
		}
	}()

	for i := 1; i <= conf.DisplayCount; i++ {
		expected := fmt.Sprintf("I'm worker WA1 (%d/%d)\n", i, conf.DisplayCount)
		select {
		case line := <-lines:
			if line != expected {
				t.Errorf("Expected %q, got %q", expected, line)
			}
		case <-time.After(5 * time.Second):
			t.Fatal("Worker never printed its identity line")
		}
	}
}

func TestSeveralRounds(t *testing.T) {
	h := startWorker(t, testConfig())

	for round := 0; round < 3; round++ {
		h.mock.SimulateReception(messages.NewTo(messages.Grant, ca, wa1, messages.ScalarTime(1)))
		expectSentSet(t, h.mock, map[process.ID]messages.Type{
			wa2: messages.Request,
			wa3: messages.Request,
		}, 2*time.Second)

		h.mock.SimulateReception(messages.NewTo(messages.Ack, wa2, wa1, messages.ScalarTime(2)))
		h.mock.SimulateReception(messages.NewTo(messages.Ack, wa3, wa1, messages.ScalarTime(2)))

		expectSentSet(t, h.mock, map[process.ID]messages.Type{
			wa2: messages.Release,
			wa3: messages.Release,
			ca:  messages.Done,
		}, 5*time.Second)
	}

	if got := h.displayed(); len(got) != 6 {
		t.Error("Expected 6 display iterations over 3 rounds, got", got)
	}
}
