package mutex

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"dmx/internal/messages"
	"dmx/internal/process"
)

// In-memory network connecting several mutex instances, routing each
// outgoing message straight into the destination's incoming channel.
type chanNet struct {
	fromMutexChans map[process.ID]chan OutgoingMessage
	intoMutexChans map[process.ID]chan messages.Message
	toDispatch     chan OutgoingMessage
	forwarders     sync.WaitGroup
}

func newChanNet(procs []process.ID) *chanNet {
	fromMutexChans := make(map[process.ID]chan OutgoingMessage)
	intoMutexChans := make(map[process.ID]chan messages.Message)

	for _, p := range procs {
		fromMutexChans[p] = make(chan OutgoingMessage, 10)
		intoMutexChans[p] = make(chan messages.Message, 10)
	}

	n := chanNet{
		fromMutexChans: fromMutexChans,
		intoMutexChans: intoMutexChans,
		toDispatch:     make(chan OutgoingMessage, 1000),
	}

	n.forwarders.Add(len(n.fromMutexChans))
	go n.centralize()

	return &n
}

func (n *chanNet) centralize() {
	for _, ch := range n.fromMutexChans {
		go func(ch chan OutgoingMessage) {
			defer n.forwarders.Done()
			for msg := range ch {
				n.toDispatch <- msg
			}
		}(ch)
	}

	for msg := range n.toDispatch {
		n.intoMutexChans[msg.Destination] <- msg.Message
	}
}

func (n *chanNet) close() {
	for _, ch := range n.fromMutexChans {
		close(ch)
	}
	n.forwarders.Wait()
	close(n.toDispatch)
}

func (n *chanNet) getNetWrapper(proc process.ID) NetWrapper {
	if _, ok := n.fromMutexChans[proc]; !ok {
		panic("No such process")
	}
	return NetWrapper{
		IntoNet: n.fromMutexChans[proc],
		FromNet: n.intoMutexChans[proc],
	}
}

func buildMutexes(procs []process.ID, build func(self process.ID, net NetWrapper, peers []process.ID) Mutex, net *chanNet) map[process.ID]Mutex {
	mutexes := make(map[process.ID]Mutex)
	for _, p := range procs {
		peers := make([]process.ID, 0, len(procs)-1)
		for _, other := range procs {
			if other != p {
				peers = append(peers, other)
			}
		}
		mutexes[p] = build(p, net.getNetWrapper(p), peers)
	}
	return mutexes
}

// Drives every process through numReqs critical sections concurrently,
// asserting that no two processes are ever inside at the same time.
func runNoOverlap(t *testing.T, procs []process.ID, build func(self process.ID, net NetWrapper, peers []process.ID) Mutex) {
	numReqs := 50
	var count int32

	net := newChanNet(procs)

	mutexes := buildMutexes(procs, build, net)

	var wg sync.WaitGroup
	wg.Add(len(procs))

	for _, p := range procs {
		go func(p process.ID, m Mutex) {
			defer wg.Done()
			for i := 0; i < numReqs; i++ {
				release, err := m.Request()
				if err != nil {
					t.Error("Error requesting mutex:", err)
					return
				}

				if in := atomic.AddInt32(&count, 1); in != 1 {
					t.Errorf("Expected to be alone in the critical section, found %d occupants", in)
				}
				time.Sleep(1 * time.Millisecond)
				if in := atomic.AddInt32(&count, -1); in != 0 {
					t.Errorf("Expected to leave an empty critical section, found %d occupants", in)
				}

				release()
			}
		}(p, mutexes[p])
	}

	wg.Wait()

	for _, m := range mutexes {
		m.Close()
	}
	net.close()
}

func TestLamportNoOverlap(t *testing.T) {
	runNoOverlap(t, process.WorkersOf(process.GroupA), func(self process.ID, net NetWrapper, peers []process.ID) Mutex {
		return NewLamport(newLogger().WithPostfix(self.String()), net, self, peers)
	})
}

func TestRicartAgrawalaNoOverlap(t *testing.T) {
	runNoOverlap(t, process.WorkersOf(process.GroupB), func(self process.ID, net NetWrapper, peers []process.ID) Mutex {
		return NewRicartAgrawala(newLogger().WithPostfix(self.String()), net, self, peers)
	})
}
