package mutex

import (
	"sort"
	"sync"

	"dmx/internal/clocks"
	"dmx/internal/logging"
	"dmx/internal/messages"
	"dmx/internal/process"
	"dmx/internal/utils"
)

// An entry of the request queue: a pending request with its timestamp.
type queueEntry struct {
	ts  uint64
	pid process.ID
}

// Reports whether the entry strictly precedes the other in the total order
// used for grant decisions: by timestamp, then by process number.
func (e queueEntry) lessThan(other queueEntry) bool {
	return e.ts < other.ts || (e.ts == other.ts && e.pid.LessThan(other.pid))
}

// An implementation of Lamport's mutual exclusion algorithm, aligning to
// the Mutex interface.
//
// Every REQUEST is acknowledged unconditionally and immediately; ordering
// is enforced purely by the (timestamp, process number) order of the local
// request queue. A process enters the critical section once both peers
// have acknowledged its request and its own entry is the queue minimum.
type lamportMutex struct {
	logger *logging.Logger

	net   NetWrapper
	self  process.ID
	peers []process.ID

	csRequests     chan struct{}
	csPermissions  chan struct{}
	csDoneRequests chan chan struct{}

	closeChan chan struct{}
	closeOnce sync.Once
}

/*
Everything that may change over the course of the execution, and thus must
be handled by a single goroutine to avoid concurrent access.
*/
type lamportState struct {
	clock      *clocks.Lamport
	queue      []queueEntry
	acks       map[process.ID]bool
	skipped    map[process.ID]bool
	requesting bool
	inCS       bool
	requestTS  uint64
}

// NewLamport constructs and returns a new Lamport mutex.
//   - logger: The logger to use for logging messages.
//   - net: The network wrapper the mutex will communicate through.
//   - self: The id of the current process.
//   - peers: The ids of the other workers of the group.
func NewLamport(logger *logging.Logger, net NetWrapper, self process.ID, peers []process.ID) Mutex {
	if utils.SliceContains(peers, self) {
		panic("mutex peers must not contain self")
	}

	m := &lamportMutex{
		logger:         logger,
		net:            net,
		self:           self,
		peers:          peers,
		csRequests:     make(chan struct{}),
		csPermissions:  make(chan struct{}),
		csDoneRequests: make(chan chan struct{}),
		closeChan:      make(chan struct{}),
	}

	logger.Infof("Starting Lamport mutex with self %v and peers %v", self, peers)

	go m.handleState()

	return m
}

// The main goroutine owning the protocol state.
func (m *lamportMutex) handleState() {
	state := &lamportState{
		clock:   clocks.NewLamport(0),
		acks:    make(map[process.ID]bool),
		skipped: make(map[process.ID]bool),
	}

	for {
		select {
		case msg := <-m.net.FromNet:
			m.handleMessage(state, msg)
		case <-m.csRequests:
			m.beginRequest(state)
		case doneCh := <-m.csDoneRequests:
			m.release(state)
			doneCh <- struct{}{}
		case pid := <-m.net.Unreachable:
			m.handleUnreachable(state, pid)
		case <-m.closeChan:
			return
		}
	}
}

// Starts a new round: stamps and enqueues the local request, then
// broadcasts it to both peers.
func (m *lamportMutex) beginRequest(state *lamportState) {
	ts := state.clock.Increment()
	state.requestTS = ts
	state.requesting = true
	state.acks = make(map[process.ID]bool)
	state.skipped = make(map[process.ID]bool)
	m.enqueue(state, queueEntry{ts: ts, pid: m.self})

	m.logger.Infof("Requesting CS with timestamp %d", ts)
	for _, peer := range m.peers {
		m.send(messages.NewTo(messages.Request, m.self, peer, messages.ScalarTime(ts)), peer)
	}

	m.tryEnterCS(state)
}

// Handles a single message received from the network.
func (m *lamportMutex) handleMessage(state *lamportState, msg messages.Message) {
	switch msg.Type {
	case messages.Request:
		state.clock.Update(msg.Timestamp.Scalar)
		m.enqueue(state, queueEntry{ts: msg.Timestamp.Scalar, pid: msg.Sender})
		// Lamport replies unconditionally and immediately.
		ackTS := state.clock.Increment()
		m.send(messages.NewTo(messages.Ack, m.self, msg.Sender, messages.ScalarTime(ackTS)), msg.Sender)
	case messages.Ack:
		state.clock.Update(msg.Timestamp.Scalar)
		if !state.requesting {
			m.logger.Info("Ignoring ACK from ", msg.Sender, " received while not requesting")
			return
		}
		state.acks[msg.Sender] = true
	case messages.Release:
		state.clock.Update(msg.Timestamp.Scalar)
		if !m.dequeue(state, msg.Sender) {
			// Duplicate RELEASE: already removed, a no-op.
			m.logger.Info("Duplicate RELEASE from ", msg.Sender, "; ignoring")
		}
	default:
		m.logger.Warnf("Unexpected %v message from %v in Lamport mutex; dropping it", msg.Type, msg.Sender)
		return
	}

	m.tryEnterCS(state)
}

// A peer could not be reached; stop waiting for its ACK this round.
func (m *lamportMutex) handleUnreachable(state *lamportState, pid process.ID) {
	if !state.requesting || state.acks[pid] {
		return
	}
	m.logger.Warnf("Peer %v unreachable; proceeding without its ACK for this round", pid)
	state.skipped[pid] = true
	m.tryEnterCS(state)
}

// Enters the critical section if (1) not already in it, (2) a request is
// pending, (3) both peers have acknowledged (or been skipped), and (4) the
// local request is the minimum of the queue under (timestamp, id) order.
func (m *lamportMutex) tryEnterCS(state *lamportState) {
	if state.inCS || !state.requesting {
		return
	}

	for _, peer := range m.peers {
		if !state.acks[peer] && !state.skipped[peer] {
			return
		}
	}

	if len(state.queue) == 0 || state.queue[0].pid != m.self {
		return
	}

	m.logger.Infof("Request (%d, %v) is at the head of the queue; entering CS", state.requestTS, m.self)
	state.inCS = true
	m.csPermissions <- struct{}{}
}

// Removes the local entry and broadcasts RELEASE to both peers.
func (m *lamportMutex) release(state *lamportState) {
	state.inCS = false
	state.requesting = false
	m.dequeue(state, m.self)

	relTS := state.clock.Increment()
	m.logger.Infof("Releasing CS with timestamp %d", relTS)
	for _, peer := range m.peers {
		m.send(messages.NewTo(messages.Release, m.self, peer, messages.ScalarTime(relTS)), peer)
	}
}

// Inserts an entry, keeping the queue sorted by (timestamp, id). A pending
// entry of the same process is replaced rather than duplicated.
func (m *lamportMutex) enqueue(state *lamportState, entry queueEntry) {
	m.dequeue(state, entry.pid)
	state.queue = append(state.queue, entry)
	sort.Slice(state.queue, func(i, j int) bool {
		return state.queue[i].lessThan(state.queue[j])
	})
}

// Removes the process's entry from the queue, reporting whether one was
// present.
func (m *lamportMutex) dequeue(state *lamportState, pid process.ID) bool {
	for i, e := range state.queue {
		if e.pid == pid {
			state.queue = append(state.queue[:i], state.queue[i+1:]...)
			return true
		}
	}
	return false
}

func (m *lamportMutex) send(msg messages.Message, dest process.ID) {
	m.net.IntoNet <- OutgoingMessage{Destination: dest, Message: msg}
}

// Request requests entry to the critical section, blocking until granted.
func (m *lamportMutex) Request() (release func(), err error) {
	select {
	case m.csRequests <- struct{}{}:
	case <-m.closeChan:
		return nil, errClosed
	}

	select {
	case <-m.csPermissions:
	case <-m.closeChan:
		return nil, errClosed
	}

	return m.releaseFunc, nil
}

// Called by the user of the mutex to release the critical section. Waits
// for the release to be processed before returning, so that the mutex
// cannot be requested again before it is released.
func (m *lamportMutex) releaseFunc() {
	ch := make(chan struct{})
	select {
	case m.csDoneRequests <- ch:
		<-ch
	case <-m.closeChan:
	}
}

func (m *lamportMutex) Close() {
	m.closeOnce.Do(func() { close(m.closeChan) })
}
