package mutex

import (
	"sync"

	"dmx/internal/clocks"
	"dmx/internal/logging"
	"dmx/internal/messages"
	"dmx/internal/process"
	"dmx/internal/utils"

	"github.com/DistributedClocks/GoVector/govec/vclock"
)

// An implementation of Ricart-Agrawala's mutual exclusion algorithm,
// aligning to the Mutex interface.
//
// Unlike Lamport's algorithm, a REQUEST is not acknowledged
// unconditionally: when the local process holds a request of higher
// priority, the reply is withheld until the local critical section
// completes. Requests are stamped with vector timestamps; concurrent
// vectors are tie-broken by process number.
type ricartAgrawalaMutex struct {
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

// Protocol state, owned by the single state goroutine.
type ricartAgrawalaState struct {
	clock      *clocks.Vector
	requestVC  vclock.VClock
	replies    map[process.ID]bool
	skipped    map[process.ID]bool
	deferred   []process.ID
	requesting bool
	inCS       bool
}

// NewRicartAgrawala constructs and returns a new Ricart-Agrawala mutex.
// Parameters are as in [NewLamport].
func NewRicartAgrawala(logger *logging.Logger, net NetWrapper, self process.ID, peers []process.ID) Mutex {
	if utils.SliceContains(peers, self) {
		panic("mutex peers must not contain self")
	}

	m := &ricartAgrawalaMutex{
		logger:         logger,
		net:            net,
		self:           self,
		peers:          peers,
		csRequests:     make(chan struct{}),
		csPermissions:  make(chan struct{}),
		csDoneRequests: make(chan chan struct{}),
		closeChan:      make(chan struct{}),
	}

	logger.Infof("Starting Ricart-Agrawala mutex with self %v and peers %v", self, peers)

	go m.handleState()

	return m
}

func (m *ricartAgrawalaMutex) handleState() {
	members := make([]string, 0, len(m.peers)+1)
	for _, p := range m.peers {
		members = append(members, p.String())
	}
	members = append(members, m.self.String())

	state := &ricartAgrawalaState{
		clock:   clocks.NewVector(m.self.String(), members),
		replies: make(map[process.ID]bool),
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

// Starts a new round: stamps the request with the ticked vector and
// broadcasts it to both peers.
func (m *ricartAgrawalaMutex) beginRequest(state *ricartAgrawalaState) {
	vc := state.clock.Increment()
	state.requestVC = vc
	state.requesting = true
	state.replies = make(map[process.ID]bool)
	state.skipped = make(map[process.ID]bool)

	m.logger.Infof("Requesting CS with vector %v", vc.ReturnVCString())
	for _, peer := range m.peers {
		m.send(messages.NewTo(messages.Request, m.self, peer, messages.VectorTime(vc)), peer)
	}

	m.tryEnterCS(state)
}

func (m *ricartAgrawalaMutex) handleMessage(state *ricartAgrawalaState, msg messages.Message) {
	if !msg.Timestamp.IsVector() {
		m.logger.Warnf("Non-vector timestamp on %v from %v; dropping it", msg.Type, msg.Sender)
		return
	}

	switch msg.Type {
	case messages.Request:
		state.clock.Update(msg.Timestamp.Vector)
		if m.shouldDefer(state, msg.Timestamp.Vector, msg.Sender) {
			m.logger.Infof("Deferring reply to %v: local request has priority", msg.Sender)
			state.deferred = append(state.deferred, msg.Sender)
		} else {
			m.sendAck(state, msg.Sender)
		}
	case messages.Ack:
		state.clock.Update(msg.Timestamp.Vector)
		if !state.requesting {
			m.logger.Info("Ignoring ACK from ", msg.Sender, " received while not requesting")
			return
		}
		state.replies[msg.Sender] = true
		m.tryEnterCS(state)
	default:
		m.logger.Warnf("Unexpected %v message from %v in Ricart-Agrawala mutex; dropping it", msg.Type, msg.Sender)
	}
}

/*
Decides whether the reply to peer's request must be deferred.

Reply immediately when the local process is not requesting, or when its
pending request is strictly after (peerVC, peer) in (vector, process
number) order. Defer otherwise: the local request has priority and the
reply is only sent after the local critical section completes.
*/
func (m *ricartAgrawalaMutex) shouldDefer(state *ricartAgrawalaState, peerVC vclock.VClock, peer process.ID) bool {
	if !state.requesting {
		return false
	}
	switch clocks.Compare(state.requestVC, peerVC) {
	case clocks.After:
		return false
	case clocks.Before:
		return true
	default:
		return m.self.LessThan(peer)
	}
}

func (m *ricartAgrawalaMutex) handleUnreachable(state *ricartAgrawalaState, pid process.ID) {
	if !state.requesting || state.replies[pid] {
		return
	}
	m.logger.Warnf("Peer %v unreachable; proceeding without its reply for this round", pid)
	state.skipped[pid] = true
	m.tryEnterCS(state)
}

// Enters the critical section once both peers have replied or been skipped.
func (m *ricartAgrawalaMutex) tryEnterCS(state *ricartAgrawalaState) {
	if state.inCS || !state.requesting {
		return
	}
	for _, peer := range m.peers {
		if !state.replies[peer] && !state.skipped[peer] {
			return
		}
	}

	m.logger.Info("Both peers replied; entering CS")
	state.inCS = true
	m.csPermissions <- struct{}{}
}

// Sends the deferred replies accumulated while in the critical section,
// then clears the deferral list.
func (m *ricartAgrawalaMutex) release(state *ricartAgrawalaState) {
	state.inCS = false
	state.requesting = false

	for _, peer := range state.deferred {
		m.logger.Infof("Sending deferred reply to %v", peer)
		m.sendAck(state, peer)
	}
	state.deferred = nil
}

func (m *ricartAgrawalaMutex) sendAck(state *ricartAgrawalaState, dest process.ID) {
	vc := state.clock.Increment()
	m.send(messages.NewTo(messages.Ack, m.self, dest, messages.VectorTime(vc)), dest)
}

func (m *ricartAgrawalaMutex) send(msg messages.Message, dest process.ID) {
	m.net.IntoNet <- OutgoingMessage{Destination: dest, Message: msg}
}

// Request requests entry to the critical section, blocking until granted.
func (m *ricartAgrawalaMutex) Request() (release func(), err error) {
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

func (m *ricartAgrawalaMutex) releaseFunc() {
	ch := make(chan struct{})
	select {
	case m.csDoneRequests <- ch:
		<-ch
	case <-m.closeChan:
	}
}

func (m *ricartAgrawalaMutex) Close() {
	m.closeOnce.Do(func() { close(m.closeChan) })
}
