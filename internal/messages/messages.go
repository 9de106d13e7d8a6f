package messages

import (
	"encoding/json"
	"fmt"

	"dmx/internal/process"

	"github.com/DistributedClocks/GoVector/govec/vclock"
	"github.com/google/uuid"
)

// Type enumerates the kinds of messages exchanged between actors.
type Type string

const (
	// Request asks the group peers for permission to enter the critical section.
	Request Type = "REQUEST"
	// Ack grants that permission to a requesting peer.
	Ack Type = "ACK"
	// Release announces that the sender has left the critical section.
	Release Type = "RELEASE"
	// Token transfers ownership of the inter-group token between coordinators.
	Token Type = "TOKEN"
	// Grant releases a worker to contend for the shared resource.
	Grant Type = "GRANT"
	// Done notifies the coordinator that the dispatched worker has finished.
	Done Type = "DONE"
)

var knownTypes = map[Type]bool{
	Request: true, Ack: true, Release: true, Token: true, Grant: true, Done: true,
}

// Timestamp is the logical timestamp of a message. Lamport-governed
// exchanges carry a scalar; Ricart-Agrawala exchanges carry a vector. On
// the wire a scalar marshals as a bare integer and a vector as an object of
// per-process counters.
type Timestamp struct {
	Scalar uint64
	Vector vclock.VClock
}

// ScalarTime returns a scalar timestamp.
func ScalarTime(t uint64) Timestamp {
	return Timestamp{Scalar: t}
}

// VectorTime returns a vector timestamp.
func VectorTime(vc vclock.VClock) Timestamp {
	return Timestamp{Vector: vc}
}

// IsVector reports whether the timestamp carries a vector.
func (ts Timestamp) IsVector() bool {
	return ts.Vector != nil
}

func (ts Timestamp) String() string {
	if ts.IsVector() {
		return ts.Vector.ReturnVCString()
	}
	return fmt.Sprint(ts.Scalar)
}

// MarshalJSON implements json.Marshaler.
func (ts Timestamp) MarshalJSON() ([]byte, error) {
	if ts.IsVector() {
		return json.Marshal(map[string]uint64(ts.Vector))
	}
	return json.Marshal(ts.Scalar)
}

// UnmarshalJSON implements json.Unmarshaler.
func (ts *Timestamp) UnmarshalJSON(data []byte) error {
	var scalar uint64
	if err := json.Unmarshal(data, &scalar); err == nil {
		*ts = Timestamp{Scalar: scalar}
		return nil
	}
	var vec map[string]uint64
	if err := json.Unmarshal(data, &vec); err != nil {
		return fmt.Errorf("timestamp is neither an integer nor a vector: %w", err)
	}
	*ts = Timestamp{Vector: vclock.VClock(vec)}
	return nil
}

// Message is the unit of exchange between actors. Messages are value
// objects: they are never mutated after construction.
type Message struct {
	// ID is a unique message identifier, used for trace correlation across
	// actor logs.
	ID        string          `json:"id"`
	Type      Type            `json:"type"`
	Sender    process.ID      `json:"sender"`
	Timestamp Timestamp       `json:"timestamp"`
	Receiver  *process.ID     `json:"receiver,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// New constructs a message from the given sender with a fresh id.
func New(t Type, sender process.ID, ts Timestamp) Message {
	return Message{
		ID:        uuid.NewString(),
		Type:      t,
		Sender:    sender,
		Timestamp: ts,
	}
}

// NewTo constructs a message addressed to an explicit receiver.
func NewTo(t Type, sender, receiver process.ID, ts Timestamp) Message {
	m := New(t, sender, ts)
	m.Receiver = &receiver
	return m
}

func (m Message) String() string {
	return fmt.Sprintf("%s(%v|%v)", m.Type, m.Sender, m.Timestamp)
}

// Validate checks well-formedness of a message received from the wire.
func (m Message) Validate() error {
	if !knownTypes[m.Type] {
		return fmt.Errorf("unknown message type %q", m.Type)
	}
	if err := m.Sender.Validate(); err != nil {
		return fmt.Errorf("invalid sender: %w", err)
	}
	if m.Receiver != nil {
		if err := m.Receiver.Validate(); err != nil {
			return fmt.Errorf("invalid receiver: %w", err)
		}
	}
	return nil
}

// Encode serializes the message for the wire.
func (m Message) Encode() ([]byte, error) {
	return json.Marshal(m)
}

// Decode deserializes and validates a wire message.
func Decode(data []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return Message{}, err
	}
	if err := m.Validate(); err != nil {
		return Message{}, err
	}
	return m, nil
}
