package channel

import (
	"fmt"
	"net"
	"time"

	"dmx/internal/config"
	"dmx/internal/logging"
	"dmx/internal/messages"
	"dmx/internal/process"
	"dmx/internal/utils"
)

// Channel is a point-to-point, connection-oriented message transport
// between the system's actors. One instance per actor; destinations are
// addressed by process id, resolved through the deterministic port scheme.
type Channel interface {
	// Send delivers one message to the destination, retrying on transport
	// failure. Fails with ErrUnreachablePeer once the retry budget is spent.
	Send(msg messages.Message, dest process.ID) error
	// Receive blocks until a well-formed message arrives or the timeout
	// elapses, in which case it fails with ErrReceiveTimeout.
	Receive(timeout time.Duration) (messages.Message, error)
	// Inbox exposes the stream of received messages, for a dispatcher to
	// pump from instead of calling Receive.
	Inbox() <-chan messages.Message
	// Close shuts the endpoint down. No message is sent or delivered
	// afterwards.
	Close()
}

// TCP channel: one JSON-encoded message per connection. The dialing side
// opens a connection, writes the message and closes; a completed write is
// the transport-level acknowledgement.
type tcpChannel struct {
	logger *logging.Logger
	self   process.ID

	host           string
	basePort       uint16
	maxRetries     int
	retryDelay     time.Duration
	messageTimeout time.Duration

	listener net.Listener
	inbox    chan messages.Message
	connUIDs utils.UIDGenerator

	closeChan chan struct{}
}

// NewTCP constructs a channel endpoint for the given actor, listening on
// the port derived from its id.
func NewTCP(logger *logging.Logger, self process.ID, conf config.Config) (Channel, error) {
	addr := fmt.Sprintf("%s:%d", conf.Host, self.Port(conf.BasePort))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", addr, err)
	}

	ch := &tcpChannel{
		logger:         logger,
		self:           self,
		host:           conf.Host,
		basePort:       conf.BasePort,
		maxRetries:     conf.MaxRetries,
		retryDelay:     conf.RetryDelay,
		messageTimeout: conf.MessageTimeout,
		listener:       listener,
		inbox:          make(chan messages.Message, 100),
		connUIDs:       utils.NewUIDGenerator(),
		closeChan:      make(chan struct{}),
	}

	logger.Info("Listening for messages on ", addr)
	go ch.acceptLoop()

	return ch, nil
}

func (ch *tcpChannel) acceptLoop() {
	for {
		conn, err := ch.listener.Accept()
		if err != nil {
			select {
			case <-ch.closeChan:
				ch.logger.Warn("Channel's accept loop is closing.")
				return
			default:
				ch.logger.Error("Error accepting connection: ", err)
				continue
			}
		}
		go ch.handleConnection(conn, <-ch.connUIDs)
	}
}

// Reads the single message carried by one inbound connection. Malformed
// payloads are a ProtocolError: logged and dropped, the actor keeps running.
func (ch *tcpChannel) handleConnection(conn net.Conn, uid utils.UID) {
	defer conn.Close()

	if err := conn.SetReadDeadline(time.Now().Add(ch.messageTimeout)); err != nil {
		ch.logger.Error("Error setting read deadline: ", err)
		return
	}

	buf := make([]byte, 0, 512)
	tmp := make([]byte, 512)
	for {
		n, err := conn.Read(tmp)
		buf = append(buf, tmp[:n]...)
		if err != nil {
			break
		}
	}

	if len(buf) == 0 {
		ch.logger.Warnf("conn %d: %v: empty payload", uid, ErrProtocolError)
		return
	}

	msg, err := messages.Decode(buf)
	if err != nil {
		ch.logger.Warnf("conn %d: %v: %v", uid, ErrProtocolError, err)
		return
	}

	select {
	case ch.inbox <- msg:
	case <-ch.closeChan:
	default:
		ch.logger.Warnf("Inbox full; dropping %v from %v", msg, msg.Sender)
	}
}

func (ch *tcpChannel) Send(msg messages.Message, dest process.ID) error {
	if ch.isClosed() {
		return ErrClosed
	}

	payload, err := msg.Encode()
	if err != nil {
		return fmt.Errorf("encoding %v: %w", msg, err)
	}

	addr := fmt.Sprintf("%s:%d", ch.host, dest.Port(ch.basePort))
	var lastErr error
	for attempt := 0; attempt < ch.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(ch.retryDelay):
			case <-ch.closeChan:
				return ErrClosed
			}
		}
		lastErr = ch.attemptSend(payload, addr)
		if lastErr == nil {
			return nil
		}
		ch.logger.Warnf("Send attempt %d/%d to %v failed: %v", attempt+1, ch.maxRetries, dest, lastErr)
	}
	return fmt.Errorf("sending %v to %v: %w: %v", msg.Type, dest, ErrUnreachablePeer, lastErr)
}

func (ch *tcpChannel) attemptSend(payload []byte, addr string) error {
	conn, err := net.DialTimeout("tcp", addr, ch.messageTimeout)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := conn.SetWriteDeadline(time.Now().Add(ch.messageTimeout)); err != nil {
		return err
	}
	if _, err := conn.Write(payload); err != nil {
		return err
	}
	return nil
}

func (ch *tcpChannel) Receive(timeout time.Duration) (messages.Message, error) {
	select {
	case msg := <-ch.inbox:
		return msg, nil
	case <-time.After(timeout):
		return messages.Message{}, ErrReceiveTimeout
	case <-ch.closeChan:
		return messages.Message{}, ErrClosed
	}
}

func (ch *tcpChannel) Inbox() <-chan messages.Message {
	return ch.inbox
}

func (ch *tcpChannel) isClosed() bool {
	select {
	case <-ch.closeChan:
		return true
	default:
		return false
	}
}

func (ch *tcpChannel) Close() {
	if ch.isClosed() {
		return
	}
	close(ch.closeChan)
	ch.listener.Close()
}
