package session

import (
	"sync"

	"github.com/padsync/collabcore/internal/protocol"
)

// outboundBufferSize bounds each connection's outbound queue; a peer that
// can't keep up is disconnected rather than allowed to block the actor
// (spec §5 "Backpressure").
const outboundBufferSize = 64

// Conn is one live WebSocket connection attached to a document's actor. The
// transport layer (internal/transport) owns reading and writing the socket; this
// type only holds the actor-facing state.
type Conn struct {
	ID       string
	Username string
	DocID    string

	// OTP is the token this connection presented at handshake time, if
	// any. Only consulted by the content_update hard-reset path.
	OTP string

	outbound chan *protocol.ServerMessage
	closed   chan struct{}
	closeMu  sync.Once

	// Cursor coalescing (spec §4.4 "the server may coalesce bursts"): at
	// most one cursor_update request per connection is ever in the actor's
	// input queue at a time; new positions overwrite pending, never
	// reorder, and never pile up.
	cursorMu     sync.Mutex
	pendingCursor *protocol.CursorPosition
	cursorQueued  bool
}

// NewConn constructs a connection handle. Call Hub.Join to attach it to a
// document's actor before using it.
func NewConn(id, username, docID string) *Conn {
	return &Conn{
		ID:       id,
		Username: username,
		DocID:    docID,
		outbound: make(chan *protocol.ServerMessage, outboundBufferSize),
		closed:   make(chan struct{}),
	}
}

// Outbound is the channel the transport layer's writer goroutine drains.
func (c *Conn) Outbound() <-chan *protocol.ServerMessage {
	return c.outbound
}

// Closed is closed once the actor has dropped this connection (either on a
// clean Leave or after a backpressure disconnect); the transport layer's
// writer goroutine should exit when it observes this.
func (c *Conn) Closed() <-chan struct{} {
	return c.closed
}

// send is non-blocking: it reports whether the message was queued. A full
// outbound channel means the peer is too slow and the caller should treat
// this connection as dead.
func (c *Conn) send(msg *protocol.ServerMessage) bool {
	select {
	case c.outbound <- msg:
		return true
	default:
		return false
	}
}

// markClosed is idempotent and safe to call from the actor goroutine once
// it has finished removing c from its connection set.
func (c *Conn) markClosed() {
	c.closeMu.Do(func() { close(c.closed) })
}
