// Package transport adapts internal/session.Hub to the outside world: a
// WebSocket endpoint for the live editing protocol (spec §6) and a REST
// surface for document lifecycle and server stats, grounded on the
// teacher's nhooyr.io/websocket + wsjson read/write loop (formerly
// connection.go/server.go) but reworked around the hub's request/reply API
// instead of a single in-process Rustpad value.
package transport

import (
	"context"
	"fmt"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/padsync/collabcore/internal/logging"
	"github.com/padsync/collabcore/internal/metrics"
	"github.com/padsync/collabcore/internal/protocol"
	"github.com/padsync/collabcore/internal/session"
)

// readTimeout bounds a single client message read, matching the teacher's
// per-read context budget in connection.go.
const readTimeout = 30 * time.Second

// writeTimeout bounds a single outbound write.
const writeTimeout = 10 * time.Second

// ServeDocument takes an already-accepted WebSocket wc and runs the
// connection's full lifecycle: join, read loop dispatching into hub, writer goroutine
// draining the connection's outbound queue, and leave on any exit path.
// docID, userID and username are taken from the REST framing (gin handler)
// that calls this; userID is the client's self-reported id (defaulted to a
// freshly generated UUID by the caller when absent) so a reconnecting
// client can keep a stable identity across reconnects (spec §6). otp is
// whatever the client presented at handshake, checked against the
// document's OTP by each content_update it attempts (spec §4.4).
func ServeDocument(ctx context.Context, hub *session.Hub, m *metrics.Metrics, wc *websocket.Conn, docID, userID, username, otp string) error {
	defer wc.Close(websocket.StatusNormalClosure, "")

	c := session.NewConn(userID, username, docID)
	c.OTP = otp

	hub.Join(c)
	m.ConnectionOpened()
	defer func() {
		hub.Leave(c)
		m.ConnectionClosed()
	}()

	writerDone := make(chan struct{})
	go writeLoop(ctx, wc, c, writerDone)
	defer func() { <-writerDone }()

	for {
		select {
		case <-c.Closed():
			return nil
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		readCtx, cancel := context.WithTimeout(ctx, readTimeout)
		var msg protocol.ClientMessage
		err := wsjson.Read(readCtx, wc, &msg)
		cancel()
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				return nil
			}
			return fmt.Errorf("read message: %w", err)
		}

		if err := msg.Validate(); err != nil {
			logging.Debug("transport: rejecting malformed message from %s: %v", c.ID, err)
			continue
		}

		if err := dispatch(hub, c, &msg); err != nil {
			logging.Debug("transport: %s: %v", c.ID, err)
		}
	}
}

func dispatch(hub *session.Hub, c *session.Conn, msg *protocol.ClientMessage) error {
	switch msg.Type {
	case protocol.TypeOperation:
		edit, err := protocol.EditFromWire(msg.Operation)
		if err != nil {
			return err
		}
		return hub.SubmitOperation(c, edit, msg.Version)
	case protocol.TypeCursorUpdate:
		hub.SubmitCursor(c, *msg.CursorPosition)
		return nil
	case protocol.TypeContentUpdate:
		return hub.SubmitContentUpdate(c, msg.Content)
	case protocol.TypeChatMessage:
		hub.SubmitChatMessage(c, msg.Message)
		return nil
	default:
		return fmt.Errorf("unhandled client message type %q", msg.Type)
	}
}

// writeLoop drains c's outbound queue onto the socket until the connection
// is closed (by the actor dropping it) or the request context ends.
func writeLoop(ctx context.Context, wc *websocket.Conn, c *session.Conn, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-c.Closed():
			return
		case <-ctx.Done():
			return
		case msg, ok := <-c.Outbound():
			if !ok {
				return
			}
			writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := wsjson.Write(writeCtx, wc, msg)
			cancel()
			if err != nil {
				logging.Debug("transport: write to %s failed: %v", c.ID, err)
				return
			}
		}
	}
}
