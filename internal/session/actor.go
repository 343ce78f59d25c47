package session

import (
	"fmt"

	"github.com/padsync/collabcore/internal/document"
	"github.com/padsync/collabcore/internal/logging"
	"github.com/padsync/collabcore/internal/ot"
	"github.com/padsync/collabcore/internal/protocol"
)

// requestBufferSize bounds the actor's input queue. Commits, joins, leaves
// and (coalesced) cursor updates all funnel through it, so it sizes for
// connection-count churn plus a handful of in-flight edits, not per-edit
// throughput.
const requestBufferSize = 256

type requestKind int

const (
	reqJoin requestKind = iota
	reqLeave
	reqCommit
	reqCursor
	reqContentUpdate
	reqChatMessage
)

type request struct {
	kind          requestKind
	conn          *Conn
	edit          *ot.Edit
	clientVersion int
	content       string
	message       string
	reply         chan error
}

// actor is the single-writer goroutine owning one document's commit
// pipeline, connection set and presence broadcasts (spec §4.4, §5
// "per-document actor"). Commits, content resets and connection-count
// changes for this doc_id flow through run. Other callers reach the store
// directly (REST reads, the REST handler setting language/OTP on a new
// document, the eviction sweep), which is why the store keeps its own locks.
type actor struct {
	docID   string
	store   *document.Store
	metrics Metrics

	input  chan request
	done   chan struct{}
	conns  map[string]*Conn
}

func newActor(docID string, store *document.Store, metrics Metrics) *actor {
	return &actor{
		docID:   docID,
		store:   store,
		metrics: metrics,
		input:   make(chan request, requestBufferSize),
		done:    make(chan struct{}),
		conns:   make(map[string]*Conn),
	}
}

func (a *actor) run() {
	defer close(a.done)
	for req := range a.input {
		switch req.kind {
		case reqJoin:
			a.handleJoin(req.conn)
		case reqLeave:
			a.handleLeave(req.conn)
		case reqCommit:
			a.handleCommit(req.conn, req.edit, req.clientVersion, req.reply)
		case reqCursor:
			a.handleCursor(req.conn)
		case reqContentUpdate:
			a.handleContentUpdate(req.conn, req.content, req.reply)
		case reqChatMessage:
			a.handleChatMessage(req.conn, req.message)
		}
	}
}

func (a *actor) handleJoin(c *Conn) {
	a.conns[c.ID] = c
	if err := a.store.AddConnection(a.docID); err != nil {
		logging.Error("session: AddConnection(%s): %v", a.docID, err)
	}

	content, version, err := a.store.Snapshot(a.docID)
	if err != nil {
		logging.Error("session: Snapshot(%s) on join: %v", a.docID, err)
		a.drop(c)
		return
	}
	if !c.send(protocol.NewDocumentState(content, version)) {
		a.drop(c)
		return
	}

	for id, peer := range a.conns {
		if id == c.ID {
			continue
		}
		a.deliver(peer, protocol.NewUserJoined(c.ID, c.Username))
	}
}

func (a *actor) handleLeave(c *Conn) {
	if _, ok := a.conns[c.ID]; !ok {
		return
	}
	a.drop(c)
}

// drop removes c from the connection set, marks it closed (closing the
// channel returned by Closed) and tells its remaining peers it left. Used both for a clean disconnect and
// for a backpressure-triggered disconnect (spec §5 "overflow policy is to
// disconnect the slow peer").
func (a *actor) drop(c *Conn) {
	delete(a.conns, c.ID)
	c.markClosed()
	if err := a.store.RemoveConnection(a.docID); err != nil {
		logging.Error("session: RemoveConnection(%s): %v", a.docID, err)
	}
	for _, peer := range a.conns {
		a.deliver(peer, protocol.NewUserLeft(c.ID, c.Username))
	}
}

// deliver sends to peer, dropping it as a slow peer on backpressure. It
// must never be called re-entrantly while iterating a.conns without care —
// callers copy what they need to send before calling this if they're mid
// range over a.conns they intend to keep ranging over (Go's range over a
// map tolerates concurrent delete of the current key, which is all drop
// does here).
func (a *actor) deliver(c *Conn, msg *protocol.ServerMessage) {
	if !c.send(msg) {
		a.drop(c)
	}
}

func (a *actor) handleCommit(sender *Conn, edit *ot.Edit, clientVersion int, reply chan error) {
	_, version, err := a.store.Snapshot(a.docID)
	if err != nil {
		a.fail(sender, reply, err)
		return
	}
	if clientVersion < 0 || clientVersion > version {
		a.fail(sender, reply, fmt.Errorf("%w: client_version=%d current=%d", ErrStaleOrFutureVersion, clientVersion, version))
		return
	}

	tail, err := a.store.Tail(a.docID, clientVersion)
	if err != nil {
		a.fail(sender, reply, err)
		return
	}

	editPrime, err := ot.Rebase(edit, tail)
	if err != nil {
		a.fail(sender, reply, err)
		return
	}

	newVersion, err := a.store.Commit(a.docID, editPrime)
	if err != nil {
		a.fail(sender, reply, err)
		return
	}

	if a.metrics != nil {
		a.metrics.CommitApplied()
	}

	applied := protocol.NewOperationApplied(editPrime, newVersion, sender.ID)
	for id, peer := range a.conns {
		if id == sender.ID {
			continue
		}
		a.deliver(peer, applied)
	}

	reply <- nil
	sender.send(protocol.NewOperationConfirmed(newVersion))
}

func (a *actor) handleCursor(c *Conn) {
	c.cursorMu.Lock()
	pos := c.pendingCursor
	c.cursorQueued = false
	c.cursorMu.Unlock()
	if pos == nil {
		return
	}

	msg := protocol.NewCursorUpdate(c.ID, *pos)
	for id, peer := range a.conns {
		if id == c.ID {
			continue
		}
		a.deliver(peer, msg)
	}
}

// handleContentUpdate is the privileged hard-reset path (SPEC_FULL.md
// §4.4): it replaces content outright, appends a synthetic full-replace
// edit to history so version == len(history) keeps holding, and broadcasts
// document_state (a full resync) rather than a diffable operation_applied.
func (a *actor) handleContentUpdate(sender *Conn, content string, reply chan error) {
	otp, err := a.store.OTP(a.docID)
	if err != nil {
		a.fail(sender, reply, err)
		return
	}
	if otp != "" && sender.OTP != otp {
		a.fail(sender, reply, ErrUnauthorized)
		return
	}

	newVersion, err := a.store.ReplaceContent(a.docID, content)
	if err != nil {
		a.fail(sender, reply, err)
		return
	}

	if a.metrics != nil {
		a.metrics.ContentReset()
	}
	logging.Info("session: content_update hard reset on %s by %s -> version %d", a.docID, sender.ID, newVersion)

	msg := protocol.NewDocumentState(content, newVersion)
	for _, peer := range a.conns {
		a.deliver(peer, msg)
	}
	reply <- nil
}

// fail notifies sender of a rejected request over its outbound channel and
// hands the same error back on reply so the caller (Hub.Submit*) can log or
// act on it without needing a second round trip to the socket.
func (a *actor) fail(sender *Conn, reply chan error, err error) {
	sender.send(protocol.NewErrorMessage("%v", err))
	reply <- err
}

func (a *actor) handleChatMessage(sender *Conn, message string) {
	msg := protocol.NewChatMessage(message, sender.Username)
	for id, peer := range a.conns {
		if id == sender.ID {
			continue
		}
		a.deliver(peer, msg)
	}
}
