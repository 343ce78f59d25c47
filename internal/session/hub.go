package session

import (
	"sync"

	"github.com/padsync/collabcore/internal/document"
	"github.com/padsync/collabcore/internal/ot"
	"github.com/padsync/collabcore/internal/protocol"
)

// Hub owns one actor per document, starting it lazily on first use and
// letting it run for the process lifetime. Idle documents are evicted from
// the underlying store (see document.Store.Evict), not from the Hub; the
// actor stays registered, and the next Join recreates the document via
// GetOrCreate.
type Hub struct {
	store   *document.Store
	metrics Metrics

	mu     sync.Mutex
	actors map[string]*actor
}

func NewHub(store *document.Store, metrics Metrics) *Hub {
	return &Hub{
		store:  store,
		metrics: metrics,
		actors: make(map[string]*actor),
	}
}

func (h *Hub) actorFor(docID string) *actor {
	h.mu.Lock()
	defer h.mu.Unlock()

	a, ok := h.actors[docID]
	if ok {
		return a
	}
	a = newActor(docID, h.store, h.metrics)
	h.actors[docID] = a
	go a.run()
	return a
}

// Join attaches c to its document's actor, sending the initial
// document_state and broadcasting user_joined to peers (spec §4.4).
func (h *Hub) Join(c *Conn) {
	h.store.GetOrCreate(c.DocID)
	a := h.actorFor(c.DocID)
	a.input <- request{kind: reqJoin, conn: c}
}

// Leave detaches c, broadcasting user_left. Safe to call even if c was
// already dropped by the actor for backpressure.
func (h *Hub) Leave(c *Conn) {
	a := h.actorFor(c.DocID)
	a.input <- request{kind: reqLeave, conn: c}
}

// SubmitOperation runs the commit pipeline (spec §4.4 steps 1–6) for an
// incoming operation envelope and blocks until it has been applied or
// rejected.
func (h *Hub) SubmitOperation(c *Conn, edit *ot.Edit, clientVersion int) error {
	a := h.actorFor(c.DocID)
	reply := make(chan error, 1)
	a.input <- request{kind: reqCommit, conn: c, edit: edit, clientVersion: clientVersion, reply: reply}
	return <-reply
}

// SubmitCursor queues c's latest cursor position, coalescing with any
// update from c still waiting in the actor's queue.
func (h *Hub) SubmitCursor(c *Conn, pos protocol.CursorPosition) {
	c.cursorMu.Lock()
	c.pendingCursor = &pos
	alreadyQueued := c.cursorQueued
	c.cursorQueued = true
	c.cursorMu.Unlock()

	if alreadyQueued {
		return
	}
	a := h.actorFor(c.DocID)
	a.input <- request{kind: reqCursor, conn: c}
}

// SubmitContentUpdate runs the OTP-gated hard-reset path (SPEC_FULL.md
// §4.4) and blocks until it has completed or been rejected.
func (h *Hub) SubmitContentUpdate(c *Conn, content string) error {
	a := h.actorFor(c.DocID)
	reply := make(chan error, 1)
	a.input <- request{kind: reqContentUpdate, conn: c, content: content, reply: reply}
	return <-reply
}

// SubmitChatMessage broadcasts a chat message to every other connection on
// c's document.
func (h *Hub) SubmitChatMessage(c *Conn, message string) {
	a := h.actorFor(c.DocID)
	a.input <- request{kind: reqChatMessage, conn: c, message: message}
}
