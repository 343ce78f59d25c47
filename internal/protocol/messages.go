package protocol

import (
	"fmt"

	"github.com/padsync/collabcore/internal/ot"
)

// CursorPosition is a line/column cursor location (spec §6
// cursor_update.cursor_position).
type CursorPosition struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// EditOp is the wire form of a single ot.Op (spec §6 "Edit wire form"):
// {type: "retain"|"insert"|"delete", length?, value?}.
type EditOp struct {
	Type   string `json:"type"`
	Length int    `json:"length,omitempty"`
	Value  string `json:"value,omitempty"`
}

const (
	opTypeRetain = "retain"
	opTypeInsert = "insert"
	opTypeDelete = "delete"
)

// EditToWire converts an ot.Edit to its wire representation.
func EditToWire(e *ot.Edit) []EditOp {
	wire := make([]EditOp, 0, len(e.Ops))
	for _, op := range e.Ops {
		switch op.Kind {
		case ot.KindRetain:
			wire = append(wire, EditOp{Type: opTypeRetain, Length: op.Len})
		case ot.KindInsert:
			wire = append(wire, EditOp{Type: opTypeInsert, Value: op.Str})
		case ot.KindDelete:
			wire = append(wire, EditOp{Type: opTypeDelete, Length: op.Len})
		}
	}
	return wire
}

// EditFromWire parses a wire edit back into a normalized ot.Edit.
func EditFromWire(wire []EditOp) (*ot.Edit, error) {
	raw := make([]ot.Op, 0, len(wire))
	for _, w := range wire {
		switch w.Type {
		case opTypeRetain:
			raw = append(raw, ot.Retain(w.Length))
		case opTypeInsert:
			raw = append(raw, ot.Insert(w.Value))
		case opTypeDelete:
			raw = append(raw, ot.Delete(w.Length))
		default:
			return nil, fmt.Errorf("%w: unknown wire op type %q", ot.ErrMalformedEdit, w.Type)
		}
	}
	return ot.NewEdit(raw)
}

// ClientMessage is every message a client may send, discriminated by Type.
// Only the fields relevant to Type are populated; this is validated by
// Validate rather than enforced by separate per-type structs, since the
// wire contract (spec §6) is itself type-tagged rather than field-presence
// tagged.
type ClientMessage struct {
	Type           string          `json:"type"`
	Operation      []EditOp        `json:"operation,omitempty"`
	Version        int             `json:"version,omitempty"`
	CursorPosition *CursorPosition `json:"cursor_position,omitempty"`
	Content        string          `json:"content,omitempty"`
	Message        string          `json:"message,omitempty"`
	Username       string          `json:"username,omitempty"`
}

// Validate rejects a ClientMessage whose Type doesn't carry the fields it
// needs, before it reaches the session coordinator.
func (m ClientMessage) Validate() error {
	switch m.Type {
	case TypeOperation:
		if m.Operation == nil {
			return fmt.Errorf("%w: operation message missing operation field", ot.ErrMalformedEdit)
		}
	case TypeCursorUpdate:
		if m.CursorPosition == nil {
			return fmt.Errorf("%w: cursor_update message missing cursor_position field", ot.ErrMalformedEdit)
		}
	case TypeContentUpdate, TypeChatMessage:
		// Content/Message may legitimately be empty; nothing to validate.
	default:
		return fmt.Errorf("%w: unknown client message type %q", ot.ErrMalformedEdit, m.Type)
	}
	return nil
}

// ServerMessage is every message the server may send, discriminated by
// Type. Constructed exclusively via the New* helpers below so exactly one
// shape's fields are ever populated per value.
type ServerMessage struct {
	Type           string          `json:"type"`
	Content        string          `json:"content,omitempty"`
	Version        int             `json:"version,omitempty"`
	Operation      []EditOp        `json:"operation,omitempty"`
	UserID         string          `json:"user_id,omitempty"`
	Username       string          `json:"username,omitempty"`
	CursorPosition *CursorPosition `json:"cursor_position,omitempty"`
	Message        string          `json:"message,omitempty"`
}

func NewDocumentState(content string, version int) *ServerMessage {
	return &ServerMessage{Type: TypeDocumentState, Content: content, Version: version}
}

func NewOperationApplied(edit *ot.Edit, version int, userID string) *ServerMessage {
	return &ServerMessage{Type: TypeOperationApplied, Operation: EditToWire(edit), Version: version, UserID: userID}
}

func NewOperationConfirmed(version int) *ServerMessage {
	return &ServerMessage{Type: TypeOperationConfirmed, Version: version}
}

func NewUserJoined(userID, username string) *ServerMessage {
	return &ServerMessage{Type: TypeUserJoined, UserID: userID, Username: username}
}

func NewUserLeft(userID, username string) *ServerMessage {
	return &ServerMessage{Type: TypeUserLeft, UserID: userID, Username: username}
}

func NewCursorUpdate(userID string, pos CursorPosition) *ServerMessage {
	return &ServerMessage{Type: TypeCursorUpdate, UserID: userID, CursorPosition: &pos}
}

func NewContentUpdate(content string, version int, userID string) *ServerMessage {
	return &ServerMessage{Type: TypeContentUpdate, Content: content, Version: version, UserID: userID}
}

func NewChatMessage(message, username string) *ServerMessage {
	return &ServerMessage{Type: TypeChatMessage, Message: message, Username: username}
}

func NewErrorMessage(format string, args ...any) *ServerMessage {
	return &ServerMessage{Type: TypeError, Message: fmt.Sprintf(format, args...)}
}
