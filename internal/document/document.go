// Package document implements the document store (spec §4.3): per-document
// content, version and edit history, with single-writer commit semantics and
// bounded retention for idle documents.
package document

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/padsync/collabcore/internal/ot"
)

// Sentinel errors surfaced by this package. Callers should use errors.Is.
var (
	// ErrUnknownDocument is returned by any operation addressing a doc_id
	// the store has never seen (or has since evicted).
	ErrUnknownDocument = errors.New("document: unknown document")
)

// Document holds one document's full state: content, the edit history that
// produced it, and metadata used for REST reads and eviction.
//
// Invariants (spec §4.3): (a) Version == len(History); (b) replaying History
// from "" reproduces Content; (c) History is append-only, never reordered.
// Callers must hold the owning Store's per-document lock (via the exported
// methods below) before touching any field.
type Document struct {
	ID        string
	Content   string
	Language  string
	OTP       string // empty means unprotected
	Version   int
	History   []*ot.Edit
	CreatedAt time.Time
	UpdatedAt time.Time

	// connections tracks live connection count for eviction and Delete
	// gating; the session coordinator increments/decrements it.
	connections int
}

// Metadata is the read-only projection returned by Store.ReadOnly, safe to
// serialize directly for the REST surface.
type Metadata struct {
	ID        string
	Content   string
	Language  string
	Version   int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Store holds every live document behind a single map lock, plus a
// per-document RWMutex so readers of one document never block writers of
// another (spec §5 "Document store: none beyond what the concurrency
// primitive imposes").
type Store struct {
	mu   sync.RWMutex
	docs map[string]*entry

	// loader is consulted by GetOrCreate on a cold lookup, letting the
	// persistence layer (component G) seed content/language from its last
	// snapshot instead of starting empty. Nil means always start empty.
	loader func(docID string) (content, language string, ok bool)
}

type entry struct {
	mu  sync.RWMutex
	doc *Document
}

// NewStore builds an empty in-memory store. loader may be nil.
func NewStore(loader func(docID string) (content, language string, ok bool)) *Store {
	return &Store{
		docs:   make(map[string]*entry),
		loader: loader,
	}
}

// GetOrCreate returns the document for docID, creating it (optionally seeded
// via the store's loader) if this is the first reference.
func (s *Store) GetOrCreate(docID string) *Document {
	s.mu.RLock()
	e, ok := s.docs[docID]
	s.mu.RUnlock()
	if ok {
		e.mu.RLock()
		defer e.mu.RUnlock()
		return e.doc.clone()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Another writer may have created it between our RUnlock and Lock.
	if e, ok := s.docs[docID]; ok {
		e.mu.RLock()
		defer e.mu.RUnlock()
		return e.doc.clone()
	}

	now := time.Now()
	doc := &Document{
		ID:        docID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if s.loader != nil {
		if content, language, ok := s.loader(docID); ok {
			doc.Content = content
			doc.Language = language
		}
	}

	s.docs[docID] = &entry{doc: doc}
	return doc.clone()
}

// Snapshot returns the current content and version for docID.
func (s *Store) Snapshot(docID string) (content string, version int, err error) {
	e, err := s.lookup(docID)
	if err != nil {
		return "", 0, err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.doc.Content, e.doc.Version, nil
}

// Tail returns the history slice from fromVersion (inclusive) to the current
// version. A fromVersion equal to the current version returns an empty
// slice; fromVersion beyond the current version is an error.
func (s *Store) Tail(docID string, fromVersion int) ([]*ot.Edit, error) {
	e, err := s.lookup(docID)
	if err != nil {
		return nil, err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()

	if fromVersion < 0 || fromVersion > e.doc.Version {
		return nil, fmt.Errorf("document: tail requested from_version %d, current version is %d", fromVersion, e.doc.Version)
	}

	tail := make([]*ot.Edit, len(e.doc.History)-fromVersion)
	copy(tail, e.doc.History[fromVersion:])
	return tail, nil
}

// Commit appends edit to docID's history and applies it to content,
// returning the new version. edit must already be rebased against the tail
// the caller observed — Commit does not rebase.
func (s *Store) Commit(docID string, edit *ot.Edit) (newVersion int, err error) {
	e, err := s.lookup(docID)
	if err != nil {
		return 0, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	newContent, err := ot.Apply(e.doc.Content, edit)
	if err != nil {
		return 0, fmt.Errorf("document: commit: %w", err)
	}

	e.doc.History = append(e.doc.History, edit)
	e.doc.Content = newContent
	e.doc.Version++
	e.doc.UpdatedAt = time.Now()

	return e.doc.Version, nil
}

// ReplaceContent performs the privileged hard-reset path (spec.md §4.4,
// SPEC_FULL.md §4.4 "content_update"): it appends a synthetic full-replace
// edit to history so invariant (a) (Version == len(History)) keeps holding,
// but the caller is expected to broadcast a full document_state rather than
// the replacement edit itself.
func (s *Store) ReplaceContent(docID, newContent string) (newVersion int, err error) {
	e, err := s.lookup(docID)
	if err != nil {
		return 0, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	var raw []ot.Op
	if n := len([]rune(e.doc.Content)); n > 0 {
		raw = append(raw, ot.Delete(n))
	}
	if newContent != "" {
		raw = append(raw, ot.Insert(newContent))
	}
	edit, err := ot.NewEdit(raw)
	if err != nil {
		return 0, fmt.Errorf("document: replace content: %w", err)
	}

	e.doc.History = append(e.doc.History, edit)
	e.doc.Content = newContent
	e.doc.Version++
	e.doc.UpdatedAt = time.Now()

	return e.doc.Version, nil
}

// SetLanguage updates docID's language tag without touching content/version.
func (s *Store) SetLanguage(docID, language string) error {
	e, err := s.lookup(docID)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.doc.Language = language
	e.doc.UpdatedAt = time.Now()
	return nil
}

// SetOTP sets or clears (empty string) docID's one-time-password protection.
func (s *Store) SetOTP(docID, otp string) error {
	e, err := s.lookup(docID)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.doc.OTP = otp
	return nil
}

// OTP returns docID's current OTP, empty if unprotected.
func (s *Store) OTP(docID string) (string, error) {
	e, err := s.lookup(docID)
	if err != nil {
		return "", err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.doc.OTP, nil
}

// ReadOnly returns the REST-facing projection of docID.
func (s *Store) ReadOnly(docID string) (Metadata, error) {
	e, err := s.lookup(docID)
	if err != nil {
		return Metadata{}, err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return Metadata{
		ID:        e.doc.ID,
		Content:   e.doc.Content,
		Language:  e.doc.Language,
		Version:   e.doc.Version,
		CreatedAt: e.doc.CreatedAt,
		UpdatedAt: e.doc.UpdatedAt,
	}, nil
}

// AddConnection/RemoveConnection track live connection count so Delete and
// the eviction sweep never drop a document someone is actively editing.
func (s *Store) AddConnection(docID string) error {
	e, err := s.lookup(docID)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.doc.connections++
	return nil
}

func (s *Store) RemoveConnection(docID string) error {
	e, err := s.lookup(docID)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.doc.connections > 0 {
		e.doc.connections--
	}
	e.doc.UpdatedAt = time.Now()
	return nil
}

// Delete removes docID outright, refusing while any connection is live.
func (s *Store) Delete(docID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.docs[docID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownDocument, docID)
	}
	e.mu.RLock()
	connected := e.doc.connections > 0
	e.mu.RUnlock()
	if connected {
		return fmt.Errorf("document: %s has live connections, refusing delete", docID)
	}

	delete(s.docs, docID)
	return nil
}

// Evict sweeps every document with zero live connections whose UpdatedAt is
// older than olderThan, deleting it and returning the evicted doc_ids.
// Intended to be called periodically (see cmd/padserver's cleaner loop).
func (s *Store) Evict(olderThan time.Duration) []string {
	cutoff := time.Now().Add(-olderThan)

	s.mu.Lock()
	defer s.mu.Unlock()

	var evicted []string
	for id, e := range s.docs {
		e.mu.RLock()
		stale := e.doc.connections == 0 && e.doc.UpdatedAt.Before(cutoff)
		e.mu.RUnlock()
		if stale {
			delete(s.docs, id)
			evicted = append(evicted, id)
		}
	}
	return evicted
}

// Count returns the number of documents currently tracked (for /api/stats).
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}

// IDs returns every doc_id currently tracked, for callers that need to sweep
// all documents (e.g. a periodic persistence snapshot).
func (s *Store) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.docs))
	for id := range s.docs {
		ids = append(ids, id)
	}
	return ids
}

func (s *Store) lookup(docID string) (*entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.docs[docID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDocument, docID)
	}
	return e, nil
}

// clone returns a shallow copy safe to hand to a caller outside the entry
// lock (History's backing array is shared but never mutated in place —
// Commit always appends, never edits existing slots).
func (d *Document) clone() *Document {
	c := *d
	return &c
}
