package session

import "errors"

// Sentinel errors surfaced by this package. Callers should use errors.Is.
var (
	// ErrStaleOrFutureVersion is returned when a client's operation carries
	// a client_version outside [0, current_version] (spec §7).
	ErrStaleOrFutureVersion = errors.New("session: stale or future version")

	// ErrUnauthorized is returned when a content_update hard reset arrives
	// without the document's current OTP (SPEC_FULL.md §4.4).
	ErrUnauthorized = errors.New("session: unauthorized")
)
