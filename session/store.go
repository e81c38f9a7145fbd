// Package session persists conversation turns so the query analyzer can see
// recent context. The store is deliberately small: append a turn, read the
// last few back in order. Anything heavier (summarization, retention policy)
// belongs to the caller.
package session

import (
	"context"
	"errors"
	"time"
)

// Turn roles as stored.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("session store is closed")

// Entry is one stored conversation turn.
type Entry struct {
	SessionID string
	RequestID string
	Role      string
	Text      string
	CreatedAt time.Time
}

// Store persists and recalls conversation turns.
//
// Implementations must be safe for concurrent use; the orchestrator appends
// from request goroutines.
type Store interface {
	// Append persists one turn. CreatedAt is filled by the store if zero.
	Append(ctx context.Context, e Entry) error

	// Recent returns up to n most recent turns of a session in
	// chronological order. An unknown session yields an empty slice, not
	// an error.
	Recent(ctx context.Context, sessionID string, n int) ([]Entry, error)

	// Close releases the store. Double-close is a no-op.
	Close() error
}
