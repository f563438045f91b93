package run

import (
	"context"
	"errors"
	"time"
)

// Session captures durable session lifecycle state: the caller-facing
// conversation container that one or more Records (runs) belong to.
//
// Contract:
//   - Session IDs are stable and caller-provided.
//   - Sessions are created explicitly (CreateSession) and ended explicitly
//     (EndSession).
//   - Ended sessions are terminal: new runs must not start under an ended
//     session.
type Session struct {
	ID        string
	Status    SessionStatus
	CreatedAt time.Time
	EndedAt   *time.Time
}

// SessionStatus represents the lifecycle state of a Session.
type SessionStatus string

const (
	SessionStatusActive SessionStatus = "active"
	SessionStatusEnded  SessionStatus = "ended"
)

// SessionStore persists Session lifecycle state alongside run Records. It is
// a separate interface from Store because not every deployment needs
// session-level bookkeeping (a single-turn CLI invocation, for example, has
// no durable session at all); a Store implementation may optionally satisfy
// this interface.
type SessionStore interface {
	// CreateSession creates (or returns) an active session.
	//
	// Contract:
	//   - Idempotent for active sessions: returns the existing session.
	//   - Returns ErrSessionEnded when the session exists but is terminal.
	CreateSession(ctx context.Context, sessionID string, createdAt time.Time) (Session, error)
	// LoadSession loads an existing session. Returns ErrSessionNotFound
	// when the session does not exist.
	LoadSession(ctx context.Context, sessionID string) (Session, error)
	// EndSession ends a session and returns its terminal state. Idempotent:
	// ending an already-ended session returns the stored session.
	EndSession(ctx context.Context, sessionID string, endedAt time.Time) (Session, error)
	// ListRunsBySession lists run records for the given session. When
	// statuses is non-empty, only records whose status matches one of the
	// provided values are returned.
	ListRunsBySession(ctx context.Context, sessionID string, statuses []Status) ([]Record, error)
}

var (
	// ErrSessionNotFound indicates a session does not exist in the store.
	ErrSessionNotFound = errors.New("run: session not found")
	// ErrSessionEnded indicates a session exists but is ended.
	ErrSessionEnded = errors.New("run: session ended")
)
