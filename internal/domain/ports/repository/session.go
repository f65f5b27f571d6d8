package repository

import (
	"context"

	"github.com/DisciteAI/backend-ai-service/internal/domain/model"
)

// SessionRepository persists tutoring sessions, their transcripts and their
// context snapshots. A session exclusively owns its messages and context
// (cascade delete).
type SessionRepository interface {
	// CreateSession inserts a new session and fills in its generated id.
	CreateSession(ctx context.Context, qx any, session *model.Session) error
	// SaveContext inserts the 1:1 context snapshot for a session.
	SaveContext(ctx context.Context, qx any, sc *model.SessionContext) error
	// SaveMessage appends one immutable transcript message and fills its id.
	SaveMessage(ctx context.Context, qx any, m *model.Message) error

	// FindByID loads the session row only (no transcript).
	FindByID(ctx context.Context, qx any, id int64) (*model.Session, error)
	// ListMessages returns the full transcript in total order
	// (timestamp, ties broken by insertion order).
	ListMessages(ctx context.Context, qx any, sessionID int64) ([]model.Message, error)
	// FindContext loads the context snapshot, or domain.ErrNotFound.
	FindContext(ctx context.Context, qx any, sessionID int64) (*model.SessionContext, error)

	// UpdateStatus moves a session into a new status; completedAt mirrors the
	// model invariant (set iff completed).
	UpdateStatus(ctx context.Context, qx any, session *model.Session) error

	// Delete removes a session with its messages and context.
	Delete(ctx context.Context, qx any, id int64) error
}
