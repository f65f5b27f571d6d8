// File: internal/infra/db/postgres/postgres_session_repo.go
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"github.com/DisciteAI/backend-ai-service/internal/domain"
	"github.com/DisciteAI/backend-ai-service/internal/domain/model"
	"github.com/DisciteAI/backend-ai-service/internal/domain/ports/repository"
	"github.com/DisciteAI/backend-ai-service/internal/infra/redis"
)

var _ repository.SessionRepository = (*SessionRepo)(nil)

type sessionCache interface {
	Store(ctx context.Context, session *model.Session) error
	Get(ctx context.Context, sessionID int64) (*model.Session, error)
	Delete(ctx context.Context, sessionID int64) error
}

// SessionRepo persists sessions, transcripts and context snapshots. A redis
// cache of session rows is maintained best-effort; postgres is authoritative.
type SessionRepo struct {
	pool  *pgxpool.Pool
	cache sessionCache
}

func NewSessionRepo(pool *pgxpool.Pool, cache *redis.SessionCache) *SessionRepo {
	r := &SessionRepo{pool: pool}
	if cache != nil {
		r.cache = cache
	}
	return r
}

// syncCache reconciles the cache with a session write. Outside a transaction
// the write is already committed and the row can be stored; inside one the
// commit may still fail, so the entry is invalidated instead and the next
// FindByID repopulates it from postgres.
func (r *SessionRepo) syncCache(ctx context.Context, qx any, s *model.Session) {
	if r.cache == nil {
		return
	}
	if qx == nil {
		_ = r.cache.Store(ctx, s)
		return
	}
	_ = r.cache.Delete(ctx, s.ID)
}

func (r *SessionRepo) CreateSession(ctx context.Context, qx any, s *model.Session) error {
	const q = `
INSERT INTO sessions (user_id, topic_id, course_id, status, started_at)
VALUES ($1,$2,$3,$4,$5)
RETURNING id;`
	ex, err := pickExecutor(r.pool, qx)
	if err != nil {
		return err
	}
	if err := ex.QueryRow(ctx, q, s.UserID, s.TopicID, s.CourseID, string(s.Status), s.StartedAt).Scan(&s.ID); err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	r.syncCache(ctx, qx, s)
	return nil
}

func (r *SessionRepo) SaveContext(ctx context.Context, qx any, sc *model.SessionContext) error {
	const q = `
INSERT INTO session_contexts
  (session_id, user_level, completed_topics_json, struggles_json,
   course_title, topic_title, learning_objectives, prompt_template)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
RETURNING id;`
	ex, err := pickExecutor(r.pool, qx)
	if err != nil {
		return err
	}
	err = ex.QueryRow(ctx, q,
		sc.SessionID, sc.UserLevel, sc.CompletedTopicsJSON, sc.StrugglesJSON,
		sc.CourseTitle, sc.TopicTitle, sc.LearningObjectives, sc.PromptTemplate,
	).Scan(&sc.ID)
	if err != nil {
		return fmt.Errorf("insert session context: %w", err)
	}
	return nil
}

func (r *SessionRepo) SaveMessage(ctx context.Context, qx any, m *model.Message) error {
	const q = `
INSERT INTO messages (session_id, role, content, created_at)
VALUES ($1,$2,$3,$4)
RETURNING id;`
	ex, err := pickExecutor(r.pool, qx)
	if err != nil {
		return err
	}
	if err := ex.QueryRow(ctx, q, m.SessionID, string(m.Role), m.Content, m.Timestamp).Scan(&m.ID); err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func (r *SessionRepo) FindByID(ctx context.Context, qx any, id int64) (*model.Session, error) {
	// Read-through cache outside transactions only; a tx must see its own
	// uncommitted writes.
	if qx == nil && r.cache != nil {
		if s, err := r.cache.Get(ctx, id); err == nil {
			return s, nil
		}
	}

	const q = `
SELECT id, user_id, topic_id, course_id, status, started_at, completed_at
  FROM sessions WHERE id=$1;`
	ex, err := pickExecutor(r.pool, qx)
	if err != nil {
		return nil, err
	}
	var (
		s      model.Session
		status string
	)
	err = ex.QueryRow(ctx, q, id).Scan(
		&s.ID, &s.UserID, &s.TopicID, &s.CourseID, &status, &s.StartedAt, &s.CompletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scan session: %w", err)
	}
	s.Status = model.SessionStatus(status)
	if qx == nil && r.cache != nil {
		_ = r.cache.Store(ctx, &s)
	}
	return &s, nil
}

func (r *SessionRepo) ListMessages(ctx context.Context, qx any, sessionID int64) ([]model.Message, error) {
	// Total order: timestamp, ties broken by insertion order.
	const q = `
SELECT id, session_id, role, content, created_at
  FROM messages WHERE session_id=$1
 ORDER BY created_at ASC, id ASC;`
	ex, err := pickExecutor(r.pool, qx)
	if err != nil {
		return nil, err
	}
	rows, err := ex.Query(ctx, q, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var out []model.Message
	for rows.Next() {
		var (
			m    model.Message
			role string
		)
		if err := rows.Scan(&m.ID, &m.SessionID, &role, &m.Content, &m.Timestamp); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.Role = model.MessageRole(role)
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *SessionRepo) FindContext(ctx context.Context, qx any, sessionID int64) (*model.SessionContext, error) {
	const q = `
SELECT id, session_id, user_level, completed_topics_json, struggles_json,
       course_title, topic_title, learning_objectives, prompt_template
  FROM session_contexts WHERE session_id=$1;`
	ex, err := pickExecutor(r.pool, qx)
	if err != nil {
		return nil, err
	}
	var sc model.SessionContext
	err = ex.QueryRow(ctx, q, sessionID).Scan(
		&sc.ID, &sc.SessionID, &sc.UserLevel, &sc.CompletedTopicsJSON, &sc.StrugglesJSON,
		&sc.CourseTitle, &sc.TopicTitle, &sc.LearningObjectives, &sc.PromptTemplate,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scan session context: %w", err)
	}
	return &sc, nil
}

func (r *SessionRepo) UpdateStatus(ctx context.Context, qx any, s *model.Session) error {
	const q = `UPDATE sessions SET status=$2, completed_at=$3 WHERE id=$1;`
	ex, err := pickExecutor(r.pool, qx)
	if err != nil {
		return err
	}
	tag, err := ex.Exec(ctx, q, s.ID, string(s.Status), s.CompletedAt)
	if err != nil {
		return fmt.Errorf("update session status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	r.syncCache(ctx, qx, s)
	return nil
}

func (r *SessionRepo) Delete(ctx context.Context, qx any, id int64) error {
	// Messages and context go with the session (FK ON DELETE CASCADE).
	const q = `DELETE FROM sessions WHERE id=$1;`
	ex, err := pickExecutor(r.pool, qx)
	if err != nil {
		return err
	}
	if _, err := ex.Exec(ctx, q, id); err != nil {
		return err
	}
	if r.cache != nil {
		_ = r.cache.Delete(ctx, id)
	}
	return nil
}
