package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/DisciteAI/backend-ai-service/internal/domain/model"
)

// SessionCache keeps a best-effort snapshot of session rows (not transcripts).
// Postgres stays authoritative; every read path falls back to it.
type SessionCache struct {
	client *redClient
	ttl    time.Duration
}

func NewSessionCache(client *redClient, ttl time.Duration) *SessionCache {
	return &SessionCache{client: client, ttl: ttl}
}

func sessionKey(id int64) string { return fmt.Sprintf("session:%d", id) }

func (c *SessionCache) Store(ctx context.Context, session *model.Session) error {
	snapshot := *session
	snapshot.Messages = nil
	snapshot.Context = nil
	data, err := json.Marshal(&snapshot)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, sessionKey(session.ID), data, c.ttl)
}

func (c *SessionCache) Get(ctx context.Context, sessionID int64) (*model.Session, error) {
	data, err := c.client.Get(ctx, sessionKey(sessionID))
	if err != nil {
		return nil, err
	}
	var session model.Session
	if err := json.Unmarshal([]byte(data), &session); err != nil {
		return nil, err
	}
	return &session, nil
}

func (c *SessionCache) Delete(ctx context.Context, sessionID int64) error {
	return c.client.Del(ctx, sessionKey(sessionID))
}
