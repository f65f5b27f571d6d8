// File: internal/usecase/mocks_test.go
package usecase

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v4"

	"github.com/DisciteAI/backend-ai-service/internal/domain"
	"github.com/DisciteAI/backend-ai-service/internal/domain/model"
	"github.com/DisciteAI/backend-ai-service/internal/domain/ports/adapter"
	"github.com/DisciteAI/backend-ai-service/internal/domain/ports/repository"
)

// memSessionRepo is a small in-memory implementation used by unit tests.
type memSessionRepo struct {
	mu       sync.Mutex
	nextID   int64
	sessions map[int64]*model.Session
	messages map[int64][]model.Message
	contexts map[int64]*model.SessionContext
	saveErr  error // simulate persistence failures
}

func newMemSessionRepo() *memSessionRepo {
	return &memSessionRepo{
		nextID:   1,
		sessions: make(map[int64]*model.Session),
		messages: make(map[int64][]model.Message),
		contexts: make(map[int64]*model.SessionContext),
	}
}

func (m *memSessionRepo) CreateSession(_ context.Context, _ any, s *model.Session) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s.ID = m.nextID
	m.nextID++
	cp := *s
	cp.Messages = nil
	cp.Context = nil
	m.sessions[s.ID] = &cp
	return nil
}

func (m *memSessionRepo) SaveContext(_ context.Context, _ any, sc *model.SessionContext) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	sc.ID = m.nextID
	m.nextID++
	cp := *sc
	m.contexts[sc.SessionID] = &cp
	return nil
}

func (m *memSessionRepo) SaveMessage(_ context.Context, _ any, msg *model.Message) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	msg.ID = m.nextID
	m.nextID++
	m.messages[msg.SessionID] = append(m.messages[msg.SessionID], *msg)
	return nil
}

func (m *memSessionRepo) FindByID(_ context.Context, _ any, id int64) (*model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *memSessionRepo) ListMessages(_ context.Context, _ any, sessionID int64) ([]model.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Message, len(m.messages[sessionID]))
	copy(out, m.messages[sessionID])
	return out, nil
}

func (m *memSessionRepo) FindContext(_ context.Context, _ any, sessionID int64) (*model.SessionContext, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sc, ok := m.contexts[sessionID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *sc
	return &cp, nil
}

func (m *memSessionRepo) UpdateStatus(_ context.Context, _ any, s *model.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.sessions[s.ID]
	if !ok {
		return domain.ErrNotFound
	}
	stored.Status = s.Status
	stored.CompletedAt = s.CompletedAt
	return nil
}

func (m *memSessionRepo) Delete(_ context.Context, _ any, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return domain.ErrNotFound
	}
	delete(m.sessions, id)
	delete(m.messages, id)
	delete(m.contexts, id)
	return nil
}

// fakeTxManager runs the function inline; unit tests do not exercise rollback.
type fakeTxManager struct{}

func (fakeTxManager) WithTx(ctx context.Context, _ pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	return fn(ctx, nil)
}

// fakeProgress scripts the external progress API.
type fakeProgress struct {
	topic      *adapter.TopicDetails
	userCtx    *adapter.UserContext
	courseProg *adapter.CourseProgress

	topicErr   error
	userCtxErr error
	courseErr  error

	notifyOK    bool
	notifyCalls []adapter.CompletionRecord
}

func (f *fakeProgress) GetUserContext(context.Context, int64) (*adapter.UserContext, error) {
	if f.userCtxErr != nil {
		return nil, f.userCtxErr
	}
	return f.userCtx, nil
}

func (f *fakeProgress) GetCourseProgress(context.Context, int64, int64) (*adapter.CourseProgress, error) {
	if f.courseErr != nil {
		return nil, f.courseErr
	}
	return f.courseProg, nil
}

func (f *fakeProgress) GetTopicDetails(context.Context, int64) (*adapter.TopicDetails, error) {
	if f.topicErr != nil {
		return nil, f.topicErr
	}
	return f.topic, nil
}

func (f *fakeProgress) NotifyTopicCompletion(_ context.Context, rec adapter.CompletionRecord) bool {
	f.notifyCalls = append(f.notifyCalls, rec)
	return f.notifyOK
}

func (f *fakeProgress) HealthCheck(context.Context) bool { return true }

// fakeModel replays scripted replies; failures precede replies when set.
type fakeModel struct {
	replies  []string
	failures int // errors returned before the first successful reply

	lastPrompt  string
	lastHistory []adapter.Turn
	sent        []string
}

func (f *fakeModel) StartChat(_ context.Context, systemPrompt string, history []adapter.Turn) (adapter.ChatHandle, error) {
	f.lastPrompt = systemPrompt
	f.lastHistory = history
	return &fakeChat{model: f}, nil
}

func (f *fakeModel) HealthCheck(context.Context) bool { return true }

type fakeChat struct {
	model *fakeModel
}

func (c *fakeChat) Send(_ context.Context, text string) (string, error) {
	c.model.sent = append(c.model.sent, text)
	if c.model.failures > 0 {
		c.model.failures--
		return "", context.DeadlineExceeded
	}
	if len(c.model.replies) == 0 {
		return "Let's keep going.", nil
	}
	reply := c.model.replies[0]
	c.model.replies = c.model.replies[1:]
	return reply, nil
}

// fakeLocker grants every lock unless denied.
type fakeLocker struct {
	deny     bool
	locked   []string
	released []string
}

func (f *fakeLocker) TryLock(_ context.Context, key string, _ time.Duration) (string, error) {
	if f.deny {
		return "", domain.ErrSessionBusy
	}
	f.locked = append(f.locked, key)
	return "tok-" + key, nil
}

func (f *fakeLocker) Unlock(_ context.Context, key, token string) error {
	if !strings.HasSuffix(token, key) {
		return domain.ErrInvalidArgument
	}
	f.released = append(f.released, key)
	return nil
}
