// File: internal/usecase/session_uc.go
package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"github.com/DisciteAI/backend-ai-service/internal/domain"
	"github.com/DisciteAI/backend-ai-service/internal/domain/model"
	"github.com/DisciteAI/backend-ai-service/internal/domain/ports/adapter"
	"github.com/DisciteAI/backend-ai-service/internal/domain/ports/repository"
	"github.com/DisciteAI/backend-ai-service/internal/infra/logging"
	"github.com/DisciteAI/backend-ai-service/internal/infra/metrics"
	"github.com/DisciteAI/backend-ai-service/internal/retry"
)

const MaxMessageLength = 5000

// Compile-time check
var _ SessionUseCase = (*sessionUC)(nil)

type SessionResponse struct {
	ID             int64               `json:"id"`
	UserID         int64               `json:"user_id"`
	TopicID        int64               `json:"topic_id"`
	CourseID       int64               `json:"course_id"`
	Status         model.SessionStatus `json:"status"`
	StartedAt      time.Time           `json:"started_at"`
	CompletedAt    *time.Time          `json:"completed_at,omitempty"`
	InitialMessage string              `json:"initial_message,omitempty"`
}

type MessageView struct {
	ID        int64             `json:"id"`
	Role      model.MessageRole `json:"role"`
	Content   string            `json:"content"`
	Timestamp time.Time         `json:"timestamp"`
}

type SessionContextView struct {
	UserLevel          *string `json:"user_level"`
	CourseTitle        string  `json:"course_title"`
	TopicTitle         string  `json:"topic_title"`
	LearningObjectives *string `json:"learning_objectives"`
}

type SessionDetailResponse struct {
	SessionResponse
	Context  *SessionContextView `json:"context,omitempty"`
	Messages []MessageView       `json:"messages"`
}

type AIMessageResponse struct {
	SessionID      int64     `json:"session_id"`
	AIMessage      string    `json:"ai_message"`
	TopicCompleted bool      `json:"topic_completed"`
	Timestamp      time.Time `json:"timestamp"`
}

// SessionUseCase drives the tutoring session lifecycle: create, converse,
// complete, retrieve.
type SessionUseCase interface {
	Start(ctx context.Context, userID, topicID, courseID int64) (*SessionResponse, error)
	SendMessage(ctx context.Context, sessionID int64, message string) (*AIMessageResponse, error)
	GetDetails(ctx context.Context, sessionID int64) (*SessionDetailResponse, error)
}

// Locker serializes turns on one session. Two concurrent turns would
// interleave transcript history, so at most one runs at a time.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, err error)
	Unlock(ctx context.Context, key, token string) error
}

type sessionUC struct {
	sessions repository.SessionRepository
	tm       repository.TransactionManager
	progress adapter.ProgressClient
	ai       adapter.ConversationModel
	prompts  *PromptBuilder
	detector *CompletionDetector
	locker   Locker
	aiRetry  retry.Policy
	lockTTL  time.Duration
	log      *zerolog.Logger
}

func NewSessionUseCase(
	sessions repository.SessionRepository,
	tm repository.TransactionManager,
	progress adapter.ProgressClient,
	ai adapter.ConversationModel,
	prompts *PromptBuilder,
	detector *CompletionDetector,
	locker Locker,
	aiRetry retry.Policy,
	lockTTL time.Duration,
	log *zerolog.Logger,
) *sessionUC {
	return &sessionUC{
		sessions: sessions,
		tm:       tm,
		progress: progress,
		ai:       ai,
		prompts:  prompts,
		detector: detector,
		locker:   locker,
		aiRetry:  aiRetry,
		lockTTL:  lockTTL,
		log:      log,
	}
}

func (u *sessionUC) Start(ctx context.Context, userID, topicID, courseID int64) (*SessionResponse, error) {
	defer logging.TraceDuration(u.log, "SessionUC.Start")()
	if userID <= 0 || topicID <= 0 || courseID <= 0 {
		return nil, domain.ErrInvalidArgument
	}
	log := u.log.With().Int64("user_id", userID).Int64("topic_id", topicID).Int64("course_id", courseID).Logger()

	// Topic details are mandatory; everything else degrades softly.
	topic, err := u.progress.GetTopicDetails(ctx, topicID)
	if err != nil {
		log.Error().Err(err).Msg("topic details unavailable, refusing to start session")
		return nil, fmt.Errorf("%w: topic %d", domain.ErrTopicNotFound, topicID)
	}

	userCtx, err := u.progress.GetUserContext(ctx, userID)
	if err != nil {
		log.Warn().Err(err).Msg("user context unavailable, starting without personalization")
		userCtx = nil
	}
	courseProg, err := u.progress.GetCourseProgress(ctx, userID, courseID)
	if err != nil {
		log.Warn().Err(err).Msg("course progress unavailable")
		courseProg = nil
	}
	merged := mergeContext(userID, userCtx, courseProg)

	systemPrompt := u.prompts.BuildSystemPrompt(topic, merged)
	greeting := u.prompts.BuildInitialGreeting(topic, merged)

	session := model.NewSession(userID, topicID, courseID)
	err = u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		if err := u.sessions.CreateSession(ctx, tx, session); err != nil {
			return fmt.Errorf("create session: %w", err)
		}
		if err := u.sessions.SaveContext(ctx, tx, buildSnapshot(session.ID, topic, merged)); err != nil {
			return fmt.Errorf("save context: %w", err)
		}
		sysMsg := session.AppendMessage(model.RoleSystem, systemPrompt)
		if err := u.sessions.SaveMessage(ctx, tx, sysMsg); err != nil {
			return fmt.Errorf("save system message: %w", err)
		}
		greetMsg := session.AppendMessage(model.RoleAssistant, greeting)
		if err := u.sessions.SaveMessage(ctx, tx, greetMsg); err != nil {
			return fmt.Errorf("save greeting: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.SessionStarted()
	log.Info().Int64("session_id", session.ID).Msg("session started")
	return sessionSummary(session, greeting), nil
}

func (u *sessionUC) SendMessage(ctx context.Context, sessionID int64, message string) (*AIMessageResponse, error) {
	defer logging.TraceDuration(u.log, "SessionUC.SendMessage")()
	// Bound is in characters, not bytes; multibyte input counts per rune.
	message = strings.TrimSpace(message)
	if message == "" || utf8.RuneCountInString(message) > MaxMessageLength {
		return nil, domain.ErrInvalidArgument
	}
	log := u.log.With().Int64("session_id", sessionID).Logger()

	// One turn per session at a time; a second writer would interleave the
	// transcript the model context is rebuilt from.
	lockKey := fmt.Sprintf("session_lock:%d", sessionID)
	token, err := u.locker.TryLock(ctx, lockKey, u.lockTTL)
	if err != nil {
		return nil, domain.ErrSessionBusy
	}
	defer func() {
		if err := u.locker.Unlock(context.WithoutCancel(ctx), lockKey, token); err != nil {
			log.Warn().Err(err).Msg("session lock release failed, waiting on TTL")
		}
	}()

	session, err := u.sessions.FindByID(ctx, nil, sessionID)
	if err != nil {
		return nil, err
	}
	if !session.IsActive() {
		return nil, domain.ErrSessionNotActive
	}

	var (
		cleaned   string
		completed bool
	)
	err = u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		userMsg := session.AppendMessage(model.RoleUser, message)
		if err := u.sessions.SaveMessage(ctx, tx, userMsg); err != nil {
			return fmt.Errorf("save user message: %w", err)
		}

		history, err := u.sessions.ListMessages(ctx, tx, sessionID)
		if err != nil {
			return fmt.Errorf("load history: %w", err)
		}
		systemPrompt, rest := splitSystemPrompt(history)
		rest = u.prompts.TruncateHistory(rest, 0)
		// The turn being answered is sent explicitly, not replayed as history.
		if n := len(rest); n > 0 && rest[n-1].Role == model.RoleUser && rest[n-1].Content == message {
			rest = rest[:n-1]
		}

		// A fresh model conversation is rebuilt from persisted history on
		// every turn; no handle is held across requests, so any worker can
		// serve any session.
		chat, err := u.ai.StartChat(ctx, systemPrompt, adapter.MapHistory(rest))
		if err != nil {
			return fmt.Errorf("%w: %v", domain.ErrModelFailure, err)
		}

		var raw string
		err = u.aiRetry.Do(ctx, &log, "model.send", func(ctx context.Context) error {
			reply, err := chat.Send(ctx, message)
			if err != nil {
				return retry.Transient(err)
			}
			raw = reply
			return nil
		})
		if err != nil {
			return fmt.Errorf("%w: %v", domain.ErrModelFailure, err)
		}

		completed, cleaned = u.detector.Extract(raw)

		// The stored transcript keeps the marker; only the user-facing
		// response is cleaned.
		aiMsg := session.AppendMessage(model.RoleAssistant, raw)
		if err := u.sessions.SaveMessage(ctx, tx, aiMsg); err != nil {
			return fmt.Errorf("save assistant message: %w", err)
		}

		if completed {
			session.MarkCompleted(time.Now())
			if err := u.sessions.UpdateStatus(ctx, tx, session); err != nil {
				return fmt.Errorf("complete session: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.TurnProcessed(completed)
	if completed {
		log.Info().Msg("session completed")
		u.notifyCompletion(ctx, session)
	}

	return &AIMessageResponse{
		SessionID:      sessionID,
		AIMessage:      cleaned,
		TopicCompleted: completed,
		Timestamp:      time.Now().UTC(),
	}, nil
}

func (u *sessionUC) GetDetails(ctx context.Context, sessionID int64) (*SessionDetailResponse, error) {
	defer logging.TraceDuration(u.log, "SessionUC.GetDetails")()
	session, err := u.sessions.FindByID(ctx, nil, sessionID)
	if err != nil {
		return nil, err
	}
	messages, err := u.sessions.ListMessages(ctx, nil, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}
	snapshot, err := u.sessions.FindContext(ctx, nil, sessionID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("load context: %w", err)
	}

	detail := &SessionDetailResponse{SessionResponse: *sessionSummary(session, "")}
	session.Messages = messages
	if m := session.FirstAssistantMessage(); m != nil {
		detail.InitialMessage = m.Content
	}
	for _, m := range messages {
		if m.Role == model.RoleSystem {
			continue // the prompt is never shown to the user
		}
		detail.Messages = append(detail.Messages, MessageView{
			ID:        m.ID,
			Role:      m.Role,
			Content:   m.Content,
			Timestamp: m.Timestamp,
		})
	}
	if snapshot != nil {
		detail.Context = &SessionContextView{
			UserLevel:          snapshot.UserLevel,
			CourseTitle:        snapshot.CourseTitle,
			TopicTitle:         snapshot.TopicTitle,
			LearningObjectives: snapshot.LearningObjectives,
		}
	}
	return detail, nil
}

// notifyCompletion pushes the completion event to the system of record. The
// local transition is already committed; a failed push is a durability warning,
// never a rollback.
func (u *sessionUC) notifyCompletion(ctx context.Context, session *model.Session) {
	rec := adapter.CompletionRecord{
		UserID:      session.UserID,
		TopicID:     session.TopicID,
		CourseID:    session.CourseID,
		CompletedAt: *session.CompletedAt,
		SessionID:   session.ID,
	}
	if !u.progress.NotifyTopicCompletion(ctx, rec) {
		metrics.CompletionNotifyFailed()
		u.log.Warn().Int64("session_id", session.ID).Int64("topic_id", session.TopicID).
			Msg("completion notification failed; session completed locally but the system of record may be stale")
	}
}

// mergeContext unifies the global user context with per-course progress:
// per-course completed-topic ids win over the global list, struggles and level
// come from the global context.
func mergeContext(userID int64, userCtx *adapter.UserContext, courseProg *adapter.CourseProgress) *adapter.UserContext {
	if userCtx == nil && courseProg == nil {
		return nil
	}
	merged := &adapter.UserContext{UserID: userID}
	if userCtx != nil {
		merged.UserLevel = userCtx.UserLevel
		merged.CompletedTopicIDs = userCtx.CompletedTopicIDs
		merged.StruggleTopics = userCtx.StruggleTopics
	}
	if courseProg != nil && len(courseProg.CompletedTopics) > 0 {
		ids := make([]int64, 0, len(courseProg.CompletedTopics))
		for _, t := range courseProg.CompletedTopics {
			ids = append(ids, t.ID)
		}
		merged.CompletedTopicIDs = ids
	}
	return merged
}

func buildSnapshot(sessionID int64, topic *adapter.TopicDetails, userCtx *adapter.UserContext) *model.SessionContext {
	sc := &model.SessionContext{
		SessionID:          sessionID,
		CourseTitle:        topic.CourseTitle,
		TopicTitle:         topic.Title,
		LearningObjectives: topic.LearningObjectives,
		PromptTemplate:     topic.PromptTemplate,
	}
	if userCtx != nil {
		sc.UserLevel = userCtx.UserLevel
		sc.CompletedTopicsJSON = marshalJSON(userCtx.CompletedTopicIDs)
		sc.StrugglesJSON = marshalJSON(userCtx.StruggleTopics)
	}
	return sc
}

func marshalJSON(v any) *string {
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	s := string(b)
	return &s
}

func splitSystemPrompt(history []model.Message) (string, []model.Message) {
	prompt := ""
	rest := make([]model.Message, 0, len(history))
	for _, m := range history {
		if m.Role == model.RoleSystem {
			if prompt == "" {
				prompt = m.Content
			}
			continue
		}
		rest = append(rest, m)
	}
	return prompt, rest
}

func sessionSummary(s *model.Session, initialMessage string) *SessionResponse {
	return &SessionResponse{
		ID:             s.ID,
		UserID:         s.UserID,
		TopicID:        s.TopicID,
		CourseID:       s.CourseID,
		Status:         s.Status,
		StartedAt:      s.StartedAt,
		CompletedAt:    s.CompletedAt,
		InitialMessage: initialMessage,
	}
}
