package model

import (
	"time"
)

type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionCompleted SessionStatus = "completed"
	SessionAbandoned SessionStatus = "abandoned"
)

type MessageRole string

const (
	RoleSystem    MessageRole = "system"
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

// Message is one turn in a session transcript. Messages are immutable once
// persisted; the transcript grows by appends only.
type Message struct {
	ID        int64
	SessionID int64
	Role      MessageRole
	Content   string
	Timestamp time.Time
}

// SessionContext is the point-in-time snapshot of external state captured when
// the session starts. It is never updated afterwards; drift during a live
// session is accepted.
type SessionContext struct {
	ID                  int64
	SessionID           int64
	UserLevel           *string
	CompletedTopicsJSON *string
	StrugglesJSON       *string
	CourseTitle         string
	TopicTitle          string
	LearningObjectives  *string
	PromptTemplate      *string
}

// Session is the aggregate root for one tutoring conversation tied to a
// (user, topic, course) triple. Ids reference the external system of record
// and are never validated locally beyond presence.
type Session struct {
	ID          int64
	UserID      int64
	TopicID     int64
	CourseID    int64
	Status      SessionStatus
	StartedAt   time.Time
	CompletedAt *time.Time
	Messages    []Message
	Context     *SessionContext
}

func NewSession(userID, topicID, courseID int64) *Session {
	return &Session{
		UserID:    userID,
		TopicID:   topicID,
		CourseID:  courseID,
		Status:    SessionActive,
		StartedAt: time.Now().UTC(),
		Messages:  make([]Message, 0, 8),
	}
}

func (s *Session) IsActive() bool { return s.Status == SessionActive }

// MarkCompleted transitions the session to its terminal completed state.
// CompletedAt is set if and only if the status is completed.
func (s *Session) MarkCompleted(at time.Time) {
	s.Status = SessionCompleted
	t := at.UTC()
	s.CompletedAt = &t
}

// MarkAbandoned exists for the data model; no in-scope operation drives it.
func (s *Session) MarkAbandoned() {
	s.Status = SessionAbandoned
	s.CompletedAt = nil
}

func (s *Session) AppendMessage(role MessageRole, content string) *Message {
	s.Messages = append(s.Messages, Message{
		SessionID: s.ID,
		Role:      role,
		Content:   content,
		Timestamp: time.Now().UTC(),
	})
	return &s.Messages[len(s.Messages)-1]
}

// FirstAssistantMessage returns the opening assistant greeting, if any.
func (s *Session) FirstAssistantMessage() *Message {
	for i := range s.Messages {
		if s.Messages[i].Role == RoleAssistant {
			return &s.Messages[i]
		}
	}
	return nil
}
