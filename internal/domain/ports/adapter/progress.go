package adapter

import (
	"context"
	"time"
)

// UserContext is the learner's global proficiency snapshot.
type UserContext struct {
	UserID            int64    `json:"UserId"`
	UserLevel         *string  `json:"UserLevel"`
	CompletedTopicIDs []int64  `json:"CompletedTopicIds"`
	StruggleTopics    []string `json:"StruggleTopics"`
}

// CompletedTopic is one finished topic within a course.
type CompletedTopic struct {
	ID    int64  `json:"Id"`
	Title string `json:"Title"`
}

// CourseProgress is the learner's per-course progress snapshot.
type CourseProgress struct {
	CourseTitle        string           `json:"CourseTitle"`
	ProgressPercentage float64          `json:"ProgressPercentage"`
	CompletedTopics    []CompletedTopic `json:"CompletedTopics"`
	TotalTopicsCount   int              `json:"TotalTopicsCount"`
	LastAccessedAt     *time.Time       `json:"LastAccessedAt"`
}

// TopicDetails is the topic metadata the prompt is built from. Mandatory for
// session creation.
type TopicDetails struct {
	ID                 int64   `json:"Id"`
	Title              string  `json:"Title"`
	Description        string  `json:"Description"`
	PromptTemplate     *string `json:"PromptTemplate"`
	CourseID           int64   `json:"CourseId"`
	CourseTitle        string  `json:"CourseTitle"`
	LearningObjectives *string `json:"LearningObjectives"`
}

// CompletionRecord is the event pushed back to the system of record when a
// topic is mastered.
type CompletionRecord struct {
	UserID      int64     `json:"UserId"`
	TopicID     int64     `json:"TopicId"`
	CourseID    int64     `json:"CourseId"`
	CompletedAt time.Time `json:"CompletedAt"`
	SessionID   int64     `json:"SessionId"`
}

// ProgressClient is the port for the LMS progress API.
//
// Read operations return domain.ErrUnavailable for any HTTP, network or decode
// failure instead of a transport error: a value is present, unavailable, or a
// genuine fault, and the caller decides which lookups are mandatory. The
// orchestrator keeps working in degraded mode when optional lookups are
// unavailable.
type ProgressClient interface {
	GetUserContext(ctx context.Context, userID int64) (*UserContext, error)
	GetCourseProgress(ctx context.Context, userID, courseID int64) (*CourseProgress, error)
	GetTopicDetails(ctx context.Context, topicID int64) (*TopicDetails, error)

	// NotifyTopicCompletion reports success as a bool and never errors; local
	// completion state is the source of truth once committed.
	NotifyTopicCompletion(ctx context.Context, rec CompletionRecord) bool

	HealthCheck(ctx context.Context) bool
}
