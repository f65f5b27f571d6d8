// File: internal/usecase/session_uc_test.go
package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/DisciteAI/backend-ai-service/internal/domain"
	"github.com/DisciteAI/backend-ai-service/internal/domain/model"
	"github.com/DisciteAI/backend-ai-service/internal/domain/ports/adapter"
	"github.com/DisciteAI/backend-ai-service/internal/retry"
)

const testMarker = "{TOPIC_COMPLETED}"

func strPtr(s string) *string { return &s }

func testTopic() *adapter.TopicDetails {
	return &adapter.TopicDetails{
		ID:          3,
		Title:       "Goroutines",
		Description: "Lightweight concurrent execution.",
		CourseID:    1,
		CourseTitle: "Go Programming",
	}
}

type ucFixture struct {
	uc       SessionUseCase
	repo     *memSessionRepo
	progress *fakeProgress
	ai       *fakeModel
	locker   *fakeLocker
}

func newFixture(t *testing.T, progress *fakeProgress, ai *fakeModel) *ucFixture {
	t.Helper()
	log := zerolog.Nop()
	repo := newMemSessionRepo()
	locker := &fakeLocker{}
	uc := NewSessionUseCase(
		repo,
		fakeTxManager{},
		progress,
		ai,
		NewPromptBuilder(testMarker, 50, &log),
		NewCompletionDetector(testMarker, &log),
		locker,
		retry.Policy{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond, ExponentialBase: 2},
		time.Minute,
		&log,
	)
	return &ucFixture{uc: uc, repo: repo, progress: progress, ai: ai, locker: locker}
}

func TestStartCreatesSessionWithPromptAndGreeting(t *testing.T) {
	f := newFixture(t, &fakeProgress{
		topic: testTopic(),
		userCtx: &adapter.UserContext{
			UserID:            7,
			UserLevel:         strPtr("advanced"),
			CompletedTopicIDs: []int64{1, 2},
		},
	}, &fakeModel{})

	resp, err := f.uc.Start(context.Background(), 7, 3, 1)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if resp.Status != model.SessionActive {
		t.Errorf("status = %s", resp.Status)
	}
	if !strings.Contains(resp.InitialMessage, "Goroutines") || !strings.Contains(resp.InitialMessage, "advanced") {
		t.Errorf("greeting = %q", resp.InitialMessage)
	}

	msgs, _ := f.repo.ListMessages(context.Background(), nil, resp.ID)
	if len(msgs) != 2 {
		t.Fatalf("stored messages = %d, want system + greeting", len(msgs))
	}
	if msgs[0].Role != model.RoleSystem || !strings.Contains(msgs[0].Content, testMarker) {
		t.Errorf("first stored message should be the system prompt carrying the marker")
	}
	if msgs[1].Role != model.RoleAssistant || msgs[1].Content != resp.InitialMessage {
		t.Errorf("second stored message should be the greeting")
	}

	sc, err := f.repo.FindContext(context.Background(), nil, resp.ID)
	if err != nil {
		t.Fatalf("FindContext: %v", err)
	}
	if sc.UserLevel == nil || *sc.UserLevel != "advanced" {
		t.Errorf("snapshot level = %v", sc.UserLevel)
	}
	if sc.TopicTitle != "Goroutines" || sc.CourseTitle != "Go Programming" {
		t.Errorf("snapshot titles = %q / %q", sc.TopicTitle, sc.CourseTitle)
	}
}

func TestStartInvalidIDs(t *testing.T) {
	f := newFixture(t, &fakeProgress{topic: testTopic()}, &fakeModel{})
	for _, ids := range [][3]int64{{0, 3, 1}, {7, 0, 1}, {7, 3, -1}} {
		if _, err := f.uc.Start(context.Background(), ids[0], ids[1], ids[2]); !errors.Is(err, domain.ErrInvalidArgument) {
			t.Errorf("ids %v: err = %v, want ErrInvalidArgument", ids, err)
		}
	}
}

func TestStartTopicUnavailable(t *testing.T) {
	f := newFixture(t, &fakeProgress{topicErr: domain.ErrUnavailable}, &fakeModel{})
	_, err := f.uc.Start(context.Background(), 7, 3, 1)
	if !errors.Is(err, domain.ErrTopicNotFound) {
		t.Fatalf("err = %v, want ErrTopicNotFound", err)
	}
}

func TestStartWithoutPersonalization(t *testing.T) {
	f := newFixture(t, &fakeProgress{
		topic:      testTopic(),
		userCtxErr: domain.ErrUnavailable,
		courseErr:  domain.ErrUnavailable,
	}, &fakeModel{})

	resp, err := f.uc.Start(context.Background(), 7, 3, 1)
	if err != nil {
		t.Fatalf("Start should degrade, got %v", err)
	}
	if !strings.Contains(resp.InitialMessage, "beginner to intermediate") {
		t.Errorf("greeting should use the default level, got %q", resp.InitialMessage)
	}
	sc, _ := f.repo.FindContext(context.Background(), nil, resp.ID)
	if sc.UserLevel != nil {
		t.Errorf("snapshot level should be nil without personalization, got %q", *sc.UserLevel)
	}
}

func TestStartCourseProgressWinsOverGlobalContext(t *testing.T) {
	f := newFixture(t, &fakeProgress{
		topic: testTopic(),
		userCtx: &adapter.UserContext{
			UserID:            7,
			CompletedTopicIDs: []int64{1, 2, 3, 4, 5},
		},
		courseProg: &adapter.CourseProgress{
			CourseTitle:     "Go Programming",
			CompletedTopics: []adapter.CompletedTopic{{ID: 1, Title: "Basics"}},
		},
	}, &fakeModel{})

	resp, err := f.uc.Start(context.Background(), 7, 3, 1)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	sc, _ := f.repo.FindContext(context.Background(), nil, resp.ID)
	if sc.CompletedTopicsJSON == nil || *sc.CompletedTopicsJSON != "[1]" {
		t.Errorf("snapshot completed topics = %v, want per-course list", sc.CompletedTopicsJSON)
	}
}

func TestSendMessageCompletesOnMarker(t *testing.T) {
	raw := "Great work! You've mastered goroutines. " + testMarker + "\n\n\nSee you next time."
	f := newFixture(t, &fakeProgress{topic: testTopic(), notifyOK: true},
		&fakeModel{replies: []string{raw}})

	started, err := f.uc.Start(context.Background(), 7, 3, 1)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	resp, err := f.uc.SendMessage(context.Background(), started.ID, "my final answer")
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if !resp.TopicCompleted {
		t.Error("turn should complete the topic")
	}
	if strings.Contains(resp.AIMessage, testMarker) {
		t.Errorf("returned message still carries the marker: %q", resp.AIMessage)
	}
	if strings.Contains(resp.AIMessage, "\n\n\n") {
		t.Errorf("returned message has a 3+ newline run: %q", resp.AIMessage)
	}

	// Raw reply with marker goes to the transcript.
	msgs, _ := f.repo.ListMessages(context.Background(), nil, started.ID)
	last := msgs[len(msgs)-1]
	if last.Role != model.RoleAssistant || !strings.Contains(last.Content, testMarker) {
		t.Errorf("persisted assistant message should keep the marker, got %q", last.Content)
	}

	stored, _ := f.repo.FindByID(context.Background(), nil, started.ID)
	if stored.Status != model.SessionCompleted || stored.CompletedAt == nil {
		t.Errorf("stored session = %s / %v", stored.Status, stored.CompletedAt)
	}

	if len(f.progress.notifyCalls) != 1 {
		t.Fatalf("notify calls = %d, want 1", len(f.progress.notifyCalls))
	}
	rec := f.progress.notifyCalls[0]
	if rec.UserID != 7 || rec.TopicID != 3 || rec.SessionID != started.ID {
		t.Errorf("completion record = %+v", rec)
	}
}

func TestSendMessageNotifyFailureDoesNotFailTurn(t *testing.T) {
	f := newFixture(t, &fakeProgress{topic: testTopic(), notifyOK: false},
		&fakeModel{replies: []string{"Done. " + testMarker}})

	started, _ := f.uc.Start(context.Background(), 7, 3, 1)
	resp, err := f.uc.SendMessage(context.Background(), started.ID, "answer")
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if !resp.TopicCompleted {
		t.Error("completion should stand even when the notification fails")
	}
	stored, _ := f.repo.FindByID(context.Background(), nil, started.ID)
	if stored.Status != model.SessionCompleted {
		t.Errorf("stored status = %s", stored.Status)
	}
}

func TestSendMessageOnCompletedSession(t *testing.T) {
	f := newFixture(t, &fakeProgress{topic: testTopic(), notifyOK: true},
		&fakeModel{replies: []string{"Done. " + testMarker}})

	started, _ := f.uc.Start(context.Background(), 7, 3, 1)
	if _, err := f.uc.SendMessage(context.Background(), started.ID, "answer"); err != nil {
		t.Fatalf("first turn: %v", err)
	}

	before, _ := f.repo.ListMessages(context.Background(), nil, started.ID)
	_, err := f.uc.SendMessage(context.Background(), started.ID, "one more thing")
	if !errors.Is(err, domain.ErrSessionNotActive) {
		t.Fatalf("err = %v, want ErrSessionNotActive", err)
	}
	after, _ := f.repo.ListMessages(context.Background(), nil, started.ID)
	if len(after) != len(before) {
		t.Errorf("rejected turn must not grow the transcript: %d -> %d", len(before), len(after))
	}
}

func TestSendMessageValidation(t *testing.T) {
	f := newFixture(t, &fakeProgress{topic: testTopic()}, &fakeModel{})
	started, _ := f.uc.Start(context.Background(), 7, 3, 1)

	for name, msg := range map[string]string{
		"empty":              "",
		"whitespace":         "   \n  ",
		"too long":           strings.Repeat("x", MaxMessageLength+1),
		"too long multibyte": strings.Repeat("ñ", MaxMessageLength+1),
	} {
		if _, err := f.uc.SendMessage(context.Background(), started.ID, msg); !errors.Is(err, domain.ErrInvalidArgument) {
			t.Errorf("%s: err = %v, want ErrInvalidArgument", name, err)
		}
	}
}

// The length bound counts characters, not bytes. 3000 two-byte runes are
// 6000 bytes but well inside the 5000-character limit.
func TestSendMessageLengthCountsRunes(t *testing.T) {
	f := newFixture(t, &fakeProgress{topic: testTopic()}, &fakeModel{replies: []string{"keep going"}})
	started, _ := f.uc.Start(context.Background(), 7, 3, 1)

	msg := strings.Repeat("ñ", 3000)
	if _, err := f.uc.SendMessage(context.Background(), started.ID, msg); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	atLimit := strings.Repeat("ñ", MaxMessageLength)
	if _, err := f.uc.SendMessage(context.Background(), started.ID, atLimit); err != nil {
		t.Fatalf("SendMessage at limit: %v", err)
	}
}

func TestSendMessageUnknownSession(t *testing.T) {
	f := newFixture(t, &fakeProgress{topic: testTopic()}, &fakeModel{})
	if _, err := f.uc.SendMessage(context.Background(), 404, "hello"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestSendMessageBusySession(t *testing.T) {
	f := newFixture(t, &fakeProgress{topic: testTopic()}, &fakeModel{})
	started, _ := f.uc.Start(context.Background(), 7, 3, 1)

	f.locker.deny = true
	if _, err := f.uc.SendMessage(context.Background(), started.ID, "hello"); !errors.Is(err, domain.ErrSessionBusy) {
		t.Fatalf("err = %v, want ErrSessionBusy", err)
	}
}

func TestSendMessageReleasesLock(t *testing.T) {
	f := newFixture(t, &fakeProgress{topic: testTopic()}, &fakeModel{replies: []string{"keep going"}})
	started, _ := f.uc.Start(context.Background(), 7, 3, 1)

	if _, err := f.uc.SendMessage(context.Background(), started.ID, "hello"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if len(f.locker.locked) != 1 || len(f.locker.released) != 1 {
		t.Errorf("lock/release = %d/%d, want 1/1", len(f.locker.locked), len(f.locker.released))
	}
}

func TestSendMessageRetriesTransientModelFailure(t *testing.T) {
	f := newFixture(t, &fakeProgress{topic: testTopic()},
		&fakeModel{failures: 1, replies: []string{"second attempt works"}})
	started, _ := f.uc.Start(context.Background(), 7, 3, 1)

	resp, err := f.uc.SendMessage(context.Background(), started.ID, "hello")
	if err != nil {
		t.Fatalf("SendMessage should succeed on retry: %v", err)
	}
	if resp.AIMessage != "second attempt works" {
		t.Errorf("reply = %q", resp.AIMessage)
	}
	if len(f.ai.sent) != 2 {
		t.Errorf("model calls = %d, want 2", len(f.ai.sent))
	}
}

func TestSendMessageModelFailureExhausted(t *testing.T) {
	f := newFixture(t, &fakeProgress{topic: testTopic()}, &fakeModel{failures: 5})
	started, _ := f.uc.Start(context.Background(), 7, 3, 1)

	_, err := f.uc.SendMessage(context.Background(), started.ID, "hello")
	if !errors.Is(err, domain.ErrModelFailure) {
		t.Fatalf("err = %v, want ErrModelFailure", err)
	}
}

func TestSendMessageSeedsModelWithPromptAndHistory(t *testing.T) {
	f := newFixture(t, &fakeProgress{topic: testTopic()},
		&fakeModel{replies: []string{"reply one", "reply two"}})
	started, _ := f.uc.Start(context.Background(), 7, 3, 1)

	if _, err := f.uc.SendMessage(context.Background(), started.ID, "first question"); err != nil {
		t.Fatalf("turn 1: %v", err)
	}
	if _, err := f.uc.SendMessage(context.Background(), started.ID, "second question"); err != nil {
		t.Fatalf("turn 2: %v", err)
	}

	if !strings.Contains(f.ai.lastPrompt, "Goroutines") {
		t.Errorf("system prompt should name the topic, got %q", f.ai.lastPrompt)
	}
	// Second turn replays: greeting, first question, first reply.
	want := []adapter.Turn{
		{Role: adapter.TurnRoleModel, Content: started.InitialMessage},
		{Role: adapter.TurnRoleUser, Content: "first question"},
		{Role: adapter.TurnRoleModel, Content: "reply one"},
	}
	if len(f.ai.lastHistory) != len(want) {
		t.Fatalf("history len = %d, want %d: %+v", len(f.ai.lastHistory), len(want), f.ai.lastHistory)
	}
	for i, turn := range want {
		if f.ai.lastHistory[i] != turn {
			t.Errorf("history[%d] = %+v, want %+v", i, f.ai.lastHistory[i], turn)
		}
	}
	if f.ai.sent[len(f.ai.sent)-1] != "second question" {
		t.Errorf("sent = %q", f.ai.sent)
	}
}

func TestGetDetailsHidesSystemPrompt(t *testing.T) {
	f := newFixture(t, &fakeProgress{topic: testTopic()}, &fakeModel{replies: []string{"an answer"}})
	started, _ := f.uc.Start(context.Background(), 7, 3, 1)
	if _, err := f.uc.SendMessage(context.Background(), started.ID, "a question"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	detail, err := f.uc.GetDetails(context.Background(), started.ID)
	if err != nil {
		t.Fatalf("GetDetails: %v", err)
	}
	for _, m := range detail.Messages {
		if m.Role == model.RoleSystem {
			t.Error("system prompt leaked into session details")
		}
	}
	if len(detail.Messages) != 3 { // greeting, question, answer
		t.Errorf("visible messages = %d, want 3", len(detail.Messages))
	}
	if detail.InitialMessage != started.InitialMessage {
		t.Errorf("initial message = %q", detail.InitialMessage)
	}
	if detail.Context == nil || detail.Context.TopicTitle != "Goroutines" {
		t.Errorf("context view = %+v", detail.Context)
	}
}

func TestGetDetailsUnknownSession(t *testing.T) {
	f := newFixture(t, &fakeProgress{topic: testTopic()}, &fakeModel{})
	if _, err := f.uc.GetDetails(context.Background(), 404); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}
