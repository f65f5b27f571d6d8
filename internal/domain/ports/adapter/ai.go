package adapter

import (
	"context"

	"github.com/DisciteAI/backend-ai-service/internal/domain/model"
)

// Turn is a single entry in a model conversation context window.
type Turn struct {
	Role    string `json:"role"` // "user" | "model"
	Content string `json:"content"`
}

const (
	TurnRoleUser  = "user"
	TurnRoleModel = "model"
)

// ChatHandle is one seeded conversation with the model. Handles are cheap and
// short-lived: the orchestrator reconstructs one from persisted history on
// every turn, so no handle survives a request.
type ChatHandle interface {
	// Send appends one user turn and returns exactly one model reply.
	Send(ctx context.Context, text string) (string, error)
}

// ConversationModel is the port for the external stateful chat primitive.
type ConversationModel interface {
	// StartChat seeds a new conversation. A non-empty systemPrompt leads the
	// transcript ahead of the supplied history, in whatever shape the
	// provider supports: a native system message where the API has that
	// role, otherwise two leading turns (user prompt + canned model
	// acknowledgment).
	StartChat(ctx context.Context, systemPrompt string, history []Turn) (ChatHandle, error)

	// HealthCheck is a best-effort reachability probe; never panics or errors.
	HealthCheck(ctx context.Context) bool
}

// AckText is the canned model acknowledgment inserted after the system prompt
// by providers that seed it as a plain user turn.
const AckText = "I understand. I'm ready to provide personalized training based on the context you've provided."

// MapHistory converts stored transcript messages to model turns: system
// messages are dropped (the prompt is seeded separately), user messages map to
// user turns and assistant messages to model turns, order preserved.
func MapHistory(messages []model.Message) []Turn {
	out := make([]Turn, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case model.RoleUser:
			out = append(out, Turn{Role: TurnRoleUser, Content: m.Content})
		case model.RoleAssistant:
			out = append(out, Turn{Role: TurnRoleModel, Content: m.Content})
		}
	}
	return out
}
