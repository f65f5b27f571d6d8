// File: internal/infra/adapters/ai/noop.go
package ai

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/DisciteAI/backend-ai-service/internal/domain/ports/adapter"
)

var _ adapter.ConversationModel = (*NoopModel)(nil)

// NoopModel implements the conversation port for local/dev runs without an AI
// provider. It logs what would be sent and returns a canned tutoring reply.
type NoopModel struct {
	log *zerolog.Logger
}

func NewNoopModel(log *zerolog.Logger) *NoopModel {
	return &NoopModel{log: log}
}

func (n *NoopModel) StartChat(_ context.Context, systemPrompt string, history []adapter.Turn) (adapter.ChatHandle, error) {
	n.log.Debug().Int("history_len", len(history)).Int("prompt_len", len(systemPrompt)).
		Msg("noop chat started")
	return &noopChat{log: n.log}, nil
}

func (n *NoopModel) HealthCheck(context.Context) bool { return true }

type noopChat struct {
	log *zerolog.Logger
}

func (c *noopChat) Send(ctx context.Context, text string) (string, error) {
	select {
	case <-time.After(100 * time.Millisecond):
	case <-ctx.Done():
		return "", ctx.Err()
	}
	c.log.Debug().Str("text", text).Msg("noop chat turn")
	return "That's a great question. Let's keep working through the topic together.", nil
}
