// File: internal/infra/adapters/ai/openai_compat.go
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/DisciteAI/backend-ai-service/internal/config"
	"github.com/DisciteAI/backend-ai-service/internal/domain/ports/adapter"
	"github.com/DisciteAI/backend-ai-service/internal/infra/metrics"
)

var _ adapter.ConversationModel = (*OpenAICompatModel)(nil)

// OpenAICompatModel implements the conversation port against any
// OpenAI-compatible chat-completions gateway (/chat/completions,
// Authorization: Bearer). Unlike Gemini the API is stateless, so the handle
// carries the accumulated transcript and replays it on every Send.
type OpenAICompatModel struct {
	apiKey      string
	base        string
	model       string
	temperature float64
	maxTokens   int
	client      *http.Client
	log         *zerolog.Logger
}

func NewOpenAICompatModel(cfg config.AIConfig, log *zerolog.Logger) (*OpenAICompatModel, error) {
	if cfg.OpenAIKey == "" {
		return nil, errors.New("openai: empty api key")
	}
	base := cfg.OpenAIBaseURL
	if base == "" {
		base = "https://api.openai.com/v1"
	}
	return &OpenAICompatModel{
		apiKey:      cfg.OpenAIKey,
		base:        strings.TrimRight(base, "/"),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxOutputTokens,
		client:      &http.Client{Timeout: 60 * time.Second},
		log:         log,
	}, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func (m *OpenAICompatModel) StartChat(_ context.Context, systemPrompt string, history []adapter.Turn) (adapter.ChatHandle, error) {
	msgs := make([]chatMessage, 0, len(history)+1)
	if systemPrompt != "" {
		msgs = append(msgs, chatMessage{Role: "system", Content: systemPrompt})
	}
	for _, turn := range history {
		role := "user"
		if turn.Role == adapter.TurnRoleModel {
			role = "assistant"
		}
		msgs = append(msgs, chatMessage{Role: role, Content: turn.Content})
	}
	return &openAIChat{model: m, transcript: msgs}, nil
}

func (m *OpenAICompatModel) HealthCheck(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.base+"/models/"+m.model, nil)
	if err != nil {
		return false
	}
	req.Header.Set("Authorization", "Bearer "+m.apiKey)
	resp, err := m.client.Do(req)
	if err != nil {
		m.log.Warn().Err(err).Msg("openai health probe failed")
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

type openAIChat struct {
	model      *OpenAICompatModel
	transcript []chatMessage
}

func (c *openAIChat) Send(ctx context.Context, text string) (string, error) {
	c.transcript = append(c.transcript, chatMessage{Role: "user", Content: text})

	start := time.Now()
	reply, err := c.model.complete(ctx, c.transcript)
	metrics.ObserveModelCall("openai", c.model.model, int(time.Since(start).Milliseconds()), err == nil)
	if err != nil {
		return "", err
	}
	c.transcript = append(c.transcript, chatMessage{Role: "assistant", Content: reply})
	return reply, nil
}

func (m *OpenAICompatModel) complete(ctx context.Context, msgs []chatMessage) (string, error) {
	reqBody := struct {
		Model       string        `json:"model"`
		Messages    []chatMessage `json:"messages"`
		Temperature float64       `json:"temperature,omitempty"`
		MaxTokens   int           `json:"max_tokens,omitempty"`
	}{Model: m.model, Messages: msgs, Temperature: m.temperature, MaxTokens: m.maxTokens}

	b, _ := json.Marshal(reqBody)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.base+"/chat/completions", bytes.NewReader(b))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+m.apiKey)

	resp, err := m.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("openai http %d", resp.StatusCode)
	}

	var payload struct {
		Choices []struct {
			Message chatMessage `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", err
	}
	for _, choice := range payload.Choices {
		if choice.Message.Content != "" {
			return choice.Message.Content, nil
		}
	}
	return "", errors.New("openai: no choice content")
}
