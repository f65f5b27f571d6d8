// File: internal/infra/adapters/ai/gemini.go
package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/genai"

	"github.com/DisciteAI/backend-ai-service/internal/config"
	"github.com/DisciteAI/backend-ai-service/internal/domain/ports/adapter"
	"github.com/DisciteAI/backend-ai-service/internal/infra/metrics"
)

var _ adapter.ConversationModel = (*GeminiModel)(nil)

// GeminiModel implements the conversation port on the official Gemini SDK.
type GeminiModel struct {
	client *genai.Client
	model  string
	gcfg   *genai.GenerateContentConfig
	log    *zerolog.Logger
}

func NewGeminiModel(ctx context.Context, cfg config.AIConfig, log *zerolog.Logger) (*GeminiModel, error) {
	if cfg.GeminiKey == "" {
		return nil, errors.New("gemini: empty api key")
	}
	c, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiKey,
		Backend: genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{
			BaseURL: cfg.GeminiURL,
		},
	})
	if err != nil {
		return nil, err
	}

	temp := float32(cfg.Temperature)
	gcfg := &genai.GenerateContentConfig{
		Temperature:     &temp,
		MaxOutputTokens: int32(cfg.MaxOutputTokens),
	}
	gcfg.SafetySettings, err = safetySettings(cfg.Safety)
	if err != nil {
		return nil, err
	}

	return &GeminiModel{client: c, model: cfg.Model, gcfg: gcfg, log: log}, nil
}

func (g *GeminiModel) StartChat(ctx context.Context, systemPrompt string, history []adapter.Turn) (adapter.ChatHandle, error) {
	chat, err := g.client.Chats.Create(ctx, g.model, g.gcfg, seedHistory(systemPrompt, history))
	if err != nil {
		return nil, fmt.Errorf("gemini: create chat: %w", err)
	}
	return &geminiChat{model: g, chat: chat}, nil
}

func (g *GeminiModel) HealthCheck(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, err := g.client.Models.Get(ctx, g.model, nil)
	if err != nil {
		g.log.Warn().Err(err).Str("model", g.model).Msg("gemini health probe failed")
	}
	return err == nil
}

type geminiChat struct {
	model *GeminiModel
	chat  *genai.Chat
}

func (c *geminiChat) Send(ctx context.Context, text string) (string, error) {
	start := time.Now()
	resp, err := c.chat.SendMessage(ctx, genai.Part{Text: text})
	metrics.ObserveModelCall("gemini", c.model.model, int(time.Since(start).Milliseconds()), err == nil)
	if err != nil {
		return "", fmt.Errorf("gemini: send: %w", err)
	}

	reply := ""
	if resp != nil && len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil && len(resp.Candidates[0].Content.Parts) > 0 {
		reply = resp.Candidates[0].Content.Parts[0].Text
	}
	if reply == "" {
		return "", errors.New("gemini: empty candidate response")
	}
	return reply, nil
}

// seedHistory places the system prompt ahead of the stored history as a
// user/model turn pair; Gemini has no separate system role in chat history.
func seedHistory(systemPrompt string, history []adapter.Turn) []*genai.Content {
	out := make([]*genai.Content, 0, len(history)+2)
	if systemPrompt != "" {
		out = append(out,
			&genai.Content{Role: genai.RoleUser, Parts: []*genai.Part{{Text: systemPrompt}}},
			&genai.Content{Role: genai.RoleModel, Parts: []*genai.Part{{Text: adapter.AckText}}},
		)
	}
	for _, turn := range history {
		role := genai.RoleUser
		if turn.Role == adapter.TurnRoleModel {
			role = genai.RoleModel
		}
		out = append(out, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: turn.Content}},
		})
	}
	return out
}

var harmCategories = map[string]genai.HarmCategory{
	"harassment":        genai.HarmCategoryHarassment,
	"hate_speech":       genai.HarmCategoryHateSpeech,
	"sexually_explicit": genai.HarmCategorySexuallyExplicit,
	"dangerous_content": genai.HarmCategoryDangerousContent,
}

var harmThresholds = map[string]genai.HarmBlockThreshold{
	"none":             genai.HarmBlockThresholdBlockNone,
	"only_high":        genai.HarmBlockThresholdBlockOnlyHigh,
	"medium_and_above": genai.HarmBlockThresholdBlockMediumAndAbove,
	"low_and_above":    genai.HarmBlockThresholdBlockLowAndAbove,
}

func safetySettings(cfg map[string]string) ([]*genai.SafetySetting, error) {
	if len(cfg) == 0 {
		// Default: block medium and above across all four categories.
		out := make([]*genai.SafetySetting, 0, len(harmCategories))
		for _, hc := range harmCategories {
			out = append(out, &genai.SafetySetting{
				Category:  hc,
				Threshold: genai.HarmBlockThresholdBlockMediumAndAbove,
			})
		}
		return out, nil
	}
	out := make([]*genai.SafetySetting, 0, len(cfg))
	for category, threshold := range cfg {
		hc, ok := harmCategories[strings.ToLower(category)]
		if !ok {
			return nil, fmt.Errorf("gemini: unknown safety category %q", category)
		}
		ht, ok := harmThresholds[strings.ToLower(threshold)]
		if !ok {
			return nil, fmt.Errorf("gemini: unknown safety threshold %q", threshold)
		}
		out = append(out, &genai.SafetySetting{Category: hc, Threshold: ht})
	}
	return out, nil
}
