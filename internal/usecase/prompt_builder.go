// File: internal/usecase/prompt_builder.go
package usecase

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog"

	"github.com/DisciteAI/backend-ai-service/internal/domain/model"
	"github.com/DisciteAI/backend-ai-service/internal/domain/ports/adapter"
)

// templateVar matches lowercase {name} placeholders in custom prompt
// templates. The completion marker itself is uppercase and never treated as a
// placeholder.
var templateVar = regexp.MustCompile(`\{([a-z][a-z0-9_]*)\}`)

// PromptBuilder synthesizes the hidden system prompt and the opening greeting
// from topic metadata and the learner's context snapshot.
type PromptBuilder struct {
	marker     string
	maxHistory int
	log        *zerolog.Logger
}

func NewPromptBuilder(marker string, maxHistory int, log *zerolog.Logger) *PromptBuilder {
	return &PromptBuilder{marker: marker, maxHistory: maxHistory, log: log}
}

// BuildSystemPrompt renders the topic's custom template when present, falling
// back to the built-in prompt on any unresolved placeholder. It never fails.
func (b *PromptBuilder) BuildSystemPrompt(topic *adapter.TopicDetails, userCtx *adapter.UserContext) string {
	difficulty := difficultyTier(userCtx)
	completed := formatCompletedTopics(userCtx)
	struggles := formatStruggles(userCtx)

	if topic.PromptTemplate != nil && *topic.PromptTemplate != "" {
		rendered, err := substitute(*topic.PromptTemplate, map[string]string{
			"course_title":        topic.CourseTitle,
			"topic_title":         topic.Title,
			"topic_description":   topic.Description,
			"learning_objectives": strOrEmpty(topic.LearningObjectives),
			"user_level":          difficulty,
			"completed_topics":    completed,
			"struggles":           struggles,
			"completion_marker":   b.marker,
		})
		if err == nil {
			return rendered
		}
		b.log.Warn().Err(err).Int64("topic_id", topic.ID).
			Msg("prompt template failed, using default prompt")
	}

	return fmt.Sprintf(`You are an expert tutor specialized in %s.

CURRENT TOPIC: %s

TOPIC DESCRIPTION:
%s

%sSTUDENT CONTEXT:
- Learning Level: %s
%s
%s

YOUR TEACHING APPROACH:
1. Start by explaining the concept clearly and concisely, adapting your explanation to the student's level
2. Provide practical, real-world examples that illustrate the concept
3. Use analogies when helpful to make complex ideas more relatable
4. Ask 3 progressive questions to validate the student's understanding:
   - First question: Basic comprehension
   - Second question: Application of the concept
   - Third question: Analysis or synthesis

IMPORTANT INSTRUCTIONS:
- Adapt your language and examples to the student's %s level
- Be encouraging and supportive
- If the student struggles, provide hints rather than direct answers
- After each student answer, provide feedback before moving to the next question
- When the student correctly answers at least 2 out of 3 questions, include the marker %s in your response
- Do not move on to unrelated topics - stay focused on: %s
- Keep explanations clear, concise, and engaging

Begin by introducing the topic and providing your explanation.`,
		topic.CourseTitle,
		topic.Title,
		topic.Description,
		objectivesBlock(topic.LearningObjectives),
		difficulty,
		completed,
		struggles,
		difficulty,
		b.marker,
		topic.Title,
	)
}

// BuildInitialGreeting is the opening assistant message shown when a session
// starts. It is fixed text, so session creation never waits on the model.
func (b *PromptBuilder) BuildInitialGreeting(topic *adapter.TopicDetails, userCtx *adapter.UserContext) string {
	return fmt.Sprintf(
		"Welcome! Today we're going to work on **%s** at a %s level.\n\n%s\n\nAre you ready to get started?",
		topic.Title, difficultyTier(userCtx), topic.Description,
	)
}

// TruncateHistory keeps the most recent max entries, preserving relative
// order. max <= 0 uses the configured default window.
func (b *PromptBuilder) TruncateHistory(messages []model.Message, max int) []model.Message {
	if max <= 0 {
		max = b.maxHistory
	}
	if len(messages) <= max {
		return messages
	}
	return messages[len(messages)-max:]
}

// substitute performs named-placeholder substitution, failing on the first
// placeholder with no binding so the caller can fall back. Deliberately not a
// templating engine.
func substitute(template string, vars map[string]string) (string, error) {
	var unknown string
	out := templateVar.ReplaceAllStringFunc(template, func(tok string) string {
		name := tok[1 : len(tok)-1]
		v, ok := vars[name]
		if !ok {
			if unknown == "" {
				unknown = name
			}
			return tok
		}
		return v
	})
	if unknown != "" {
		return "", fmt.Errorf("unknown template variable %q", unknown)
	}
	return out, nil
}

// difficultyTier maps the stored proficiency level onto the prompt's wording.
func difficultyTier(userCtx *adapter.UserContext) string {
	if userCtx == nil || userCtx.UserLevel == nil {
		return "beginner to intermediate"
	}
	switch strings.ToLower(*userCtx.UserLevel) {
	case "beginner", "novice":
		return "beginner"
	case "intermediate":
		return "intermediate"
	case "advanced", "expert":
		return "advanced"
	default:
		return "beginner to intermediate"
	}
}

func formatCompletedTopics(userCtx *adapter.UserContext) string {
	if userCtx == nil || len(userCtx.CompletedTopicIDs) == 0 {
		return "- Completed Topics: None (this is their first topic)"
	}
	return fmt.Sprintf("- Completed Topics: %d topics completed previously", len(userCtx.CompletedTopicIDs))
}

func formatStruggles(userCtx *adapter.UserContext) string {
	if userCtx == nil || len(userCtx.StruggleTopics) == 0 {
		return "- Previous Difficulties: None recorded"
	}
	struggles := userCtx.StruggleTopics
	if len(struggles) > 3 {
		struggles = struggles[:3]
	}
	return "- Previous Difficulties: " + strings.Join(struggles, ", ")
}

func objectivesBlock(objectives *string) string {
	if objectives == nil || *objectives == "" {
		return ""
	}
	return fmt.Sprintf("LEARNING OBJECTIVES:\n%s\n\n", *objectives)
}

func strOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
