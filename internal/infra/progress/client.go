// File: internal/infra/progress/client.go
package progress

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/DisciteAI/backend-ai-service/internal/config"
	"github.com/DisciteAI/backend-ai-service/internal/domain"
	"github.com/DisciteAI/backend-ai-service/internal/domain/ports/adapter"
	"github.com/DisciteAI/backend-ai-service/internal/infra/metrics"
	"github.com/DisciteAI/backend-ai-service/internal/retry"
)

var _ adapter.ProgressClient = (*Client)(nil)

// Client talks to the LMS progress API over HTTP JSON. Every read degrades to
// domain.ErrUnavailable instead of surfacing transport errors: the orchestrator
// must keep working without personalization when this service is down.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
	policy  retry.Policy
	log     *zerolog.Logger
}

func NewClient(cfg config.ProgressConfig, log *zerolog.Logger) *Client {
	return &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: cfg.Timeout},
		policy: retry.Policy{
			MaxAttempts:     cfg.Retry.MaxAttempts,
			BaseDelay:       cfg.Retry.BaseDelay,
			MaxDelay:        cfg.Retry.MaxDelay,
			ExponentialBase: cfg.Retry.ExponentialBase,
		},
		log: log,
	}
}

func (c *Client) GetUserContext(ctx context.Context, userID int64) (*adapter.UserContext, error) {
	var out adapter.UserContext
	path := fmt.Sprintf("/api/UserProgress/%d/context", userID)
	if err := c.getJSON(ctx, "user_context", path, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetCourseProgress(ctx context.Context, userID, courseID int64) (*adapter.CourseProgress, error) {
	var out adapter.CourseProgress
	path := fmt.Sprintf("/api/UserProgress/%d/course/%d", userID, courseID)
	if err := c.getJSON(ctx, "course_progress", path, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetTopicDetails(ctx context.Context, topicID int64) (*adapter.TopicDetails, error) {
	var out adapter.TopicDetails
	path := fmt.Sprintf("/api/TrainingTopics/%d", topicID)
	if err := c.getJSON(ctx, "topic_details", path, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) NotifyTopicCompletion(ctx context.Context, rec adapter.CompletionRecord) bool {
	body, err := json.Marshal(rec)
	if err != nil {
		c.log.Error().Err(err).Msg("marshal completion record")
		return false
	}

	err = c.policy.Do(ctx, c.log, "progress.complete-topic", func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			c.baseURL+"/api/UserProgress/complete-topic", bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		c.authorize(req)

		resp, err := c.client.Do(req)
		if err != nil {
			return retry.Transient(err)
		}
		defer drain(resp)
		if resp.StatusCode >= 300 {
			return fmt.Errorf("progress api status %d", resp.StatusCode)
		}
		return nil
	})
	metrics.ProgressRequest("complete_topic", err == nil)
	if err != nil {
		c.log.Error().Err(err).Int64("user_id", rec.UserID).Int64("topic_id", rec.TopicID).
			Msg("completion notification rejected")
		return false
	}
	c.log.Info().Int64("user_id", rec.UserID).Int64("topic_id", rec.TopicID).
		Msg("topic completion reported")
	return true
}

func (c *Client) HealthCheck(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return false
	}
	defer drain(resp)
	return resp.StatusCode == http.StatusOK
}

// getJSON fetches one resource. Network and timeout errors are retried per the
// policy; HTTP status and decode failures are terminal. Either way the caller
// sees domain.ErrUnavailable, never a transport error.
func (c *Client) getJSON(ctx context.Context, endpoint, path string, out any) error {
	err := c.policy.Do(ctx, c.log, "progress."+endpoint, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "application/json")
		c.authorize(req)

		resp, err := c.client.Do(req)
		if err != nil {
			return retry.Transient(err)
		}
		defer drain(resp)
		if resp.StatusCode >= 300 {
			return fmt.Errorf("progress api status %d", resp.StatusCode)
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	})
	metrics.ProgressRequest(endpoint, err == nil)
	if err != nil {
		c.log.Warn().Err(err).Str("endpoint", endpoint).Msg("progress api lookup failed")
		return fmt.Errorf("%w: %s: %v", domain.ErrUnavailable, endpoint, err)
	}
	return nil
}

func (c *Client) authorize(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}
