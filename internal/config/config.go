// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type ServerConfig struct {
	Port   int    `yaml:"port"`
	APIKey string `yaml:"api_key"` // shared secret for inbound service-to-service calls; empty disables the guard
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type DatabaseConfig struct {
	URL      string `yaml:"url"`
	MaxConns int    `yaml:"max_conns"`
}

type RedisConfig struct {
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`      // session cache TTL
	LockTTL  time.Duration `yaml:"lock_ttl"` // per-session turn lock TTL
}

// RetryConfig parameterizes the bounded exponential backoff policy.
type RetryConfig struct {
	MaxAttempts     int           `yaml:"max_attempts"`
	BaseDelay       time.Duration `yaml:"base_delay"`
	MaxDelay        time.Duration `yaml:"max_delay"`
	ExponentialBase float64       `yaml:"exponential_base"`
}

// ProgressConfig points at the LMS progress API (system of record).
type ProgressConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
	APIKey  string        `yaml:"api_key"` // sent as X-API-Key when set
	Retry   RetryConfig   `yaml:"retry"`
}

type AIConfig struct {
	Provider        string            `yaml:"provider"` // gemini | openai | noop
	GeminiKey       string            `yaml:"gemini_key"`
	GeminiURL       string            `yaml:"gemini_url"`
	OpenAIKey       string            `yaml:"openai_key"`
	OpenAIBaseURL   string            `yaml:"openai_base_url"`
	Model           string            `yaml:"model"`
	Temperature     float64           `yaml:"temperature"`
	MaxOutputTokens int               `yaml:"max_output_tokens"`
	Safety          map[string]string `yaml:"safety"` // harm category -> block threshold
	Retry           RetryConfig       `yaml:"retry"`
}

type SessionConfig struct {
	MaxHistory       int    `yaml:"max_history"`       // messages kept when rebuilding model context
	CompletionMarker string `yaml:"completion_marker"` // sentinel the model is told to emit
}

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Progress ProgressConfig `yaml:"progress"`
	AI       AIConfig       `yaml:"ai"`
	Session  SessionConfig  `yaml:"session"`

	Runtime RuntimeConfig `yaml:"-"`
}

func LoadConfig(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// defaults
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8000
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Database.MaxConns <= 0 {
		cfg.Database.MaxConns = 10
	}
	cfg.Redis.TTL = normalizeTTL(cfg.Redis.TTL, time.Hour)
	cfg.Redis.LockTTL = normalizeTTL(cfg.Redis.LockTTL, time.Minute)
	if cfg.Progress.Timeout <= 0 {
		cfg.Progress.Timeout = 30 * time.Second
	}
	cfg.Progress.Retry = normalizeRetry(cfg.Progress.Retry, 5, time.Second)
	cfg.AI.Retry = normalizeRetry(cfg.AI.Retry, 2, 2*time.Second)
	if cfg.AI.Provider == "" {
		cfg.AI.Provider = "gemini"
	}
	if cfg.AI.Model == "" {
		cfg.AI.Model = "gemini-1.5-flash"
	}
	if cfg.AI.Temperature <= 0 {
		cfg.AI.Temperature = 0.7
	}
	if cfg.AI.MaxOutputTokens <= 0 {
		cfg.AI.MaxOutputTokens = 2048
	}
	if cfg.Session.MaxHistory <= 0 {
		cfg.Session.MaxHistory = 50
	}
	if cfg.Session.CompletionMarker == "" {
		cfg.Session.CompletionMarker = "{TOPIC_COMPLETED}"
	}

	// Minimal validation
	if cfg.Database.URL == "" {
		return nil, errors.New("database.url is required")
	}
	if cfg.Redis.URL == "" {
		return nil, errors.New("redis.url is required")
	}
	if cfg.Progress.BaseURL == "" {
		return nil, errors.New("progress.base_url is required")
	}

	cfg.Runtime.Dev = dev
	return &cfg, nil
}

func normalizeTTL(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}

func normalizeRetry(r RetryConfig, attempts int, base time.Duration) RetryConfig {
	if r.MaxAttempts <= 0 {
		r.MaxAttempts = attempts
	}
	if r.BaseDelay <= 0 {
		r.BaseDelay = base
	}
	if r.MaxDelay <= 0 {
		r.MaxDelay = 60 * time.Second
	}
	if r.ExponentialBase <= 1 {
		r.ExponentialBase = 2.0
	}
	return r
}
