// File: cmd/dbinit/main.go
package main

import (
	"context"
	"flag"
	"log"

	"github.com/DisciteAI/backend-ai-service/internal/config"
	"github.com/DisciteAI/backend-ai-service/internal/infra/db/postgres"
)

// dbinit creates the service schema. Safe to re-run: all statements are
// IF NOT EXISTS.
func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	flag.Parse()

	ctx := context.Background()

	cfg, err := config.LoadConfig(*cfgPath, false)
	if err != nil {
		log.Fatalf("config load: %v", err)
	}

	pool, err := postgres.NewPgxPool(ctx, cfg.Database.URL, 2)
	if err != nil {
		log.Fatalf("postgres connection failed: %v", err)
	}
	defer pool.Close()

	log.Println("creating schema...")

	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS sessions (
			id           BIGSERIAL PRIMARY KEY,
			user_id      BIGINT      NOT NULL,
			topic_id     BIGINT      NOT NULL,
			course_id    BIGINT      NOT NULL,
			status       TEXT        NOT NULL DEFAULT 'active',
			started_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
			completed_at TIMESTAMPTZ
		);

		CREATE INDEX IF NOT EXISTS idx_sessions_user_topic
			ON sessions (user_id, topic_id);

		CREATE TABLE IF NOT EXISTS messages (
			id         BIGSERIAL PRIMARY KEY,
			session_id BIGINT      NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
			role       TEXT        NOT NULL,
			content    TEXT        NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);

		CREATE INDEX IF NOT EXISTS idx_messages_session_order
			ON messages (session_id, created_at, id);

		CREATE TABLE IF NOT EXISTS session_contexts (
			id                    BIGSERIAL PRIMARY KEY,
			session_id            BIGINT NOT NULL UNIQUE REFERENCES sessions(id) ON DELETE CASCADE,
			user_level            TEXT,
			completed_topics_json TEXT,
			struggles_json        TEXT,
			course_title          TEXT NOT NULL DEFAULT '',
			topic_title           TEXT NOT NULL DEFAULT '',
			learning_objectives   TEXT,
			prompt_template       TEXT
		);
	`)
	if err != nil {
		log.Fatalf("failed to create schema: %v", err)
	}

	log.Println("schema ready")
}
