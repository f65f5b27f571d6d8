// File: internal/infra/web/server.go
package web

import (
	"context"
	"crypto/rand"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/oklog/ulid/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/DisciteAI/backend-ai-service/internal/domain/ports/adapter"
	"github.com/DisciteAI/backend-ai-service/internal/infra/logging"
	"github.com/DisciteAI/backend-ai-service/internal/usecase"
)

// Pinger is the database liveness probe (satisfied by *pgxpool.Pool).
type Pinger interface {
	Ping(ctx context.Context) error
}

type Server struct {
	sessionUC usecase.SessionUseCase
	db        Pinger
	progress  adapter.ProgressClient
	ai        adapter.ConversationModel
	apiKey    string
	log       *zerolog.Logger
}

func NewServer(
	sessionUC usecase.SessionUseCase,
	db Pinger,
	progress adapter.ProgressClient,
	ai adapter.ConversationModel,
	apiKey string,
	logger *zerolog.Logger,
) *Server {
	return &Server{
		sessionUC: sessionUC,
		db:        db,
		progress:  progress,
		ai:        ai,
		apiKey:    apiKey,
		log:       logger,
	}
}

// Router builds the full route tree. /health and /metrics stay outside the
// API-key guard so probes and scrapers need no credentials.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(s.traceMiddleware)

	r.Get("/health", s.healthHandler())
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1/sessions", func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Post("/start", startSessionHandler(s.sessionUC, s.log))
		r.Post("/{sessionID}/message", sendMessageHandler(s.sessionUC, s.log))
		r.Get("/{sessionID}", sessionDetailsHandler(s.sessionUC, s.log))
	})

	return r
}

// traceMiddleware assigns each request a ULID trace id, carried in the
// context for log correlation and echoed in the X-Trace-Id header.
func (s *Server) traceMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID := ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String()
		ctx := logging.WithTraceID(r.Context(), traceID)
		w.Header().Set("X-Trace-Id", traceID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// authMiddleware enforces the shared X-API-Key secret. An empty configured
// key disables the guard, which is only acceptable inside a trusted network.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey != "" && r.Header.Get("X-API-Key") != s.apiKey {
			writeError(w, http.StatusUnauthorized, "invalid or missing API key")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) healthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		deps := map[string]bool{
			"database":     s.db.Ping(ctx) == nil,
			"progress_api": s.progress.HealthCheck(ctx),
			"ai_provider":  s.ai.HealthCheck(ctx),
		}
		status := "ok"
		code := http.StatusOK
		for _, ok := range deps {
			if !ok {
				status = "degraded"
				code = http.StatusServiceUnavailable
			}
		}
		writeJSON(w, code, struct {
			Status       string          `json:"status"`
			Dependencies map[string]bool `json:"dependencies"`
		}{Status: status, Dependencies: deps})
	}
}

// Serve runs the HTTP server until ctx is canceled, then drains in-flight
// requests for up to 10 seconds.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", addr).Msg("http server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
