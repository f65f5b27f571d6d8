// File: internal/infra/web/handlers.go
package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/DisciteAI/backend-ai-service/internal/domain"
	"github.com/DisciteAI/backend-ai-service/internal/infra/logging"
	"github.com/DisciteAI/backend-ai-service/internal/usecase"
)

type startSessionRequest struct {
	UserID   int64 `json:"user_id"`
	TopicID  int64 `json:"topic_id"`
	CourseID int64 `json:"course_id"`
}

type sendMessageRequest struct {
	Message string `json:"message"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func startSessionHandler(uc usecase.SessionUseCase, log *zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var req startSessionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		ctx = logging.WithUserID(ctx, req.UserID)

		resp, err := uc.Start(ctx, req.UserID, req.TopicID, req.CourseID)
		if err != nil {
			writeDomainError(w, logging.With(ctx, log), err, "start session")
			return
		}
		writeJSON(w, http.StatusCreated, resp)
	}
}

func sendMessageHandler(uc usecase.SessionUseCase, log *zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		sessionID, err := strconv.ParseInt(chi.URLParam(r, "sessionID"), 10, 64)
		if err != nil || sessionID <= 0 {
			writeError(w, http.StatusBadRequest, "invalid session id")
			return
		}
		ctx = logging.WithSessID(ctx, sessionID)

		var req sendMessageRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		resp, err := uc.SendMessage(ctx, sessionID, req.Message)
		if err != nil {
			writeDomainError(w, logging.With(ctx, log), err, "send message")
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func sessionDetailsHandler(uc usecase.SessionUseCase, log *zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		sessionID, err := strconv.ParseInt(chi.URLParam(r, "sessionID"), 10, 64)
		if err != nil || sessionID <= 0 {
			writeError(w, http.StatusBadRequest, "invalid session id")
			return
		}
		ctx = logging.WithSessID(ctx, sessionID)

		resp, err := uc.GetDetails(ctx, sessionID)
		if err != nil {
			writeDomainError(w, logging.With(ctx, log), err, "get session")
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// writeDomainError maps sentinel errors to HTTP status codes. Anything not
// recognized is a 500 and gets logged at error level; expected failures log
// at debug to keep noise down.
func writeDomainError(w http.ResponseWriter, log *zerolog.Logger, err error, op string) {
	var code int
	switch {
	case errors.Is(err, domain.ErrInvalidArgument), errors.Is(err, domain.ErrTopicNotFound):
		code = http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrSessionNotActive):
		code = http.StatusNotFound
	case errors.Is(err, domain.ErrSessionBusy):
		code = http.StatusConflict
	case errors.Is(err, domain.ErrModelFailure):
		code = http.StatusBadGateway
	default:
		code = http.StatusInternalServerError
	}

	if code == http.StatusInternalServerError {
		log.Error().Err(err).Str("op", op).Msg("request failed")
	} else {
		log.Debug().Err(err).Str("op", op).Int("status", code).Msg("request rejected")
	}
	writeError(w, code, err.Error())
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
